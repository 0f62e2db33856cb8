package engine

import "github.com/rendis/waypoint/pkg/schema"

// Signal is a structural notification raised from a context and delivered to
// it and then to each ancestor in turn.
type Signal struct {
	Type    schema.SignalType
	Payload any

	stopped bool
}

// NewSignal creates a signal of the given type.
func NewSignal(t schema.SignalType, payload any) *Signal {
	return &Signal{Type: t, Payload: payload}
}

// StopPropagation prevents delivery to further ancestors.
func (s *Signal) StopPropagation() { s.stopped = true }

// Stopped reports whether a handler stopped propagation.
func (s *Signal) Stopped() bool { return s.stopped }

// SignalContext tells a handler where it is running and where the signal came from.
type SignalContext struct {
	Receiver *ExecutionContext
	Origin   *ExecutionContext
}

// FromSelf reports whether the receiver raised the signal itself.
func (sc *SignalContext) FromSelf() bool { return sc.Receiver == sc.Origin }

// SignalHandler reacts to one signal type.
type SignalHandler struct {
	Type   schema.SignalType
	Handle func(sig *Signal, sc *SignalContext) error
}

// raise delivers sig to origin and then to each ancestor until a handler
// stops it or the root is passed. Siblings and descendants never see it.
// Handler errors fault the receiving context once delivery has finished.
func (in *Instance) raise(sig *Signal, origin *ExecutionContext) {
	for _, c := range in.deliver(sig, origin) {
		in.settle(c)
	}
}

// deliver is raise without settling: it returns the receivers that handled
// sig so the caller decides whether they settle.
func (in *Instance) deliver(sig *Signal, origin *ExecutionContext) []*ExecutionContext {
	in.record(schema.EventSignalRaised, origin.id, map[string]any{"signal": string(sig.Type)})

	type failure struct {
		receiver *ExecutionContext
		err      error
	}
	var (
		failures []failure
		touched  []*ExecutionContext
	)

walk:
	for cur := origin; cur != nil; cur = in.arena[cur.parentID] {
		if in.arena[cur.id] == nil {
			break
		}
		for _, h := range cur.handlers {
			if h.Type != sig.Type {
				continue
			}
			in.record(schema.EventSignalHandled, cur.id, map[string]any{"signal": string(sig.Type)})
			if err := h.Handle(sig, &SignalContext{Receiver: cur, Origin: origin}); err != nil {
				failures = append(failures, failure{cur, err})
			}
			touched = append(touched, cur)
			if sig.stopped {
				break walk
			}
		}
		if cur.parentID == "" {
			break
		}
	}

	for _, f := range failures {
		if in.arena[f.receiver.id] != nil && !f.receiver.status.Terminal() {
			in.faultActivity(f.receiver, f.err)
		}
	}
	return touched
}
