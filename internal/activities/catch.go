package activities

import (
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

var catchHandling = variables.Variable[bool]{Name: "__catch_handling"}

// Catch is a fault boundary around Body. The first fault raised inside Body
// is stopped here: the body is torn down, the fault message is stored in
// ErrorVariable and Handler runs in its place. Faults raised by the handler
// propagate past the boundary.
type Catch struct {
	engine.Base
	Body          engine.Activity
	Handler       engine.Activity
	ErrorVariable string
}

// NewCatch creates a fault boundary.
func NewCatch(id string, body, handler engine.Activity) *Catch {
	return &Catch{Base: engine.Base{ActivityID: id, ActivityType: TypeCatch}, Body: body, Handler: handler}
}

// Children implements engine.Container.
func (c *Catch) Children() []engine.Activity { return []engine.Activity{c.Body, c.Handler} }

// DeclareVariables implements engine.VariableDeclarer.
func (c *Catch) DeclareVariables(r *variables.Register) { catchHandling.Declare(r) }

// Execute schedules the body.
func (c *Catch) Execute(ctx *engine.ExecutionContext) error {
	if c.Body != nil {
		ctx.ScheduleActivity(c.Body, "")
	}
	return nil
}

// SignalHandlers implements engine.SignalReceiver.
func (c *Catch) SignalHandlers() []engine.SignalHandler {
	return []engine.SignalHandler{{Type: schema.SignalFault, Handle: c.handleFault}}
}

func (c *Catch) handleFault(sig *engine.Signal, sc *engine.SignalContext) error {
	if sc.FromSelf() {
		return nil
	}
	receiver := sc.Receiver
	if handling, _, _ := catchHandling.Get(own(receiver)); handling {
		return nil
	}
	sig.StopPropagation()

	message := ""
	if info := sc.Origin.FaultInfo(); info != nil {
		message = info.Message
	}
	receiver.Logger().Info("fault caught", "origin_activity_id", sc.Origin.Activity().ID(), "error", message)
	if c.ErrorVariable != "" {
		receiver.Set(c.ErrorVariable, message)
	}
	catchHandling.Set(own(receiver), true)
	receiver.RemoveChildren()
	if c.Handler != nil {
		receiver.ScheduleActivity(c.Handler, "")
	}
	return nil
}
