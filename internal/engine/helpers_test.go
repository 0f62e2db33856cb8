package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

const waitType = "test.Wait"

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// trace records activity callbacks in order.
type trace struct {
	mu  sync.Mutex
	log []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	t.log = append(t.log, s)
	t.mu.Unlock()
}

func (t *trace) entries() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.log...)
}

// step completes synchronously.
type step struct {
	Base
	tr *trace
}

func newStep(id string, tr *trace) *step {
	return &step{Base: Base{ActivityID: id, ActivityType: "test.Step"}, tr: tr}
}

func (s *step) Execute(ctx *ExecutionContext) error {
	s.tr.add(s.ActivityID)
	return nil
}

// seq runs its steps one after another.
type seq struct {
	Base
	Steps []Activity
}

var seqIndex = variables.Variable[int]{Name: "index"}

func newSeq(id string, steps ...Activity) *seq {
	return &seq{Base: Base{ActivityID: id, ActivityType: "test.Seq"}, Steps: steps}
}

func (s *seq) Children() []Activity { return s.Steps }

func (s *seq) DeclareVariables(r *variables.Register) { seqIndex.Declare(r) }

func (s *seq) Execute(ctx *ExecutionContext) error {
	if len(s.Steps) == 0 {
		return nil
	}
	seqIndex.Set(variables.Scope{ctx.Register()}, 0)
	ctx.ScheduleActivity(s.Steps[0], "next")
	return nil
}

func (s *seq) CompletionCallbacks() map[string]CompletionCallback {
	return map[string]CompletionCallback{"next": s.next}
}

func (s *seq) next(owner, _ *ExecutionContext) error {
	scope := variables.Scope{owner.Register()}
	i, _, err := seqIndex.Get(scope)
	if err != nil {
		return err
	}
	i++
	if i < len(s.Steps) {
		seqIndex.Set(scope, i)
		owner.ScheduleActivity(s.Steps[i], "next")
	}
	return nil
}

// fork schedules every branch at once and completes when all are done.
type fork struct {
	Base
	Branches []Activity
}

func newFork(id string, branches ...Activity) *fork {
	return &fork{Base: Base{ActivityID: id, ActivityType: "test.Fork"}, Branches: branches}
}

func (f *fork) Children() []Activity { return f.Branches }

func (f *fork) Execute(ctx *ExecutionContext) error {
	for _, b := range f.Branches {
		ctx.ScheduleActivity(b, "")
	}
	return nil
}

// waiter suspends on an event bookmark and records the resume input.
type waiter struct {
	Base
	Event string
	tr    *trace
}

func newWaiter(id, event string, tr *trace) *waiter {
	return &waiter{Base: Base{ActivityID: id, ActivityType: waitType}, Event: event, tr: tr}
}

func (w *waiter) Execute(ctx *ExecutionContext) error {
	_, err := ctx.CreateBookmark(BookmarkOptions{Payload: map[string]any{"name": w.Event}})
	return err
}

func (w *waiter) Resume(ctx *ExecutionContext, b Bookmark) error {
	w.tr.add("resumed:" + w.ActivityID)
	if v, ok := ctx.Input()["value"]; ok {
		ctx.Set("last", v)
	}
	return nil
}

// failer returns an error, or panics when panics is set.
type failer struct {
	Base
	panics bool
}

func newFailer(id string) *failer {
	return &failer{Base: Base{ActivityID: id, ActivityType: "test.Fail"}}
}

func (f *failer) Execute(ctx *ExecutionContext) error {
	if f.panics {
		panic("boom")
	}
	return schema.NewError(schema.ErrCodeExecution, "step failed").WithActivity(f.ActivityID)
}

// raiser sends a signal of its kind from itself.
type raiser struct {
	Base
	kind schema.SignalType
}

func newRaiser(id string, kind schema.SignalType) *raiser {
	return &raiser{Base: Base{ActivityID: id, ActivityType: "test.Raise"}, kind: kind}
}

func (r *raiser) Execute(ctx *ExecutionContext) error {
	ctx.SendSignal(NewSignal(r.kind, nil))
	return nil
}

// listener wraps a body and records the signals of one kind that reach it.
type listener struct {
	Base
	Body  Activity
	kind  schema.SignalType
	tr    *trace
	stop  bool
	clear bool
	err   error
}

func newListener(id string, kind schema.SignalType, tr *trace, body Activity) *listener {
	return &listener{Base: Base{ActivityID: id, ActivityType: "test.Listen"}, Body: body, kind: kind, tr: tr}
}

func (l *listener) Children() []Activity { return []Activity{l.Body} }

func (l *listener) Execute(ctx *ExecutionContext) error {
	ctx.ScheduleActivity(l.Body, "")
	return nil
}

func (l *listener) SignalHandlers() []SignalHandler {
	return []SignalHandler{{
		Type: l.kind,
		Handle: func(sig *Signal, sc *SignalContext) error {
			l.tr.add(l.ActivityID + ":" + string(sig.Type) + ":" + sc.Origin.Activity().ID())
			if l.stop {
				sig.StopPropagation()
			}
			if l.clear {
				sc.Receiver.RemoveChildren()
			}
			return l.err
		},
	}}
}

func newWorkflow(id string, root Activity) *Workflow {
	return &Workflow{ID: id, Version: "1", Root: root}
}

func startInstance(t *testing.T, wf *Workflow, opts InstanceOptions) *Instance {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clock.NewFixed(testEpoch)
	}
	in := NewInstance(wf, opts)
	require.NoError(t, in.Start())
	require.NoError(t, in.RunToIdle(t.Context()))
	return in
}

func eventTypes(in *Instance) []string {
	var out []string
	for _, e := range in.DrainEvents() {
		out = append(out, e.Type)
	}
	return out
}

var errHandler = errors.New("handler failed")

func contextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithCancel(t.Context())
}
