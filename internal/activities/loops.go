package activities

import (
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

const callbackIterate = "iterate"

// ForOperator compares the loop value against the end value.
type ForOperator string

const (
	LessThan           ForOperator = "less_than"
	LessThanOrEqual    ForOperator = "less_than_or_equal"
	GreaterThan        ForOperator = "greater_than"
	GreaterThanOrEqual ForOperator = "greater_than_or_equal"
)

// Holds reports whether the loop continues with value.
func (op ForOperator) Holds(value, end int) (bool, error) {
	switch op {
	case LessThan:
		return value < end, nil
	case LessThanOrEqual, "":
		return value <= end, nil
	case GreaterThan:
		return value > end, nil
	case GreaterThanOrEqual:
		return value >= end, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeUnsupported, "unsupported for operator %q", string(op))
	}
}

// DefaultCurrentValue names the loop variable when For.CurrentValue is unnamed.
const DefaultCurrentValue = "current_value"

// For counts from Start to End by Step, running Body once per value. The
// current value lives in the loop's own register, so the body reads it
// through its scope and nested loops never see each other's counters. A zero
// Step keeps the value fixed, so a holding predicate repeats Body until Break.
type For struct {
	engine.Base
	Start    engine.Input[int]
	End      engine.Input[int]
	Step     engine.Input[int]
	Operator ForOperator
	Body     engine.Activity
	// CurrentValue stays declared-unset until the first predicate holds.
	CurrentValue variables.Variable[int]
}

// NewFor creates a loop over [start, end] with step 1.
func NewFor(id string, start, end int, body engine.Activity) *For {
	return &For{
		Base:     engine.Base{ActivityID: id, ActivityType: TypeFor},
		Start:    engine.Literal(start),
		End:      engine.Literal(end),
		Step:     engine.Literal(1),
		Operator: LessThanOrEqual,
		Body:     body,
	}
}

func (f *For) current() variables.Variable[int] {
	if f.CurrentValue.Name == "" {
		return variables.Variable[int]{Name: DefaultCurrentValue}
	}
	return f.CurrentValue
}

// Children implements engine.Container.
func (f *For) Children() []engine.Activity { return []engine.Activity{f.Body} }

// DeclareVariables implements engine.VariableDeclarer.
func (f *For) DeclareVariables(r *variables.Register) { f.current().Declare(r) }

// SignalHandlers implements engine.SignalReceiver.
func (f *For) SignalHandlers() []engine.SignalHandler {
	return []engine.SignalHandler{breakHandler()}
}

// CompletionCallbacks implements engine.Composite.
func (f *For) CompletionCallbacks() map[string]engine.CompletionCallback {
	return map[string]engine.CompletionCallback{
		callbackIterate: func(owner, _ *engine.ExecutionContext) error { return f.iterate(owner) },
	}
}

// Execute enters the loop.
func (f *For) Execute(ctx *engine.ExecutionContext) error {
	return f.iterate(ctx)
}

// iterate advances the loop value and schedules the body while the predicate
// holds. The first entry starts at Start; every later entry adds Step.
func (f *For) iterate(ctx *engine.ExecutionContext) error {
	if f.Body == nil {
		return nil
	}
	start, err := f.Start.Get(ctx)
	if err != nil {
		return err
	}
	end, err := f.End.Get(ctx)
	if err != nil {
		return err
	}
	step := 1
	if !f.Step.IsZero() {
		if step, err = f.Step.Get(ctx); err != nil {
			return err
		}
	}

	scope := own(ctx)
	cur := f.current()
	value, set, err := cur.Get(scope)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeConversion, "loop value: %s", err.Error()).WithCause(err)
	}
	if set {
		value += step
	} else {
		value = start
	}

	holds, err := f.Operator.Holds(value, end)
	if err != nil {
		return err
	}
	if !holds {
		ctx.Logger().Debug("loop finished", "value", value, "end", end)
		return nil
	}
	cur.Set(scope, value)
	ctx.ScheduleActivity(f.Body, callbackIterate)
	return nil
}

// While runs Body as long as Condition holds. The condition is evaluated
// before every iteration.
type While struct {
	engine.Base
	Condition engine.Input[bool]
	Body      engine.Activity
}

// NewWhile creates a while loop.
func NewWhile(id string, condition engine.Input[bool], body engine.Activity) *While {
	return &While{Base: engine.Base{ActivityID: id, ActivityType: TypeWhile}, Condition: condition, Body: body}
}

// Children implements engine.Container.
func (w *While) Children() []engine.Activity { return []engine.Activity{w.Body} }

// SignalHandlers implements engine.SignalReceiver.
func (w *While) SignalHandlers() []engine.SignalHandler {
	return []engine.SignalHandler{breakHandler()}
}

// CompletionCallbacks implements engine.Composite.
func (w *While) CompletionCallbacks() map[string]engine.CompletionCallback {
	return map[string]engine.CompletionCallback{
		callbackIterate: func(owner, _ *engine.ExecutionContext) error { return w.Execute(owner) },
	}
}

// Execute evaluates the condition and schedules the body when it holds.
func (w *While) Execute(ctx *engine.ExecutionContext) error {
	if w.Body == nil {
		return nil
	}
	ok, err := w.Condition.Get(ctx)
	if err != nil {
		return err
	}
	if ok {
		ctx.ScheduleActivity(w.Body, callbackIterate)
	}
	return nil
}

// Break unwinds the nearest enclosing loop.
type Break struct {
	engine.Base
}

// NewBreak creates a break activity.
func NewBreak(id string) *Break {
	return &Break{Base: engine.Base{ActivityID: id, ActivityType: TypeBreak}}
}

// Execute raises the break signal.
func (b *Break) Execute(ctx *engine.ExecutionContext) error {
	ctx.SendSignal(engine.NewSignal(schema.SignalBreak, nil))
	return nil
}

// breakHandler stops a break signal at the loop, tears down the running
// iteration and completes the loop.
func breakHandler() engine.SignalHandler {
	return engine.SignalHandler{
		Type: schema.SignalBreak,
		Handle: func(sig *engine.Signal, sc *engine.SignalContext) error {
			sig.StopPropagation()
			sc.Receiver.Logger().Debug("loop broken", "origin_activity_id", sc.Origin.Activity().ID())
			sc.Receiver.RemoveChildren()
			sc.Receiver.Complete()
			return nil
		},
	}
}
