package activities

import (
	"iter"

	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/trigger"
	"github.com/rendis/waypoint/pkg/schema"
)

// ReadLineInputKey is the stimulus input key carrying the line read.
const ReadLineInputKey = "line"

// Event waits for a named event. The stimulus input is stored in Result. As
// a trigger it starts a new instance whenever the event arrives.
type Event struct {
	engine.Base
	EventName engine.Input[string]
	Result    string
	Trigger   bool
}

// NewEvent creates an activity waiting for the named event.
func NewEvent(id, name string) *Event {
	return &Event{Base: engine.Base{ActivityID: id, ActivityType: schema.ActivityTypeEvent}, EventName: engine.Literal(name)}
}

// CanStartWorkflow implements trigger.EventGenerator.
func (e *Event) CanStartWorkflow() bool { return e.Trigger }

// TriggerData implements trigger.EventGenerator.
func (e *Event) TriggerData(tc *trigger.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		payload, err := e.payload(tc)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(payload, nil)
	}
}

func (e *Event) payload(env engine.Environment) (schema.EventPayload, error) {
	name, err := e.EventName.Get(env)
	if err != nil {
		return schema.EventPayload{}, err
	}
	if name == "" {
		return schema.EventPayload{}, schema.NewError(schema.ErrCodeValidation, "event name is required").WithActivity(e.ActivityID)
	}
	return schema.EventPayload{Name: name}, nil
}

// Execute suspends on the event bookmark. When the event started the
// instance, its input is consumed immediately.
func (e *Event) Execute(ctx *engine.ExecutionContext) error {
	if ctx.IsTriggerOfWorkflow() {
		setResult(ctx, e.Result, ctx.Input())
		return nil
	}
	payload, err := e.payload(ctx)
	if err != nil {
		return err
	}
	_, err = ctx.CreateBookmark(engine.BookmarkOptions{Payload: payload})
	return err
}

// Resume implements engine.Resumer.
func (e *Event) Resume(ctx *engine.ExecutionContext, _ engine.Bookmark) error {
	setResult(ctx, e.Result, ctx.Input())
	return nil
}

// ReadLine waits for a line of console input and stores it in Result.
type ReadLine struct {
	engine.Base
	Result string
}

// NewReadLine creates a console reader.
func NewReadLine(id, result string) *ReadLine {
	return &ReadLine{Base: engine.Base{ActivityID: id, ActivityType: schema.ActivityTypeReadLine}, Result: result}
}

// Execute suspends until a line arrives.
func (r *ReadLine) Execute(ctx *engine.ExecutionContext) error {
	_, err := ctx.CreateBookmark(engine.BookmarkOptions{Payload: schema.ReadLinePayload{}})
	return err
}

// Resume implements engine.Resumer.
func (r *ReadLine) Resume(ctx *engine.ExecutionContext, _ engine.Bookmark) error {
	line, _ := ctx.Input()[ReadLineInputKey].(string)
	setResult(ctx, r.Result, line)
	return nil
}
