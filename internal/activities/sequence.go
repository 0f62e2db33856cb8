package activities

import (
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/variables"
)

const callbackNext = "next"

var sequenceIndex = variables.Variable[int]{Name: "__sequence_index"}

// Sequence runs its activities one after another.
type Sequence struct {
	engine.Base
	Activities []engine.Activity
}

// NewSequence creates a sequence of activities.
func NewSequence(id string, activities ...engine.Activity) *Sequence {
	return &Sequence{Base: engine.Base{ActivityID: id, ActivityType: TypeSequence}, Activities: activities}
}

// Children implements engine.Container.
func (s *Sequence) Children() []engine.Activity { return s.Activities }

// DeclareVariables implements engine.VariableDeclarer.
func (s *Sequence) DeclareVariables(r *variables.Register) { sequenceIndex.Declare(r) }

// Execute schedules the first activity.
func (s *Sequence) Execute(ctx *engine.ExecutionContext) error {
	return s.scheduleFrom(ctx, 0)
}

// CompletionCallbacks implements engine.Composite.
func (s *Sequence) CompletionCallbacks() map[string]engine.CompletionCallback {
	return map[string]engine.CompletionCallback{callbackNext: s.next}
}

func (s *Sequence) next(owner, _ *engine.ExecutionContext) error {
	i, _, err := sequenceIndex.Get(own(owner))
	if err != nil {
		return err
	}
	return s.scheduleFrom(owner, i+1)
}

// scheduleFrom schedules the first non-nil activity at or after i. Running
// past the end leaves the sequence to complete.
func (s *Sequence) scheduleFrom(ctx *engine.ExecutionContext, i int) error {
	for ; i < len(s.Activities); i++ {
		if s.Activities[i] == nil {
			continue
		}
		sequenceIndex.Set(own(ctx), i)
		ctx.ScheduleActivity(s.Activities[i], callbackNext)
		return nil
	}
	return nil
}
