package activities

import (
	"github.com/rendis/waypoint/internal/engine"
)

// If runs Then when Condition holds and Else otherwise. A missing branch
// completes the activity.
type If struct {
	engine.Base
	Condition engine.Input[bool]
	Then      engine.Activity
	Else      engine.Activity
}

// NewIf creates a conditional.
func NewIf(id string, condition engine.Input[bool], then, otherwise engine.Activity) *If {
	return &If{Base: engine.Base{ActivityID: id, ActivityType: TypeIf}, Condition: condition, Then: then, Else: otherwise}
}

// Children implements engine.Container.
func (a *If) Children() []engine.Activity { return []engine.Activity{a.Then, a.Else} }

// Execute evaluates the condition and schedules the chosen branch.
func (a *If) Execute(ctx *engine.ExecutionContext) error {
	ok, err := a.Condition.Get(ctx)
	if err != nil {
		return err
	}
	branch := a.Else
	if ok {
		branch = a.Then
	}
	if branch != nil {
		ctx.ScheduleActivity(branch, "")
	}
	return nil
}

// JoinMode decides when a fork completes.
type JoinMode string

const (
	// WaitAll completes the fork once every branch completed.
	WaitAll JoinMode = "wait_all"
	// WaitAny completes the fork with the first completed branch and tears
	// down the others.
	WaitAny JoinMode = "wait_any"
)

const callbackJoin = "join"

// Fork schedules all branches at once. Branches waiting on bookmarks leave
// the instance with several concurrent bookmarks.
type Fork struct {
	engine.Base
	Branches []engine.Activity
	Join     JoinMode
}

// NewFork creates a fork that waits for all branches.
func NewFork(id string, branches ...engine.Activity) *Fork {
	return &Fork{Base: engine.Base{ActivityID: id, ActivityType: TypeFork}, Branches: branches, Join: WaitAll}
}

// Children implements engine.Container.
func (f *Fork) Children() []engine.Activity { return f.Branches }

// CompletionCallbacks implements engine.Composite.
func (f *Fork) CompletionCallbacks() map[string]engine.CompletionCallback {
	return map[string]engine.CompletionCallback{callbackJoin: f.join}
}

// Execute schedules every branch in order.
func (f *Fork) Execute(ctx *engine.ExecutionContext) error {
	for _, b := range f.Branches {
		if b != nil {
			ctx.ScheduleActivity(b, callbackJoin)
		}
	}
	return nil
}

func (f *Fork) join(owner, child *engine.ExecutionContext) error {
	if f.Join == WaitAny {
		owner.Logger().Debug("fork joined", "branch_activity_id", child.Activity().ID())
		owner.Complete()
	}
	return nil
}
