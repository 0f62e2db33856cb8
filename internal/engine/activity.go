package engine

import "github.com/rendis/waypoint/internal/variables"

// Activity is a node of a workflow definition. Definitions are immutable and
// shared by every instance; all per-execution state lives in the
// ExecutionContext passed to Execute.
type Activity interface {
	// ID is unique within the workflow and stable across versions that keep
	// the node, so persisted contexts can be rebound after a restart.
	ID() string
	// Type is the activity type name used for bookmark hashing and dispatch.
	Type() string
	// Execute runs the activity. Returning without scheduling children or
	// creating bookmarks completes it synchronously.
	Execute(ctx *ExecutionContext) error
}

// Container exposes the child definitions of a composite so the workflow can
// be indexed and walked.
type Container interface {
	Children() []Activity
}

// CompletionCallback runs on the owner when one of its scheduled children completes.
type CompletionCallback func(owner, child *ExecutionContext) error

// Composite activities resolve completion callbacks by name. Names are what
// gets persisted, so they must stay stable.
type Composite interface {
	CompletionCallbacks() map[string]CompletionCallback
}

// Resumer is implemented by activities that need to react to their bookmark
// being resumed. Activities without it complete on resume.
type Resumer interface {
	Resume(ctx *ExecutionContext, bookmark Bookmark) error
}

// SignalReceiver activities install signal handlers on every execution
// context created for them.
type SignalReceiver interface {
	SignalHandlers() []SignalHandler
}

// VariableDeclarer activities declare variables on their own register when a
// context is created for them.
type VariableDeclarer interface {
	DeclareVariables(r *variables.Register)
}

// Base carries the identity shared by all activity implementations.
type Base struct {
	ActivityID   string
	ActivityType string
}

// ID implements Activity.
func (b Base) ID() string { return b.ActivityID }

// Type implements Activity.
func (b Base) Type() string { return b.ActivityType }
