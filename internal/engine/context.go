package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/waypoint/internal/expressions"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

// FaultInfo describes why a context or instance faulted.
type FaultInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ActivityID string `json:"activity_id,omitempty"`
}

func newFaultInfo(err error, activityID string) *FaultInfo {
	f := &FaultInfo{Code: schema.ErrCodeExecution, Message: err.Error(), ActivityID: activityID}
	if we, ok := err.(*schema.WaypointError); ok {
		f.Code = we.Code
		f.Message = we.Message
	}
	return f
}

// Err renders the fault as a WaypointError.
func (f *FaultInfo) Err() error {
	if f == nil {
		return nil
	}
	return schema.NewError(f.Code, f.Message).WithActivity(f.ActivityID)
}

// ExecutionContext (AEC) is the runtime record of one activity execution.
// Contexts live in the instance arena and refer to each other by id.
type ExecutionContext struct {
	id       string
	activity Activity
	parentID string
	children []string
	callback string
	status   schema.ActivityStatus
	register *variables.Register
	input    map[string]any
	fault    *FaultInfo
	handlers []SignalHandler

	pendingFault error
	inst         *Instance
}

// ID returns the context id.
func (c *ExecutionContext) ID() string { return c.id }

// Activity returns the definition this context executes.
func (c *ExecutionContext) Activity() Activity { return c.activity }

// Status returns the lifecycle state of the context.
func (c *ExecutionContext) Status() schema.ActivityStatus { return c.status }

// FaultInfo returns the recorded fault of a faulted context.
func (c *ExecutionContext) FaultInfo() *FaultInfo { return c.fault }

// Instance returns the owning workflow instance.
func (c *ExecutionContext) Instance() *Instance { return c.inst }

// Parent returns the parent context, or nil for the root.
func (c *ExecutionContext) Parent() *ExecutionContext {
	if c.parentID == "" {
		return nil
	}
	return c.inst.arena[c.parentID]
}

// Children returns the live child contexts in scheduling order.
func (c *ExecutionContext) Children() []*ExecutionContext {
	out := make([]*ExecutionContext, 0, len(c.children))
	for _, id := range c.children {
		if child := c.inst.arena[id]; child != nil {
			out = append(out, child)
		}
	}
	return out
}

// Register returns the variables owned by this context.
func (c *ExecutionContext) Register() *variables.Register { return c.register }

// Scope returns the register chain from this context up to the root.
func (c *ExecutionContext) Scope() variables.Scope {
	var s variables.Scope
	for cur := c; cur != nil; cur = cur.Parent() {
		s = append(s, cur.register)
	}
	return s
}

// Get resolves a variable through the scope chain.
func (c *ExecutionContext) Get(name string) (any, bool) { return c.Scope().Get(name) }

// Set writes a variable to the nearest declaring scope.
func (c *ExecutionContext) Set(name string, value any) { c.Scope().Set(name, value) }

// Input returns the stimulus input delivered with the latest resume, falling
// back to the instance start input.
func (c *ExecutionContext) Input() map[string]any {
	if c.input != nil {
		return c.input
	}
	return c.inst.input
}

// ScheduleActivity schedules child as a child of this context. callback names
// an entry of this activity's CompletionCallbacks, or "" to just detach the
// child when it completes. Scheduling on a finished context is ignored.
func (c *ExecutionContext) ScheduleActivity(child Activity, callback string) *WorkItem {
	return c.inst.Schedule(child, c, callback)
}

// CreateBookmark suspends this context on a bookmark.
func (c *ExecutionContext) CreateBookmark(opts BookmarkOptions) (Bookmark, error) {
	return c.inst.createBookmark(c, opts)
}

// SendSignal raises sig from this context toward the root.
func (c *ExecutionContext) SendSignal(sig *Signal) {
	c.inst.raise(sig, c)
}

// RemoveChildren tears down every child subtree with their bookmarks.
func (c *ExecutionContext) RemoveChildren() {
	for _, id := range append([]string(nil), c.children...) {
		if child := c.inst.arena[id]; child != nil {
			c.inst.removeSubtree(child)
		}
	}
	c.children = nil
}

// Complete finishes this context now: children and bookmarks are removed and
// the parent's completion callback is queued.
func (c *ExecutionContext) Complete() {
	c.inst.completeActivity(c)
}

// Fail faults this context once the current work item returns.
func (c *ExecutionContext) Fail(err error) {
	if c.pendingFault == nil {
		c.pendingFault = err
	}
}

// IsTriggerOfWorkflow reports whether this activity started the instance.
func (c *ExecutionContext) IsTriggerOfWorkflow() bool {
	return c.inst.triggerActivityID != "" && c.inst.triggerActivityID == c.activity.ID()
}

// Context returns the context of the running work item, tagged with the
// instance and activity ids for logging.
func (c *ExecutionContext) Context() context.Context {
	ctx := c.inst.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.WithActivityID(ctx, c.activity.ID())
}

// Logger returns a logger carrying the context ids.
func (c *ExecutionContext) Logger() *slog.Logger {
	return c.inst.logger.With("activity_id", c.activity.ID(), "activity_instance_id", c.id)
}

// Now returns the instance clock time.
func (c *ExecutionContext) Now() time.Time { return c.inst.clock.Now() }

// Evaluator implements Environment.
func (c *ExecutionContext) Evaluator() Evaluator { return c.inst.evaluator }

// ExpressionData implements Environment: visible variables, the stimulus
// input and instance metadata.
func (c *ExecutionContext) ExpressionData() map[string]any {
	return expressions.Data(c.Scope().Data(), c.Input(), c.inst.metadata())
}

// Evaluate evaluates an ad-hoc expression in this context.
func (c *ExecutionContext) Evaluate(expr expressions.Expression) (any, error) {
	if c.inst.evaluator == nil {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupported, "no evaluator configured for %s expression", expr.Language)
	}
	return c.inst.evaluator.Evaluate(c.Context(), expr, c.ExpressionData())
}

// live reports whether the context still holds its parent open: everything
// except faulted or cancelled contexts, including completed children whose
// callback has not run yet.
func (c *ExecutionContext) live() bool {
	return c.status != schema.ActivityStatusFaulted && c.status != schema.ActivityStatusCancelled
}
