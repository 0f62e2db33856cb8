package engine

import (
	"context"
	"fmt"

	"github.com/rendis/waypoint/pkg/schema"
)

// WorkKind distinguishes the work items of the scheduler queue.
type WorkKind string

const (
	// WorkExecute runs a freshly scheduled context.
	WorkExecute WorkKind = "execute"
	// WorkCallback delivers a child's completion to its owner.
	WorkCallback WorkKind = "callback"
	// WorkResume delivers a resumed bookmark to its owner.
	WorkResume WorkKind = "resume"
)

// WorkItem is one unit of scheduler work. Items are never persisted: a
// snapshot is only taken when the queue is empty.
type WorkItem struct {
	Kind     WorkKind
	TargetID string
	ChildID  string
	Callback string
	Bookmark *Bookmark
	Input    map[string]any
}

// Schedule creates a pending child context of parent (nil for the root) and
// queues its execution. Items run in the order they were scheduled. It returns
// nil when parent has already finished or a is not part of the workflow.
func (in *Instance) Schedule(a Activity, parent *ExecutionContext, callback string) *WorkItem {
	if in.status.Terminal() {
		return nil
	}
	parentID := ""
	if parent != nil {
		if in.arena[parent.id] == nil || parent.status.Terminal() {
			in.logger.Debug("ignoring schedule on finished context", "parent_activity_id", parent.activity.ID())
			return nil
		}
		parentID = parent.id
	}
	if a == nil {
		if parent != nil {
			parent.Fail(schema.NewError(schema.ErrCodeValidation, "cannot schedule a nil activity").WithActivity(parent.activity.ID()))
		}
		return nil
	}
	if _, ok := in.workflow.Activity(a.ID()); !ok {
		err := schema.NewErrorf(schema.ErrCodeValidation, "activity %q is not part of workflow %s", a.ID(), in.workflow.ID)
		if parent != nil {
			parent.Fail(err)
		}
		in.logger.Error("schedule rejected", "activity_id", a.ID(), "error", err)
		return nil
	}

	c := in.newContext(a, parentID, callback)
	_ = in.setActivityStatus(c, schema.ActivityStatusPending)
	if parent != nil {
		parent.children = append(parent.children, c.id)
	}
	item := &WorkItem{Kind: WorkExecute, TargetID: c.id}
	in.enqueue(item)
	return item
}

// enqueue appends item unless the instance already finished.
func (in *Instance) enqueue(item *WorkItem) {
	if in.status.Terminal() {
		return
	}
	in.queue = append(in.queue, item)
}

// Pending returns the number of queued work items.
func (in *Instance) Pending() int { return len(in.queue) }

// RunToIdle drains the work queue one item at a time until it is empty or the
// instance reaches a terminal state. An instance left with outstanding
// bookmarks is Suspended.
func (in *Instance) RunToIdle(ctx context.Context) error {
	in.bind(ctx)
	for len(in.queue) > 0 && !in.status.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := in.queue[0]
		in.queue[0] = nil
		in.queue = in.queue[1:]
		in.cursor++
		in.process(item)
	}
	if in.status.Terminal() || in.status == schema.InstanceStatusPending {
		return nil
	}
	if len(in.bookmarks) == 0 {
		in.logger.Warn("instance idle without bookmarks", "status", in.status)
	}
	return in.setStatus(schema.InstanceStatusSuspended)
}

func (in *Instance) process(item *WorkItem) {
	target := in.arena[item.TargetID]
	if target == nil || target.status.Terminal() {
		in.logger.Debug("skipping stale work item", "kind", item.Kind, "target", item.TargetID)
		return
	}
	var child *ExecutionContext
	if item.Kind == WorkCallback {
		child = in.arena[item.ChildID]
		if child == nil {
			in.logger.Debug("skipping callback for removed child", "target", item.TargetID, "child", item.ChildID)
			return
		}
	}

	err := in.invoke(target, child, item)
	if err == nil {
		err = target.pendingFault
	}
	target.pendingFault = nil
	if child != nil {
		in.removeSubtree(child)
	}
	if err != nil {
		if in.arena[target.id] != nil && !target.status.Terminal() {
			in.faultActivity(target, err)
		}
		return
	}
	in.settle(target)
}

func (in *Instance) invoke(target, child *ExecutionContext, item *WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeExecution, "activity panicked: %v", r).WithActivity(target.activity.ID())
		}
	}()

	switch item.Kind {
	case WorkExecute:
		if err := in.setActivityStatus(target, schema.ActivityStatusRunning); err != nil {
			return err
		}
		return target.activity.Execute(target)

	case WorkCallback:
		if item.Callback == "" {
			return nil
		}
		var cb CompletionCallback
		if comp, ok := target.activity.(Composite); ok {
			cb = comp.CompletionCallbacks()[item.Callback]
		}
		if cb == nil {
			return schema.NewErrorf(schema.ErrCodeExecution, "activity %q has no completion callback %q",
				target.activity.ID(), item.Callback).WithActivity(target.activity.ID())
		}
		return cb(target, child)

	case WorkResume:
		target.input = item.Input
		if err := in.setActivityStatus(target, schema.ActivityStatusRunning); err != nil {
			return err
		}
		if r, ok := target.activity.(Resumer); ok && item.Bookmark != nil {
			return r.Resume(target, *item.Bookmark)
		}
		return nil
	}
	return fmt.Errorf("unknown work item kind %q", item.Kind)
}

// settle derives a context's state after its work ran: live children keep it
// running, bookmarks alone suspend it, and nothing left completes it.
func (in *Instance) settle(c *ExecutionContext) {
	if in.status.Terminal() || in.arena[c.id] == nil || c.status.Terminal() {
		return
	}
	for _, child := range c.Children() {
		if child.live() {
			_ = in.setActivityStatus(c, schema.ActivityStatusRunning)
			return
		}
	}
	if in.hasBookmarks(c.id) {
		_ = in.setActivityStatus(c, schema.ActivityStatusSuspended)
		return
	}
	in.completeActivity(c)
}

// completeActivity finishes c and queues its parent's callback. Completing
// the root completes the instance.
func (in *Instance) completeActivity(c *ExecutionContext) {
	if in.arena[c.id] == nil || c.status.Terminal() {
		return
	}
	c.RemoveChildren()
	in.removeBookmarks(map[string]bool{c.id: true})
	if err := in.setActivityStatus(c, schema.ActivityStatusCompleted); err != nil {
		in.logger.Error("complete rejected", "activity_id", c.activity.ID(), "error", err)
		return
	}
	if c.parentID == "" {
		_ = in.finish(schema.InstanceStatusCompleted)
		return
	}
	in.enqueue(&WorkItem{Kind: WorkCallback, TargetID: c.parentID, ChildID: c.id, Callback: c.callback})
}

// faultActivity faults c and raises the fault signal from it. A fault nobody
// stops faults the whole instance.
func (in *Instance) faultActivity(c *ExecutionContext, err error) {
	info := newFaultInfo(err, c.activity.ID())
	c.fault = info
	if terr := in.setActivityStatus(c, schema.ActivityStatusFaulted); terr != nil {
		in.logger.Error("fault transition rejected", "activity_id", c.activity.ID(), "error", terr)
		c.status = schema.ActivityStatusFaulted
	}
	in.logger.Warn("activity faulted", "activity_id", c.activity.ID(), "code", info.Code, "error", info.Message)

	// Receivers settle only once the fault was stopped: settling one while
	// the fault is still in flight would complete it over its faulted child.
	sig := NewSignal(schema.SignalFault, err)
	touched := in.deliver(sig, c)
	if sig.Stopped() {
		for _, r := range touched {
			in.settle(r)
		}
		return
	}
	if in.status.Terminal() {
		return
	}
	in.fault = info
	in.dropAll()
	_ = in.finish(schema.InstanceStatusFaulted)
}

// removeSubtree deletes c and its descendants from the arena together with
// every bookmark they own. Unfinished contexts are journaled as cancelled.
func (in *Instance) removeSubtree(c *ExecutionContext) {
	if in.arena[c.id] == nil {
		return
	}
	var order []*ExecutionContext
	owners := make(map[string]bool)
	var collect func(x *ExecutionContext)
	collect = func(x *ExecutionContext) {
		order = append(order, x)
		owners[x.id] = true
		for _, child := range x.Children() {
			collect(child)
		}
	}
	collect(c)
	in.removeBookmarks(owners)
	for _, x := range order {
		if !x.status.Terminal() {
			_ = in.setActivityStatus(x, schema.ActivityStatusCancelled)
		}
	}
	for _, x := range order {
		delete(in.arena, x.id)
	}
	if parent := in.arena[c.parentID]; parent != nil {
		kept := parent.children[:0]
		for _, id := range parent.children {
			if id != c.id {
				kept = append(kept, id)
			}
		}
		parent.children = kept
	}
}
