// Package trigger computes the stimulus payloads a workflow's trigger
// activities would wait for, without running the workflow. The results are
// handed to time-based schedulers and event routers to arm new instances.
package trigger

import (
	"context"
	"iter"
	"time"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/expressions"
)

// EventGenerator is implemented by activities that can start a workflow when
// an external stimulus arrives.
type EventGenerator interface {
	engine.Activity
	// CanStartWorkflow reports whether this activity is configured as a trigger.
	CanStartWorkflow() bool
	// TriggerData yields the payloads to arm. The sequence is finite, may be
	// iterated more than once and must not depend on instance state.
	TriggerData(tc *Context) iter.Seq2[any, error]
}

// Context is the environment a generator evaluates its inputs in: the
// workflow variables' initial values and the clock, never a running instance.
type Context struct {
	ctx       context.Context
	workflow  *engine.Workflow
	activity  engine.Activity
	clock     clock.Clock
	evaluator engine.Evaluator
}

// NewContext builds a trigger context for one activity of wf.
func NewContext(ctx context.Context, wf *engine.Workflow, a engine.Activity, clk clock.Clock, ev engine.Evaluator) *Context {
	if clk == nil {
		clk = clock.System{}
	}
	return &Context{ctx: ctx, workflow: wf, activity: a, clock: clk, evaluator: ev}
}

// Context implements engine.Environment.
func (c *Context) Context() context.Context { return c.ctx }

// Evaluator implements engine.Environment.
func (c *Context) Evaluator() engine.Evaluator { return c.evaluator }

// ExpressionData implements engine.Environment.
func (c *Context) ExpressionData() map[string]any {
	return expressions.Data(c.workflow.Variables, nil, map[string]any{
		"id":          c.workflow.ID,
		"version":     c.workflow.Version,
		"activity_id": c.activity.ID(),
	})
}

// Now reads the clock.
func (c *Context) Now() time.Time { return c.clock.Now() }

// Workflow returns the workflow being indexed.
func (c *Context) Workflow() *engine.Workflow { return c.workflow }

// Activity returns the generator being evaluated.
func (c *Context) Activity() engine.Activity { return c.activity }
