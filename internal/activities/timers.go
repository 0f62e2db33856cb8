package activities

import (
	"iter"
	"time"

	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/trigger"
	"github.com/rendis/waypoint/pkg/schema"
)

// --- Delay ---

// Delay suspends for Duration. A non-positive duration completes at once.
type Delay struct {
	engine.Base
	Duration engine.Input[time.Duration]
}

// NewDelay creates a one-shot delay.
func NewDelay(id string, d time.Duration) *Delay {
	return &Delay{Base: engine.Base{ActivityID: id, ActivityType: schema.ActivityTypeDelay}, Duration: engine.Literal(d)}
}

// Execute creates the delay bookmark.
func (d *Delay) Execute(ctx *engine.ExecutionContext) error {
	dur, err := d.Duration.Get(ctx)
	if err != nil {
		return err
	}
	if dur <= 0 {
		return nil
	}
	_, err = ctx.CreateBookmark(engine.BookmarkOptions{
		Payload: schema.DelayPayload{ResumeAt: ctx.Now().Add(dur).UTC()},
	})
	return err
}

// --- Timer ---

// Timer fires every Interval. Inside a running workflow it waits one
// interval; as a trigger it starts a new instance on every tick.
type Timer struct {
	engine.Base
	Interval engine.Input[time.Duration]
	Trigger  bool
}

// NewTimer creates a timer with a fixed interval.
func NewTimer(id string, interval time.Duration) *Timer {
	return &Timer{Base: engine.Base{ActivityID: id, ActivityType: schema.ActivityTypeTimer}, Interval: engine.Literal(interval)}
}

// CanStartWorkflow implements trigger.EventGenerator.
func (t *Timer) CanStartWorkflow() bool { return t.Trigger }

// TriggerData implements trigger.EventGenerator.
func (t *Timer) TriggerData(tc *trigger.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		payload, err := t.payload(tc, tc.Now())
		if err != nil {
			yield(nil, err)
			return
		}
		yield(payload, nil)
	}
}

func (t *Timer) payload(env engine.Environment, now time.Time) (schema.TimerPayload, error) {
	interval, err := t.Interval.Get(env)
	if err != nil {
		return schema.TimerPayload{}, err
	}
	if interval <= 0 {
		return schema.TimerPayload{}, schema.NewErrorf(schema.ErrCodeValidation, "timer interval must be positive, got %s", interval).
			WithActivity(t.ActivityID)
	}
	return schema.TimerPayload{StartAt: now.Add(interval).UTC(), Interval: interval}, nil
}

// Execute creates the timer bookmark, or completes when this timer started
// the instance.
func (t *Timer) Execute(ctx *engine.ExecutionContext) error {
	if ctx.IsTriggerOfWorkflow() {
		return nil
	}
	payload, err := t.payload(ctx, ctx.Now())
	if err != nil {
		return err
	}
	_, err = ctx.CreateBookmark(engine.BookmarkOptions{Payload: payload})
	return err
}

// --- Cron ---

// Cron fires on a five-field cron schedule.
type Cron struct {
	engine.Base
	Expression engine.Input[string]
	Trigger    bool
}

// NewCron creates a cron-scheduled activity.
func NewCron(id, expression string) *Cron {
	return &Cron{Base: engine.Base{ActivityID: id, ActivityType: schema.ActivityTypeCron}, Expression: engine.Literal(expression)}
}

// CanStartWorkflow implements trigger.EventGenerator.
func (c *Cron) CanStartWorkflow() bool { return c.Trigger }

// TriggerData implements trigger.EventGenerator.
func (c *Cron) TriggerData(tc *trigger.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		payload, err := c.payload(tc, tc.Now())
		if err != nil {
			yield(nil, err)
			return
		}
		yield(payload, nil)
	}
}

func (c *Cron) payload(env engine.Environment, now time.Time) (schema.CronPayload, error) {
	expression, err := c.Expression.Get(env)
	if err != nil {
		return schema.CronPayload{}, err
	}
	next, err := trigger.NextCron(expression, now)
	if err != nil {
		return schema.CronPayload{}, err
	}
	return schema.CronPayload{StartAt: next, CronExpression: expression}, nil
}

// Execute waits for the next occurrence, or completes when this cron
// started the instance.
func (c *Cron) Execute(ctx *engine.ExecutionContext) error {
	if ctx.IsTriggerOfWorkflow() {
		return nil
	}
	payload, err := c.payload(ctx, ctx.Now())
	if err != nil {
		return err
	}
	_, err = ctx.CreateBookmark(engine.BookmarkOptions{Payload: payload})
	return err
}

var (
	_ trigger.EventGenerator = (*Timer)(nil)
	_ trigger.EventGenerator = (*Cron)(nil)
	_ trigger.EventGenerator = (*Event)(nil)
)
