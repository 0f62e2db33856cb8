package activities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/trigger"
	"github.com/rendis/waypoint/pkg/schema"
)

func collect(t *testing.T, gen trigger.EventGenerator, tc *trigger.Context) []any {
	t.Helper()
	var out []any
	for p, err := range gen.TriggerData(tc) {
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestTimer_TriggerData(t *testing.T) {
	timer := NewTimer("tick", 10*time.Minute)
	timer.Trigger = true
	wf := workflow(timer, nil)
	clk := clock.NewFixed(testEpoch)
	tc := trigger.NewContext(t.Context(), wf, timer, clk, nil)

	assert.Equal(t, []any{schema.TimerPayload{StartAt: testEpoch.Add(10 * time.Minute), Interval: 10 * time.Minute}}, collect(t, timer, tc))

	// The sequence can be iterated again and reflects the clock at that time.
	clk.Advance(time.Hour)
	assert.Equal(t, []any{schema.TimerPayload{StartAt: testEpoch.Add(70 * time.Minute), Interval: 10 * time.Minute}}, collect(t, timer, tc))
}

func TestTimer_TriggerDataRejectsNonPositiveInterval(t *testing.T) {
	timer := NewTimer("tick", 0)
	tc := trigger.NewContext(t.Context(), workflow(timer, nil), timer, clock.NewFixed(testEpoch), nil)

	var errs []error
	for _, err := range timer.TriggerData(tc) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, schema.IsCode(errs[0], schema.ErrCodeValidation))
}

func TestTimer_InsideWorkflowCreatesBookmark(t *testing.T) {
	in := run(t, workflow(NewSequence("main", NewTimer("tick", 10*time.Minute)), nil), engine.InstanceOptions{})

	require.Equal(t, schema.InstanceStatusSuspended, in.Status())
	require.Len(t, in.Bookmarks(), 1)
	payload, err := engine.DecodePayload[schema.TimerPayload](in.Bookmarks()[0])
	require.NoError(t, err)
	assert.True(t, testEpoch.Add(10*time.Minute).Equal(payload.StartAt))
	assert.Equal(t, 10*time.Minute, payload.Interval)
}

func TestTimer_AsTriggerCompletes(t *testing.T) {
	timer := NewTimer("tick", 10*time.Minute)
	timer.Trigger = true

	in := run(t, workflow(NewSequence("main", timer), nil), engine.InstanceOptions{TriggerActivityID: "tick"})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Empty(t, in.Bookmarks())
}

func TestCron_TriggerData(t *testing.T) {
	c := NewCron("hourly", "0 * * * *")
	c.Trigger = true
	clk := clock.NewFixed(testEpoch.Add(5 * time.Minute))
	tc := trigger.NewContext(t.Context(), workflow(c, nil), c, clk, nil)

	assert.Equal(t, []any{schema.CronPayload{StartAt: testEpoch.Add(time.Hour), CronExpression: "0 * * * *"}}, collect(t, c, tc))
}

func TestCron_InvalidExpressionFaults(t *testing.T) {
	in := run(t, workflow(NewCron("bad", "not a cron"), nil), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusFaulted, in.Status())
	assert.Equal(t, schema.ErrCodeValidation, faultCode(in))
}

func TestCron_InsideWorkflowWaitsForNextOccurrence(t *testing.T) {
	in := run(t, workflow(NewCron("daily", "30 6 * * *"), nil), engine.InstanceOptions{})

	require.Len(t, in.Bookmarks(), 1)
	payload, err := engine.DecodePayload[schema.CronPayload](in.Bookmarks()[0])
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 1, 2, 6, 30, 0, 0, time.UTC).Equal(payload.StartAt))
}
