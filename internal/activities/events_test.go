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

func TestEvent_ResumeStoresInput(t *testing.T) {
	ev := NewEvent("approval", "approved")
	ev.Result = "decision"
	in := run(t, workflow(NewSequence("main", ev), map[string]any{"decision": nil}), engine.InstanceOptions{})

	require.Equal(t, schema.InstanceStatusSuspended, in.Status())
	bookmarks := in.Bookmarks()
	require.Len(t, bookmarks, 1)
	assert.Equal(t, schema.ActivityTypeEvent, bookmarks[0].ActivityTypeName)
	payload, err := engine.DecodePayload[schema.EventPayload](bookmarks[0])
	require.NoError(t, err)
	assert.Equal(t, "approved", payload.Name)

	resumeHash(t, in, schema.ActivityTypeEvent, schema.EventPayload{Name: "approved"}, map[string]any{"by": "ops"})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Equal(t, map[string]any{"by": "ops"}, rootVar(t, in, "decision"))
}

func TestEvent_NameFromExpression(t *testing.T) {
	ev := &Event{
		Base:      engine.Base{ActivityID: "wait", ActivityType: schema.ActivityTypeEvent},
		EventName: engine.Expr[string]("expr", `"order-" + vars.order`),
	}
	in := run(t, workflow(ev, map[string]any{"order": "42"}), engine.InstanceOptions{})

	require.Len(t, in.Bookmarks(), 1)
	payload, err := engine.DecodePayload[schema.EventPayload](in.Bookmarks()[0])
	require.NoError(t, err)
	assert.Equal(t, "order-42", payload.Name)
}

func TestEvent_EmptyNameFaults(t *testing.T) {
	in := run(t, workflow(NewEvent("wait", ""), nil), engine.InstanceOptions{})
	assert.Equal(t, schema.InstanceStatusFaulted, in.Status())
	assert.Equal(t, schema.ErrCodeValidation, faultCode(in))
}

func TestEvent_AsTriggerConsumesStartInput(t *testing.T) {
	ev := NewEvent("start", "signup")
	ev.Trigger = true
	ev.Result = "payload"
	wf := workflow(NewSequence("main", ev), map[string]any{"payload": nil})

	in := run(t, wf, engine.InstanceOptions{TriggerActivityID: "start", Input: map[string]any{"user": "ada"}})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Empty(t, in.Bookmarks())
	assert.Equal(t, map[string]any{"user": "ada"}, rootVar(t, in, "payload"))
}

func TestEvent_TriggerData(t *testing.T) {
	ev := NewEvent("start", "signup")
	ev.Trigger = true
	wf := workflow(ev, nil)
	tc := trigger.NewContext(t.Context(), wf, ev, clock.NewFixed(testEpoch), evaluator(t))

	var payloads []any
	for p, err := range ev.TriggerData(tc) {
		require.NoError(t, err)
		payloads = append(payloads, p)
	}
	assert.Equal(t, []any{schema.EventPayload{Name: "signup"}}, payloads)
	assert.True(t, ev.CanStartWorkflow())
}

func TestReadLine_StoresLine(t *testing.T) {
	in := run(t, workflow(NewSequence("main", NewReadLine("ask", "answer")), map[string]any{"answer": ""}), engine.InstanceOptions{})
	require.Equal(t, schema.InstanceStatusSuspended, in.Status())

	resumeHash(t, in, schema.ActivityTypeReadLine, schema.ReadLinePayload{}, map[string]any{ReadLineInputKey: "fine"})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Equal(t, "fine", rootVar(t, in, "answer"))
}

func TestReadLine_MissingLineStoresEmpty(t *testing.T) {
	in := run(t, workflow(NewSequence("main", NewReadLine("ask", "answer")), map[string]any{"answer": "old"}), engine.InstanceOptions{})

	resumeHash(t, in, schema.ActivityTypeReadLine, schema.ReadLinePayload{}, nil)

	assert.Equal(t, "", rootVar(t, in, "answer"))
}

func TestReadLine_ResumeIsAtMostOnce(t *testing.T) {
	in := run(t, workflow(NewReadLine("ask", ""), nil), engine.InstanceOptions{})
	hash, err := engine.Hash(schema.ActivityTypeReadLine, schema.ReadLinePayload{})
	require.NoError(t, err)

	_, err = in.Resume(engine.BookmarkRef{Hash: hash}, nil)
	require.NoError(t, err)
	_, err = in.Resume(engine.BookmarkRef{Hash: hash}, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	require.NoError(t, in.RunToIdle(t.Context()))
	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
}

func TestDelay_Bookmark(t *testing.T) {
	in := run(t, workflow(NewDelay("nap", 5*time.Minute), nil), engine.InstanceOptions{})

	require.Len(t, in.Bookmarks(), 1)
	b := in.Bookmarks()[0]
	assert.Equal(t, schema.ActivityTypeDelay, b.ActivityTypeName)
	payload, err := engine.DecodePayload[schema.DelayPayload](b)
	require.NoError(t, err)
	assert.True(t, testEpoch.Add(5*time.Minute).Equal(payload.ResumeAt))

	_, err = in.Resume(engine.BookmarkRef{ID: b.ID}, nil)
	require.NoError(t, err)
	require.NoError(t, in.RunToIdle(t.Context()))
	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
}

func TestDelay_NonPositiveCompletes(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		in := run(t, workflow(NewDelay("nap", d), nil), engine.InstanceOptions{})
		assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
		assert.Empty(t, in.Bookmarks())
	}
}

func TestDelay_DurationFromString(t *testing.T) {
	nap := &Delay{
		Base:     engine.Base{ActivityID: "nap", ActivityType: schema.ActivityTypeDelay},
		Duration: engine.Expr[time.Duration]("expr", "vars.wait"),
	}
	in := run(t, workflow(nap, map[string]any{"wait": "90s"}), engine.InstanceOptions{})

	require.Len(t, in.Bookmarks(), 1)
	payload, err := engine.DecodePayload[schema.DelayPayload](in.Bookmarks()[0])
	require.NoError(t, err)
	assert.True(t, testEpoch.Add(90*time.Second).Equal(payload.ResumeAt))
}
