package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/pkg/schema"
)

func bookmark(id, typ string) engine.Bookmark {
	return engine.Bookmark{ID: id, ActivityTypeName: typ, ActivityID: "a-" + id}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	event := Event{
		InstanceID: "inst-1",
		WorkflowID: "wf-1",
		Status:     schema.InstanceStatusSuspended,
		Added:      []engine.Bookmark{bookmark("b1", schema.ActivityTypeReadLine)},
	}

	err = hub.Publish(ctx, event)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, event.InstanceID, got.InstanceID)
		assert.Equal(t, event.WorkflowID, got.WorkflowID)
		assert.Equal(t, schema.InstanceStatusSuspended, got.Status)
		require.Len(t, got.Added, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBookmarksChangedPublishes(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{InstanceID: "inst-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.BookmarksChanged(ctx, engine.BookmarkChange{
		InstanceID:    "inst-1",
		WorkflowID:    "wf-1",
		CorrelationID: "order-7",
		Status:        schema.InstanceStatusCompleted,
		Removed:       []engine.Bookmark{bookmark("b1", schema.ActivityTypeDelay)},
	}))

	select {
	case got := <-ch:
		assert.Equal(t, "order-7", got.CorrelationID)
		assert.Equal(t, schema.InstanceStatusCompleted, got.Status)
		assert.Equal(t, "b1", got.Removed[0].ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterByInstanceAndWorkflow(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{WorkflowID: "wf-1", InstanceID: "inst-1"})
	require.NoError(t, err)
	defer cancel()

	// Should be received (matching instance)
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "inst-1", WorkflowID: "wf-1"}))

	// Should be dropped (different instance, different workflow)
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "inst-2", WorkflowID: "wf-1"}))
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "inst-1", WorkflowID: "wf-2"}))

	select {
	case got := <-ch:
		assert.Equal(t, "inst-1", got.InstanceID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Channel should be empty -- the other events were filtered out.
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestFilterByActivityType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{
		ActivityTypes: []string{schema.ActivityTypeDelay, schema.ActivityTypeTimer},
	})
	require.NoError(t, err)
	defer cancel()

	// Should be received
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "a", Added: []engine.Bookmark{bookmark("1", schema.ActivityTypeDelay)}}))

	// Should be dropped
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "b", Added: []engine.Bookmark{bookmark("2", schema.ActivityTypeReadLine)}}))
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "c"}))

	// Should be received, matched on a removed bookmark
	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "d", Removed: []engine.Bookmark{bookmark("3", schema.ActivityTypeTimer)}}))

	var received []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received = append(received, got.InstanceID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{"a", "d"}, received)

	// No more events
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "inst-1", WorkflowID: "wf-1"}))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "inst-1", got.InstanceID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	// Cancel removes the subscriber
	cancel()

	require.NoError(t, hub.Publish(ctx, Event{InstanceID: "inst-1"}))

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event after cancel: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected: subscriber was removed
	}

	assert.Zero(t, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	// Fill the channel buffer then publish a few more. None of these block.
	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, Event{InstanceID: "inst-1"}))
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			assert.Equal(t, defaultChannelBuffer, drained)
			return
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	cancels := make([]func(), goroutines)
	for i := 0; i < goroutines; i++ {
		_, cancel, err := hub.Subscribe(ctx, Filter{})
		require.NoError(t, err)
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = hub.BookmarksChanged(ctx, engine.BookmarkChange{InstanceID: "concurrent"})
			}
		}()
	}

	// Subscribers being added and removed while publishing.
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, Filter{InstanceID: "concurrent"})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, Event{InstanceID: "inst-1"})
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = hub.Subscribe(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}
