package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rendis/waypoint/internal/engine"
)

const defaultChannelBuffer = 64

// subscriber holds a channel and filter for a single subscriber.
type subscriber struct {
	ch     chan Event
	filter Filter
}

// MemoryHub is an in-memory EventHub implementation using channels. It is
// also a runtime observer, so every persisted bookmark change is published.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

var _ engine.BookmarkObserver = (*MemoryHub)(nil)

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: make(map[uint64]*subscriber),
	}
}

// BookmarksChanged publishes change to the matching subscribers.
func (h *MemoryHub) BookmarksChanged(ctx context.Context, change engine.BookmarkChange) error {
	return h.Publish(ctx, FromChange(change))
}

// Publish sends an event to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *MemoryHub) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// backpressure: drop event for slow subscriber
		}
	}
	return nil
}

// Subscribe creates a new subscription filtered by the given Filter.
// Returns a receive-only channel, a cancel function, and any error.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan Event, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// matchFilter returns true if the event passes the filter criteria.
func matchFilter(f Filter, e Event) bool {
	if f.InstanceID != "" && f.InstanceID != e.InstanceID {
		return false
	}
	if f.WorkflowID != "" && f.WorkflowID != e.WorkflowID {
		return false
	}
	if f.CorrelationID != "" && f.CorrelationID != e.CorrelationID {
		return false
	}
	if len(f.ActivityTypes) == 0 {
		return true
	}
	for _, list := range [][]engine.Bookmark{e.Added, e.Removed} {
		for _, b := range list {
			if slices.Contains(f.ActivityTypes, b.ActivityTypeName) {
				return true
			}
		}
	}
	return false
}
