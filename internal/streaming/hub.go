package streaming

import (
	"context"

	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/pkg/schema"
)

// Event reports that the bookmark set of an instance changed.
type Event struct {
	InstanceID    string                `json:"instance_id"`
	WorkflowID    string                `json:"workflow_id"`
	CorrelationID string                `json:"correlation_id,omitempty"`
	Status        schema.InstanceStatus `json:"status"`
	Added         []engine.Bookmark     `json:"added,omitempty"`
	Removed       []engine.Bookmark     `json:"removed,omitempty"`
}

// Filter selects the events a subscriber receives. Empty fields match
// everything; ActivityTypes matches when any added or removed bookmark has
// one of the types.
type Filter struct {
	InstanceID    string   `json:"instance_id,omitempty"`
	WorkflowID    string   `json:"workflow_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	ActivityTypes []string `json:"activity_types,omitempty"`
}

// EventHub provides pub/sub for bookmark changes.
type EventHub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}

// FromChange converts a runtime notification into a hub event.
func FromChange(change engine.BookmarkChange) Event {
	return Event{
		InstanceID:    change.InstanceID,
		WorkflowID:    change.WorkflowID,
		CorrelationID: change.CorrelationID,
		Status:        change.Status,
		Added:         change.Added,
		Removed:       change.Removed,
	}
}
