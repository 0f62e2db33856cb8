package engine

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/pkg/schema"
)

// EventAppender receives the journal events emitted on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// --- Instance FSM ---

// InstanceFSM validates workflow instance lifecycle transitions and journals
// them. It belongs to one instance and is driven under that instance's lock.
type InstanceFSM struct {
	appender EventAppender
}

// NewInstanceFSM creates an InstanceFSM that emits events via the given appender.
func NewInstanceFSM(appender EventAppender) *InstanceFSM {
	return &InstanceFSM{appender: appender}
}

// Transition validates an instance transition and emits its journal event.
// The caller owns the status field and persists it.
func (f *InstanceFSM) Transition(ctx context.Context, instanceID string, from, to schema.InstanceStatus) error {
	if !slices.Contains(ValidInstanceTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid instance transition: %s -> %s", from, to).
			WithDetails(map[string]any{"instance_id": instanceID, "from": string(from), "to": string(to)})
	}

	if eventType := instanceEventType(from, to); eventType != "" {
		event := &store.Event{InstanceID: instanceID, Type: eventType}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit instance event: %s", err.Error()).WithCause(err)
		}
	}
	return nil
}

func instanceEventType(from, to schema.InstanceStatus) string {
	switch to {
	case schema.InstanceStatusRunning:
		if from == schema.InstanceStatusSuspended {
			return schema.EventInstanceResumed
		}
		return schema.EventInstanceStarted
	case schema.InstanceStatusSuspended:
		return schema.EventInstanceSuspended
	case schema.InstanceStatusCompleted:
		return schema.EventInstanceCompleted
	case schema.InstanceStatusFaulted:
		return schema.EventInstanceFaulted
	case schema.InstanceStatusCancelled:
		return schema.EventInstanceCancelled
	default:
		return ""
	}
}

// --- Activity FSM ---

// ActivityFSM validates execution context lifecycle transitions.
type ActivityFSM struct {
	appender EventAppender
}

// NewActivityFSM creates an ActivityFSM that emits events via the given appender.
func NewActivityFSM(appender EventAppender) *ActivityFSM {
	return &ActivityFSM{appender: appender}
}

// Transition validates an activity transition and emits its journal event.
func (f *ActivityFSM) Transition(ctx context.Context, instanceID, aecID, activityID string, from, to schema.ActivityStatus) error {
	if !slices.Contains(ValidActivityTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid activity transition: %s -> %s", from, to).
			WithActivity(activityID).
			WithDetails(map[string]any{"instance_id": instanceID, "activity_instance_id": aecID, "from": string(from), "to": string(to)})
	}

	if eventType := activityEventType(to); eventType != "" {
		payload, _ := json.Marshal(map[string]string{"activity_id": activityID})
		event := &store.Event{
			InstanceID:         instanceID,
			ActivityInstanceID: aecID,
			Type:               eventType,
			Payload:            payload,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit activity event: %s", err.Error()).
				WithActivity(activityID).WithCause(err)
		}
	}
	return nil
}

func activityEventType(to schema.ActivityStatus) string {
	switch to {
	case schema.ActivityStatusPending:
		return schema.EventActivityScheduled
	case schema.ActivityStatusRunning:
		return schema.EventActivityStarted
	case schema.ActivityStatusSuspended:
		return schema.EventActivitySuspended
	case schema.ActivityStatusCompleted:
		return schema.EventActivityCompleted
	case schema.ActivityStatusFaulted:
		return schema.EventActivityFaulted
	case schema.ActivityStatusCancelled:
		return schema.EventActivityCancelled
	default:
		return ""
	}
}

// --- Transition tables ---

// ValidInstanceTransitions defines the allowed state transitions for instances.
var ValidInstanceTransitions = map[schema.InstanceStatus][]schema.InstanceStatus{
	schema.InstanceStatusPending:   {schema.InstanceStatusRunning, schema.InstanceStatusCancelled},
	schema.InstanceStatusRunning:   {schema.InstanceStatusSuspended, schema.InstanceStatusCompleted, schema.InstanceStatusFaulted, schema.InstanceStatusCancelled},
	schema.InstanceStatusSuspended: {schema.InstanceStatusRunning, schema.InstanceStatusCancelled, schema.InstanceStatusFaulted},
	schema.InstanceStatusCompleted: {},
	schema.InstanceStatusFaulted:   {},
	schema.InstanceStatusCancelled: {},
}

// ValidActivityTransitions defines the allowed state transitions for execution
// contexts. Running contexts re-enter through their own callbacks without a
// transition.
var ValidActivityTransitions = map[schema.ActivityStatus][]schema.ActivityStatus{
	"":                             {schema.ActivityStatusPending},
	schema.ActivityStatusPending:   {schema.ActivityStatusRunning, schema.ActivityStatusCompleted, schema.ActivityStatusFaulted, schema.ActivityStatusCancelled},
	schema.ActivityStatusRunning:   {schema.ActivityStatusSuspended, schema.ActivityStatusCompleted, schema.ActivityStatusFaulted, schema.ActivityStatusCancelled},
	schema.ActivityStatusSuspended: {schema.ActivityStatusRunning, schema.ActivityStatusCompleted, schema.ActivityStatusFaulted, schema.ActivityStatusCancelled},
	schema.ActivityStatusCompleted: {},
	schema.ActivityStatusFaulted:   {},
	schema.ActivityStatusCancelled: {},
}
