package store

import "github.com/rendis/waypoint/pkg/schema"

// ActivityHistory is the reconstructed state of one activity execution
// context as recorded in the journal.
type ActivityHistory struct {
	ActivityInstanceID string
	Status             schema.ActivityStatus
	Transitions        int
	LastSequence       int64
}

var activityEventStatus = map[string]schema.ActivityStatus{
	schema.EventActivityScheduled: schema.ActivityStatusPending,
	schema.EventActivityStarted:   schema.ActivityStatusRunning,
	schema.EventActivitySuspended: schema.ActivityStatusSuspended,
	schema.EventActivityCompleted: schema.ActivityStatusCompleted,
	schema.EventActivityFaulted:   schema.ActivityStatusFaulted,
	schema.EventActivityCancelled: schema.ActivityStatusCancelled,
}

// ReplayActivities folds journal events (in sequence order) into the last
// known status of every activity execution context they mention.
func ReplayActivities(events []*Event) map[string]*ActivityHistory {
	out := make(map[string]*ActivityHistory)
	for _, e := range events {
		status, ok := activityEventStatus[e.Type]
		if !ok || e.ActivityInstanceID == "" {
			continue
		}
		h, ok := out[e.ActivityInstanceID]
		if !ok {
			h = &ActivityHistory{ActivityInstanceID: e.ActivityInstanceID}
			out[e.ActivityInstanceID] = h
		}
		h.Status = status
		h.Transitions++
		h.LastSequence = e.Sequence
	}
	return out
}

// ReplayInstanceStatus returns the last instance status recorded in the
// journal, or "" when no instance lifecycle event is present.
func ReplayInstanceStatus(events []*Event) schema.InstanceStatus {
	var status schema.InstanceStatus
	for _, e := range events {
		switch e.Type {
		case schema.EventInstanceStarted, schema.EventInstanceResumed:
			status = schema.InstanceStatusRunning
		case schema.EventInstanceSuspended:
			status = schema.InstanceStatusSuspended
		case schema.EventInstanceCompleted:
			status = schema.InstanceStatusCompleted
		case schema.EventInstanceFaulted:
			status = schema.InstanceStatusFaulted
		case schema.EventInstanceCancelled:
			status = schema.InstanceStatusCancelled
		}
	}
	return status
}
