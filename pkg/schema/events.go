package schema

// Event type constants for the instance journal.
const (
	EventInstanceStarted   = "instance_started"
	EventInstanceResumed   = "instance_resumed"
	EventInstanceSuspended = "instance_suspended"
	EventInstanceCompleted = "instance_completed"
	EventInstanceFaulted   = "instance_faulted"
	EventInstanceCancelled = "instance_cancelled"

	EventActivityScheduled = "activity_scheduled"
	EventActivityStarted   = "activity_started"
	EventActivitySuspended = "activity_suspended"
	EventActivityCompleted = "activity_completed"
	EventActivityFaulted   = "activity_faulted"
	EventActivityCancelled = "activity_cancelled"

	EventBookmarkCreated = "bookmark_created"
	EventBookmarkResumed = "bookmark_resumed"
	EventBookmarkRemoved = "bookmark_removed"

	EventSignalRaised  = "signal_raised"
	EventSignalHandled = "signal_handled"
)

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "pending"
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusSuspended InstanceStatus = "suspended"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFaulted   InstanceStatus = "faulted"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether no further work can run for the instance.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFaulted || s == InstanceStatusCancelled
}

// ActivityStatus represents the lifecycle state of one activity execution context.
type ActivityStatus string

const (
	ActivityStatusPending   ActivityStatus = "pending"
	ActivityStatusRunning   ActivityStatus = "running"
	ActivityStatusSuspended ActivityStatus = "suspended"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusFaulted   ActivityStatus = "faulted"
	ActivityStatusCancelled ActivityStatus = "cancelled"
)

// Terminal reports whether the activity context has finished.
func (s ActivityStatus) Terminal() bool {
	return s == ActivityStatusCompleted || s == ActivityStatusFaulted || s == ActivityStatusCancelled
}
