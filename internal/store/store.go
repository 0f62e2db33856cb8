package store

import "context"

// Store is the persistence contract of the engine: instance snapshots, the
// bookmarks that make a suspended instance resumable, the durable bookmark
// queue, indexed triggers, armed timer jobs and the instance journal.
// All implementations must be safe for concurrent use.
type Store interface {
	// Instances
	SaveInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error)
	DeleteInstance(ctx context.Context, id string) error

	// Bookmarks. ReplaceBookmarks swaps an instance's whole set; DeleteBookmark
	// reports whether this caller removed the row, which is how a resumer claims it.
	ReplaceBookmarks(ctx context.Context, instanceID string, bookmarks []*Bookmark) error
	FindBookmarks(ctx context.Context, filter BookmarkFilter) ([]*Bookmark, error)
	DeleteBookmark(ctx context.Context, id string) (bool, error)

	// Bookmark queue
	EnqueueBookmarkQueueItem(ctx context.Context, item *BookmarkQueueItem) error
	FindBookmarkQueueItems(ctx context.Context, filter BookmarkQueueFilter) ([]*BookmarkQueueItem, error)
	DeleteBookmarkQueueItems(ctx context.Context, filter BookmarkQueueFilter) (int64, error)

	// Triggers
	ReplaceTriggers(ctx context.Context, workflowID string, triggers []*Trigger) error
	FindTriggers(ctx context.Context, filter TriggerFilter) ([]*Trigger, error)

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJobs(ctx context.Context, filter ScheduledJobFilter) (int64, error)

	// Journal (append-only)
	AppendEvents(ctx context.Context, instanceID string, events []*Event) error
	GetEvents(ctx context.Context, instanceID string, since int64) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
