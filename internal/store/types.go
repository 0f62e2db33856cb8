package store

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/rendis/waypoint/pkg/schema"
)

// Instance is the persisted representation of a workflow instance.
// Snapshot holds the serialized execution tree; the store treats it as opaque.
type Instance struct {
	ID              string                `json:"id"`
	WorkflowID      string                `json:"workflow_id"`
	WorkflowVersion string                `json:"workflow_version,omitempty"`
	Status          schema.InstanceStatus `json:"status"`
	CorrelationID   string                `json:"correlation_id,omitempty"`
	Snapshot        json.RawMessage       `json:"snapshot"`
	Fault           json.RawMessage       `json:"fault,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// Bookmark is the persisted, queryable copy of an outstanding bookmark.
type Bookmark struct {
	ID                 string          `json:"id"`
	InstanceID         string          `json:"instance_id"`
	WorkflowID         string          `json:"workflow_id"`
	Hash               string          `json:"hash"`
	ActivityTypeName   string          `json:"activity_type_name"`
	ActivityID         string          `json:"activity_id"`
	ActivityInstanceID string          `json:"activity_instance_id"`
	CorrelationID      string          `json:"correlation_id,omitempty"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// BookmarkQueueItem records that a stimulus arrived for one or more bookmarks.
type BookmarkQueueItem struct {
	ID                 string          `json:"id"`
	WorkflowInstanceID string          `json:"workflow_instance_id,omitempty"`
	BookmarkID         string          `json:"bookmark_id,omitempty"`
	StimulusHash       string          `json:"stimulus_hash,omitempty"`
	ActivityInstanceID string          `json:"activity_instance_id,omitempty"`
	ActivityTypeName   string          `json:"activity_type_name,omitempty"`
	CorrelationID      string          `json:"correlation_id,omitempty"`
	TenantID           string          `json:"tenant_id,omitempty"`
	Input              json.RawMessage `json:"input,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Trigger is an indexed trigger payload of a workflow definition.
type Trigger struct {
	ID               string          `json:"id"`
	WorkflowID       string          `json:"workflow_id"`
	ActivityID       string          `json:"activity_id"`
	ActivityTypeName string          `json:"activity_type_name"`
	Hash             string          `json:"hash"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Scheduled job kinds.
const (
	JobKindTrigger  = "trigger"
	JobKindBookmark = "bookmark"
)

// ScheduledJob is a time-armed trigger or bookmark.
type ScheduledJob struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	WorkflowID       string          `json:"workflow_id"`
	InstanceID       string          `json:"instance_id,omitempty"`
	BookmarkID       string          `json:"bookmark_id,omitempty"`
	ActivityID       string          `json:"activity_id,omitempty"`
	ActivityTypeName string          `json:"activity_type_name"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	CronExpression   string          `json:"cron_expression,omitempty"`
	Enabled          bool            `json:"enabled"`
	NextRunAt        *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt        *time.Time      `json:"last_run_at,omitempty"`
	LastRunStatus    string          `json:"last_run_status,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Event is an immutable journal entry of an instance.
type Event struct {
	ID                 int64           `json:"id"`
	InstanceID         string          `json:"instance_id"`
	ActivityInstanceID string          `json:"activity_instance_id,omitempty"`
	Type               string          `json:"event_type"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
	Sequence           int64           `json:"sequence"`
}

// --- Filter and update types ---

// InstanceFilter specifies criteria for listing instances.
type InstanceFilter struct {
	WorkflowID    string                 `json:"workflow_id,omitempty"`
	Status        *schema.InstanceStatus `json:"status,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Limit         int                    `json:"limit,omitempty"`
	Offset        int                    `json:"offset,omitempty"`
}

// BookmarkFilter specifies criteria for finding bookmarks.
type BookmarkFilter struct {
	ID               string `json:"id,omitempty"`
	InstanceID       string `json:"instance_id,omitempty"`
	Hash             string `json:"hash,omitempty"`
	ActivityTypeName string `json:"activity_type_name,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
	Limit            int    `json:"limit,omitempty"`
}

// Matches reports whether b satisfies every set field of the filter.
func (f BookmarkFilter) Matches(b *Bookmark) bool {
	return (f.ID == "" || b.ID == f.ID) &&
		(f.InstanceID == "" || b.InstanceID == f.InstanceID) &&
		(f.Hash == "" || b.Hash == f.Hash) &&
		(f.ActivityTypeName == "" || b.ActivityTypeName == f.ActivityTypeName) &&
		(f.CorrelationID == "" || b.CorrelationID == f.CorrelationID)
}

// BookmarkQueueFilter selects bookmark queue items. Unless TenantAgnostic is
// set, only items of TenantID (the default tenant when empty) match.
type BookmarkQueueFilter struct {
	ID                 string     `json:"id,omitempty"`
	IDs                []string   `json:"ids,omitempty"`
	BookmarkID         string     `json:"bookmark_id,omitempty"`
	WorkflowInstanceID string     `json:"workflow_instance_id,omitempty"`
	BookmarkHash       string     `json:"bookmark_hash,omitempty"`
	ActivityInstanceID string     `json:"activity_instance_id,omitempty"`
	ActivityTypeName   string     `json:"activity_type_name,omitempty"`
	CreatedAtLessThan  *time.Time `json:"created_at_less_than,omitempty"`
	TenantID           string     `json:"tenant_id,omitempty"`
	TenantAgnostic     bool       `json:"tenant_agnostic,omitempty"`
	Limit              int        `json:"limit,omitempty"`
}

// Matches reports whether item satisfies the filter.
func (f BookmarkQueueFilter) Matches(item *BookmarkQueueItem) bool {
	if f.ID != "" && item.ID != f.ID {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, item.ID) {
		return false
	}
	if f.BookmarkID != "" && item.BookmarkID != f.BookmarkID {
		return false
	}
	if f.BookmarkHash != "" && item.StimulusHash != f.BookmarkHash {
		return false
	}
	if f.ActivityInstanceID != "" && item.ActivityInstanceID != f.ActivityInstanceID {
		return false
	}
	if f.ActivityTypeName != "" && item.ActivityTypeName != f.ActivityTypeName {
		return false
	}
	if f.WorkflowInstanceID != "" && item.WorkflowInstanceID != f.WorkflowInstanceID {
		return false
	}
	if f.CreatedAtLessThan != nil && !item.CreatedAt.Before(*f.CreatedAtLessThan) {
		return false
	}
	if !f.TenantAgnostic && item.TenantID != f.TenantID {
		return false
	}
	return true
}

// TriggerFilter specifies criteria for finding triggers.
type TriggerFilter struct {
	WorkflowID       string `json:"workflow_id,omitempty"`
	Hash             string `json:"hash,omitempty"`
	ActivityTypeName string `json:"activity_type_name,omitempty"`
}

// Matches reports whether t satisfies the filter.
func (f TriggerFilter) Matches(t *Trigger) bool {
	return (f.WorkflowID == "" || t.WorkflowID == f.WorkflowID) &&
		(f.Hash == "" || t.Hash == f.Hash) &&
		(f.ActivityTypeName == "" || t.ActivityTypeName == f.ActivityTypeName)
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool           `json:"enabled,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus string          `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing or deleting scheduled jobs.
type ScheduledJobFilter struct {
	ID         string     `json:"id,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Enabled    *bool      `json:"enabled,omitempty"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	BookmarkID string     `json:"bookmark_id,omitempty"`
	DueBefore  *time.Time `json:"due_before,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// Matches reports whether j satisfies the filter. DueBefore matches jobs whose
// NextRunAt is set and not after the bound.
func (f ScheduledJobFilter) Matches(j *ScheduledJob) bool {
	if f.ID != "" && j.ID != f.ID {
		return false
	}
	if f.Kind != "" && j.Kind != f.Kind {
		return false
	}
	if f.Enabled != nil && j.Enabled != *f.Enabled {
		return false
	}
	if f.WorkflowID != "" && j.WorkflowID != f.WorkflowID {
		return false
	}
	if f.BookmarkID != "" && j.BookmarkID != f.BookmarkID {
		return false
	}
	if f.DueBefore != nil && (j.NextRunAt == nil || j.NextRunAt.After(*f.DueBefore)) {
		return false
	}
	return true
}
