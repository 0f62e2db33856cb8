package schema

import "time"

// TimerPayload is handed to a time-based scheduler: fire at StartAt, then every Interval.
type TimerPayload struct {
	StartAt  time.Time     `json:"start_at"`
	Interval time.Duration `json:"interval"`
}

// CronPayload is the trigger payload of a cron-scheduled workflow.
type CronPayload struct {
	StartAt        time.Time `json:"start_at"`
	CronExpression string    `json:"cron_expression"`
}

// DelayPayload is the bookmark payload of a one-shot in-workflow delay.
type DelayPayload struct {
	ResumeAt time.Time `json:"resume_at"`
}

// EventPayload is the bookmark payload of an activity awaiting a named event.
type EventPayload struct {
	Name string `json:"name"`
}

// ReadLinePayload is the bookmark payload of an activity awaiting a line of console input.
type ReadLinePayload struct{}

// ResumeWorkflows is the minimal data needed to resume bookmarks from a remote process.
// BookmarkPayload is polymorphic; see the dispatch codec for its wire envelope.
type ResumeWorkflows struct {
	ActivityTypeName   string         `json:"activity_type_name"`
	BookmarkPayload    any            `json:"bookmark_payload"`
	CorrelationID      string         `json:"correlation_id,omitempty"`
	WorkflowInstanceID string         `json:"workflow_instance_id,omitempty"`
	Input              map[string]any `json:"input,omitempty"`
}
