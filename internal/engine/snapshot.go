package engine

import (
	"encoding/json"
	"time"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

// Snapshot is the persisted state of an idle instance. Pending work items are
// never part of it; handlers and definitions are rebound from the workflow on
// rehydration.
type Snapshot struct {
	InstanceID        string                `json:"instance_id"`
	WorkflowID        string                `json:"workflow_id"`
	WorkflowVersion   string                `json:"workflow_version,omitempty"`
	CorrelationID     string                `json:"correlation_id,omitempty"`
	TriggerActivityID string                `json:"trigger_activity_id,omitempty"`
	Status            schema.InstanceStatus `json:"status"`
	Fault             *FaultInfo            `json:"fault,omitempty"`
	Input             map[string]any        `json:"input,omitempty"`
	RootID            string                `json:"root_id,omitempty"`
	Cursor            int64                 `json:"cursor"`
	Contexts          []ContextSnapshot     `json:"contexts"`
	Bookmarks         []Bookmark            `json:"bookmarks"`
	CreatedAt         time.Time             `json:"created_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
}

// ContextSnapshot is the persisted form of one execution context.
type ContextSnapshot struct {
	ID         string                `json:"id"`
	ActivityID string                `json:"activity_id"`
	ParentID   string                `json:"parent_id,omitempty"`
	Children   []string              `json:"children,omitempty"`
	Callback   string                `json:"callback,omitempty"`
	Status     schema.ActivityStatus `json:"status"`
	Variables  []variables.Slot      `json:"variables,omitempty"`
	Input      map[string]any        `json:"input,omitempty"`
	Fault      *FaultInfo            `json:"fault,omitempty"`
}

// Snapshot captures the instance. It fails while work is still queued.
func (in *Instance) Snapshot() (*Snapshot, error) {
	if len(in.queue) > 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"instance %s has %d pending work items", in.id, len(in.queue))
	}
	snap := &Snapshot{
		InstanceID:        in.id,
		WorkflowID:        in.workflow.ID,
		WorkflowVersion:   in.workflow.Version,
		CorrelationID:     in.correlationID,
		TriggerActivityID: in.triggerActivityID,
		Status:            in.status,
		Fault:             in.fault,
		Input:             in.input,
		RootID:            in.rootID,
		Cursor:            in.cursor,
		Bookmarks:         in.Bookmarks(),
		CreatedAt:         in.createdAt,
		CompletedAt:       in.completedAt,
	}
	for _, c := range in.Contexts() {
		snap.Contexts = append(snap.Contexts, ContextSnapshot{
			ID:         c.id,
			ActivityID: c.activity.ID(),
			ParentID:   c.parentID,
			Children:   append([]string(nil), c.children...),
			Callback:   c.callback,
			Status:     c.status,
			Variables:  c.register.Slots(),
			Input:      c.input,
			Fault:      c.fault,
		})
	}
	return snap, nil
}

// MarshalSnapshot captures the instance as JSON.
func (in *Instance) MarshalSnapshot() (json.RawMessage, error) {
	snap, err := in.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// Rehydrate rebuilds an instance from a snapshot. Every context must still
// resolve to an activity of wf.
func Rehydrate(wf *Workflow, snap *Snapshot, opts InstanceOptions) (*Instance, error) {
	if snap.WorkflowID != wf.ID {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"snapshot belongs to workflow %s, not %s", snap.WorkflowID, wf.ID)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	opts.ID = snap.InstanceID
	opts.CorrelationID = snap.CorrelationID
	opts.TriggerActivityID = snap.TriggerActivityID
	opts.Input = snap.Input

	in := NewInstance(wf, opts)
	in.status = snap.Status
	in.fault = snap.Fault
	in.rootID = snap.RootID
	in.cursor = snap.Cursor
	in.createdAt = snap.CreatedAt
	in.completedAt = snap.CompletedAt

	for _, cs := range snap.Contexts {
		a, ok := wf.Activity(cs.ActivityID)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound,
				"activity %q of context %s is not part of workflow %s", cs.ActivityID, cs.ID, wf.ID).
				WithActivity(cs.ActivityID)
		}
		c := &ExecutionContext{
			id:       cs.ID,
			activity: a,
			parentID: cs.ParentID,
			children: append([]string(nil), cs.Children...),
			callback: cs.Callback,
			status:   cs.Status,
			register: variables.RestoreRegister(cs.Variables),
			input:    cs.Input,
			fault:    cs.Fault,
			inst:     in,
		}
		in.bindDefinition(c)
		in.arena[c.id] = c
	}
	for i := range snap.Bookmarks {
		b := snap.Bookmarks[i]
		if _, ok := in.arena[b.OwnerID]; !ok {
			in.logger.Warn("dropping bookmark of unknown context", "bookmark_id", b.ID, "owner_id", b.OwnerID)
			continue
		}
		in.bookmarks = append(in.bookmarks, &b)
	}
	in.logger.Debug("instance rehydrated", "contexts", len(in.arena), "bookmarks", len(in.bookmarks))
	return in, nil
}

// UnmarshalSnapshot decodes a JSON snapshot.
func UnmarshalSnapshot(raw json.RawMessage) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode snapshot: %s", err.Error()).WithCause(err)
	}
	return &snap, nil
}
