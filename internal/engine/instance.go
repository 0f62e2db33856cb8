package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

// InstanceOptions configure a new or rehydrated instance.
type InstanceOptions struct {
	ID            string
	CorrelationID string
	Input         map[string]any
	// TriggerActivityID names the trigger activity that started the instance.
	TriggerActivityID string
	Clock             clock.Clock
	Evaluator         Evaluator
	Logger            *slog.Logger
}

// Instance is one execution of a workflow: the context arena, the work queue
// and the outstanding bookmarks. An Instance is not safe for concurrent use;
// the Runtime serializes access per instance.
type Instance struct {
	id                string
	workflow          *Workflow
	correlationID     string
	triggerActivityID string
	input             map[string]any
	status            schema.InstanceStatus
	fault             *FaultInfo
	createdAt         time.Time
	completedAt       *time.Time

	rootID    string
	arena     map[string]*ExecutionContext
	queue     []*WorkItem
	bookmarks []*Bookmark
	cursor    int64

	clock     clock.Clock
	evaluator Evaluator
	logger    *slog.Logger
	ctx       context.Context

	journal     *journal
	fsm         *InstanceFSM
	activityFSM *ActivityFSM
}

// NewInstance creates a pending instance of wf. Call Start and RunToIdle to run it.
func NewInstance(wf *Workflow, opts InstanceOptions) *Instance {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	in := &Instance{
		id:                opts.ID,
		workflow:          wf,
		correlationID:     opts.CorrelationID,
		triggerActivityID: opts.TriggerActivityID,
		input:             opts.Input,
		status:            schema.InstanceStatusPending,
		arena:             make(map[string]*ExecutionContext),
		clock:             opts.Clock,
		evaluator:         opts.Evaluator,
	}
	in.createdAt = in.clock.Now()
	in.logger = logging.OrDefault(opts.Logger).With("instance_id", in.id, "workflow_id", wf.ID)
	in.journal = &journal{clock: in.clock}
	in.fsm = NewInstanceFSM(in.journal)
	in.activityFSM = NewActivityFSM(in.journal)
	return in
}

// Start creates the root context and schedules it. Workflow variables are
// declared on the root register with their initial values.
func (in *Instance) Start() error {
	if in.status != schema.InstanceStatusPending {
		return schema.NewErrorf(schema.ErrCodeConflict, "instance %s already started", in.id)
	}
	if in.workflow.Root == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no root activity")
	}
	if err := in.setStatus(schema.InstanceStatusRunning); err != nil {
		return err
	}
	item := in.Schedule(in.workflow.Root, nil, "")
	root := in.arena[item.TargetID]
	for name, value := range in.workflow.Variables {
		root.register.Set(name, value)
	}
	in.rootID = root.id
	return nil
}

// ID returns the instance id.
func (in *Instance) ID() string { return in.id }

// Workflow returns the definition the instance runs.
func (in *Instance) Workflow() *Workflow { return in.workflow }

// CorrelationID returns the instance correlation id.
func (in *Instance) CorrelationID() string { return in.correlationID }

// Status returns the instance lifecycle state.
func (in *Instance) Status() schema.InstanceStatus { return in.status }

// Fault returns why the instance faulted, or nil.
func (in *Instance) Fault() *FaultInfo { return in.fault }

// Cursor returns the number of work items processed so far.
func (in *Instance) Cursor() int64 { return in.cursor }

// CreatedAt returns when the instance was created.
func (in *Instance) CreatedAt() time.Time { return in.createdAt }

// CompletedAt returns when the instance reached a terminal state.
func (in *Instance) CompletedAt() *time.Time { return in.completedAt }

// Root returns the root context, or nil before Start.
func (in *Instance) Root() *ExecutionContext { return in.arena[in.rootID] }

// Context returns the context with the given id.
func (in *Instance) Context(id string) (*ExecutionContext, bool) {
	c, ok := in.arena[id]
	return c, ok
}

// Contexts returns every context in the arena, parents before children.
func (in *Instance) Contexts() []*ExecutionContext {
	var out []*ExecutionContext
	var visit func(c *ExecutionContext)
	visit = func(c *ExecutionContext) {
		out = append(out, c)
		for _, child := range c.Children() {
			visit(child)
		}
	}
	if root := in.Root(); root != nil {
		visit(root)
	}
	return out
}

// ContextsOf returns the contexts executing the activity with the given id.
func (in *Instance) ContextsOf(activityID string) []*ExecutionContext {
	var out []*ExecutionContext
	for _, c := range in.Contexts() {
		if c.activity.ID() == activityID {
			out = append(out, c)
		}
	}
	return out
}

// DrainEvents returns and clears the journal events recorded since the last call.
func (in *Instance) DrainEvents() []*store.Event {
	out := in.journal.events
	in.journal.events = nil
	return out
}

// Cancel tears the instance down: the cancel signal is raised from the root,
// every unfinished context is cancelled, bookmarks and pending work are dropped.
func (in *Instance) Cancel(ctx context.Context) error {
	if in.status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeConflict, "instance %s is already %s", in.id, in.status)
	}
	in.bind(ctx)
	if root := in.Root(); root != nil && !root.status.Terminal() {
		in.raise(NewSignal(schema.SignalCancel, nil), root)
	}
	if in.status.Terminal() {
		return nil
	}
	for _, c := range in.Contexts() {
		if !c.status.Terminal() {
			_ = in.setActivityStatus(c, schema.ActivityStatusCancelled)
		}
	}
	in.dropAll()
	return in.finish(schema.InstanceStatusCancelled)
}

func (in *Instance) bind(ctx context.Context) {
	in.ctx = logging.WithInstanceID(logging.WithWorkflowID(ctx, in.workflow.ID), in.id)
}

func (in *Instance) metadata() map[string]any {
	return map[string]any{
		"id":             in.workflow.ID,
		"version":        in.workflow.Version,
		"instance_id":    in.id,
		"correlation_id": in.correlationID,
	}
}

func (in *Instance) newContext(a Activity, parentID, callback string) *ExecutionContext {
	c := &ExecutionContext{
		id:       uuid.New().String(),
		activity: a,
		parentID: parentID,
		callback: callback,
		register: variables.NewRegister(),
		inst:     in,
	}
	in.bindDefinition(c)
	in.arena[c.id] = c
	return c
}

// bindDefinition installs what a context derives from its activity definition.
func (in *Instance) bindDefinition(c *ExecutionContext) {
	if d, ok := c.activity.(VariableDeclarer); ok {
		d.DeclareVariables(c.register)
	}
	c.handlers = nil
	if r, ok := c.activity.(SignalReceiver); ok {
		c.handlers = r.SignalHandlers()
	}
}

func (in *Instance) setStatus(to schema.InstanceStatus) error {
	if in.status == to {
		return nil
	}
	if err := in.fsm.Transition(in.context(), in.id, in.status, to); err != nil {
		in.logger.Error("instance transition rejected", "from", in.status, "to", to, "error", err)
		return err
	}
	in.status = to
	return nil
}

func (in *Instance) setActivityStatus(c *ExecutionContext, to schema.ActivityStatus) error {
	if c.status == to {
		return nil
	}
	if err := in.activityFSM.Transition(in.context(), in.id, c.id, c.activity.ID(), c.status, to); err != nil {
		return err
	}
	c.status = to
	return nil
}

func (in *Instance) context() context.Context {
	if in.ctx == nil {
		return context.Background()
	}
	return in.ctx
}

// finish moves the instance to a terminal state.
func (in *Instance) finish(to schema.InstanceStatus) error {
	if err := in.setStatus(to); err != nil {
		return err
	}
	now := in.clock.Now()
	in.completedAt = &now
	in.queue = nil
	return nil
}

// dropAll removes every bookmark and pending work item.
func (in *Instance) dropAll() {
	owners := make(map[string]bool, len(in.bookmarks))
	for _, b := range in.bookmarks {
		owners[b.OwnerID] = true
	}
	in.removeBookmarks(owners)
	in.queue = nil
}

func (in *Instance) record(eventType, aecID string, payload map[string]any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	_ = in.journal.AppendEvent(in.context(), &store.Event{
		InstanceID:         in.id,
		ActivityInstanceID: aecID,
		Type:               eventType,
		Payload:            raw,
	})
}

// journal buffers events until the runtime flushes them to the store.
type journal struct {
	clock  clock.Clock
	events []*store.Event
}

func (j *journal) AppendEvent(_ context.Context, e *store.Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = j.clock.Now()
	}
	j.events = append(j.events, e)
	return nil
}
