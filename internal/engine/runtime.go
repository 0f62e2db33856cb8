package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/expressions"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/pkg/schema"
)

// RuntimeConfig holds dependencies of a Runtime. Zero values get defaults.
type RuntimeConfig struct {
	Logger    *slog.Logger
	Clock     clock.Clock
	Evaluator Evaluator
	// PoolSize bounds how many instances ResumeStimulus drives concurrently.
	PoolSize  int
	Observers []BookmarkObserver
}

// StartOptions describe a new instance.
type StartOptions struct {
	CorrelationID     string
	Input             map[string]any
	TriggerActivityID string
}

// ResumeRequest resumes bookmarks of one instance by bookmark id or stimulus hash.
type ResumeRequest struct {
	InstanceID   string
	BookmarkID   string
	StimulusHash string
	Input        map[string]any
}

// Stimulus is an external event addressed by activity type and payload rather
// than by bookmark id. Empty CorrelationID and InstanceID match any instance.
type Stimulus struct {
	ActivityTypeName string
	Payload          any
	CorrelationID    string
	InstanceID       string
	Input            map[string]any
}

// BookmarkChange lists the bookmarks an instance gained and lost in one run.
type BookmarkChange struct {
	InstanceID    string
	WorkflowID    string
	CorrelationID string
	Status        schema.InstanceStatus
	Added         []Bookmark
	Removed       []Bookmark
}

// BookmarkObserver is notified after the bookmark set of an instance changed
// and was persisted. Timer schedulers use it to arm and disarm jobs.
type BookmarkObserver interface {
	BookmarksChanged(ctx context.Context, change BookmarkChange) error
}

// Runtime drives workflow instances against a store. Every operation loads the
// instance snapshot, runs it to idle under the instance lock and persists it
// again, so instances can be resumed by any process sharing the store.
type Runtime struct {
	store     store.Store
	clock     clock.Clock
	evaluator Evaluator
	logger    *slog.Logger
	pool      *WorkerPool
	locks     *instanceLocks

	mu        sync.RWMutex
	workflows map[string]*Workflow
	observers []BookmarkObserver
}

// NewRuntime creates a runtime over s. Without an evaluator, the default
// expression registry (expr, cel, jq) is used.
func NewRuntime(s store.Store, cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Evaluator == nil {
		reg, err := expressions.NewDefaultRegistry()
		if err != nil {
			return nil, err
		}
		cfg.Evaluator = reg
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	logger := logging.OrDefault(cfg.Logger)
	return &Runtime{
		store:     s,
		clock:     cfg.Clock,
		evaluator: cfg.Evaluator,
		logger:    logger,
		pool:      NewWorkerPool(cfg.PoolSize, logger),
		locks:     newInstanceLocks(),
		workflows: make(map[string]*Workflow),
		observers: append([]BookmarkObserver(nil), cfg.Observers...),
	}, nil
}

// Register validates and adds a workflow definition. Registering an id again
// replaces the previous definition.
func (r *Runtime) Register(wf *Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.workflows[wf.ID] = wf
	r.mu.Unlock()
	r.logger.Info("workflow registered", "workflow_id", wf.ID, "version", wf.Version)
	return nil
}

// Workflow returns a registered definition.
func (r *Runtime) Workflow(id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q is not registered", id)
	}
	return wf, nil
}

// Workflows returns every registered definition ordered by id.
func (r *Runtime) Workflows() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddObserver registers a bookmark observer.
func (r *Runtime) AddObserver(o BookmarkObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Start creates an instance of the workflow and runs it until it completes
// or suspends.
func (r *Runtime) Start(ctx context.Context, workflowID string, opts StartOptions) (*Snapshot, error) {
	wf, err := r.Workflow(workflowID)
	if err != nil {
		return nil, err
	}
	in := NewInstance(wf, InstanceOptions{
		CorrelationID:     opts.CorrelationID,
		Input:             opts.Input,
		TriggerActivityID: opts.TriggerActivityID,
		Clock:             r.clock,
		Evaluator:         r.evaluator,
		Logger:            r.logger,
	})
	unlock := r.locks.lock(in.ID())
	defer unlock()

	ctx = logging.WithInstanceID(logging.WithWorkflowID(ctx, wf.ID), in.ID())
	if err := in.Start(); err != nil {
		return nil, err
	}
	if err := in.RunToIdle(ctx); err != nil {
		return nil, err
	}
	snap, err := r.persist(ctx, in, nil)
	if err != nil {
		return nil, err
	}
	logging.LogWith(ctx, r.logger).Info("instance started", "status", snap.Status, "bookmarks", len(snap.Bookmarks))
	return snap, nil
}

// Resume delivers input to the bookmarks of one instance selected by id or by
// stimulus hash. Each persisted bookmark is claimed before it is resumed, so
// concurrent resumers of the same bookmark see exactly one winner; the others,
// and resumers of a terminal instance, get NOT_FOUND. If the drain or the
// write fails after a claim, the claimed rows are put back.
func (r *Runtime) Resume(ctx context.Context, req ResumeRequest) (*Snapshot, error) {
	if req.InstanceID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "instance id is required")
	}
	if req.BookmarkID == "" && req.StimulusHash == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "bookmark id or stimulus hash is required")
	}
	unlock := r.locks.lock(req.InstanceID)
	defer unlock()

	in, err := r.load(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithInstanceID(logging.WithWorkflowID(ctx, in.workflow.ID), in.id)
	if in.status.Terminal() {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "instance %s is %s and holds no bookmarks", in.id, in.status)
	}
	before := in.Bookmarks()

	filter := store.BookmarkFilter{InstanceID: in.id, ID: req.BookmarkID}
	if req.BookmarkID == "" {
		filter.Hash = req.StimulusHash
	}
	candidates, err := r.store.FindBookmarks(ctx, filter)
	if err != nil {
		return nil, err
	}
	var claimed []*store.Bookmark
	for _, b := range candidates {
		ok, err := r.store.DeleteBookmark(ctx, b.ID)
		if err != nil {
			r.restoreClaims(ctx, in.id, claimed)
			return nil, err
		}
		if !ok {
			continue
		}
		claimed = append(claimed, b)
		if _, err := in.Resume(BookmarkRef{ID: b.ID}, req.Input); err != nil {
			logging.LogWith(ctx, r.logger).Warn("claimed bookmark missing from snapshot", "bookmark_id", b.ID, "error", err)
			claimed = claimed[:len(claimed)-1]
			continue
		}
	}
	if len(claimed) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no bookmark of instance %s matches %s",
			in.id, BookmarkRef{ID: req.BookmarkID, Hash: req.StimulusHash})
	}

	// Claimed rows are gone from the store: from here on the caller giving up
	// must not strand the instance halfway through the drain.
	runCtx := context.WithoutCancel(ctx)
	if err := in.RunToIdle(runCtx); err != nil {
		r.restoreClaims(runCtx, in.id, claimed)
		return nil, err
	}
	snap, err := r.persist(runCtx, in, before)
	if err != nil {
		r.restoreClaims(runCtx, in.id, claimed)
		return nil, err
	}
	logging.LogWith(ctx, r.logger).Info("instance resumed", "resumed", len(claimed), "status", snap.Status)
	return snap, nil
}

// ResumeStimulus resumes every persisted bookmark matching the stimulus and
// returns how many instances were resumed. Instances run concurrently on the
// worker pool; losing a claim race is not an error.
func (r *Runtime) ResumeStimulus(ctx context.Context, stim Stimulus) (int, error) {
	hash, err := Hash(stim.ActivityTypeName, stim.Payload)
	if err != nil {
		return 0, err
	}
	return r.ResumeHash(ctx, hash, stim.CorrelationID, stim.InstanceID, stim.Input)
}

// ResumeHash is ResumeStimulus for a precomputed stimulus hash.
func (r *Runtime) ResumeHash(ctx context.Context, hash, correlationID, instanceID string, input map[string]any) (int, error) {
	found, err := r.store.FindBookmarks(ctx, store.BookmarkFilter{
		Hash:          hash,
		CorrelationID: correlationID,
		InstanceID:    instanceID,
	})
	if err != nil {
		return 0, err
	}
	var instances []string
	seen := make(map[string]bool)
	for _, b := range found {
		if !seen[b.InstanceID] {
			seen[b.InstanceID] = true
			instances = append(instances, b.InstanceID)
		}
	}

	var mu sync.Mutex
	resumed := 0
	batch := r.pool.NewBatch()
	for _, id := range instances {
		batch.Go(ctx, "resume "+id, func(ctx context.Context) error {
			_, err := r.Resume(ctx, ResumeRequest{InstanceID: id, StimulusHash: hash, Input: input})
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			resumed++
			mu.Unlock()
			return nil
		})
	}
	err = batch.Wait()
	return resumed, err
}

// Cancel cancels a non-terminal instance.
func (r *Runtime) Cancel(ctx context.Context, instanceID string) (*Snapshot, error) {
	unlock := r.locks.lock(instanceID)
	defer unlock()

	in, err := r.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithInstanceID(logging.WithWorkflowID(ctx, in.workflow.ID), in.id)
	before := in.Bookmarks()
	if err := in.Cancel(ctx); err != nil {
		return nil, err
	}
	snap, err := r.persist(ctx, in, before)
	if err != nil {
		return nil, err
	}
	logging.LogWith(ctx, r.logger).Info("instance cancelled")
	return snap, nil
}

// Instance returns the persisted state of an instance.
func (r *Runtime) Instance(ctx context.Context, instanceID string) (*Snapshot, error) {
	rec, err := r.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return UnmarshalSnapshot(rec.Snapshot)
}

// Close waits for in-flight stimulus work and stops the worker pool.
func (r *Runtime) Close() {
	r.pool.Shutdown()
}

func (r *Runtime) load(ctx context.Context, instanceID string) (*Instance, error) {
	rec, err := r.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	wf, err := r.Workflow(rec.WorkflowID)
	if err != nil {
		return nil, err
	}
	snap, err := UnmarshalSnapshot(rec.Snapshot)
	if err != nil {
		return nil, err
	}
	return Rehydrate(wf, snap, InstanceOptions{Clock: r.clock, Evaluator: r.evaluator, Logger: r.logger})
}

// restoreClaims puts claimed bookmark rows back after a resume failed past the
// claim, so the stimulus can be redelivered against the last persisted snapshot.
func (r *Runtime) restoreClaims(ctx context.Context, instanceID string, claimed []*store.Bookmark) {
	if len(claimed) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	current, err := r.store.FindBookmarks(ctx, store.BookmarkFilter{InstanceID: instanceID})
	if err == nil {
		err = r.store.ReplaceBookmarks(ctx, instanceID, append(current, claimed...))
	}
	if err != nil {
		logging.LogWith(ctx, r.logger).Error("restore claimed bookmarks", "claimed", len(claimed), "error", err)
	}
}

// persist writes the snapshot, replaces the persisted bookmark set, flushes the
// journal and notifies observers of the bookmark delta against before.
func (r *Runtime) persist(ctx context.Context, in *Instance, before []Bookmark) (*Snapshot, error) {
	snap, err := in.Snapshot()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "encode snapshot: %s", err.Error()).WithCause(err)
	}
	rec := &store.Instance{
		ID:              in.id,
		WorkflowID:      in.workflow.ID,
		WorkflowVersion: in.workflow.Version,
		Status:          in.status,
		CorrelationID:   in.correlationID,
		Snapshot:        raw,
		CreatedAt:       in.createdAt,
		UpdatedAt:       r.clock.Now(),
		CompletedAt:     in.completedAt,
	}
	if in.fault != nil {
		rec.Fault, _ = json.Marshal(in.fault)
	}
	if err := r.store.SaveInstance(ctx, rec); err != nil {
		return nil, err
	}

	rows := make([]*store.Bookmark, 0, len(snap.Bookmarks))
	for _, b := range snap.Bookmarks {
		rows = append(rows, &store.Bookmark{
			ID:                 b.ID,
			InstanceID:         in.id,
			WorkflowID:         in.workflow.ID,
			Hash:               b.Hash,
			ActivityTypeName:   b.ActivityTypeName,
			ActivityID:         b.ActivityID,
			ActivityInstanceID: b.OwnerID,
			CorrelationID:      b.CorrelationID,
			Payload:            b.Payload,
			CreatedAt:          b.CreatedAt,
		})
	}
	if err := r.store.ReplaceBookmarks(ctx, in.id, rows); err != nil {
		return nil, err
	}
	if events := in.DrainEvents(); len(events) > 0 {
		if err := r.store.AppendEvents(ctx, in.id, events); err != nil {
			return nil, err
		}
	}

	r.notify(ctx, in, before, snap.Bookmarks)
	return snap, nil
}

func (r *Runtime) notify(ctx context.Context, in *Instance, before, after []Bookmark) {
	change := BookmarkChange{
		InstanceID:    in.id,
		WorkflowID:    in.workflow.ID,
		CorrelationID: in.correlationID,
		Status:        in.status,
		Added:         diffBookmarks(after, before),
		Removed:       diffBookmarks(before, after),
	}
	if len(change.Added) == 0 && len(change.Removed) == 0 {
		return
	}
	r.mu.RLock()
	observers := append([]BookmarkObserver(nil), r.observers...)
	r.mu.RUnlock()
	for _, o := range observers {
		if err := o.BookmarksChanged(ctx, change); err != nil {
			logging.LogWith(ctx, r.logger).Error("bookmark observer failed", "error", err)
		}
	}
}

// diffBookmarks returns the bookmarks of a whose id is not in b. A bookmark
// replaced in place under the same id with a new payload counts as changed.
func diffBookmarks(a, b []Bookmark) []Bookmark {
	index := make(map[string]Bookmark, len(b))
	for _, x := range b {
		index[x.ID] = x
	}
	var out []Bookmark
	for _, x := range a {
		if y, ok := index[x.ID]; ok && y.Hash == x.Hash {
			continue
		}
		out = append(out, x)
	}
	return out
}

// instanceLocks hands out one mutex per instance id, released when unused.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[string]*instanceLock
}

type instanceLock struct {
	sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[string]*instanceLock)}
}

func (l *instanceLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &instanceLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
