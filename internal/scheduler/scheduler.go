// Package scheduler arms time-based triggers and bookmarks. Workflow triggers
// (timer, cron) and timer bookmarks of running instances become scheduled
// jobs; a polling loop fires the due ones.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/dispatch"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/internal/trigger"
	"github.com/rendis/waypoint/pkg/schema"
)

// Job run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WorkflowRunner starts workflow instances. Satisfied by *engine.Runtime.
type WorkflowRunner interface {
	Start(ctx context.Context, workflowID string, opts engine.StartOptions) (*engine.Snapshot, error)
	Workflow(id string) (*engine.Workflow, error)
}

// Config configures a Scheduler.
type Config struct {
	Store      store.Store
	Runner     WorkflowRunner
	Dispatcher dispatch.Dispatcher
	Indexer    *trigger.Indexer
	Clock      clock.Clock
	Logger     *slog.Logger
	// Tick is the polling interval. Defaults to 60s.
	Tick time.Duration
}

// Scheduler polls the store for due scheduled jobs and runs them.
type Scheduler struct {
	store      store.Store
	runner     WorkflowRunner
	dispatcher dispatch.Dispatcher
	indexer    *trigger.Indexer
	clock      clock.Clock
	logger     *slog.Logger
	interval   time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 60 * time.Second
	}
	logger := logging.OrDefault(cfg.Logger)
	if cfg.Indexer == nil {
		cfg.Indexer = trigger.NewIndexer(cfg.Clock, nil, logger)
	}
	return &Scheduler{
		store:      cfg.Store,
		runner:     cfg.Runner,
		dispatcher: cfg.Dispatcher,
		indexer:    cfg.Indexer,
		clock:      cfg.Clock,
		logger:     logger,
		interval:   cfg.Tick,
		inflight:   make(map[string]struct{}),
	}
}

// IndexWorkflow stores the triggers of wf and arms one job per time-based
// trigger. Jobs of triggers that no longer exist are deleted.
func (s *Scheduler) IndexWorkflow(ctx context.Context, wf *engine.Workflow) error {
	triggers, err := s.indexer.Index(ctx, wf)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceTriggers(ctx, wf.ID, triggers); err != nil {
		return err
	}

	existing, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Kind: store.JobKindTrigger, WorkflowID: wf.ID})
	if err != nil {
		return err
	}
	stale := make(map[string]bool, len(existing))
	for _, j := range existing {
		stale[j.ID] = true
	}

	armed := 0
	for _, t := range triggers {
		due, cronExpr, ok, err := dueAt(t.ActivityTypeName, t.Payload)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		id := triggerJobID(wf.ID, t.ActivityID)
		delete(stale, id)
		if err := s.armTrigger(ctx, id, wf.ID, t, due, cronExpr); err != nil {
			return err
		}
		armed++
	}
	for id := range stale {
		if _, err := s.store.DeleteScheduledJobs(ctx, store.ScheduledJobFilter{ID: id}); err != nil {
			return err
		}
	}
	logging.LogWith(ctx, s.logger).Info("workflow triggers indexed",
		"workflow_id", wf.ID, "triggers", len(triggers), "armed", armed)
	return nil
}

func (s *Scheduler) armTrigger(ctx context.Context, id, workflowID string, t *store.Trigger, due time.Time, cronExpr string) error {
	_, err := s.store.GetScheduledJob(ctx, id)
	switch {
	case err == nil:
		return s.store.UpdateScheduledJob(ctx, id, store.ScheduledJobUpdate{Payload: t.Payload, NextRunAt: &due})
	case schema.IsCode(err, schema.ErrCodeNotFound):
		return s.store.CreateScheduledJob(ctx, &store.ScheduledJob{
			ID:               id,
			Kind:             store.JobKindTrigger,
			WorkflowID:       workflowID,
			ActivityID:       t.ActivityID,
			ActivityTypeName: t.ActivityTypeName,
			Payload:          t.Payload,
			CronExpression:   cronExpr,
			Enabled:          true,
			NextRunAt:        &due,
			CreatedAt:        s.clock.Now(),
		})
	default:
		return err
	}
}

func triggerJobID(workflowID, activityID string) string {
	return "trigger:" + workflowID + ":" + activityID
}

// BookmarksChanged implements engine.BookmarkObserver: time-based bookmarks
// get a job, removed bookmarks lose theirs.
func (s *Scheduler) BookmarksChanged(ctx context.Context, change engine.BookmarkChange) error {
	for _, b := range change.Removed {
		if _, err := s.store.DeleteScheduledJobs(ctx, store.ScheduledJobFilter{Kind: store.JobKindBookmark, BookmarkID: b.ID}); err != nil {
			return err
		}
	}
	for _, b := range change.Added {
		due, _, ok, err := dueAt(b.ActivityTypeName, b.Payload)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		err = s.store.CreateScheduledJob(ctx, &store.ScheduledJob{
			ID:               uuid.New().String(),
			Kind:             store.JobKindBookmark,
			WorkflowID:       change.WorkflowID,
			InstanceID:       change.InstanceID,
			BookmarkID:       b.ID,
			ActivityID:       b.ActivityID,
			ActivityTypeName: b.ActivityTypeName,
			Payload:          b.Payload,
			Enabled:          true,
			NextRunAt:        &due,
			CreatedAt:        s.clock.Now(),
		})
		if err != nil {
			return err
		}
		logging.LogWith(ctx, s.logger).Debug("bookmark armed", "bookmark_id", b.ID, "due", due)
	}
	return nil
}

// dueAt extracts the fire time of a time-based payload. ok is false for
// activity types the scheduler does not arm.
func dueAt(activityTypeName string, payload json.RawMessage) (due time.Time, cronExpr string, ok bool, err error) {
	switch activityTypeName {
	case schema.ActivityTypeTimer:
		var p schema.TimerPayload
		err = json.Unmarshal(payload, &p)
		due = p.StartAt
	case schema.ActivityTypeCron:
		var p schema.CronPayload
		err = json.Unmarshal(payload, &p)
		due, cronExpr = p.StartAt, p.CronExpression
	case schema.ActivityTypeDelay:
		var p schema.DelayPayload
		err = json.Unmarshal(payload, &p)
		due = p.ResumeAt
	default:
		return time.Time{}, "", false, nil
	}
	if err != nil {
		return time.Time{}, "", false, schema.NewErrorf(schema.ErrCodeValidation,
			"decode %s payload: %s", activityTypeName, err.Error()).WithCause(err)
	}
	return due.UTC(), cronExpr, true, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("tick", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every enabled job that is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled, DueBefore: &now})
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", slog.String("error", err.Error()))
		return
	}

	for _, job := range jobs {
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to run scheduled job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseJob(job.ID)
	}
}

// runJob fires a due job.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.String("workflow_id", job.WorkflowID),
	)
	switch job.Kind {
	case store.JobKindTrigger:
		return s.runTrigger(ctx, job, now)
	case store.JobKindBookmark:
		return s.runBookmark(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// runTrigger starts a new instance from the trigger activity and re-indexes
// the workflow, which re-arms the job relative to the current clock.
func (s *Scheduler) runTrigger(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	wf, err := s.runner.Workflow(job.WorkflowID)
	if err != nil {
		disabled := false
		s.logger.Warn("disabling trigger job of unknown workflow", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{Enabled: &disabled, LastRunAt: &now, LastRunStatus: StatusError})
	}

	input := map[string]any{}
	if job.NextRunAt != nil {
		input["scheduled_at"] = job.NextRunAt.Format(time.RFC3339)
	}
	status := StatusSuccess
	_, runErr := s.runner.Start(ctx, job.WorkflowID, engine.StartOptions{
		TriggerActivityID: job.ActivityID,
		Input:             input,
	})
	if runErr != nil {
		status = StatusError
		s.logger.Error("scheduled trigger failed",
			slog.String("job_id", job.ID),
			slog.String("error", runErr.Error()),
		)
	}

	if err := s.IndexWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("re-arm workflow %q: %w", job.WorkflowID, err)
	}
	return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{LastRunAt: &now, LastRunStatus: status})
}

// runBookmark dispatches the resume of a timer bookmark and drops the job.
// The dispatcher retries through the bookmark queue, so the job is not kept.
func (s *Scheduler) runBookmark(ctx context.Context, job *store.ScheduledJob) error {
	err := s.dispatcher.DispatchResume(ctx, &schema.ResumeWorkflows{
		ActivityTypeName:   job.ActivityTypeName,
		BookmarkPayload:    json.RawMessage(job.Payload),
		WorkflowInstanceID: job.InstanceID,
	})
	if err != nil {
		return fmt.Errorf("dispatch resume of bookmark %q: %w", job.BookmarkID, err)
	}
	_, err = s.store.DeleteScheduledJobs(ctx, store.ScheduledJobFilter{ID: job.ID})
	return err
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed fires, once, every job whose run time passed while the
// process was down. Trigger jobs are re-armed from the current clock, so a
// long outage starts one instance rather than one per missed interval.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	now := s.clock.Now()
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled, DueBefore: &now})
	if err != nil {
		return fmt.Errorf("list missed jobs: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if !job.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(job.ID) {
			continue
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to recover missed job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			s.releaseJob(job.ID)
			continue
		}
		s.releaseJob(job.ID)
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return nil
}
