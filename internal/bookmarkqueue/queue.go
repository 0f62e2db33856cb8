// Package bookmarkqueue is the durable inbox of stimuli. A stimulus may
// arrive before the bookmark it targets has been persisted, so it is stored
// first and matched against bookmarks on every sweep until something
// resumes or the item expires.
package bookmarkqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/pkg/schema"
)

// Resumer resumes bookmarks; satisfied by *engine.Runtime.
type Resumer interface {
	Resume(ctx context.Context, req engine.ResumeRequest) (*engine.Snapshot, error)
	ResumeHash(ctx context.Context, hash, correlationID, instanceID string, input map[string]any) (int, error)
}

// Config configures a Queue.
type Config struct {
	Store   store.Store
	Resumer Resumer
	Clock   clock.Clock
	Logger  *slog.Logger
	// TenantID scopes the background sweep. Enqueued items default to it.
	TenantID string
	// Interval between background sweeps. Defaults to 5s.
	Interval time.Duration
	// TTL after which unmatched items are purged. Zero keeps them forever.
	TTL time.Duration
	// BatchSize caps the items handled per sweep. Zero means no cap.
	BatchSize int
}

// Result summarizes one Process call.
type Result struct {
	Resumed int `json:"resumed"`
	Kept    int `json:"kept"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// Queue matches queued stimuli against persisted bookmarks.
type Queue struct {
	store   store.Store
	resumer Resumer
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
}

// New creates a queue.
func New(cfg Config) *Queue {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Queue{
		store:   cfg.Store,
		resumer: cfg.Resumer,
		clock:   cfg.Clock,
		logger:  logging.OrDefault(cfg.Logger),
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue stores a stimulus. Missing ids, timestamps and tenant are filled
// in; the item needs a bookmark id, a stimulus hash or an activity instance id.
func (q *Queue) Enqueue(ctx context.Context, item *store.BookmarkQueueItem) error {
	if item.BookmarkID == "" && item.StimulusHash == "" && item.ActivityInstanceID == "" {
		return schema.NewError(schema.ErrCodeValidation, "queue item needs a bookmark id, stimulus hash or activity instance id")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = q.clock.Now()
	}
	if item.TenantID == "" {
		item.TenantID = q.cfg.TenantID
	}
	if err := q.store.EnqueueBookmarkQueueItem(ctx, item); err != nil {
		return err
	}
	logging.LogWith(ctx, q.logger).Debug("stimulus queued", "item_id", item.ID, "activity_type_name", item.ActivityTypeName)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Process handles every item matching filter. An item that resumed at least
// one bookmark is deleted; an item that matched nothing stays queued for a
// later sweep. Failures are logged and the item is kept.
func (q *Queue) Process(ctx context.Context, filter store.BookmarkQueueFilter) (Result, error) {
	var res Result
	items, err := q.store.FindBookmarkQueueItems(ctx, filter)
	if err != nil {
		return res, err
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := q.processItem(ctx, item)
		switch {
		case schema.IsCode(err, schema.ErrCodeValidation):
			logging.LogWith(ctx, q.logger).Warn("dropping invalid queue item", "item_id", item.ID, "error", err)
			if derr := q.delete(ctx, item.ID); derr != nil {
				return res, derr
			}
			res.Dropped++
		case err != nil:
			logging.LogWith(ctx, q.logger).Error("queue item failed", "item_id", item.ID, "error", err)
			res.Failed++
		case n > 0:
			if err := q.delete(ctx, item.ID); err != nil {
				return res, err
			}
			res.Resumed++
		default:
			res.Kept++
		}
	}
	return res, nil
}

func (q *Queue) delete(ctx context.Context, id string) error {
	_, err := q.store.DeleteBookmarkQueueItems(ctx, store.BookmarkQueueFilter{ID: id, TenantAgnostic: true})
	return err
}

// processItem resumes what item targets and reports how many instances or
// bookmarks were resumed.
func (q *Queue) processItem(ctx context.Context, item *store.BookmarkQueueItem) (int, error) {
	input, err := decodeInput(item.Input)
	if err != nil {
		return 0, err
	}
	switch {
	case item.BookmarkID != "":
		instanceID := item.WorkflowInstanceID
		if instanceID == "" {
			found, err := q.store.FindBookmarks(ctx, store.BookmarkFilter{ID: item.BookmarkID})
			if err != nil {
				return 0, err
			}
			if len(found) == 0 {
				return 0, nil
			}
			instanceID = found[0].InstanceID
		}
		return q.resume(ctx, engine.ResumeRequest{InstanceID: instanceID, BookmarkID: item.BookmarkID, Input: input})

	case item.ActivityInstanceID != "":
		found, err := q.store.FindBookmarks(ctx, store.BookmarkFilter{
			InstanceID:       item.WorkflowInstanceID,
			Hash:             item.StimulusHash,
			ActivityTypeName: item.ActivityTypeName,
			CorrelationID:    item.CorrelationID,
		})
		if err != nil {
			return 0, err
		}
		resumed := 0
		for _, b := range found {
			if b.ActivityInstanceID != item.ActivityInstanceID {
				continue
			}
			n, err := q.resume(ctx, engine.ResumeRequest{InstanceID: b.InstanceID, BookmarkID: b.ID, Input: input})
			if err != nil {
				return resumed, err
			}
			resumed += n
		}
		return resumed, nil

	case item.StimulusHash != "":
		return q.resumer.ResumeHash(ctx, item.StimulusHash, item.CorrelationID, item.WorkflowInstanceID, input)

	default:
		return 0, schema.NewError(schema.ErrCodeValidation, "queue item has no bookmark id, stimulus hash or activity instance id")
	}
}

func (q *Queue) resume(ctx context.Context, req engine.ResumeRequest) (int, error) {
	_, err := q.resumer.Resume(ctx, req)
	switch {
	case schema.IsCode(err, schema.ErrCodeNotFound), schema.IsCode(err, schema.ErrCodeConflict):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return 1, nil
}

func decodeInput(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode queue item input: %s", err.Error()).WithCause(err)
	}
	return input, nil
}

// Purge deletes items older than the TTL, across tenants.
func (q *Queue) Purge(ctx context.Context) (int64, error) {
	if q.cfg.TTL <= 0 {
		return 0, nil
	}
	cutoff := q.clock.Now().Add(-q.cfg.TTL)
	n, err := q.store.DeleteBookmarkQueueItems(ctx, store.BookmarkQueueFilter{CreatedAtLessThan: &cutoff, TenantAgnostic: true})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.LogWith(ctx, q.logger).Info("expired queue items purged", "count", n)
	}
	return n, nil
}

// Start launches the background sweep loop.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.done != nil {
		q.mu.Unlock()
		return fmt.Errorf("bookmark queue already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.loop(loopCtx)
	q.logger.Info("bookmark queue started", "interval", q.cfg.Interval)
	return nil
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	q.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		case <-q.wake:
			q.sweep(ctx)
		}
	}
}

func (q *Queue) sweep(ctx context.Context) {
	if _, err := q.Purge(ctx); err != nil {
		q.logger.Error("failed to purge bookmark queue", "error", err)
	}
	res, err := q.Process(ctx, store.BookmarkQueueFilter{TenantID: q.cfg.TenantID, Limit: q.cfg.BatchSize})
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("failed to process bookmark queue", "error", err)
		}
		return
	}
	if res.Resumed+res.Failed+res.Dropped > 0 {
		q.logger.Debug("bookmark queue swept", "resumed", res.Resumed, "kept", res.Kept, "failed", res.Failed, "dropped", res.Dropped)
	}
}

// Stop stops the sweep loop and waits for the current sweep to finish.
func (q *Queue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel == nil {
		return nil
	}
	q.cancel()
	<-q.done
	q.cancel = nil
	q.done = nil

	q.logger.Info("bookmark queue stopped")
	return nil
}
