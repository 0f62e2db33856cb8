package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/waypoint/internal/bookmarkqueue"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/pkg/schema"
)

// Dispatcher delivers resume messages. Delivery is asynchronous and at least
// once; bookmark claiming keeps every bookmark resumed at most once.
type Dispatcher interface {
	DispatchResume(ctx context.Context, msg *schema.ResumeWorkflows) error
}

// LocalDispatcher queues messages in the bookmark queue of this process and
// processes each one right away on a worker pool. Messages that match no
// bookmark yet stay queued for the queue's sweep.
type LocalDispatcher struct {
	queue  *bookmarkqueue.Queue
	pool   *engine.WorkerPool
	codec  *Codec
	logger *slog.Logger
}

// LocalConfig configures a LocalDispatcher.
type LocalConfig struct {
	Queue *bookmarkqueue.Queue
	Codec *Codec
	// Workers bounds concurrent message processing. Defaults to 4.
	Workers int
	Logger  *slog.Logger
}

// NewLocalDispatcher creates an in-process dispatcher.
func NewLocalDispatcher(cfg LocalConfig) (*LocalDispatcher, error) {
	if cfg.Codec == nil {
		c, err := NewCodec()
		if err != nil {
			return nil, err
		}
		cfg.Codec = c
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	logger := logging.OrDefault(cfg.Logger)
	return &LocalDispatcher{
		queue:  cfg.Queue,
		pool:   engine.NewWorkerPool(cfg.Workers, logger),
		codec:  cfg.Codec,
		logger: logger,
	}, nil
}

// QueueItem converts a resume message into a bookmark queue item keyed by
// the stimulus hash of its payload.
func QueueItem(msg *schema.ResumeWorkflows) (*store.BookmarkQueueItem, error) {
	if msg == nil || msg.ActivityTypeName == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "resume message needs an activity type name")
	}
	hash, err := engine.Hash(msg.ActivityTypeName, msg.BookmarkPayload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "hash bookmark payload: %s", err.Error()).WithCause(err)
	}
	var input json.RawMessage
	if msg.Input != nil {
		if input, err = json.Marshal(msg.Input); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode input: %s", err.Error()).WithCause(err)
		}
	}
	return &store.BookmarkQueueItem{
		WorkflowInstanceID: msg.WorkflowInstanceID,
		StimulusHash:       hash,
		ActivityTypeName:   msg.ActivityTypeName,
		CorrelationID:      msg.CorrelationID,
		Input:              input,
	}, nil
}

// DispatchResume implements Dispatcher. The message is durable once this
// returns without error.
func (d *LocalDispatcher) DispatchResume(ctx context.Context, msg *schema.ResumeWorkflows) error {
	item, err := QueueItem(msg)
	if err != nil {
		return err
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	return d.pool.Submit(bg, "dispatch "+item.ID, func(ctx context.Context) error {
		res, err := d.queue.Process(ctx, store.BookmarkQueueFilter{ID: item.ID, TenantAgnostic: true})
		if err != nil {
			return err
		}
		logging.LogWith(ctx, d.logger).Debug("resume dispatched",
			"activity_type_name", msg.ActivityTypeName, "resumed", res.Resumed, "kept", res.Kept)
		return nil
	}, func(err error) {
		if err != nil {
			logging.LogWith(bg, d.logger).Error("dispatch failed", "item_id", item.ID, "error", err)
		}
	})
}

// Deliver decodes an encoded message received from another process and
// dispatches it.
func (d *LocalDispatcher) Deliver(ctx context.Context, data []byte) error {
	msg, err := d.codec.Decode(data)
	if err != nil {
		return err
	}
	return d.DispatchResume(ctx, msg)
}

// Wait blocks until every dispatched message was processed once.
func (d *LocalDispatcher) Wait() { d.pool.Wait() }

// Close waits for in-flight messages and stops accepting new ones.
func (d *LocalDispatcher) Close() { d.pool.Shutdown() }
