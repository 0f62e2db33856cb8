package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rendis/waypoint/internal/bookmarkqueue"
	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/dispatch"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/expressions"
	"github.com/rendis/waypoint/internal/scheduler"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/internal/streaming"
	"github.com/rendis/waypoint/internal/trigger"
	"github.com/rendis/waypoint/pkg/schema"
)

// host wires the runtime with its timer scheduler, bookmark queue,
// dispatcher and change hub over one store.
type host struct {
	runtime    *engine.Runtime
	queue      *bookmarkqueue.Queue
	dispatcher *dispatch.LocalDispatcher
	scheduler  *scheduler.Scheduler
	hub        *streaming.MemoryHub
	logger     *slog.Logger
	poll       time.Duration
}

func newHost(cfg Config, s store.Store, clk clock.Clock, logger *slog.Logger) (*host, error) {
	if clk == nil {
		clk = clock.System{}
	}
	registry, err := expressions.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("expression registry: %w", err)
	}
	rt, err := engine.NewRuntime(s, engine.RuntimeConfig{
		Logger:    logger,
		Clock:     clk,
		Evaluator: registry,
		PoolSize:  cfg.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	queue := bookmarkqueue.New(bookmarkqueue.Config{
		Store:    s,
		Resumer:  rt,
		Clock:    clk,
		Logger:   logger,
		Interval: cfg.QueueTick,
		TTL:      cfg.QueueTTL,
	})
	disp, err := dispatch.NewLocalDispatcher(dispatch.LocalConfig{Queue: queue, Workers: cfg.PoolSize, Logger: logger})
	if err != nil {
		rt.Close()
		return nil, err
	}
	sched := scheduler.NewScheduler(scheduler.Config{
		Store:      s,
		Runner:     rt,
		Dispatcher: disp,
		Indexer:    trigger.NewIndexer(clk, registry, logger),
		Clock:      clk,
		Logger:     logger,
		Tick:       cfg.SchedulerTick,
	})
	hub := streaming.NewMemoryHub()
	rt.AddObserver(sched)
	rt.AddObserver(hub)
	return &host{
		runtime:    rt,
		queue:      queue,
		dispatcher: disp,
		scheduler:  sched,
		hub:        hub,
		logger:     logger,
		poll:       cfg.SchedulerTick,
	}, nil
}

// register adds workflows to the runtime and arms their triggers.
func (h *host) register(ctx context.Context, wfs ...*engine.Workflow) error {
	for _, wf := range wfs {
		if err := h.runtime.Register(wf); err != nil {
			return err
		}
		if err := h.scheduler.IndexWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("index workflow %s: %w", wf.ID, err)
		}
	}
	return nil
}

// start recovers timers missed while the host was down and launches the
// background loops.
func (h *host) start(ctx context.Context) error {
	if err := h.scheduler.RecoverMissed(ctx); err != nil {
		return err
	}
	if err := h.scheduler.Start(ctx); err != nil {
		return err
	}
	return h.queue.Start(ctx)
}

func (h *host) close() {
	_ = h.scheduler.Stop()
	_ = h.queue.Stop()
	h.dispatcher.Close()
	h.runtime.Close()
}

// sendLine delivers one line of console input to the ReadLine bookmarks of
// an instance and waits until the dispatch was processed.
func (h *host) sendLine(ctx context.Context, instanceID, line string) error {
	err := h.dispatcher.DispatchResume(ctx, &schema.ResumeWorkflows{
		ActivityTypeName:   schema.ActivityTypeReadLine,
		BookmarkPayload:    schema.ReadLinePayload{},
		WorkflowInstanceID: instanceID,
		Input:              map[string]any{"line": line},
	})
	if err != nil {
		return err
	}
	h.dispatcher.Wait()
	return nil
}

// errInstanceEnded is returned by follow once the instance is terminal.
var errInstanceEnded = errors.New("instance ended")

// follow feeds lines to an instance until it ends or lines runs out. Bookmark
// changes published by the hub wake it up; the instance is also polled to
// notice changes made by other processes sharing the store.
func (h *host) follow(ctx context.Context, instanceID string, lines <-chan string) error {
	poll := h.poll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	changes, unsubscribe, err := h.hub.Subscribe(ctx, streaming.Filter{InstanceID: instanceID})
	if err != nil {
		return err
	}
	defer unsubscribe()
	for {
		snap, err := h.runtime.Instance(ctx, instanceID)
		if err != nil {
			return err
		}
		if snap.Status.Terminal() {
			h.logger.Info("instance finished", "instance_id", instanceID, "status", snap.Status)
			if snap.Fault != nil {
				return fmt.Errorf("instance %s faulted: %s", instanceID, snap.Fault.Message)
			}
			return errInstanceEnded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case ev := <-changes:
			h.logger.Debug("bookmarks changed", "instance_id", instanceID, "status", ev.Status,
				"added", len(ev.Added), "removed", len(ev.Removed))
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			if err := h.sendLine(ctx, instanceID, line); err != nil {
				return err
			}
		}
	}
}
