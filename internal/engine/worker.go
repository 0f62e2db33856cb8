package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rendis/waypoint/internal/logging"
)

// PoolMetrics tracks worker pool operational metrics.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// WorkerPool bounds how many instances are driven concurrently. Each task
// owns one instance for its whole run; tasks of different instances overlap.
type WorkerPool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics PoolMetrics
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	logger  *slog.Logger
}

// NewWorkerPool creates a pool with the given max concurrency.
func NewWorkerPool(size int, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		sem:    make(chan struct{}, size),
		done:   make(chan struct{}),
		logger: logging.OrDefault(logger),
	}
}

// Submit runs fn on the pool. It blocks while the pool is at capacity and
// respects context cancellation while waiting. done, when non-nil, receives
// fn's result; a panic is reported to it as an EXECUTION_ERROR.
func (p *WorkerPool) Submit(ctx context.Context, task string, fn func(ctx context.Context) error, done func(error)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// wg.Add must happen under the lock so Shutdown cannot start waiting in between.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	p.mu.Unlock()

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.metrics.Panics, 1)
				err = fmt.Errorf("task %s panicked: %v", task, r)
				logging.LogWith(ctx, p.logger).Error("pool task panicked", "task", task, "panic", r)
			}
			if err != nil {
				atomic.AddInt64(&p.metrics.Failed, 1)
			} else {
				atomic.AddInt64(&p.metrics.Completed, 1)
			}
			atomic.AddInt64(&p.metrics.Active, -1)
			<-p.sem
			if done != nil {
				done(err)
			}
			p.wg.Done()
		}()
		err = fn(ctx)
	}()
	return nil
}

// Wait blocks until all submitted work completes.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting work and waits for active tasks to finish.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the current pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}

// Batch collects the results of a group of tasks submitted to a shared pool.
type Batch struct {
	pool *WorkerPool
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// NewBatch starts an empty batch on p.
func (p *WorkerPool) NewBatch() *Batch {
	return &Batch{pool: p}
}

// Go submits fn as part of the batch. A submission failure is recorded like a
// task failure.
func (b *Batch) Go(ctx context.Context, task string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	err := b.pool.Submit(ctx, task, fn, func(err error) {
		b.record(err)
		b.wg.Done()
	})
	if err != nil {
		b.record(fmt.Errorf("submit %s: %w", task, err))
		b.wg.Done()
	}
}

// Wait blocks until every task of the batch finished and joins their errors.
func (b *Batch) Wait() error {
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.errs...)
}

func (b *Batch) record(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}
