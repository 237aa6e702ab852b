// Package pool implements the work queue shared by the crawl and fetch
// stages: a FIFO queue (bounded, or unbounded when the size is 0), a
// fixed number of long-lived workers, and a drain barrier the producer
// waits on before the workers are cancelled.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned by Submit once the pool has been stopped
var ErrStopped = errors.New("pool stopped")

// Handler processes one queued item. A returned error marks the item as
// failed; it never stops the worker.
type Handler[T any] func(ctx context.Context, workerID int, item T) error

// Options configures a Pool
type Options struct {
	Name      string // Used in log records
	Workers   int    // Number of long-lived workers
	QueueSize int    // Queue capacity (0=unbounded)
}

// Stats counts what went through the queue
type Stats struct {
	Submitted int64 // Items accepted by Submit
	Completed int64 // Items marked done, failed ones included
	Failed    int64 // Items whose handler returned an error
}

// Result is returned by Run and Batches
type Result[T any] struct {
	Stats  Stats
	Failed []T // Items whose handler returned an error, in completion order
}

// Pool is a bounded-queue worker pool with join/cancel semantics
type Pool[T any] struct {
	opts    Options
	handler Handler[T]

	in    chan T // producer side
	queue chan T // worker side, same channel as in when bounded

	pending sync.WaitGroup // submitted but not yet marked done
	workers sync.WaitGroup
	active  atomic.Int32

	runCtx context.Context // handed to handlers
	ctx    context.Context // parks idle workers, cancelled by Stop
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	failedMu    sync.Mutex
	failedItems []T

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a pool. Workers below 1 are raised to 1.
func New[T any](opts Options, handler Handler[T]) *Pool[T] {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Name == "" {
		opts.Name = "pool"
	}

	p := &Pool[T]{
		opts:    opts,
		handler: handler,
	}

	if opts.QueueSize > 0 {
		p.queue = make(chan T, opts.QueueSize)
		p.in = p.queue
	} else {
		p.queue = make(chan T)
		p.in = make(chan T)
	}

	return p
}

// Start launches the workers. Handlers receive ctx; cancelling it also
// stops the pool.
func (p *Pool[T]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.runCtx = ctx
		p.ctx, p.cancel = context.WithCancel(ctx)

		if p.opts.QueueSize == 0 {
			p.workers.Add(1)
			go p.buffer()
		}

		for i := 0; i < p.opts.Workers; i++ {
			p.workers.Add(1)
			p.active.Add(1)
			go p.worker(i)
		}

		slog.Debug("Pool started", "pool", p.opts.Name, "workers", p.opts.Workers, "queue_size", p.opts.QueueSize)
	})
}

// Submit enqueues one item, blocking while a bounded queue is full
func (p *Pool[T]) Submit(ctx context.Context, item T) error {
	if p.ctx == nil {
		return fmt.Errorf("%s: submit before start", p.opts.Name)
	}

	p.pending.Add(1)
	select {
	case p.in <- item:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		p.pending.Done()
		return ctx.Err()
	case <-p.ctx.Done():
		p.pending.Done()
		return ErrStopped
	}
}

// Join blocks until every submitted item has been marked done. It
// returns early with the context error if the pool's context ends first.
func (p *Pool[T]) Join() error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stop cancels the workers and waits for them to exit. Only idle
// workers observe the cancellation; an in-flight item always finishes.
// Items still queued are marked done without being processed.
func (p *Pool[T]) Stop() {
	if p.ctx == nil {
		return
	}

	p.stopOnce.Do(func() {
		p.cancel()
		p.workers.Wait()

		for drained := false; !drained; {
			select {
			case <-p.queue:
				p.pending.Done()
			default:
				drained = true
			}
		}

		slog.Debug("Pool stopped", "pool", p.opts.Name,
			"submitted", p.submitted.Load(), "completed", p.completed.Load(), "failed", p.failed.Load())
	})
}

// Active returns the number of live workers
func (p *Pool[T]) Active() int {
	return int(p.active.Load())
}

// Stats returns the current counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Failed returns a copy of the items whose handler returned an error
func (p *Pool[T]) Failed() []T {
	p.failedMu.Lock()
	defer p.failedMu.Unlock()

	out := make([]T, len(p.failedItems))
	copy(out, p.failedItems)
	return out
}

// worker pulls items until the pool is cancelled
func (p *Pool[T]) worker(id int) {
	defer p.workers.Done()
	defer p.active.Add(-1)

	slog.Debug("Worker started", "pool", p.opts.Name, "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			slog.Debug("Worker stopped", "pool", p.opts.Name, "worker_id", id)
			return
		case item := <-p.queue:
			p.process(id, item)
		}
	}
}

// process runs the handler for one item and marks it done
func (p *Pool[T]) process(id int, item T) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			p.recordFailure(item)
			slog.Warn("Worker item failed", "pool", p.opts.Name, "worker_id", id, "error", err)
		}
		p.completed.Add(1)
		p.pending.Done()
	}()

	err = p.handler(p.runCtx, id, item)
}

func (p *Pool[T]) recordFailure(item T) {
	p.failed.Add(1)
	p.failedMu.Lock()
	p.failedItems = append(p.failedItems, item)
	p.failedMu.Unlock()
}

// buffer backs an unbounded queue: it accepts every submission
// immediately and feeds workers in FIFO order.
func (p *Pool[T]) buffer() {
	defer p.workers.Done()

	var backlog []T
	for {
		var out chan T
		var next T
		if len(backlog) > 0 {
			out = p.queue
			next = backlog[0]
		}

		select {
		case item := <-p.in:
			backlog = append(backlog, item)
		case out <- next:
			var zero T
			backlog[0] = zero
			backlog = backlog[1:]
		case <-p.ctx.Done():
			// Unprocessed backlog still counts toward the drain barrier
			for range backlog {
				p.pending.Done()
			}
			return
		}
	}
}

// Run enqueues every item, waits for the queue to drain, then stops
// the workers. No worker outlives the call.
func Run[T any](ctx context.Context, items []T, opts Options, handler Handler[T]) (Result[T], error) {
	p := New(opts, handler)
	p.Start(ctx)

	var runErr error
	for _, item := range items {
		if err := p.Submit(ctx, item); err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil {
		runErr = p.Join()
	}
	p.Stop()

	return Result[T]{Stats: p.Stats(), Failed: p.Failed()}, runErr
}
