// Package workerpool runs I/O-bound tasks on goroutines with a bounded
// level of concurrency.
//
// Submission never blocks the caller: every task gets its own goroutine,
// which waits on a weighted semaphore before running. The pool therefore
// caps how many tasks execute at once, not how many are queued.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("worker pool closed")

// Executor runs a task asynchronously.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func())

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) { f(task) }

// Inline runs every task synchronously on the calling goroutine.
var Inline Executor = ExecutorFunc(func(task func()) { task() })

// Pool is a bounded goroutine pool.
type Pool struct {
	name   string
	sem    *semaphore.Weighted
	size   int64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	active atomic.Int64
	logger *slog.Logger
}

// New creates a pool that runs at most size tasks concurrently.
// A size below 1 is treated as 1.
func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:   name,
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default().With("component", "workerpool", "pool", name),
	}
}

// Submit schedules task. It returns ErrPoolClosed once the pool is closed.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.logger.Warn("task dropped, pool shutting down")
			return
		}
		defer p.sem.Release(1)

		p.active.Add(1)
		defer p.active.Add(-1)

		p.run(task)
	}()
	return nil
}

// Execute implements Executor. Tasks submitted after Close are dropped
// with a warning.
func (p *Pool) Execute(task func()) {
	if err := p.Submit(task); err != nil {
		p.logger.Warn("task rejected", "error", err)
	}
}

// Active returns the number of tasks currently running.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Size returns the concurrency bound.
func (p *Pool) Size() int64 {
	return p.size
}

// Close stops accepting tasks and waits for running and queued tasks to
// finish. If ctx expires first, queued tasks that have not started are
// abandoned and the context error is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.closed.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("worker pool %s: %w", p.name, ctx.Err())
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}
