// Package safeinit runs a fallible, possibly slow initialization at most
// once at a time and caches its result until reset.
package safeinit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of an Initializer.
type State int

const (
	Uninitialized State = iota
	Initializing
	Initialized
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// NotInitializedError is returned by CheckInitialized before a successful
// initialization.
type NotInitializedError struct {
	Component string
	State     State
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s is not initialized (state: %s)", e.Component, e.State)
}

// Future is the pending or completed result of one initialization attempt.
type Future[R any] struct {
	done  chan struct{}
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func completedFuture[R any](v R) *Future[R] {
	f := newFuture[R]()
	f.value = v
	close(f.done)
	return f
}

func (f *Future[R]) complete(v R, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Done is closed when the attempt has finished.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Wait blocks until the attempt finishes or ctx is done.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Initializer guards a component whose setup should run once, with
// concurrent callers sharing the in-flight attempt.
type Initializer[R any] struct {
	name string

	mu         sync.Mutex
	state      State
	generation uint64
	pending    *Future[R]
	value      R

	initialized atomic.Bool
}

// New returns an uninitialized Initializer. name identifies the component
// in errors.
func New[R any](name string) *Initializer[R] {
	return &Initializer[R]{name: name}
}

// Initialize returns the cached value if initialized, the in-flight attempt
// if one is running, or starts a new attempt running supplier on its own
// goroutine. A failed attempt returns the state to Uninitialized.
func (in *Initializer[R]) Initialize(ctx context.Context, supplier func(ctx context.Context) (R, error)) *Future[R] {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.state {
	case Initialized:
		return completedFuture(in.value)
	case Initializing:
		return in.pending
	}

	in.generation++
	gen := in.generation
	f := newFuture[R]()
	in.pending = f
	in.state = Initializing

	go func() {
		v, err := supplier(ctx)

		in.mu.Lock()
		if gen == in.generation {
			in.pending = nil
			if err == nil {
				in.value = v
				in.state = Initialized
				in.initialized.Store(true)
			} else {
				in.state = Uninitialized
			}
		}
		in.mu.Unlock()

		f.complete(v, err)
	}()
	return f
}

// Reset discards any cached value and detaches any in-flight attempt; that
// attempt still completes its own future but no longer updates the state.
func (in *Initializer[R]) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.generation++
	in.pending = nil
	var zero R
	in.value = zero
	in.state = Uninitialized
	in.initialized.Store(false)
}

// IsInitialized reports whether a value is cached. It does not lock.
func (in *Initializer[R]) IsInitialized() bool {
	return in.initialized.Load()
}

// State returns the current lifecycle state.
func (in *Initializer[R]) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// CheckInitialized returns a *NotInitializedError unless initialized.
func (in *Initializer[R]) CheckInitialized() error {
	if in.IsInitialized() {
		return nil
	}
	return &NotInitializedError{Component: in.name, State: in.State()}
}

// Value returns the cached value and whether it is present.
func (in *Initializer[R]) Value() (R, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.value, in.state == Initialized
}
