// Package configreader caches a typed configuration snapshot computed from
// flags and recomputes it when relevant flags change.
package configreader

import (
	"reflect"
	"sync"

	"mercator-hq/relay/pkg/flags"
	"mercator-hq/relay/pkg/listenable"
)

// Option configures a Reader.
type Option[T any] func(*options[T])

type options[T any] struct {
	equal      func(a, b T) bool
	dispatcher listenable.Dispatcher
}

// WithEqual sets the snapshot equality used for change detection. The
// default is reflect.DeepEqual.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(o *options[T]) { o.equal = equal }
}

// WithDispatcher sets how change listeners are invoked.
func WithDispatcher[T any](d listenable.Dispatcher) Option[T] {
	return func(o *options[T]) { o.dispatcher = d }
}

// Reader holds the latest snapshot produced by compute.
type Reader[T any] struct {
	compute func() T
	value   *listenable.Value[T]

	// refreshMu serializes compute so a refresh never races another
	// refresh into the cell out of order.
	refreshMu sync.Mutex
}

// New returns a Reader that builds snapshots with compute.
func New[T any](compute func() T, opts ...Option[T]) *Reader[T] {
	o := options[T]{
		equal: func(a, b T) bool { return reflect.DeepEqual(a, b) },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader[T]{
		compute: compute,
		value:   listenable.NewValueFunc(o.equal, o.dispatcher),
	}
}

// GetConfig returns the cached snapshot, computing it on first use.
func (r *Reader[T]) GetConfig() T {
	return r.value.PutIfAbsent(r.compute)
}

// RefreshConfig recomputes the snapshot. It returns true if the snapshot
// changed, in which case listeners have been notified.
func (r *Reader[T]) RefreshConfig() bool {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	return r.value.Refresh(r.compute())
}

// Listenable exposes (new, previous) snapshot change listeners.
func (r *Reader[T]) Listenable() listenable.Listenable[listenable.ChangeListener[T]] {
	return r.value.Listenable()
}

// BindPrefix refreshes reader whenever a flag whose name starts with
// prefix changes in source. It returns a function that detaches the
// binding.
func BindPrefix[T any](reader *Reader[T], source listenable.Listenable[flags.Listener], prefix string) (unbind func()) {
	return source.AddListener(func(names []string) {
		if flags.AnyHasPrefix(names, prefix) {
			reader.RefreshConfig()
		}
	})
}
