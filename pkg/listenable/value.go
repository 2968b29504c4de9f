// Package listenable provides a single-slot value cell with change
// notification and the observer registry it is built on.
package listenable

import "sync"

// ChangeListener receives the new and the previous value of a Value.
type ChangeListener[T any] func(newValue, previous T)

// Value is a thread-safe single-slot cell. The first write into an empty
// cell is not a change; every later write that differs from the previous
// value notifies all listeners with (new, previous).
type Value[T any] struct {
	mu        sync.Mutex
	value     T
	set       bool
	equal     func(a, b T) bool
	listeners *Multicast[ChangeListener[T]]
}

// NewValue returns an empty cell that compares values with ==.
func NewValue[T comparable](dispatcher Dispatcher) *Value[T] {
	return NewValueFunc(func(a, b T) bool { return a == b }, dispatcher)
}

// NewValueFunc returns an empty cell that compares values with equal.
func NewValueFunc[T any](equal func(a, b T) bool, dispatcher Dispatcher) *Value[T] {
	return &Value[T]{
		equal:     equal,
		listeners: NewMulticast[ChangeListener[T]](dispatcher),
	}
}

// Get returns the stored value and whether the cell has been written.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.set
}

// PutIfAbsent stores supplier() if the cell is empty and returns the
// stored value. supplier runs at most once per empty-to-set transition,
// under the cell's lock. Listeners are never notified.
func (v *Value[T]) PutIfAbsent(supplier func() T) T {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.set {
		v.value = supplier()
		v.set = true
	}
	return v.value
}

// Refresh replaces the stored value. It returns true and notifies
// listeners only when the cell already held a value different from
// newValue.
func (v *Value[T]) Refresh(newValue T) bool {
	v.mu.Lock()
	previous, had := v.value, v.set
	v.value = newValue
	v.set = true
	v.mu.Unlock()

	if !had || v.equal(newValue, previous) {
		return false
	}

	v.listeners.Notify(func(l ChangeListener[T]) {
		l(newValue, previous)
	})
	return true
}

// Listenable exposes listener registration.
func (v *Value[T]) Listenable() Listenable[ChangeListener[T]] {
	return v.listeners
}
