package listenable

import "sync"

// Listenable accepts listener registrations of type L.
type Listenable[L any] interface {
	// AddListener registers l and returns a function that removes it.
	// The returned function is idempotent.
	AddListener(l L) (remove func())
}

// Channel is a Listenable that can also fan a notification out to its
// listeners.
type Channel[L any] interface {
	Listenable[L]

	// Notify calls fn once for every listener registered when Notify
	// starts.
	Notify(fn func(L))
}

type entry[L any] struct {
	listener L
}

// Multicast is a concurrency-safe observer registry. Registration and
// removal copy the listener slice, so a Notify in progress always iterates
// the snapshot it started with.
type Multicast[L any] struct {
	mu         sync.Mutex
	listeners  []*entry[L]
	dispatcher Dispatcher
}

// NewMulticast returns an empty registry using dispatcher.
func NewMulticast[L any](dispatcher Dispatcher) *Multicast[L] {
	return &Multicast[L]{dispatcher: dispatcher}
}

// AddListener implements Listenable.
func (m *Multicast[L]) AddListener(l L) func() {
	e := &entry[L]{listener: l}

	m.mu.Lock()
	next := make([]*entry[L], len(m.listeners), len(m.listeners)+1)
	copy(next, m.listeners)
	m.listeners = append(next, e)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(e) })
	}
}

func (m *Multicast[L]) remove(target *entry[L]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]*entry[L], 0, len(m.listeners))
	for _, e := range m.listeners {
		if e != target {
			next = append(next, e)
		}
	}
	m.listeners = next
}

// Notify implements Channel.
func (m *Multicast[L]) Notify(fn func(L)) {
	m.mu.Lock()
	snapshot := m.listeners
	m.mu.Unlock()

	for _, e := range snapshot {
		listener := e.listener
		m.dispatcher.dispatch(func() { fn(listener) })
	}
}

// Len returns the number of registered listeners.
func (m *Multicast[L]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Mute is a Channel that drops every registration and ignores Notify.
type Mute[L any] struct{}

// AddListener discards l.
func (Mute[L]) AddListener(L) func() { return func() {} }

// Notify does nothing.
func (Mute[L]) Notify(func(L)) {}
