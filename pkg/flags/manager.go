// Package flags implements typed runtime flags backed by a raw
// string-keyed property store.
//
// A Flag is a declaration (name, default, parser). A Manager resolves a
// flag against its Store at read time: an absent property yields the
// override or the default, a malformed one is logged and treated as
// absent. Stores publish the names of changed properties so dependents can
// recompute only what they use.
package flags

import (
	"log/slog"
	"sync/atomic"

	"mercator-hq/relay/pkg/listenable"
)

// Listener receives the names of flags whose raw value changed.
type Listener func(names []string)

// Manager reads typed flag values from a Store.
type Manager struct {
	store         Store
	listeners     *listenable.Multicast[Listener]
	unsubscribe   func()
	parseFailures atomic.Int64
	logger        *slog.Logger
}

// NewManager creates a Manager over store. Change notifications from the
// store are re-published to the manager's listeners using dispatcher.
func NewManager(store Store, dispatcher listenable.Dispatcher) *Manager {
	m := &Manager{
		store:     store,
		listeners: listenable.NewMulticast[Listener](dispatcher),
		logger:    slog.Default().With("component", "flags"),
	}
	m.unsubscribe = store.Listenable().AddListener(func(names []string) {
		m.logger.Debug("flags changed", "names", names)
		m.listeners.Notify(func(l Listener) { l(names) })
	})
	return m
}

// Get returns the current value of f, or its default.
func Get[T any](m *Manager, f Flag[T]) T {
	return GetOrOverride(m, f, nil)
}

// GetOrOverride returns the current value of f. When the property is
// absent or cannot be parsed it returns *override if override is non-nil
// and the flag default otherwise.
func GetOrOverride[T any](m *Manager, f Flag[T], override *T) T {
	fallback := f.Default()
	if override != nil {
		fallback = *override
	}

	raw, ok := m.store.Lookup(f.Name())
	if !ok {
		return fallback
	}

	value, err := f.Parse(raw)
	if err != nil {
		m.parseFailures.Add(1)
		m.logger.Warn("invalid flag value, using fallback",
			"flag", f.Name(),
			"kind", f.Kind(),
			"raw", raw,
			"error", err,
		)
		return fallback
	}
	return value
}

// Raw returns the unparsed property value for name.
func (m *Manager) Raw(name string) (string, bool) {
	return m.store.Lookup(name)
}

// Snapshot returns every raw property currently in the store.
func (m *Manager) Snapshot() map[string]string {
	return m.store.Snapshot()
}

// Listenable exposes flag change notifications.
func (m *Manager) Listenable() listenable.Listenable[Listener] {
	return m.listeners
}

// ParseFailures returns how many reads fell back because of a malformed
// property.
func (m *Manager) ParseFailures() int64 {
	return m.parseFailures.Load()
}

// Close detaches the manager from its store.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}
