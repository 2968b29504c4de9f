package flags

import (
	"maps"
	"slices"
	"sync"

	"mercator-hq/relay/pkg/listenable"
)

// Store is a raw property source.
type Store interface {
	// Lookup returns the raw value of name.
	Lookup(name string) (string, bool)

	// Snapshot returns a copy of all properties.
	Snapshot() map[string]string

	// Listenable publishes the sorted names of changed properties.
	Listenable() listenable.Listenable[Listener]
}

// MemoryStore is an in-process Store. It backs tests and the built-in
// defaults when no flag file is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	props     map[string]string
	listeners *listenable.Multicast[Listener]
}

// NewMemoryStore returns a store holding a copy of initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	props := make(map[string]string, len(initial))
	maps.Copy(props, initial)
	return &MemoryStore{
		props:     props,
		listeners: listenable.NewMulticast[Listener](listenable.Immediate()),
	}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.props[name]
	return v, ok
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.props)
}

// Listenable implements Store.
func (s *MemoryStore) Listenable() listenable.Listenable[Listener] {
	return s.listeners
}

// Set stores value under name and notifies if it changed.
func (s *MemoryStore) Set(name, value string) {
	s.apply(func(props map[string]string) map[string]string {
		props[name] = value
		return props
	})
}

// Delete removes name and notifies if it was present.
func (s *MemoryStore) Delete(name string) {
	s.apply(func(props map[string]string) map[string]string {
		delete(props, name)
		return props
	})
}

// Replace swaps the whole property set and notifies the names that were
// added, removed or modified. It returns those names.
func (s *MemoryStore) Replace(props map[string]string) []string {
	return s.apply(func(map[string]string) map[string]string {
		next := maps.Clone(props)
		if next == nil {
			next = map[string]string{}
		}
		return next
	})
}

func (s *MemoryStore) apply(mutate func(map[string]string) map[string]string) []string {
	s.mu.Lock()
	next := mutate(maps.Clone(s.props))
	changed := ChangedKeys(s.props, next)
	s.props = next
	s.mu.Unlock()

	if len(changed) > 0 {
		s.listeners.Notify(func(l Listener) { l(changed) })
	}
	return changed
}

// ChangedKeys returns the sorted keys whose presence or value differs
// between before and after.
func ChangedKeys(before, after map[string]string) []string {
	var changed []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed = append(changed, k)
		}
	}
	slices.Sort(changed)
	return changed
}
