package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mercator-hq/relay/pkg/networkusage"
)

// MemoryStorage implements networkusage.Storage in memory. Records are lost
// on restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	entities []*networkusage.Entity
	nextID   int64
	closed   bool
}

var _ networkusage.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{nextID: 1}
}

// Store keeps a copy of entity and sets its ID.
func (s *MemoryStorage) Store(ctx context.Context, entity *networkusage.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return networkusage.NewStorageError("memory", "store", errClosed)
	}
	entity.ID = s.nextID
	s.nextID++

	c := *entity
	s.entities = append(s.entities, &c)
	return nil
}

// Query returns copies of the matching entities.
func (s *MemoryStorage) Query(ctx context.Context, q *networkusage.Query) ([]*networkusage.Entity, error) {
	if q == nil {
		q = &networkusage.Query{}
	}

	s.mu.RLock()
	results := []*networkusage.Entity{}
	for _, e := range s.entities {
		if matchesQuery(e, q) {
			c := *e
			results = append(results, &c)
		}
	}
	s.mu.RUnlock()

	asc := strings.EqualFold(q.SortOrder, "asc")
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreationTime.Equal(b.CreationTime) {
			if asc {
				return a.CreationTime.Before(b.CreationTime)
			}
			return a.CreationTime.After(b.CreationTime)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	start := q.Offset
	if start > len(results) {
		return []*networkusage.Entity{}, nil
	}
	results = results[start:]
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results, nil
}

// Count returns the number of matching entities.
func (s *MemoryStorage) Count(ctx context.Context, q *networkusage.Query) (int64, error) {
	if q == nil {
		q = &networkusage.Query{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entities {
		if matchesQuery(e, q) {
			n++
		}
	}
	return n, nil
}

// DeleteBefore removes entities created before t.
func (s *MemoryStorage) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entities[:0]
	var deleted int64
	for _, e := range s.entities {
		if e.CreationTime.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entities = kept
	return deleted, nil
}

// Close marks the storage closed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func matchesQuery(e *networkusage.Entity, q *networkusage.Query) bool {
	if q.Since != nil && e.CreationTime.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !e.CreationTime.Before(*q.Until) {
		return false
	}
	if q.Type != nil && e.ConnectionDetails.Type != *q.Type {
		return false
	}
	if q.Status != 0 && e.Status != q.Status {
		return false
	}
	if q.PackageName != "" && e.ConnectionDetails.PackageName != q.PackageName {
		return false
	}
	return true
}
