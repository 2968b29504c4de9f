package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mercator-hq/relay/pkg/networkusage"
)

type cached struct {
	entry Entry
	ok    bool
}

// CachedTable memoizes lookups, including misses, in an expirable LRU.
// Replace swaps the table and purges the cache.
type CachedTable struct {
	mu    sync.RWMutex
	table *Table
	cache *expirable.LRU[string, cached]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedTable wraps table with a cache of size entries living ttl.
func NewCachedTable(table *Table, size int, ttl time.Duration) *CachedTable {
	if size <= 0 {
		size = 1024
	}
	return &CachedTable{
		table: table,
		cache: expirable.NewLRU[string, cached](size, nil, ttl),
	}
}

// Match behaves like Table.Match.
func (c *CachedTable) Match(ct networkusage.ConnectionType, key networkusage.ConnectionKey) (Entry, bool) {
	k := ct.String() + "|" + key.String()
	if v, ok := c.cache.Get(k); ok {
		c.hits.Add(1)
		return v.entry, v.ok
	}
	c.misses.Add(1)

	// Held across the add so a concurrent Replace cannot be followed by a
	// stale insert.
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.table.Match(ct, key)
	c.cache.Add(k, cached{entry: entry, ok: ok})
	return entry, ok
}

// Replace installs a new table.
func (c *CachedTable) Replace(table *Table) {
	c.mu.Lock()
	c.table = table
	c.cache.Purge()
	c.mu.Unlock()
}

// Table returns the current table.
func (c *CachedTable) Table() *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}

// Hits returns the number of lookups served from the cache.
func (c *CachedTable) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of lookups that consulted the table.
func (c *CachedTable) Misses() uint64 { return c.misses.Load() }

// Len returns the number of cached lookups.
func (c *CachedTable) Len() int { return c.cache.Len() }
