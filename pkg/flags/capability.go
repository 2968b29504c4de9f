package flags

import (
	"context"
	"log/slog"
	"sync"
)

// Capability caches the outcome of a one-time environment check, such as
// whether the audit database is writable. It is created by the process
// entry point and passed to the components that depend on it.
type Capability struct {
	name  string
	check func(ctx context.Context) error

	mu      sync.Mutex
	checked bool
	err     error
}

// NewCapability returns an unchecked capability. A nil check is always
// available.
func NewCapability(name string, check func(ctx context.Context) error) *Capability {
	return &Capability{name: name, check: check}
}

// Available runs the check on first use and returns its cached outcome.
func (c *Capability) Available(ctx context.Context) bool {
	return c.Err(ctx) == nil
}

// Err runs the check on first use and returns the cached error.
func (c *Capability) Err(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.checked {
		if c.check != nil {
			c.err = c.check(ctx)
		}
		c.checked = true
		if c.err != nil {
			slog.Default().Warn("capability unavailable",
				"component", "flags",
				"capability", c.name,
				"error", c.err,
			)
		}
	}
	return c.err
}

// Name returns the capability name.
func (c *Capability) Name() string { return c.name }

// Reset forgets the cached outcome so the next call re-runs the check.
func (c *Capability) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = false
	c.err = nil
}
