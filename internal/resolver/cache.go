package resolver

import (
	"sort"
	"sync"

	"telinv/internal/normalize"
)

// EntityCache stores resolved rows keyed by module name. It is additive-only
// during a run: each module's row list is written exactly once and read-only
// afterwards. Dependents only read modules that have fully resolved, so
// concurrent readers are safe.
type EntityCache struct {
	mu      sync.RWMutex
	modules map[string][]normalize.Row
}

// NewEntityCache constructs an empty cache.
func NewEntityCache() *EntityCache {
	return &EntityCache{modules: make(map[string][]normalize.Row)}
}

// Seed pre-populates a module before resolution, e.g. rows loaded from a
// prior export used as lookup input.
func (c *EntityCache) Seed(module string, rows []normalize.Row) {
	c.Put(module, rows)
}

// Put stores a module's resolved rows. A fresh slice is stored; callers must
// not mutate rows after handing them over.
func (c *EntityCache) Put(module string, rows []normalize.Row) {
	copied := make([]normalize.Row, len(rows))
	copy(copied, rows)
	c.mu.Lock()
	c.modules[module] = copied
	c.mu.Unlock()
}

// Rows returns the resolved rows for a module. The returned slice must be
// treated as immutable.
func (c *EntityCache) Rows(module string) ([]normalize.Row, bool) {
	c.mu.RLock()
	rows, ok := c.modules[module]
	c.mu.RUnlock()
	return rows, ok
}

// Modules returns resolved module names, sorted.
func (c *EntityCache) Modules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.modules))
	for name := range c.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the full cache contents for persistence.
func (c *EntityCache) Snapshot() map[string][]normalize.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]normalize.Row, len(c.modules))
	for name, rows := range c.modules {
		copied := make([]normalize.Row, len(rows))
		copy(copied, rows)
		out[name] = copied
	}
	return out
}
