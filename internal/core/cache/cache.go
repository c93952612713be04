package cache

import (
	"sync"
	"time"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// ResultCache keeps the last successful ResultTable per entity. At most
// one entry exists per entity id; Put overwrites atomically under the
// lock, so readers never observe a partial write. A missing or stale
// entry is a normal outcome, not an error.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*types.CachedResult
	stats   Statistics
	nowFn   func() time.Time
}

// Statistics tracks cache performance counters.
type Statistics struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Puts    uint64 `json:"puts"`
	Evicted uint64 `json:"evicted"`
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		entries: make(map[string]*types.CachedResult),
		nowFn:   time.Now,
	}
}

// Get returns the cached result for an entity if one exists and its age
// does not exceed maxAge. A non-positive maxAge disables the staleness
// check, so a just-produced result is always visible.
func (c *ResultCache) Get(entityID string, maxAge time.Duration) (*types.CachedResult, bool) {
	c.mu.RLock()
	entry, exists := c.entries[entityID]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}
	if maxAge > 0 && entry.Age(c.nowFn()) > maxAge {
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	hit := *entry
	hit.FromCache = true
	return &hit, true
}

// Put stores the result for an entity, replacing any previous entry.
// The CachedResult is assembled before the lock is taken so the map
// swap itself is a single assignment.
func (c *ResultCache) Put(entityID string, table *types.ResultTable, duration time.Duration) *types.CachedResult {
	entry := &types.CachedResult{
		EntityID:   entityID,
		Table:      table,
		ProducedAt: c.nowFn(),
		Duration:   duration,
	}

	c.mu.Lock()
	c.entries[entityID] = entry
	c.stats.Puts++
	c.mu.Unlock()

	return entry
}

// Invalidate removes an entity's entry if present.
func (c *ResultCache) Invalidate(entityID string) {
	c.mu.Lock()
	if _, ok := c.entries[entityID]; ok {
		delete(c.entries, entityID)
		c.stats.Evicted++
	}
	c.mu.Unlock()
}

// Size returns the number of cached entries.
func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the cached entity ids.
func (c *ResultCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns a copy of the performance counters.
func (c *ResultCache) Stats() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *ResultCache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *ResultCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
