package rules

import (
	"sync"
	"time"
)

type cacheEntry struct {
	ruleSet  *RuleSet
	cachedAt time.Time
}

// InMemoryRuleSetCache is a simple in-memory implementation of RuleSetCache
// Thread-safe for concurrent access
type InMemoryRuleSetCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryRuleSetCache creates a new in-memory rule set cache
func NewInMemoryRuleSetCache(config CacheConfig) *InMemoryRuleSetCache {
	return &InMemoryRuleSetCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get retrieves a cached rule set
// Returns nil if caching is disabled, the key is absent or the entry expired
func (c *InMemoryRuleSetCache) Get(key string) *RuleSet {
	if c.config.TTL <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Rule sets are read-only once parsed, so sharing the pointer is safe
	return entry.ruleSet
}

// Set stores a rule set in cache
func (c *InMemoryRuleSetCache) Set(key string, rs *RuleSet) {
	if c.config.TTL <= 0 || rs == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{ruleSet: rs, cachedAt: c.now()}
}

// Invalidate drops one entry
func (c *InMemoryRuleSetCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// InvalidateAll clears the cache
func (c *InMemoryRuleSetCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, expired or not
func (c *InMemoryRuleSetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
