package rules

import "time"

// RuleSetCache provides an abstraction for caching resolved rule sets by work item type
// This allows swapping between in-memory, Redis, or other caching implementations
type RuleSetCache interface {
	// Get retrieves a cached rule set, returns nil if cache miss or expired
	Get(key string) *RuleSet

	// Set stores a rule set in cache
	Set(key string, rs *RuleSet)

	// Invalidate drops one entry, forcing a reload on next Get
	Invalidate(key string)

	// InvalidateAll clears the cache
	InvalidateAll()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 to disable caching entirely
	TTL time.Duration
}

// DefaultCacheConfig returns the default: no caching, every delivery reads
// the current rule document
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0,
	}
}
