package rules

import (
	"testing"
	"time"
)

func TestInMemoryRuleSetCacheDisabledByDefault(t *testing.T) {
	cache := NewInMemoryRuleSetCache(DefaultCacheConfig())

	cache.Set("rule.task.json", &RuleSet{Type: "Task"})

	if cache.Get("rule.task.json") != nil {
		t.Error("cache with zero TTL should never return entries")
	}
	if cache.Len() != 0 {
		t.Error("cache with zero TTL should not store entries")
	}
}

func TestInMemoryRuleSetCacheTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewInMemoryRuleSetCache(CacheConfig{TTL: time.Minute})
	cache.now = func() time.Time { return now }

	rs := &RuleSet{Type: "Task"}
	cache.Set("rule.task.json", rs)

	if got := cache.Get("rule.task.json"); got != rs {
		t.Fatalf("Get() = %v, want cached rule set", got)
	}

	now = now.Add(59 * time.Second)
	if cache.Get("rule.task.json") == nil {
		t.Error("entry should still be valid before TTL elapses")
	}

	now = now.Add(2 * time.Second)
	if cache.Get("rule.task.json") != nil {
		t.Error("entry should expire after TTL")
	}
}

func TestInMemoryRuleSetCacheInvalidate(t *testing.T) {
	cache := NewInMemoryRuleSetCache(CacheConfig{TTL: time.Hour})

	cache.Set("rule.task.json", &RuleSet{Type: "Task"})
	cache.Set("rule.bug.json", &RuleSet{Type: "Bug"})

	cache.Invalidate("rule.task.json")
	if cache.Get("rule.task.json") != nil {
		t.Error("invalidated entry should be gone")
	}
	if cache.Get("rule.bug.json") == nil {
		t.Error("other entries should survive Invalidate")
	}

	cache.InvalidateAll()
	if cache.Len() != 0 {
		t.Errorf("InvalidateAll() left %d entries", cache.Len())
	}
}
