// Package rules loads, validates and stores the per-work-item-type rule
// documents that drive parent state propagation.
package rules

import (
	"context"
	"fmt"
	"strings"
)

// Gateway resolves work item types to rule sets and manages the documents behind them
type Gateway struct {
	store DocumentStore
	cache RuleSetCache
}

// NewGateway creates a gateway over store. A nil cache disables caching.
func NewGateway(store DocumentStore, cache RuleSetCache) *Gateway {
	if cache == nil {
		cache = NewInMemoryRuleSetCache(DefaultCacheConfig())
	}
	return &Gateway{store: store, cache: cache}
}

// Exists reports whether a rule document is configured for workItemType
func (g *Gateway) Exists(ctx context.Context, workItemType string) (bool, error) {
	key := DocumentKey(workItemType)
	if g.cache.Get(key) != nil {
		return true, nil
	}
	return g.store.Exists(ctx, key)
}

// Resolve loads and parses the rule set for workItemType.
// Absence returns an error wrapping ErrNoRules; an unparseable or invalid
// document returns an error wrapping ErrInvalidDocument.
func (g *Gateway) Resolve(ctx context.Context, workItemType string) (*RuleSet, error) {
	key := DocumentKey(workItemType)
	if rs := g.cache.Get(key); rs != nil {
		return rs, nil
	}

	doc, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	rs, err := ParseDocument(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if rs.Type == "" {
		rs.Type = workItemType
	}

	g.cache.Set(key, rs)
	return rs, nil
}

// Document returns the raw stored document for workItemType
func (g *Gateway) Document(ctx context.Context, workItemType string) (*Document, error) {
	return g.store.Get(ctx, DocumentKey(workItemType))
}

// Save validates content and stores it as the rule document for workItemType
func (g *Gateway) Save(ctx context.Context, workItemType string, content []byte) (*RuleSet, error) {
	rs, err := ParseDocument(content)
	if err != nil {
		return nil, err
	}
	if rs.Type != "" && !strings.EqualFold(rs.Type, workItemType) {
		return nil, fmt.Errorf("%w: document type %q does not match %q", ErrInvalidDocument, rs.Type, workItemType)
	}

	key := DocumentKey(workItemType)
	if err := g.store.Put(ctx, key, content); err != nil {
		return nil, err
	}

	g.cache.Invalidate(key)
	return rs, nil
}

// Delete removes the rule document for workItemType
func (g *Gateway) Delete(ctx context.Context, workItemType string) error {
	key := DocumentKey(workItemType)
	if err := g.store.Delete(ctx, key); err != nil {
		return err
	}

	g.cache.Invalidate(key)
	return nil
}

// ListTypes returns the lower-cased work item types that have a rule document
func (g *Gateway) ListTypes(ctx context.Context) ([]string, error) {
	keys, err := g.store.List(ctx)
	if err != nil {
		return nil, err
	}

	types := make([]string, 0, len(keys))
	for _, key := range keys {
		types = append(types, typeFromKey(key))
	}
	return types, nil
}
