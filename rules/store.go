package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNoRules is returned when no rule document exists for a work item type
	ErrNoRules = errors.New("no rule document")

	// ErrInvalidDocument is returned when a rule document cannot be parsed or fails validation
	ErrInvalidDocument = errors.New("invalid rule document")
)

// Document is a stored rule document
type Document struct {
	Key       string
	Content   []byte
	UpdatedAt time.Time
}

// DocumentStore manages rule document persistence and retrieval.
// Keys are produced by DocumentKey.
type DocumentStore interface {
	// Exists reports whether a document is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns the document stored under key, or an error wrapping ErrNoRules
	Get(ctx context.Context, key string) (*Document, error)

	// Put creates or replaces the document stored under key
	Put(ctx context.Context, key string, content []byte) error

	// Delete removes a document, or returns an error wrapping ErrNoRules
	Delete(ctx context.Context, key string) error

	// List returns all stored keys in lexical order
	List(ctx context.Context) ([]string, error)
}

// InMemoryDocumentStore implements DocumentStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryDocumentStore struct {
	documents map[string]*Document
	mu        sync.RWMutex
}

// NewInMemoryDocumentStore creates a new in-memory document store
func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		documents: make(map[string]*Document),
	}
}

// Exists reports whether key is stored
func (s *InMemoryDocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.documents[key]
	return exists, nil
}

// Get retrieves a copy of the document stored under key
func (s *InMemoryDocumentStore) Get(ctx context.Context, key string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.documents[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s not found", ErrNoRules, key)
	}

	// Return copy to prevent external modifications
	return &Document{Key: doc.Key, Content: slices.Clone(doc.Content), UpdatedAt: doc.UpdatedAt}, nil
}

// Put stores a copy of content under key
func (s *InMemoryDocumentStore) Put(ctx context.Context, key string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[key] = &Document{Key: key, Content: slices.Clone(content), UpdatedAt: time.Now()}
	return nil
}

// Delete removes the document stored under key
func (s *InMemoryDocumentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[key]; !exists {
		return fmt.Errorf("%w: %s not found", ErrNoRules, key)
	}

	delete(s.documents, key)
	return nil
}

// List returns all keys in lexical order
func (s *InMemoryDocumentStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.documents))
	for key := range s.documents {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}
