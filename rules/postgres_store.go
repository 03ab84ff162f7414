package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresDocumentStore implements DocumentStore backed by PostgreSQL.
// The rule_documents table is created by the migrations in migrations/.
type PostgresDocumentStore struct {
	db *sql.DB
}

// NewPostgresDocumentStore creates a new PostgreSQL-backed DocumentStore
func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// Exists reports whether a document is stored under key
func (s *PostgresDocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM rule_documents WHERE key = $1)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check rule document existence: %w", err)
	}
	return exists, nil
}

// Get retrieves a document by key
func (s *PostgresDocumentStore) Get(ctx context.Context, key string) (*Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT key, document, updated_at
		FROM rule_documents
		WHERE key = $1
	`, key).Scan(&doc.Key, &doc.Content, &doc.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s not found", ErrNoRules, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule document: %w", err)
	}

	return &doc, nil
}

// Put inserts or replaces a document, preserving created_at on replace
func (s *PostgresDocumentStore) Put(ctx context.Context, key string, content []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_documents (key, work_item_type, document, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET document = EXCLUDED.document, updated_at = NOW()
	`, key, typeFromKey(key), string(content))
	if err != nil {
		return fmt.Errorf("failed to store rule document: %w", err)
	}
	return nil
}

// Delete removes a document from the database
func (s *PostgresDocumentStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rule_documents
		WHERE key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("failed to delete rule document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s not found", ErrNoRules, key)
	}

	return nil
}

// List returns all stored keys
func (s *PostgresDocumentStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM rule_documents ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule documents: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan rule document key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule documents: %w", err)
	}

	return keys, nil
}

// typeFromKey recovers the lower-cased work item type from a document key
func typeFromKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, "rule."), ".json")
}
