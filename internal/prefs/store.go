// Package prefs persists small user settings that must survive between
// sessions: the saved chat context and whether it is sent. Values live
// in a namespaced key-value table next to the idea cache.
package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store keeps string values grouped by namespace.
type Store struct {
	db *sql.DB
}

// NewStore creates a preference store on db, creating the table when
// it does not exist yet.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate preferences: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`)
	return err
}

// Set writes every entry of values under namespace in one transaction.
// Keys not named in values are left alone.
func (s *Store) Set(ctx context.Context, namespace string, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set %s: %w", namespace, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO preferences (namespace, key, value, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE
			 SET value = excluded.value, updated_at = excluded.updated_at`,
			namespace, key, value, now,
		); err != nil {
			return fmt.Errorf("set %s/%s: %w", namespace, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set %s: %w", namespace, err)
	}
	return nil
}

// Clear removes every key in namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("clear %s: %w", namespace, err)
	}
	return nil
}

// List returns all key/value pairs for a namespace. The map is non-nil.
func (s *Store) List(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM preferences WHERE namespace = ? ORDER BY key`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		result[k] = v
	}
	return result, rows.Err()
}
