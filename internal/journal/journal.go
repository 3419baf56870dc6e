// Package journal persists the ids of resting orders so that a crashed
// run's orders can be swept on the next boot.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a sqlite-backed journal of confirmed resting order ids.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	// WAL mode so a crash mid-cycle leaves a readable journal
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS resting_orders (
		order_id   TEXT PRIMARY KEY,
		side       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record stores a confirmed resting order id. Recording the same id twice
// is harmless.
func (s *Store) Record(ctx context.Context, orderID, side string) error {
	query := `INSERT OR REPLACE INTO resting_orders (order_id, side, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, orderID, side, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to record order %s: %w", orderID, err)
	}
	return nil
}

// Clear removes the given order ids after a confirmed cancellation.
func (s *Store) Clear(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM resting_orders WHERE order_id IN (%s)", placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear orders: %w", err)
	}
	return nil
}

// List returns every order id still on record, oldest first. A non-empty
// result on boot means a previous run exited without cancelling.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT order_id FROM resting_orders ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
