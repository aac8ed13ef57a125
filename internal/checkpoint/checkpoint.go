// Package checkpoint persists reconciliation markers in SQLite so a run that
// stops between the count and profit writes of a record resumes with only the
// missing write.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rickgao/orderstats/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS markers (
	run_date   TEXT NOT NULL,
	order_id   TEXT NOT NULL,
	field      TEXT NOT NULL,
	written_at TEXT NOT NULL,
	PRIMARY KEY (run_date, order_id, field)
);
`

// Store is a SQLite-backed marker store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the marker database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Done reports whether m has been recorded.
func (s *Store) Done(ctx context.Context, m model.Marker) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM markers WHERE run_date = ? AND order_id = ? AND field = ?`,
		m.RunDate, m.OrderID, m.Field,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query marker: %w", err)
	}
	return n > 0, nil
}

// Mark records m. Marking twice is a no-op.
func (s *Store) Mark(ctx context.Context, m model.Marker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO markers (run_date, order_id, field, written_at) VALUES (?, ?, ?, ?)`,
		m.RunDate, m.OrderID, m.Field, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert marker: %w", err)
	}
	return nil
}

// Clear removes every marker of runDate and returns how many were removed.
func (s *Store) Clear(ctx context.Context, runDate string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE run_date = ?`, runDate)
	if err != nil {
		return 0, fmt.Errorf("clear markers: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
