package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tokligence/tokligence-relay/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS relay_entries (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL CHECK(mode IN ('unary','stream')),
	method TEXT NOT NULL,
	target TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	tokens INTEGER NOT NULL DEFAULT 0,
	bytes INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL CHECK(outcome IN ('ok','failed')),
	error TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_relay_entries_created ON relay_entries(created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new relay entry.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	entry, err := ledger.Normalize(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO relay_entries(id, mode, method, target, status, tokens, bytes, outcome, error, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Mode,
		entry.Method,
		entry.Target,
		entry.Status,
		entry.Tokens,
		entry.Bytes,
		string(entry.Outcome),
		entry.Error,
		entry.DurationMS,
		entry.CreatedAt,
	)
	return err
}

// Summary returns aggregated totals.
func (s *Store) Summary(ctx context.Context) (ledger.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN mode='stream' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome='failed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(tokens), 0),
	COALESCE(SUM(bytes), 0)
FROM relay_entries`)

	var sum ledger.Summary
	if err := row.Scan(&sum.Requests, &sum.Streams, &sum.Failures, &sum.Tokens, &sum.Bytes); err != nil {
		return ledger.Summary{}, err
	}
	return sum, nil
}

// ListRecent returns the latest entries, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, mode, method, target, status, tokens, bytes, outcome, error, duration_ms, created_at
FROM relay_entries
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var outcome string
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.Mode, &e.Method, &e.Target, &e.Status, &e.Tokens, &e.Bytes, &outcome, &errText, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Outcome = ledger.Outcome(outcome)
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
