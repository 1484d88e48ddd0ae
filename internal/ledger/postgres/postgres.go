package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokligence/tokligence-relay/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// PoolConfig tunes the database/sql connection pool. Zero values keep the
// driver defaults.
type PoolConfig struct {
	MaxOpen  int
	MaxIdle  int
	Lifetime time.Duration
	IdleTime time.Duration
}

// IsDSN reports whether dsn names a PostgreSQL database.
func IsDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// New opens a PostgreSQL-backed ledger store using the provided DSN.
func New(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.Lifetime > 0 {
		db.SetConnMaxLifetime(pool.Lifetime)
	}
	if pool.IdleTime > 0 {
		db.SetConnMaxIdleTime(pool.IdleTime)
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
	id UUID PRIMARY KEY,
	mode TEXT NOT NULL CHECK(mode IN ('unary','stream')),
	method TEXT NOT NULL,
	target TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	tokens BIGINT NOT NULL DEFAULT 0,
	bytes BIGINT NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL CHECK(outcome IN ('ok','failed')),
	error TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_relay_entries_created ON relay_entries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_relay_entries_failed ON relay_entries(created_at DESC) WHERE outcome = 'failed';
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
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
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
	COUNT(*) FILTER (WHERE mode = 'stream'),
	COUNT(*) FILTER (WHERE outcome = 'failed'),
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
SELECT id::text, mode, method, target, status, tokens, bytes, outcome, error, duration_ms, created_at
FROM relay_entries
ORDER BY created_at DESC
LIMIT $1`, limit)
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
