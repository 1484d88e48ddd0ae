package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tokligence/tokligence-relay/internal/settings"
)

// Store implements settings.Store as a single row in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the settings database at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK(id = 1),
	api_key TEXT NOT NULL DEFAULT '',
	selected_provider TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the saved settings or settings.ErrNotFound.
func (s *Store) Get(ctx context.Context) (settings.Settings, error) {
	var out settings.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT api_key, selected_provider, updated_at FROM settings WHERE id = 1`,
	).Scan(&out.APIKey, &out.SelectedProvider, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, settings.ErrNotFound
	}
	if err != nil {
		return settings.Settings{}, err
	}
	return out, nil
}

// Save upserts the record and returns it with its new timestamp.
func (s *Store) Save(ctx context.Context, in settings.Settings) (settings.Settings, error) {
	in.APIKey = strings.TrimSpace(in.APIKey)
	in.SelectedProvider = strings.TrimSpace(in.SelectedProvider)
	in.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(id, api_key, selected_provider, updated_at) VALUES(1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET api_key = excluded.api_key, selected_provider = excluded.selected_provider, updated_at = excluded.updated_at`,
		in.APIKey, in.SelectedProvider, in.UpdatedAt)
	if err != nil {
		return settings.Settings{}, err
	}
	return in, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}
