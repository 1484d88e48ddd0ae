// Package settings holds the requester's persisted preferences: the API key
// and the selected provider.
package settings

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when nothing has been saved yet.
var ErrNotFound = errors.New("settings: not found")

// Settings is the single persisted settings record.
type Settings struct {
	APIKey           string    `json:"apiKey"`
	SelectedProvider string    `json:"selectedProvider"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

// Redacted returns a copy with the API key masked for display.
func (s Settings) Redacted() Settings {
	out := s
	out.APIKey = MaskKey(s.APIKey)
	return out
}

// MaskKey keeps the last four characters of a key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// Store persists Settings.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) (Settings, error)
	Close() error
}
