package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the final result of one relayed exchange.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Entry records one request the executor performed.
type Entry struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Method     string    `json:"method"`
	Target     string    `json:"target"`
	Status     int       `json:"status"`
	Tokens     int64     `json:"tokens"`
	Bytes      int64     `json:"bytes"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary aggregates everything recorded so far.
type Summary struct {
	Requests int64 `json:"requests"`
	Streams  int64 `json:"streams"`
	Failures int64 `json:"failures"`
	Tokens   int64 `json:"tokens"`
	Bytes    int64 `json:"bytes"`
}

// Report is the ledger view served to clients.
type Report struct {
	Summary Summary `json:"summary"`
	Entries []Entry `json:"entries"`
}

// Store defines persistence behaviour for the ledger.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Summary(ctx context.Context) (Summary, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// DefaultListLimit is used when ListRecent is called with limit <= 0.
const DefaultListLimit = 50

// Normalize fills the ID and timestamp and validates the fields every backend
// relies on.
func Normalize(entry Entry) (Entry, error) {
	if entry.Mode != "unary" && entry.Mode != "stream" {
		return entry, fmt.Errorf("invalid mode %q", entry.Mode)
	}
	if entry.Outcome != OutcomeOK && entry.Outcome != OutcomeFailed {
		return entry, fmt.Errorf("invalid outcome %q", entry.Outcome)
	}
	if strings.TrimSpace(entry.Target) == "" {
		return entry, errors.New("ledger record requires target")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}
