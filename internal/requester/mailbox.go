package requester

import (
	"context"
	"io"
	"sync"

	"github.com/tokligence/tokligence-relay/internal/relay"
)

type delivery struct {
	token string
	err   error
}

// mailbox hands tokens from the listener to the consumer. At any time either
// the backlog or the waiter slot may be non-empty, never both: a token that
// arrives while a consumer waits goes straight to it.
type mailbox struct {
	mu      sync.Mutex
	backlog []string
	waiter  chan delivery
	done    bool
	err     error // io.EOF after Done
}

func newMailbox() *mailbox {
	return &mailbox{}
}

func (m *mailbox) push(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	if m.waiter != nil {
		m.waiter <- delivery{token: token}
		m.waiter = nil
		return
	}
	m.backlog = append(m.backlog, token)
}

// finish records the terminal outcome. A nil err means the stream completed.
// Only the first call has any effect.
func (m *mailbox) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	if err == nil {
		err = io.EOF
	}
	m.done = true
	m.err = err
	if m.waiter != nil {
		m.waiter <- delivery{err: err}
		m.waiter = nil
	}
}

// take returns the next token, blocking until one arrives, the stream ends or
// ctx is done. Queued tokens are always returned before the terminal error.
func (m *mailbox) take(ctx context.Context) (string, error) {
	m.mu.Lock()
	if len(m.backlog) > 0 {
		tok := m.backlog[0]
		m.backlog[0] = ""
		m.backlog = m.backlog[1:]
		m.mu.Unlock()
		return tok, nil
	}
	if m.done {
		err := m.err
		m.mu.Unlock()
		return "", err
	}
	if m.waiter != nil {
		m.mu.Unlock()
		return "", relay.ErrConcurrentNext
	}
	ch := make(chan delivery, 1)
	m.waiter = ch
	m.mu.Unlock()

	select {
	case d := <-ch:
		return d.token, d.err
	case <-ctx.Done():
		m.mu.Lock()
		if m.waiter == ch {
			m.waiter = nil
			m.mu.Unlock()
			return "", ctx.Err()
		}
		m.mu.Unlock()
		// a delivery raced the cancellation; hand it over rather than drop it
		d := <-ch
		return d.token, d.err
	}
}
