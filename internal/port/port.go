// Package port provides the persistent, bidirectional message channel opened
// for the lifetime of one streaming request.
package port

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Receive once the channel is closed and drained,
// and by Send when either side has closed it.
var ErrClosed = errors.New("port: closed")

// Port is one end of a message channel. Messages are JSON values. Send does
// not wait for the peer to consume the message. Close is idempotent and may
// be called by either side; messages sent before the close are still
// delivered to the peer.
type Port interface {
	Name() string
	// ID names the channel in logs and the ledger. Both ends of a Pipe
	// share it; each websocket end has its own.
	ID() string
	Send(ctx context.Context, v any) error
	Receive(ctx context.Context, v any) error
	Close() error
}

// Pipe returns two connected in-memory ends of a port named name.
func Pipe(name string) (Port, Port) {
	id := uuid.NewString()
	ab := newQueue()
	ba := newQueue()
	a := &pipeEnd{name: name, id: id, in: ba, out: ab}
	b := &pipeEnd{name: name, id: id, in: ab, out: ba}
	return a, b
}

type pipeEnd struct {
	name string
	id   string
	in   *queue
	out  *queue
	once sync.Once
}

func (p *pipeEnd) Name() string { return p.name }

func (p *pipeEnd) ID() string { return p.id }

func (p *pipeEnd) Send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("port: encode message: %w", err)
	}
	return p.out.push(raw)
}

func (p *pipeEnd) Receive(ctx context.Context, v any) error {
	raw, err := p.in.pop(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("port: decode message: %w", err)
	}
	return nil
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		p.out.close()
		p.in.close()
	})
	return nil
}

// queue is an unbounded FIFO so senders never block on a slow receiver.
type queue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(raw []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, raw)
	q.notify()
	return nil
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

// notify must be called with mu held.
func (q *queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			raw := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) > 0 || q.closed {
				q.notify()
			}
			q.mu.Unlock()
			return raw, nil
		}
		if q.closed {
			q.notify()
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
