// Package wsport carries a port over a gorilla/websocket connection.
package wsport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/port"
)

const closeGrace = time.Second

// Upgrader accepts port connections on the relay server.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The relay API is not served to browsers; origin checks are left to the
	// deployment's network boundary.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is a port backed by a websocket. Messages are text frames holding one
// JSON value each.
type Conn struct {
	name   string
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	inbox   chan []byte

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an established websocket connection and starts its read loop.
func New(name string, conn *websocket.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	c := &Conn{
		name:   name,
		id:     id,
		conn:   conn,
		logger: logger.With(zap.String("port", name), zap.String("port_id", id)),
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial opens a port at a ws:// or wss:// URL.
func Dial(ctx context.Context, url, name string, header http.Header, logger *zap.Logger) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial port %s: %w (status %d)", name, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial port %s: %w", name, err)
	}
	return New(name, conn, logger), nil
}

func (c *Conn) Name() string { return c.name }

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("port: encode message: %w", err)
	}
	select {
	case <-c.closed:
		return port.ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		if isClosure(err) {
			return port.ErrClosed
		}
		return fmt.Errorf("port: write: %w", err)
	}
	return nil
}

func (c *Conn) Receive(ctx context.Context, v any) error {
	select {
	case raw, ok := <-c.inbox:
		if !ok {
			return c.terminalErr()
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("port: decode message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a normal-closure frame once and releases the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	if err != nil && !isClosure(err) {
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.inbox)
	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.setReadErr(err)
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		select {
		case c.inbox <- raw:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) setReadErr(err error) {
	select {
	case <-c.closed:
		err = nil
	default:
	}
	if err != nil && !isClosure(err) {
		c.logger.Debug("port read ended", zap.Error(err))
	}
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()
}

func (c *Conn) terminalErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil || isClosure(c.readErr) {
		return port.ErrClosed
	}
	return fmt.Errorf("port: read: %w", c.readErr)
}

func isClosure(err error) bool {
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
