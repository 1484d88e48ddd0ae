package wsport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/testutil"
)

type frame struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// echoServer replies to each frame with seq+1 and closes after `last`.
func echoServer(t *testing.T, last int) *testutil.IPv4Server {
	return testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		p := New("proxy-stream", conn, nil)
		defer p.Close()
		for {
			var f frame
			if err := p.Receive(r.Context(), &f); err != nil {
				return
			}
			f.Seq++
			if err := p.Send(r.Context(), f); err != nil {
				return
			}
			if f.Seq > last {
				return
			}
		}
	}))
}

func TestConnRoundTrip(t *testing.T) {
	srv := echoServer(t, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.WebSocketURL("/"), "proxy-stream", nil, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "proxy-stream", c.Name())
	_, err = uuid.Parse(c.ID())
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(ctx, frame{Seq: i, Text: "héllo"}))
		var got frame
		require.NoError(t, c.Receive(ctx, &got))
		assert.Equal(t, i+1, got.Seq)
		assert.Equal(t, "héllo", got.Text)
	}
}

func TestConnPeerCloseDrainsThenReportsClosed(t *testing.T) {
	srv := echoServer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.WebSocketURL("/"), "proxy-stream", nil, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send(ctx, frame{Seq: 0}))
	var got frame
	require.NoError(t, c.Receive(ctx, &got))
	assert.Equal(t, 1, got.Seq)
	assert.ErrorIs(t, c.Receive(ctx, &got), port.ErrClosed)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.WebSocketURL("/"), "p", nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(ctx, frame{}), port.ErrClosed)
	var f frame
	assert.ErrorIs(t, c.Receive(ctx, &f), port.ErrClosed)
}

func TestConnReceiveHonoursContext(t *testing.T) {
	srv := echoServer(t, 100)
	c, err := Dial(context.Background(), srv.WebSocketURL("/"), "p", nil, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var f frame
	assert.ErrorIs(t, c.Receive(ctx, &f), context.DeadlineExceeded)
}

func TestDialFailsForNonWebSocketEndpoint(t *testing.T) {
	srv := testutil.NewIPv4Server(t, http.NotFoundHandler())
	_, err := Dial(context.Background(), srv.WebSocketURL("/"), "p", nil, nil)
	assert.Error(t, err)
}

var _ port.Port = (*Conn)(nil)
