package relay

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/tokligence-relay/internal/testutil"
)

func TestLocalClientStreams(t *testing.T) {
	up := testutil.NewIPv4Server(t, testutil.SSEHandler(testutil.DeltaFrame("a"), testutil.DeltaFrame("b"), testutil.DoneFrame))
	c := NewLocal(up.Client(), nil)

	req := OutboundRequest{TargetURL: up.URL, Method: http.MethodPost, Body: `{"stream":true}`}
	require.Equal(t, Mode("stream"), Negotiate(req))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts, err := c.Stream(ctx, req)
	require.NoError(t, err)
	tokens, err := ts.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens)

	_, err = c.Fetch(ctx, req)
	assert.ErrorIs(t, err, ErrStreamingRequest)
}

func TestNewRemoteValidatesEndpoint(t *testing.T) {
	_, err := NewRemote("ftp://relay", nil)
	assert.Error(t, err)
	c, err := NewRemote("http://127.0.0.1:8090", nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.ListenAddr)
}
