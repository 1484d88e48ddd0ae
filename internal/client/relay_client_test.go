package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/tokligence-relay/internal/port/wsport"
	"github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/settings"
	"github.com/tokligence/tokligence-relay/internal/testutil"
)

type stubHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return s.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
}

func TestRoundTripPostsRequest(t *testing.T) {
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/base/v1/relay" {
			t.Fatalf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		var in relay.OutboundRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.TargetURL != "https://api.example.com/v1/models" {
			t.Fatalf("unexpected target %q", in.TargetURL)
		}
		return jsonResponse(http.StatusOK, `{"ok":true,"data":{"n":1},"status":200}`), nil
	}}

	c, err := NewRelayClient("http://relay.local/base/", stub, nil)
	require.NoError(t, err)
	reply, err := c.RoundTrip(context.Background(), relay.OutboundRequest{TargetURL: "https://api.example.com/v1/models"})
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.JSONEq(t, `{"n":1}`, string(reply.Data))
}

func TestRoundTripSurfacesServerError(t *testing.T) {
	stub := &stubHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":"target url required"}`), nil
	}}
	c, err := NewRelayClient("http://relay.local", stub, nil)
	require.NoError(t, err)
	_, err = c.RoundTrip(context.Background(), relay.OutboundRequest{})
	assert.EqualError(t, err, "relayd error: target url required")

	stub.handler = func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `<html>`), nil
	}
	_, err = c.RoundTrip(context.Background(), relay.OutboundRequest{})
	assert.EqualError(t, err, "relayd error: status 502")
}

func TestSettingsRoundTrip(t *testing.T) {
	var saved settings.Settings
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		switch req.Method {
		case http.MethodPut:
			if err := json.NewDecoder(req.Body).Decode(&saved); err != nil {
				t.Fatalf("decode: %v", err)
			}
			raw, _ := json.Marshal(saved)
			return jsonResponse(http.StatusOK, string(raw)), nil
		case http.MethodGet:
			return jsonResponse(http.StatusOK, `{"apiKey":"sk-x","selectedProvider":"Groq"}`), nil
		}
		t.Fatalf("unexpected method %s", req.Method)
		return nil, nil
	}}
	c, err := NewRelayClient("http://relay.local", stub, nil)
	require.NoError(t, err)

	out, err := c.SaveSettings(context.Background(), settings.Settings{APIKey: "sk-x", SelectedProvider: "Groq"})
	require.NoError(t, err)
	assert.Equal(t, "Groq", out.SelectedProvider)
	assert.Equal(t, "sk-x", saved.APIKey)

	got, err := c.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-x", got.APIKey)
}

func TestLedgerQuery(t *testing.T) {
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/ledger" || req.URL.Query().Get("limit") != "5" {
			t.Fatalf("unexpected request %s", req.URL)
		}
		return jsonResponse(http.StatusOK, `{"summary":{"requests":2,"tokens":9},"entries":[{"id":"a","mode":"stream","target":"http://x","outcome":"ok"}]}`), nil
	}}
	c, err := NewRelayClient("http://relay.local", stub, nil)
	require.NoError(t, err)
	report, err := c.Ledger(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(9), report.Summary.Tokens)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "stream", report.Entries[0].Mode)
}

func TestWebSocketURLMapping(t *testing.T) {
	c, err := NewRelayClient("https://relay.example.com/api/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/api/v1/ports/proxy-stream", c.wsURL("/v1/ports/proxy-stream"))

	c, err = NewRelayClient("http://127.0.0.1:8090", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8090/v1/ports/proxy-stream", c.wsURL("/v1/ports/proxy-stream"))

	_, err = NewRelayClient("ftp://relay", nil, nil)
	assert.Error(t, err)
}

func TestOpenPortDialsNamespace(t *testing.T) {
	paths := make(chan string, 1)
	srv := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := wsport.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := wsport.New("proxy-stream", conn, nil)
		defer p.Close()
		var req relay.OutboundRequest
		if err := p.Receive(r.Context(), &req); err != nil {
			return
		}
		_ = p.Send(r.Context(), relay.Chunk(req.TargetURL))
		_ = p.Send(r.Context(), relay.Done())
	}))

	c, err := NewRelayClient(srv.URL, srv.Client(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	p, err := c.OpenPort(ctx, relay.StreamNamespace)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "/v1/ports/proxy-stream", <-paths)

	require.NoError(t, p.Send(ctx, relay.OutboundRequest{TargetURL: "http://echo"}))
	var env relay.Envelope
	require.NoError(t, p.Receive(ctx, &env))
	assert.Equal(t, relay.Chunk("http://echo"), env)
	require.NoError(t, p.Receive(ctx, &env))
	assert.Equal(t, relay.Done(), env)
}
