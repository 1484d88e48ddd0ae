package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tokligence/tokligence-relay/internal/openai"
)

type IPv4Server struct {
	URL       string
	listener  net.Listener
	server    *http.Server
	transport *http.Transport
	client    *http.Client
}

// NewIPv4Server starts an HTTP server bound to the IPv4 loopback interface.
// The server is shut down when the test ends.
func NewIPv4Server(t *testing.T, handler http.Handler) *IPv4Server {
	t.Helper()
	if handler == nil {
		handler = http.NewServeMux()
	}
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	transport := &http.Transport{}
	s := &IPv4Server{
		URL:       "http://" + l.Addr().String(),
		listener:  l,
		server:    &http.Server{Handler: handler},
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("IPv4Server serve error: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Client returns an HTTP client configured for the server.
func (s *IPv4Server) Client() *http.Client {
	return s.client
}

// WebSocketURL returns the ws:// address of path on the server.
func (s *IPv4Server) WebSocketURL(path string) string {
	return "ws://" + strings.TrimPrefix(s.URL, "http://") + path
}

// Close shuts down the underlying server and frees resources. Safe to call
// more than once.
func (s *IPv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
	s.transport.CloseIdleConnections()
}

// SSEHandler replies 200 with an event-stream body written frame by frame,
// flushing after each write so readers see the chunk boundaries.
func SSEHandler(frames ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			_, _ = w.Write([]byte(f))
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

// DeltaFrame formats one chat.completion.chunk SSE frame carrying content.
func DeltaFrame(content string) string {
	raw, err := json.Marshal(openai.NewDeltaChunk("chatcmpl-test", "test-model", content))
	if err != nil {
		panic(err)
	}
	return "data: " + string(raw) + "\n\n"
}

// DoneFrame is the end-of-stream sentinel line.
const DoneFrame = "data: [DONE]\n\n"
