// Package relay is the public entry point for embedding a relay requester.
package relay

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/client"
	"github.com/tokligence/tokligence-relay/internal/executor"
	internal "github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/requester"
)

type (
	OutboundRequest = internal.OutboundRequest
	Reply           = internal.Reply
	Error           = internal.Error
	ErrorKind       = internal.ErrorKind
	Mode            = internal.Mode
	Client          = requester.Client
	Result          = requester.Result
	TokenStream     = requester.TokenStream
)

var (
	ErrChannelClosed    = internal.ErrChannelClosed
	ErrNotStreaming     = internal.ErrNotStreaming
	ErrExpectedStream   = internal.ErrExpectedStream
	ErrStreamingRequest = internal.ErrStreamingRequest
	ErrStreamClosed     = internal.ErrStreamClosed
	ErrConcurrentNext   = internal.ErrConcurrentNext
)

// Negotiate reports whether req will be streamed.
func Negotiate(req OutboundRequest) Mode {
	return internal.Negotiate(req)
}

// NewRemote returns a client whose requests are executed by the relayd at
// endpoint.
func NewRemote(endpoint string, logger *zap.Logger) (*Client, error) {
	rc, err := client.NewRelayClient(endpoint, nil, logger)
	if err != nil {
		return nil, err
	}
	return requester.New(rc, requester.Options{Logger: logger}), nil
}

// NewLocal returns a client backed by an in-process executor using
// httpClient (nil means a default client).
func NewLocal(httpClient *http.Client, logger *zap.Logger) *Client {
	cfg := executor.Config{Logger: logger}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return requester.New(executor.New(cfg), requester.Options{Logger: logger})
}
