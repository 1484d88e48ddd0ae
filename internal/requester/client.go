// Package requester is the restricted side of the relay: it never touches the
// network itself and asks an executor, through a Transport, to perform
// requests for it.
package requester

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/relay"
)

// Transport connects a requester to an executor: RoundTrip is the one-shot
// channel and OpenPort opens a persistent channel by name.
type Transport interface {
	RoundTrip(ctx context.Context, req relay.OutboundRequest) (relay.Reply, error)
	OpenPort(ctx context.Context, name string) (port.Port, error)
}

// Options configures a Client.
type Options struct {
	Logger *zap.Logger
}

// Client submits requests to an executor.
type Client struct {
	transport Transport
	logger    *zap.Logger
}

// New returns a client over transport.
func New(transport Transport, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: transport, logger: logger}
}

// Result is the outcome of Do: Data for a unary request, Tokens for a
// streaming one.
type Result struct {
	Data   json.RawMessage
	Tokens *TokenStream
}

// Streaming reports whether the result carries a token stream.
func (r *Result) Streaming() bool { return r.Tokens != nil }

// Do routes req to Fetch or Stream according to its body.
func (c *Client) Do(ctx context.Context, req relay.OutboundRequest) (*Result, error) {
	if relay.WantsStream(req) {
		ts, err := c.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Tokens: ts}, nil
	}
	data, err := c.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data}, nil
}

// Fetch performs a unary request in one round trip and returns the parsed
// response body. A request that asks for streaming is refused without any
// channel activity.
func (c *Client) Fetch(ctx context.Context, req relay.OutboundRequest) (json.RawMessage, error) {
	if relay.WantsStream(req) {
		return nil, relay.ErrStreamingRequest
	}
	reply, err := c.transport.RoundTrip(ctx, req.Clone())
	if err != nil {
		return nil, &relay.Error{Kind: relay.KindChannel, Message: "one-shot channel failed", Err: err}
	}
	if reply.UsePort() {
		return nil, &relay.Error{Kind: relay.KindChannel, Message: "executor asked for a port on a unary request"}
	}
	if !reply.OK {
		if reply.Error != "" {
			return nil, relay.ParseRemote(reply.Error)
		}
		e := &relay.Error{Kind: relay.KindRemote, Message: "Request failed"}
		if reply.Status != 0 {
			e.Kind = relay.KindStatus
			e.Status = reply.Status
		}
		return nil, e
	}
	return reply.Data, nil
}

// Stream starts a streaming request and returns its tokens. The caller must
// drain the stream or Close it.
func (c *Client) Stream(ctx context.Context, req relay.OutboundRequest) (*TokenStream, error) {
	mode, herr := relay.NegotiateDetail(req)
	if herr != nil {
		c.logger.Debug("stream negotiation fell back to unary", zap.String("target", req.Target()), zap.Error(herr))
	}
	if mode != relay.ModeStream {
		return nil, relay.ErrNotStreaming
	}

	reply, err := c.transport.RoundTrip(ctx, req.Clone())
	if err != nil {
		return nil, &relay.Error{Kind: relay.KindChannel, Message: "one-shot channel failed", Err: err}
	}
	if !reply.UsePort() {
		return nil, relay.ErrExpectedStream
	}

	p, err := c.transport.OpenPort(ctx, relay.StreamNamespace)
	if err != nil {
		return nil, &relay.Error{Kind: relay.KindChannel, Message: "open stream port", Err: err}
	}
	if err := p.Send(ctx, req.Clone()); err != nil {
		_ = p.Close()
		return nil, &relay.Error{Kind: relay.KindChannel, Message: "send stream request", Err: err}
	}
	c.logger.Debug("stream opened", zap.String("target", req.Target()))
	return newTokenStream(ctx, p, c.logger), nil
}
