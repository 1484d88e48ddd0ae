// Package executor performs relayed HTTP requests on behalf of a requester
// and answers either with a single value or with a stream of token envelopes
// over a port.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/ledger"
	"github.com/tokligence/tokligence-relay/internal/metrics"
	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/relay"
)

// DefaultReadBufferSize bounds a single upstream body read.
const DefaultReadBufferSize = 32 * 1024

// HTTPClient is the subset of *http.Client the executor needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder persists one ledger entry per exchange.
type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

// Config wires the executor's collaborators. Every field is optional.
type Config struct {
	HTTPClient     HTTPClient
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	Ledger         Recorder
	ReadBufferSize int
}

// Executor is the privileged side of the relay.
type Executor struct {
	client  HTTPClient
	logger  *zap.Logger
	metrics *metrics.Collector
	ledger  Recorder
	bufSize int

	// streams counts ServeStream calls still running, so their ledger rows
	// are written before the stores close.
	streams sync.WaitGroup
}

// New returns an executor. A nil HTTPClient uses a client without timeout.
func New(cfg Config) *Executor {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	return &Executor{
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		ledger:  cfg.Ledger,
		bufSize: cfg.ReadBufferSize,
	}
}

// HandleOneShot answers a one-shot message: the streaming sentinel for a
// request that asks for streaming, otherwise the unary result.
func (e *Executor) HandleOneShot(ctx context.Context, req relay.OutboundRequest) relay.Reply {
	mode, err := relay.NegotiateDetail(req)
	if err != nil {
		e.logger.Debug("stream negotiation fell back to unary", zap.String("target", req.Target()), zap.Error(err))
	}
	if mode == relay.ModeStream {
		return relay.UsePortReply()
	}
	return e.Unary(ctx, req)
}

// Unary performs req, buffers the whole body and replies with it parsed as
// JSON. A transport failure or a body that is not JSON yields ok=false.
func (e *Executor) Unary(ctx context.Context, req relay.OutboundRequest) relay.Reply {
	start := time.Now()
	entry := ledger.Entry{Mode: string(relay.ModeUnary), Method: req.EffectiveMethod(), Target: req.Target()}

	reply := func() relay.Reply {
		resp, err := e.do(ctx, req)
		if err != nil {
			entry.Error = err.Error()
			return relay.ErrorReply(err)
		}
		defer resp.Body.Close()
		entry.Status = resp.StatusCode

		body, err := io.ReadAll(resp.Body)
		entry.Bytes = int64(len(body))
		if err != nil {
			err = relay.Transport(fmt.Errorf("read response body: %w", err))
			entry.Error = err.Error()
			return relay.ErrorReply(err)
		}
		if !json.Valid(body) {
			err = fmt.Errorf("response from %s is not valid JSON (status %d)", req.Target(), resp.StatusCode)
			entry.Error = err.Error()
			r := relay.ErrorReply(err)
			r.Status = resp.StatusCode
			return r
		}
		r := relay.ValueReply(resp.StatusCode, json.RawMessage(body))
		if !r.OK {
			entry.Error = relay.StatusFailure(resp.StatusCode).Error()
		}
		return r
	}()

	entry.Outcome = ledger.OutcomeOK
	if !reply.OK {
		entry.Outcome = ledger.OutcomeFailed
	}
	e.finish(ctx, entry, start)
	e.logger.Debug("unary request completed",
		zap.String("target", entry.Target),
		zap.Int("status", entry.Status),
		zap.Bool("ok", reply.OK),
		zap.Duration("elapsed", time.Since(start)))
	return reply
}

// ServeStream handles one streaming port: it waits for the initiating
// request, relays the upstream body as Chunk envelopes and always ends the
// channel with exactly one Done or Error envelope before closing it. The
// returned error is the failure reported to the peer, or nil after Done.
func (e *Executor) ServeStream(ctx context.Context, p port.Port) error {
	e.streams.Add(1)
	defer e.streams.Done()
	return e.serveStream(ctx, p)
}

func (e *Executor) serveStream(ctx context.Context, p port.Port) error {
	defer p.Close()
	if p.Name() != relay.StreamNamespace {
		e.logger.Debug("ignoring port outside the stream namespace", zap.String("port", p.Name()))
		return fmt.Errorf("port %q is not a stream port", p.Name())
	}

	var req relay.OutboundRequest
	if err := p.Receive(ctx, &req); err != nil {
		if errors.Is(err, port.ErrClosed) || ctx.Err() != nil {
			e.logger.Debug("stream port closed before a request arrived", zap.Error(err))
			return &relay.Error{Kind: relay.KindChannel, Message: "no request received", Err: err}
		}
		e.logger.Warn("malformed stream request", zap.Error(err))
		failure := &relay.Error{Kind: relay.KindChannel, Message: "invalid stream request", Err: err}
		_ = p.Send(ctx, relay.Failure(failure.Error()))
		return failure
	}

	s := &stream{
		exec:    e,
		port:    p,
		req:     req,
		logger:  e.logger.With(zap.String("target", req.Target()), zap.String("port_id", p.ID())),
		started: time.Now(),
	}
	e.metrics.StreamStarted()
	defer e.metrics.StreamEnded()
	return s.run(ctx)
}

// RoundTrip implements the one-shot channel for in-process requesters.
func (e *Executor) RoundTrip(ctx context.Context, req relay.OutboundRequest) (relay.Reply, error) {
	return e.HandleOneShot(ctx, req.Clone()), nil
}

// OpenPort implements the persistent channel for in-process requesters. The
// executor end runs detached from ctx; the requester ends it with Close.
func (e *Executor) OpenPort(ctx context.Context, name string) (port.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	local, remote := port.Pipe(name)
	e.streams.Add(1)
	go func() {
		defer e.streams.Done()
		_ = e.serveStream(context.WithoutCancel(ctx), remote)
	}()
	return local, nil
}

// Wait blocks until every stream served so far has finished and recorded its
// ledger entry, or ctx ends. Callers stop opening ports before calling it.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for streams: %w", ctx.Err())
	}
}

func (e *Executor) do(ctx context.Context, req relay.OutboundRequest) (*http.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, relay.Transport(err)
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.EffectiveMethod(), req.TargetURL, body)
	if err != nil {
		return nil, relay.Transport(err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, relay.Transport(err)
	}
	return resp, nil
}

func (e *Executor) finish(ctx context.Context, entry ledger.Entry, start time.Time) {
	elapsed := time.Since(start)
	entry.DurationMS = elapsed.Milliseconds()
	e.metrics.RecordExchange(entry.Mode, entry.Outcome == ledger.OutcomeOK, entry.Bytes, elapsed)
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("ledger record failed", zap.String("target", entry.Target), zap.Error(err))
	}
}
