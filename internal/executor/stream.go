package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/ledger"
	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/sse"
)

// errPeerGone ends a stream whose requester stopped listening.
var errPeerGone = errors.New("requester closed the port")

type stream struct {
	exec    *Executor
	port    port.Port
	req     relay.OutboundRequest
	logger  *zap.Logger
	started time.Time

	life   relay.Lifecycle
	status int
	tokens int64
	bytes  int64
}

func (s *stream) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream relay panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = s.fail(ctx, fmt.Errorf("internal error: %v", r))
		}
		s.record(ctx)
	}()

	resp, err := s.exec.do(ctx, s.req)
	if err != nil {
		return s.fail(ctx, err)
	}
	defer resp.Body.Close()
	s.status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.fail(ctx, relay.StatusFailure(resp.StatusCode))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return s.fail(ctx, relay.BodyUnavailable())
	}

	dec := sse.NewDecoder(s.logger)
	defer func() { s.exec.metrics.RecordFrameErrors(dec.Skipped()) }()

	buf := make([]byte, s.exec.bufSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			s.bytes += int64(n)
			if err := s.emit(ctx, dec.Decode(buf[:n])); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return s.fail(ctx, relay.Transport(fmt.Errorf("read response body: %w", rerr)))
		}
	}
	if n := dec.Pending(); n > 0 {
		s.logger.Debug("body ended without a trailing newline", zap.Int("pending_bytes", n))
	}
	if err := s.emit(ctx, dec.Flush()); err != nil {
		return err
	}
	return s.succeed(ctx)
}

// emit sends one Chunk per token in order. A failed send means the peer is
// gone; the channel is marked failed without another envelope.
func (s *stream) emit(ctx context.Context, tokens []string) error {
	for _, tok := range tokens {
		if err := s.port.Send(ctx, relay.Chunk(tok)); err != nil {
			s.abandon(err)
			return errPeerGone
		}
		s.tokens++
		s.exec.metrics.RecordTokens(1)
	}
	return nil
}

func (s *stream) succeed(ctx context.Context) error {
	if !s.life.Succeed() {
		return s.life.Err()
	}
	if err := s.port.Send(ctx, relay.Done()); err != nil {
		s.logger.Debug("done envelope not delivered", zap.Error(err))
	}
	return nil
}

func (s *stream) fail(ctx context.Context, cause error) error {
	if !s.life.Fail(cause) {
		return s.life.Err()
	}
	s.logger.Info("stream relay failed", zap.Error(cause))
	if err := s.port.Send(ctx, relay.Failure(cause.Error())); err != nil {
		s.logger.Debug("error envelope not delivered", zap.Error(err))
	}
	return cause
}

func (s *stream) abandon(sendErr error) {
	if s.life.Fail(errPeerGone) {
		s.logger.Debug("requester went away mid-stream", zap.Error(sendErr), zap.Int64("tokens", s.tokens))
	}
}

func (s *stream) record(ctx context.Context) {
	entry := ledger.Entry{
		ID:      s.port.ID(),
		Mode:    string(relay.ModeStream),
		Method:  s.req.EffectiveMethod(),
		Target:  s.req.Target(),
		Status:  s.status,
		Tokens:  s.tokens,
		Bytes:   s.bytes,
		Outcome: ledger.OutcomeOK,
	}
	if s.life.State() != relay.StateSucceeded {
		entry.Outcome = ledger.OutcomeFailed
		if err := s.life.Err(); err != nil {
			entry.Error = err.Error()
		}
	}
	s.exec.finish(ctx, entry, s.started)
}
