package requester

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/relay"
)

// TokenStream is the lazy, single-pass sequence of tokens of one streaming
// request. Tokens arrive in upstream order; a failure is reported only after
// every token delivered before it. Next must not be called concurrently.
type TokenStream struct {
	port   port.Port
	box    *mailbox
	logger *zap.Logger
	life   relay.Lifecycle

	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	listening chan struct{}
}

func newTokenStream(ctx context.Context, p port.Port, logger *zap.Logger) *TokenStream {
	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &TokenStream{
		port:      p,
		box:       newMailbox(),
		logger:    logger,
		cancel:    cancel,
		listening: make(chan struct{}),
	}
	go s.listen(listenCtx)
	return s
}

// Next returns the next token. It returns io.EOF once the stream completed,
// the stream's failure after all earlier tokens, ErrStreamClosed after Close,
// or ctx.Err() when ctx ends first. Cancellation never drops a token that was
// already handed to the waiting call.
func (s *TokenStream) Next(ctx context.Context) (string, error) {
	if s.closed.Load() {
		return "", relay.ErrStreamClosed
	}
	return s.box.take(ctx)
}

// All returns the remaining tokens as a range-over-func sequence. Iteration
// stops after the first error; breaking out of the loop closes the stream.
func (s *TokenStream) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for {
			tok, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// Collect drains the stream and returns every token, plus the failure if the
// stream did not complete.
func (s *TokenStream) Collect(ctx context.Context) ([]string, error) {
	var out []string
	for tok, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, tok)
	}
	return out, nil
}

// State reports the channel lifecycle as seen by the requester.
func (s *TokenStream) State() relay.ChannelState {
	return s.life.State()
}

// Close abandons the stream and releases the port. It is idempotent and safe
// to call after the stream ended on its own.
func (s *TokenStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.life.Fail(relay.ErrStreamClosed)
		s.box.finish(relay.ErrStreamClosed)
		s.cancel()
		err = s.port.Close()
	})
	return err
}

func (s *TokenStream) listen(ctx context.Context) {
	defer close(s.listening)
	defer s.port.Close()
	for {
		var env relay.Envelope
		err := s.port.Receive(ctx, &env)
		if err != nil {
			if s.closed.Load() {
				return
			}
			var failure error = relay.ErrChannelClosed
			if !errors.Is(err, port.ErrClosed) {
				failure = &relay.Error{Kind: relay.KindChannel, Message: "channel failed", Err: err}
			}
			s.logger.Debug("stream channel ended without terminal envelope", zap.Error(err))
			s.terminate(failure)
			return
		}
		switch env.Kind {
		case relay.EnvelopeChunk:
			s.box.push(env.Text)
		case relay.EnvelopeDone:
			s.terminate(nil)
			return
		case relay.EnvelopeError:
			s.terminate(relay.ParseRemote(env.Text))
			return
		}
	}
}

func (s *TokenStream) terminate(err error) {
	if err == nil {
		s.life.Succeed()
	} else {
		s.life.Fail(err)
	}
	s.box.finish(err)
}
