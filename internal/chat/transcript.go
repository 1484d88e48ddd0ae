package chat

import (
	"context"
	"strings"

	"github.com/tokligence/tokligence-relay/internal/requester"
)

// Outcome is how a transcript ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeComplete
	// OutcomeFailed means the stream failed before any token arrived.
	OutcomeFailed
	// OutcomeTruncated means some tokens arrived and then the stream failed.
	OutcomeTruncated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeFailed:
		return "failed"
	case OutcomeTruncated:
		return "truncated"
	default:
		return "pending"
	}
}

// Transcript accumulates the tokens of one answer.
type Transcript struct {
	// OnToken, when set, sees every token as it is appended.
	OnToken func(token string)

	text    strings.Builder
	tokens  int
	outcome Outcome
	err     error
}

// Consume drains ts into the transcript and returns the stream's failure, if
// any. ts is closed on return.
func (t *Transcript) Consume(ctx context.Context, ts *requester.TokenStream) error {
	for tok, err := range ts.All(ctx) {
		if err != nil {
			t.Fail(err)
			return err
		}
		t.Append(tok)
	}
	t.outcome = OutcomeComplete
	return nil
}

// Append adds one token.
func (t *Transcript) Append(token string) {
	t.text.WriteString(token)
	t.tokens++
	if t.OnToken != nil {
		t.OnToken(token)
	}
}

// Fail ends the transcript with err.
func (t *Transcript) Fail(err error) {
	t.err = err
	if t.tokens == 0 {
		t.outcome = OutcomeFailed
	} else {
		t.outcome = OutcomeTruncated
	}
}

func (t *Transcript) Text() string     { return t.text.String() }
func (t *Transcript) Tokens() int      { return t.tokens }
func (t *Transcript) Outcome() Outcome { return t.outcome }
func (t *Transcript) Err() error       { return t.err }

// Render returns the text to show the user. A failure with no tokens shows
// only the error; a truncated answer keeps its text and marks the cut.
func (t *Transcript) Render() string {
	switch t.outcome {
	case OutcomeFailed:
		return "Error: " + t.err.Error()
	case OutcomeTruncated:
		return t.text.String() + "\n\n[response interrupted: " + t.err.Error() + "]"
	default:
		return t.text.String()
	}
}
