// Package sse turns raw OpenAI-style server-sent-event bytes into text deltas.
//
// Upstream bodies are newline-delimited frames of the form
//
//	data: {"choices":[{"delta":{"content":"Hi"}}]}
//
// terminated by "data: [DONE]". Network reads split those frames at arbitrary
// byte offsets, so the decoder keeps the trailing partial line between calls.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/relay"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "data: [DONE]"
)

// Decoder extracts incremental text deltas from a byte stream. The only state
// it holds is the remainder of the last line that was not yet newline
// terminated. A Decoder belongs to a single stream and is not safe for
// concurrent use.
type Decoder struct {
	remainder []byte
	logger    *zap.Logger
	skipped   int
}

// NewDecoder returns a decoder that reports malformed lines to logger.
// A nil logger discards them.
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode consumes one raw chunk and returns the deltas of every line it
// completes, in order.
func (d *Decoder) Decode(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	data := chunk
	if len(d.remainder) > 0 {
		data = append(d.remainder, chunk...)
		d.remainder = nil
	}
	var tokens []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		if tok, ok := d.decodeLine(data[:idx]); ok {
			tokens = append(tokens, tok)
		}
		data = data[idx+1:]
	}
	if len(data) > 0 {
		d.remainder = append([]byte(nil), data...)
	}
	return tokens
}

// Flush decodes whatever is left once the body has ended, treating the
// remainder as a final unterminated line.
func (d *Decoder) Flush() []string {
	if len(d.remainder) == 0 {
		return nil
	}
	line := d.remainder
	d.remainder = nil
	if tok, ok := d.decodeLine(line); ok {
		return []string{tok}
	}
	return nil
}

// Pending returns the number of buffered bytes awaiting a newline.
func (d *Decoder) Pending() int { return len(d.remainder) }

// Skipped returns how many lines were dropped because they were not JSON.
func (d *Decoder) Skipped() int { return d.skipped }

func (d *Decoder) decodeLine(raw []byte) (string, bool) {
	line := strings.TrimSpace(string(raw))
	if line == "" || line == doneSentinel {
		return "", false
	}
	payload := line
	if rest, ok := strings.CutPrefix(line, dataPrefix); ok {
		payload = strings.TrimSpace(rest)
	}
	if payload == "" || payload == "[DONE]" {
		return "", false
	}
	content, err := ExtractDelta([]byte(payload))
	if err != nil {
		d.skipped++
		perr := &relay.Error{Kind: relay.KindFrameParse, Message: "invalid stream frame", Err: err}
		d.logger.Warn("skipping malformed stream line", zap.Error(perr), zap.Int("bytes", len(payload)))
		return "", false
	}
	if content == "" {
		return "", false
	}
	return content, true
}

// deltaFrame is the part of a chat.completion.chunk the relay needs.
type deltaFrame struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ExtractDelta decodes one frame payload and returns choices[0].delta.content.
// A frame without that field yields "" and no error; only invalid JSON (or a
// content value that is not a string) is an error.
func ExtractDelta(payload []byte) (string, error) {
	var frame deltaFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return "", err
	}
	if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == nil {
		return "", nil
	}
	return *frame.Choices[0].Delta.Content, nil
}
