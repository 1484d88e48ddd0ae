package relay

import (
	"encoding/json"
	"fmt"
)

// EnvelopeKind tags a StreamEnvelope.
type EnvelopeKind int

const (
	EnvelopeChunk EnvelopeKind = iota + 1
	EnvelopeDone
	EnvelopeError
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeChunk:
		return "chunk"
	case EnvelopeDone:
		return "done"
	case EnvelopeError:
		return "error"
	default:
		return "invalid"
	}
}

// Envelope is the message carried from the executor to the requester over a
// streaming port. On the wire it is one of {"chunk":"..."}, {"done":true} or
// {"error":"..."}; the present field is the tag.
type Envelope struct {
	Kind EnvelopeKind
	// Text is the token for chunks and the message for errors.
	Text string
}

// Chunk builds a token envelope.
func Chunk(text string) Envelope { return Envelope{Kind: EnvelopeChunk, Text: text} }

// Done builds the success terminator.
func Done() Envelope { return Envelope{Kind: EnvelopeDone} }

// Failure builds the failure terminator.
func Failure(message string) Envelope { return Envelope{Kind: EnvelopeError, Text: message} }

// Terminal reports whether no further envelopes may follow this one.
func (e Envelope) Terminal() bool {
	return e.Kind == EnvelopeDone || e.Kind == EnvelopeError
}

type envelopeWire struct {
	Chunk *string `json:"chunk,omitempty"`
	Done  *bool   `json:"done,omitempty"`
	Error *string `json:"error,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	var w envelopeWire
	switch e.Kind {
	case EnvelopeChunk:
		text := e.Text
		w.Chunk = &text
	case EnvelopeDone:
		done := true
		w.Done = &done
	case EnvelopeError:
		msg := e.Text
		w.Error = &msg
	default:
		return nil, fmt.Errorf("marshal envelope: invalid kind %d", e.Kind)
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	present := 0
	if w.Chunk != nil {
		present++
		*e = Chunk(*w.Chunk)
	}
	if w.Done != nil {
		present++
		if !*w.Done {
			return fmt.Errorf("decode envelope: done must be true")
		}
		*e = Done()
	}
	if w.Error != nil {
		present++
		*e = Failure(*w.Error)
	}
	if present != 1 {
		return fmt.Errorf("decode envelope: expected exactly one of chunk, done, error; got %d", present)
	}
	return nil
}
