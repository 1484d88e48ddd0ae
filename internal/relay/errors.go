package relay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind classifies relay failures.
type ErrorKind int

const (
	// KindHandshake: the body could not be inspected for streaming intent.
	// Never fatal; the request falls back to the unary path.
	KindHandshake ErrorKind = iota + 1
	// KindTransport: the network call failed before a response was obtained.
	KindTransport
	// KindStatus: a response arrived with a non-2xx status.
	KindStatus
	// KindBodyUnavailable: the response carried no readable body.
	KindBodyUnavailable
	// KindFrameParse: a single SSE line was not valid JSON. Recovered locally.
	KindFrameParse
	// KindChannel: the message channel itself failed or was lost.
	KindChannel
	// KindRemote: the executor reported a failure that could not be classified.
	KindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindBodyUnavailable:
		return "body_unavailable"
	case KindFrameParse:
		return "frame_parse"
	case KindChannel:
		return "channel"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is the typed failure surfaced to relay callers.
type Error struct {
	Kind    ErrorKind
	Status  int // set for KindStatus
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "relay " + e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind so callers can write
// errors.Is(err, relay.ErrChannelClosed).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message && t.Status == 0 && t.Err == nil
}

var (
	// ErrChannelClosed is reported when a port closes before a Done or Error
	// envelope was observed.
	ErrChannelClosed = &Error{Kind: KindChannel, Message: "channel closed without done or error"}

	// ErrNotStreaming is returned by Stream for a request the negotiator
	// classifies as unary.
	ErrNotStreaming = errors.New("relay: request does not ask for streaming")
	// ErrExpectedStream is returned when the executor did not answer the
	// handshake with the streaming sentinel.
	ErrExpectedStream = errors.New("relay: expected streaming response")
	// ErrStreamingRequest is returned by Fetch for a request that must stream.
	ErrStreamingRequest = errors.New("relay: request asks for streaming; use Stream")
	// ErrStreamClosed is returned by Next after the consumer closed the stream.
	ErrStreamClosed = errors.New("relay: stream closed")
	// ErrConcurrentNext is returned when a second Next call is made while one
	// is still waiting.
	ErrConcurrentNext = errors.New("relay: concurrent Next calls")
)

const (
	statusFailurePrefix = "Request failed with status "
	noBodyMessage       = "No response body"
)

// StatusFailure builds the executor message for a non-2xx upstream response.
func StatusFailure(status int) *Error {
	return &Error{Kind: KindStatus, Status: status, Message: statusFailurePrefix + strconv.Itoa(status)}
}

// BodyUnavailable builds the executor message for a response without body.
func BodyUnavailable() *Error {
	return &Error{Kind: KindBodyUnavailable, Message: noBodyMessage}
}

// Transport wraps a failed network call.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// ParseRemote maps an Error envelope message back to a typed error. The wire
// format carries only text, so known executor messages are recognised by
// their fixed wording.
func ParseRemote(message string) *Error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "Unknown error occurred"
	}
	if rest, ok := strings.CutPrefix(msg, statusFailurePrefix); ok {
		if code, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			return &Error{Kind: KindStatus, Status: code, Message: msg}
		}
	}
	if msg == noBodyMessage {
		return &Error{Kind: KindBodyUnavailable, Message: msg}
	}
	return &Error{Kind: KindRemote, Message: msg}
}

// KindOf returns the kind of a relay error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
