package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiate(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Mode
	}{
		{"stream true", `{"model":"m","stream":true}`, ModeStream},
		{"stream false", `{"model":"m","stream":false}`, ModeUnary},
		{"missing field", `{"model":"m"}`, ModeUnary},
		{"empty body", ``, ModeUnary},
		{"not json", `model=m&stream=true`, ModeUnary},
		{"string flag", `{"stream":"true"}`, ModeUnary},
		{"array body", `[{"stream":true}]`, ModeUnary},
		{"null body", `null`, ModeUnary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Negotiate(OutboundRequest{TargetURL: "http://x", Body: tc.body}); got != tc.want {
				t.Fatalf("Negotiate(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestNegotiateDetailReportsHandshakeError(t *testing.T) {
	mode, err := NegotiateDetail(OutboundRequest{Body: "{not json"})
	assert.Equal(t, ModeUnary, mode)
	require.Error(t, err)
	assert.Equal(t, KindHandshake, KindOf(err))

	mode, err = NegotiateDetail(OutboundRequest{Body: `{"stream":true}`})
	assert.Equal(t, ModeStream, mode)
	assert.NoError(t, err)
}

func TestOutboundRequestHelpers(t *testing.T) {
	req := OutboundRequest{
		TargetURL: "https://api.example.com/v1/chat/completions?key=secret",
		Headers:   map[string]string{"Authorization": "Bearer k"},
	}
	assert.Equal(t, "GET", req.EffectiveMethod())
	assert.Equal(t, "https://api.example.com/v1/chat/completions", req.Target())
	require.NoError(t, req.Validate())

	clone := req.Clone()
	clone.Headers["Authorization"] = "changed"
	assert.Equal(t, "Bearer k", req.Headers["Authorization"])

	assert.Error(t, OutboundRequest{}.Validate())
	assert.Error(t, OutboundRequest{TargetURL: "ftp://host/file"}.Validate())
	assert.Error(t, OutboundRequest{TargetURL: "/relative"}.Validate())
}

func TestEnvelopeWireShape(t *testing.T) {
	cases := []struct {
		env  Envelope
		wire string
	}{
		{Chunk("Hi"), `{"chunk":"Hi"}`},
		{Chunk(""), `{"chunk":""}`},
		{Done(), `{"done":true}`},
		{Failure("boom"), `{"error":"boom"}`},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.env)
		require.NoError(t, err)
		assert.JSONEq(t, tc.wire, string(raw))

		var back Envelope
		require.NoError(t, json.Unmarshal([]byte(tc.wire), &back))
		assert.Equal(t, tc.env, back)
	}
}

func TestEnvelopeRejectsAmbiguousMessages(t *testing.T) {
	for _, wire := range []string{
		`{}`,
		`{"chunk":"a","done":true}`,
		`{"chunk":"a","error":"b"}`,
		`{"done":false}`,
		`"chunk"`,
	} {
		var env Envelope
		assert.Error(t, json.Unmarshal([]byte(wire), &env), wire)
	}
	_, err := json.Marshal(Envelope{})
	assert.Error(t, err)
}

func TestEnvelopeTerminal(t *testing.T) {
	assert.False(t, Chunk("x").Terminal())
	assert.True(t, Done().Terminal())
	assert.True(t, Failure("x").Terminal())
}

func TestParseRemote(t *testing.T) {
	cases := []struct {
		message string
		kind    ErrorKind
		status  int
		text    string
	}{
		{"Request failed with status 500", KindStatus, 500, "Request failed with status 500"},
		{StatusFailure(404).Error(), KindStatus, 404, "Request failed with status 404"},
		{"No response body", KindBodyUnavailable, 0, "No response body"},
		{BodyUnavailable().Error(), KindBodyUnavailable, 0, "No response body"},
		{"dial tcp: connection refused", KindRemote, 0, "dial tcp: connection refused"},
		{"", KindRemote, 0, "Unknown error occurred"},
	}
	for _, tc := range cases {
		err := ParseRemote(tc.message)
		if err.Kind != tc.kind || err.Status != tc.status {
			t.Fatalf("ParseRemote(%q) kind=%v status=%d, want %v/%d", tc.message, err.Kind, err.Status, tc.kind, tc.status)
		}
		if err.Error() != tc.text {
			t.Fatalf("ParseRemote(%q) text %q, want %q", tc.message, err.Error(), tc.text)
		}
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := &Error{Kind: KindChannel, Message: ErrChannelClosed.Message}
	assert.True(t, errors.Is(wrapped, ErrChannelClosed))
	assert.False(t, errors.Is(StatusFailure(500), ErrChannelClosed))

	inner := errors.New("connection refused")
	te := Transport(inner)
	assert.True(t, errors.Is(te, inner))
	assert.Equal(t, KindTransport, KindOf(te))
	assert.Equal(t, ErrorKind(0), KindOf(inner))
}

func TestLifecycleSingleTerminal(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, StateOpen, l.State())
	assert.True(t, l.Succeed())
	assert.False(t, l.Fail(errors.New("late")))
	assert.False(t, l.Succeed())
	assert.Equal(t, StateSucceeded, l.State())
	assert.NoError(t, l.Err())

	var f Lifecycle
	boom := errors.New("boom")
	assert.True(t, f.Fail(boom))
	assert.False(t, f.Succeed())
	assert.Equal(t, StateFailed, f.State())
	assert.Equal(t, boom, f.Err())
}

func TestReplies(t *testing.T) {
	assert.True(t, UsePortReply().UsePort())
	r := ValueReply(201, json.RawMessage(`{"a":1}`))
	assert.True(t, r.OK)
	assert.False(t, ValueReply(502, nil).OK)
	assert.Equal(t, "Request failed", ErrorReply(nil).Error)
	assert.Equal(t, "x", ErrorReply(errors.New("x")).Error)

	raw, err := json.Marshal(UsePortReply())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"USE_PORT","ok":false}`, string(raw))
}
