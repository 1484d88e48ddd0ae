package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// StreamNamespace is the port name reserved for streaming proxies.
const StreamNamespace = "proxy-stream"

// OutboundRequest is a fully-formed HTTP request the Requester wants executed.
// It is treated as immutable once submitted; use Clone before handing it to
// another context.
type OutboundRequest struct {
	TargetURL string            `json:"targetUrl"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
}

// Clone returns a deep copy of the request.
func (r OutboundRequest) Clone() OutboundRequest {
	out := r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// EffectiveMethod returns the upper-cased method, defaulting to GET.
func (r OutboundRequest) EffectiveMethod() string {
	m := strings.ToUpper(strings.TrimSpace(r.Method))
	if m == "" {
		return http.MethodGet
	}
	return m
}

// Validate checks that the target is an absolute http(s) URL.
func (r OutboundRequest) Validate() error {
	if strings.TrimSpace(r.TargetURL) == "" {
		return fmt.Errorf("target url required")
	}
	u, err := url.Parse(r.TargetURL)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("target url %q has no host", r.TargetURL)
	}
	return nil
}

// Target returns scheme://host/path without query or fragment, suitable for
// logs and the ledger.
func (r OutboundRequest) Target() string {
	u, err := url.Parse(r.TargetURL)
	if err != nil || u.Host == "" {
		return r.TargetURL
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// Mode selects the delivery contract for a request.
type Mode string

const (
	ModeUnary  Mode = "unary"
	ModeStream Mode = "stream"
)

// Negotiate classifies a request as streaming or unary by inspecting the
// boolean "stream" field of its JSON body. A missing body, a missing or
// non-boolean field, or a body that is not JSON all select ModeUnary.
func Negotiate(req OutboundRequest) Mode {
	mode, _ := NegotiateDetail(req)
	return mode
}

// NegotiateDetail is Negotiate that also reports the handshake error that
// forced the unary default, if any.
func NegotiateDetail(req OutboundRequest) (Mode, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return ModeUnary, nil
	}
	var probe struct {
		Stream *bool `json:"stream"`
	}
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return ModeUnary, &Error{Kind: KindHandshake, Message: "body is not a JSON object", Err: err}
	}
	if probe.Stream != nil && *probe.Stream {
		return ModeStream, nil
	}
	return ModeUnary, nil
}

// WantsStream reports whether the request must use the streaming path.
func WantsStream(req OutboundRequest) bool {
	return Negotiate(req) == ModeStream
}
