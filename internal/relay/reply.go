package relay

import "encoding/json"

// ReplyUsePort is the one-shot reply type telling the requester to open a
// streaming port instead of waiting for a value.
const ReplyUsePort = "USE_PORT"

// Reply is the one-shot channel answer from the executor.
type Reply struct {
	Type  string          `json:"type,omitempty"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	// Status is the upstream HTTP status when one was received.
	Status int `json:"status,omitempty"`
}

// UsePort reports whether the reply is the streaming sentinel.
func (r Reply) UsePort() bool { return r.Type == ReplyUsePort }

// UsePortReply returns the streaming sentinel.
func UsePortReply() Reply { return Reply{Type: ReplyUsePort} }

// ValueReply wraps a parsed response body. OK mirrors whether the upstream
// status was 2xx.
func ValueReply(status int, data json.RawMessage) Reply {
	return Reply{OK: status >= 200 && status < 300, Data: data, Status: status}
}

// ErrorReply reports a failure on the unary path.
func ErrorReply(err error) Reply {
	msg := "Request failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Reply{OK: false, Error: msg}
}
