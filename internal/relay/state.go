package relay

import "sync"

// ChannelState is the lifecycle of one streaming port.
type ChannelState int

const (
	StateOpen ChannelState = iota
	StateSucceeded
	StateFailed
)

func (s ChannelState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle guards the Open -> Succeeded|Failed transition of a channel so
// exactly one terminal outcome is ever recorded. The zero value is Open.
type Lifecycle struct {
	mu    sync.Mutex
	state ChannelState
	err   error
}

// State returns the current state.
func (l *Lifecycle) State() ChannelState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the failure recorded by Fail, if any.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Succeed moves Open to Succeeded. It returns false if the channel was
// already terminated.
func (l *Lifecycle) Succeed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return false
	}
	l.state = StateSucceeded
	return true
}

// Fail moves Open to Failed with err. It returns false if the channel was
// already terminated.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return false
	}
	l.state = StateFailed
	l.err = err
	return true
}
