package genaistream

import "fmt"

// SessionState is the lifecycle state of a StreamSession.
//
//	Idle -> Connecting -> Streaming -> {Done | Errored | Cancelled}
//
// Connecting may also move straight to Errored or Cancelled, and Idle to Cancelled.
// Terminal states are absorbing.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateStreaming
	StateDone
	StateErrored
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal returns true for Done, Errored and Cancelled.
func (s SessionState) IsTerminal() bool {
	return s == StateDone || s == StateErrored || s == StateCancelled
}

// CanTransition reports whether moving from s to next is a legal step.
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case StateIdle:
		return next == StateConnecting || next == StateCancelled
	case StateConnecting:
		return next == StateStreaming || next.IsTerminal()
	case StateStreaming:
		return next.IsTerminal()
	default:
		return false
	}
}
