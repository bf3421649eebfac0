package session

import (
	"errors"
	"fmt"
)

// State is the handshake state of one connection.
type State uint8

const (
	// StateIdle: nothing sent or received yet.
	StateIdle State = iota

	// StateHandshakeSent: the initiator sent its handshake and awaits the reply.
	StateHandshakeSent

	// StateHandshakeVerified: the peer's handshake passed every check.
	StateHandshakeVerified

	// StateReady: both handshakes exchanged; routed messages may flow.
	StateReady

	// StateRejected: the peer's handshake failed a check. Terminal.
	StateRejected

	// StateClosed: the connection is gone.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHandshakeSent:
		return "HANDSHAKE_SENT"
	case StateHandshakeVerified:
		return "HANDSHAKE_VERIFIED"
	case StateReady:
		return "READY"
	case StateRejected:
		return "REJECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// Terminal reports whether no further handshake progress is possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateClosed
}

// ErrInvalidTransition is returned for an operation not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

var validTransitions = map[State][]State{
	StateIdle:              {StateHandshakeSent, StateHandshakeVerified, StateRejected, StateClosed},
	StateHandshakeSent:     {StateHandshakeVerified, StateRejected, StateClosed},
	StateHandshakeVerified: {StateReady, StateClosed},
	StateReady:             {StateClosed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
