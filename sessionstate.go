package amqpbridge

import "github.com/corda-net/amqp-bridge/internal/engine"

// SessionStateValue is the three-value state described in spec.md §4.3.
type SessionStateValue int

const (
	SessionUninitialized SessionStateValue = iota
	SessionActive
	SessionClosed
)

func (v SessionStateValue) String() string {
	switch v {
	case SessionUninitialized:
		return "Uninitialized"
	case SessionActive:
		return "Active"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SessionState guards the single logical AMQP session per spec.md §2.3 and
// §4.3: Uninitialized -> Active on first local open, Active -> Closed on
// close; never backwards (P6, spec.md §8).
type SessionState struct {
	value   SessionStateValue
	session *engine.Session
}

// Init performs the Uninitialized -> Active transition. Calling it in any
// other state leaves the state unchanged, so Closed never returns to
// Active (P6).
func (s *SessionState) Init(session *engine.Session) {
	if s.value != SessionUninitialized {
		return
	}
	s.session = session
	s.value = SessionActive
}

// Close performs the Active -> Closed transition. Idempotent from Closed.
func (s *SessionState) Close() {
	if s.value == SessionActive {
		s.session = nil
	}
	s.value = SessionClosed
}

// Value reports the current state.
func (s *SessionState) Value() SessionStateValue { return s.value }

// Session returns the underlying engine session, or nil outside Active.
func (s *SessionState) Session() *engine.Session { return s.session }
