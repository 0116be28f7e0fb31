package amqpbridge

import "sync"

// MessageStatus is a SendableMessage's terminal-or-not lifecycle state
// (spec.md §3).
type MessageStatus int

const (
	StatusUnsent MessageStatus = iota
	StatusSent
	StatusAcknowledged
	StatusRejected
)

func (s MessageStatus) String() string {
	switch s {
	case StatusUnsent:
		return "Unsent"
	case StatusSent:
		return "Sent"
	case StatusAcknowledged:
		return "Acknowledged"
	case StatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

func (s MessageStatus) terminal() bool {
	return s == StatusAcknowledged || s == StatusRejected
}

// SendableMessage is an outbound application message (spec.md §3). Topic
// and Payload are set by the caller before it is handed to
// TransportWriteMessage; Buf, Status and the completion bookkeeping are
// owned by the state machine from that point on.
type SendableMessage struct {
	Topic                  string
	Payload                []byte
	ApplicationProperties  map[string]interface{}

	// OnComplete, if set, is invoked exactly once when the message reaches
	// a terminal status (spec.md §3: "fires a completion hook exactly
	// once"). It must not block — the state machine is single-threaded
	// per connection (spec.md §5).
	OnComplete func(MessageStatus)

	mu       sync.Mutex
	buf      []byte
	status   MessageStatus
	complete bool
	released bool
}

// NewSendableMessage constructs a message ready for TransportWriteMessage.
func NewSendableMessage(topic string, payload []byte, props map[string]interface{}) *SendableMessage {
	return &SendableMessage{Topic: topic, Payload: payload, ApplicationProperties: props}
}

// Status reports the message's current lifecycle status.
func (m *SendableMessage) Status() MessageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *SendableMessage) encodedBuf() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf
}

func (m *SendableMessage) setBuf(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = b
}

func (m *SendableMessage) setStatus(s MessageStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// doComplete performs the idempotent terminal transition described in
// spec.md §3: the first call wins, every later call (even with a
// different status) is a no-op, and the completion hook fires exactly
// once.
func (m *SendableMessage) doComplete(status MessageStatus) {
	m.mu.Lock()
	if m.complete {
		m.mu.Unlock()
		return
	}
	m.complete = true
	m.status = status
	hook := m.OnComplete
	m.mu.Unlock()
	if hook != nil {
		hook(status)
	}
}

// release drops the message's encoded-buffer reference. Idempotent
// (spec.md §3). The SendableMessage itself still lives in unackedQueue
// after release, per spec.md §4.5.
func (m *SendableMessage) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return
	}
	m.released = true
	m.buf = nil
}

// Endpoint is a host/port pair, used for both local and remote addresses
// on a ReceivedMessage.
type Endpoint struct {
	Host string
	Port int
}

// ReceivedMessage is an inbound application message synthesized by the
// delivery handler (spec.md §3).
type ReceivedMessage struct {
	Payload               []byte
	SourceAddress         string
	RemoteLegalName       string
	RemoteEndpoint        Endpoint
	LocalLegalName        string
	LocalEndpoint         Endpoint
	ApplicationProperties map[string]interface{}

	// Handle opaquely identifies the delivery for later settlement by an
	// upstream caller (spec.md §3). It is never inspected by this
	// package's own callers beyond passing it back to SettleReceived.
	Handle interface{}
}

// ValidatedUserKey is the application-properties key under which the
// authenticated peer identity is conveyed in both directions (spec.md §6,
// §9; SPEC_FULL.md Open Questions decision 3).
const ValidatedUserKey = "_AMQ_VALIDATED_USER"
