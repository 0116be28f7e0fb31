package engine

// Session is this bridge's single logical AMQP session per connection
// (spec.md §2.3/§4.3 layer above this one tracks Uninitialized/Active/
// Closed; this engine-level Session only tracks the begun/ended wire
// state and link bookkeeping by handle).
type Session struct {
	Connection *Connection
	Channel    uint16
	LocalOpen  bool
	Closed     bool

	nextHandle   uint32
	nextDelivery uint32

	links         map[uint32]interface{} // *Sender or *Receiver, keyed by local handle
	linksByName   map[string]interface{} // *Sender or *Receiver, keyed by link name
	remoteHandles map[uint32]interface{} // *Sender or *Receiver, keyed by the PEER's handle for that link
}

// NewSession allocates a session on the next free channel (always 0; this
// bridge never needs more than one session per connection).
func NewSession(conn *Connection) *Session {
	return &Session{
		Connection:    conn,
		Channel:       0,
		links:         make(map[uint32]interface{}),
		linksByName:   make(map[string]interface{}),
		remoteHandles: make(map[uint32]interface{}),
	}
}

// Open performs the session's local-open transition and queues a Begin.
func (s *Session) Open() {
	s.LocalOpen = true
	s.Connection.Collector.put(Event{Type: EventSessionInit, Connection: s.Connection, Session: s})
	if s.Connection.Transport != nil {
		s.Connection.Transport.queueBegin(s)
	}
	s.Connection.Collector.put(Event{Type: EventSessionLocalOpen, Connection: s.Connection, Session: s})
}

// Close performs the session's local-close transition.
func (s *Session) Close() {
	s.Closed = true
	s.Connection.Collector.put(Event{Type: EventSessionLocalClose, Connection: s.Connection, Session: s})
	if s.Connection.Transport != nil {
		s.Connection.Transport.queueEnd(s, nil)
	}
}

func (s *Session) allocHandle() uint32 {
	h := s.nextHandle
	s.nextHandle++
	return h
}

func (s *Session) allocDeliveryID() uint32 {
	id := s.nextDelivery
	s.nextDelivery++
	return id
}
