package engine

import "sync/atomic"

var nextConnID int64

// Connection is this bridge's stand-in for a proton connection object: it
// owns a single Transport, a single Session (spec.md scopes the state
// machine to one logical session per connection) and the Collector that
// every event flows through.
type Connection struct {
	// ID is an arena-style identity used by the orchestrator to discard
	// stale events that reference a connection it no longer owns (design
	// note 9), instead of relying on Go pointer-equality across a freed
	// object.
	ID int64

	ContainerID string
	ServerMode  bool

	LocalOpen bool
	Final     bool

	Transport *Transport
	Session   *Session
	Collector *Collector

	// Context stashes the caller's socket-channel handle the way proton
	// uses connection.context; the state machine is the only reader.
	Context interface{}
}

// NewConnection allocates a Connection with a fresh collector and identity.
func NewConnection(containerID string, serverMode bool) *Connection {
	return &Connection{
		ID:          atomic.AddInt64(&nextConnID, 1),
		ContainerID: containerID,
		ServerMode:  serverMode,
		Collector:   &Collector{},
	}
}

// Open performs the connection's local-open transition: emits
// connection-init (if this is the first call) and connection-local-open,
// and queues an Open performative for the peer. The client calls it at
// construction; the server calls it when the client's Open arrives.
func (c *Connection) Open() {
	if !c.LocalOpen {
		c.Collector.put(Event{Type: EventConnectionInit, Connection: c})
	}
	c.LocalOpen = true
	if c.Transport != nil {
		c.Transport.queueOpen(c)
	}
	c.Collector.put(Event{Type: EventConnectionLocalOpen, Connection: c})
}

// Close performs the connection's local-close transition.
func (c *Connection) Close() {
	c.Collector.put(Event{Type: EventConnectionLocalClose, Connection: c})
}

// Unbind detaches the transport and emits connection-unbound.
func (c *Connection) Unbind() {
	c.Collector.put(Event{Type: EventConnectionUnbound, Connection: c})
}

// finalize marks the connection final and emits connection-final; called
// by Transport.MarkClosed once both transport halves have closed, before
// the state machine's cleanup runs. Idempotent.
func (c *Connection) finalize() {
	if c.Final {
		return
	}
	c.Final = true
	c.Collector.put(Event{Type: EventConnectionFinal, Connection: c})
}
