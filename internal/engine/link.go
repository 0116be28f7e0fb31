package engine

import "github.com/corda-net/amqp-bridge/internal/encoding"

// Sender is one outgoing AMQP link. Field names mirror Azure/go-amqp's
// Sender (LinkName, target/source termini, settle modes) adapted onto
// this engine's single-session, Collector-driven model.
type Sender struct {
	Session            *Session
	Name               string
	Handle             uint32
	Source             *encoding.Source
	Target             *encoding.Target
	SenderSettleMode   encoding.SenderSettleMode
	ReceiverSettleMode encoding.ReceiverSettleMode

	Credit        uint32
	DeliveryCount uint32

	// Context is the state machine's per-link scratch slot (spec.md
	// doesn't require one explicitly, but symmetry with Connection.Context
	// keeps identity checks uniform).
	Context interface{}

	LocalOpen bool
	closed    bool

	nextTag uint64

	// deliveries tracks in-flight deliveries by ID so incoming Disposition
	// frames (which only carry delivery IDs) can be matched back to them.
	deliveries map[uint32]*Delivery
}

// NewSender allocates (but does not open) a sender for target on session.
func NewSender(s *Session, name, address string) *Sender {
	return &Sender{
		Session:            s,
		Name:               name,
		Handle:             s.allocHandle(),
		Source:             &encoding.Source{Address: address, Durable: encoding.DurabilityNone},
		Target:             &encoding.Target{Address: address, Durable: encoding.DurabilityUnsettledState},
		SenderSettleMode:   encoding.SenderSettleModeUnsettled,
		ReceiverSettleMode: encoding.ReceiverSettleModeFirst,
		deliveries:         make(map[uint32]*Delivery),
	}
}

// Open performs the sender's local-open transition: records it on the
// session, queues an Attach, and emits link-local-open.
func (s *Sender) Open() {
	s.LocalOpen = true
	s.Session.links[s.Handle] = s
	s.Session.linksByName[s.Name] = s
	if s.Session.Connection.Transport != nil {
		s.Session.Connection.Transport.queueAttach(s.Session, s.Handle, s.Name, encoding.RoleSender, s.SenderSettleMode, s.ReceiverSettleMode, s.Source, s.Target)
	}
	s.Session.Connection.Collector.put(Event{Type: EventLinkLocalOpen, Connection: s.Session.Connection, Session: s.Session, Sender: s})
}

// NewDelivery creates a Delivery for tag, ready to be sent.
func (s *Sender) NewDelivery(tag []byte) *Delivery {
	d := &Delivery{Tag: tag, ID: s.Session.allocDeliveryID(), Sender: s}
	s.deliveries[d.ID] = d
	return d
}

// Deliveries exposes the in-flight delivery table, keyed by delivery ID,
// for tests and diagnostics that need to inspect tag assignment.
func (s *Sender) Deliveries() map[uint32]*Delivery {
	return s.deliveries
}

// Send queues a single-frame Transfer carrying payload for delivery.
func (s *Sender) Send(delivery *Delivery, payload []byte) {
	if s.Session.Connection.Transport != nil {
		s.Session.Connection.Transport.queueTransfer(s.Session, s.Handle, delivery, payload)
	}
}

// Advance decrements available credit and bumps delivery-count after a
// transfer has been fully sent (spec.md §4.5 transmitMessages loop).
func (s *Sender) Advance() {
	s.DeliveryCount++
	if s.Credit > 0 {
		s.Credit--
	}
}

// Close performs the sender's local-close (detach) transition.
func (s *Sender) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.Session.Connection.Transport != nil {
		s.Session.Connection.Transport.queueDetach(s.Session, s.Handle, true, nil)
	}
}

// Receiver is one incoming AMQP link, created by the engine when the
// remote attaches with role=sender targeting this endpoint (spec.md §4.4:
// "Receivers are not created by the state machine").
type Receiver struct {
	Session            *Session
	Name               string
	Handle             uint32
	RemoteHandle       uint32
	Source             *encoding.Source
	Target             *encoding.Target
	SenderSettleMode   encoding.SenderSettleMode
	ReceiverSettleMode encoding.ReceiverSettleMode

	Context interface{}

	LocalOpen bool
	closed    bool
}

// Open performs the receiver's local-open transition, records it on the
// session and issues an initial credit grant — real AMQP client libraries
// (e.g. Azure/go-amqp's ReceiverOptions.Credit) configure an initial
// prefetch the same way; spec.md's state machine never manages receive
// credit, so the engine supplies a sane default here.
func (r *Receiver) Open() {
	const initialCredit = 64
	r.LocalOpen = true
	r.Session.links[r.Handle] = r
	r.Session.linksByName[r.Name] = r
	if r.Session.Connection.Transport != nil {
		r.Session.Connection.Transport.queueAttach(r.Session, r.Handle, r.Name, encoding.RoleReceiver, r.SenderSettleMode, r.ReceiverSettleMode, r.Source, r.Target)
		r.Session.Connection.Transport.queueFlow(r.Session, r.Handle, initialCredit)
	}
	r.Session.Connection.Collector.put(Event{Type: EventLinkLocalOpen, Connection: r.Session.Connection, Session: r.Session, Receiver: r})
}

// Close performs the receiver's local-close (detach) transition.
func (r *Receiver) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.Session.Connection.Transport != nil {
		r.Session.Connection.Transport.queueDetach(r.Session, r.Handle, true, nil)
	}
}

// SettleWith settles a received delivery locally and queues a disposition
// carrying state for the peer — used when no upstream channel is attached
// to take the message (spec.md §4.6 delivery handler: "If no channel is
// attached, reject and settle the delivery in place."), when decoding
// fails, and by the upstream settlement path.
func (r *Receiver) SettleWith(delivery *Delivery, state encoding.DeliveryState) {
	delivery.Settle()
	if r.Session.Connection.Transport != nil {
		r.Session.Connection.Transport.queueDisposition(r.Session, encoding.RoleReceiver, delivery.ID, state)
	}
}
