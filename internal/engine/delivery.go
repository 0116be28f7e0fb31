package engine

import "github.com/corda-net/amqp-bridge/internal/encoding"

// Delivery models one transfer of one message on a link: a tag, the
// caller's opaque Context (the state machine stashes the originating
// SendableMessage here, per spec.md §4.5) and its settlement outcome.
type Delivery struct {
	Tag     []byte
	ID      uint32
	Sender  *Sender
	Receiver *Receiver

	Context interface{}

	Readable bool // true once a full transfer has been received (receiver side)
	Partial  bool

	RemotelySettled bool
	RemoteState     encoding.DeliveryState

	locallySettled bool
}

// Settle marks the delivery locally settled. Idempotent.
func (d *Delivery) Settle() {
	d.locallySettled = true
}

// Settled reports whether this side has settled the delivery.
func (d *Delivery) Settled() bool {
	return d.locallySettled
}
