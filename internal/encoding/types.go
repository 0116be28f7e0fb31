// Package encoding implements the slice of the AMQP 1.0 type system this
// bridge actually needs: the primitives, the message sections (header,
// application-properties, data body) and the terminus/settlement enums
// referenced by spec.md. It is adapted from Azure/go-amqp's encode.go and
// frames.go — the section and primitive type codes below are the real
// AMQP 1.0 wire constants, trimmed to the subset this module emits and
// consumes (no arrays-of-arrays, no transactional sections).
package encoding

// Symbol is an AMQP symbol: ASCII text used for names, capabilities and
// error conditions.
type Symbol string

// Role identifies which end of a link a party is playing.
type Role bool

const (
	RoleSender   Role = false
	RoleReceiver Role = true
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Durability controls how long a terminus (source or target) survives.
type Durability uint32

const (
	DurabilityNone            Durability = 0
	DurabilityConfiguration   Durability = 1
	DurabilityUnsettledState  Durability = 2
)

// SenderSettleMode controls who settles a delivery first.
type SenderSettleMode uint8

const (
	SenderSettleModeUnsettled SenderSettleMode = 0
	SenderSettleModeSettled   SenderSettleMode = 1
	SenderSettleModeMixed     SenderSettleMode = 2
)

// ReceiverSettleMode controls whether the receiver settles immediately.
type ReceiverSettleMode uint8

const (
	ReceiverSettleModeFirst  ReceiverSettleMode = 0
	ReceiverSettleModeSecond ReceiverSettleMode = 1
)

// ExpiryPolicy controls when an unused terminus is discarded.
type ExpiryPolicy string

const (
	ExpiryPolicyLinkDetach    ExpiryPolicy = "link-detach"
	ExpiryPolicySessionEnd    ExpiryPolicy = "session-end"
	ExpiryPolicyConnectionClose ExpiryPolicy = "connection-close"
	ExpiryPolicyNever         ExpiryPolicy = "never"
)

// Error is an AMQP error condition, carried on Close/Detach/Disposition.
type Error struct {
	Condition   Symbol
	Description string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return string(e.Condition) + ": " + e.Description
}

// DeliveryState is the outcome attached to a settled (or being-settled)
// delivery: Accepted, Rejected, Released or Modified.
type DeliveryState interface {
	isDeliveryState()
}

type StateAccepted struct{}

func (*StateAccepted) isDeliveryState() {}

type StateRejected struct {
	Error *Error
}

func (*StateRejected) isDeliveryState() {}

type StateReleased struct{}

func (*StateReleased) isDeliveryState() {}

type StateModified struct {
	DeliveryFailed    bool
	UndeliverableHere bool
}

func (*StateModified) isDeliveryState() {}

// IsAccepted reports whether state represents a positive (Accepted) outcome.
func IsAccepted(state DeliveryState) bool {
	_, ok := state.(*StateAccepted)
	return ok
}

// Source describes the originating terminus of a link.
type Source struct {
	Address      string
	Durable      Durability
	ExpiryPolicy ExpiryPolicy
	Timeout      uint32
	Dynamic      bool
	Capabilities []Symbol
}

// Target describes the destination terminus of a link.
type Target struct {
	Address      string
	Durable      Durability
	ExpiryPolicy ExpiryPolicy
	Timeout      uint32
	Dynamic      bool
	Capabilities []Symbol
}

// TxnCapability is the well-known capability symbol a transaction
// coordinator target advertises. spec.md only requires detecting this,
// never acting as a coordinator.
const TxnCapability Symbol = "amqp:local-transactions"

// IsTransactionCoordinator reports whether target declares itself a
// transaction coordinator via its capabilities.
func IsTransactionCoordinator(target *Target) bool {
	if target == nil {
		return false
	}
	for _, c := range target.Capabilities {
		if c == TxnCapability {
			return true
		}
	}
	return false
}
