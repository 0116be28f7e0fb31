// Package frames defines the AMQP 1.0 performative and frame-header types
// this bridge's simulated engine speaks, adapted from Azure/go-amqp's
// frames.go. The descriptor codes below are the real AMQP 1.0 values
// (§2.7 and §5.3.3 of the spec); the field sets are trimmed to what
// spec.md's state machine actually drives (no transactional performatives,
// no link recovery fields beyond what's needed for credit and settlement).
package frames

import "github.com/corda-net/amqp-bridge/internal/encoding"

// FrameBody adds type-safety the way Azure/go-amqp's frameBody interface does.
type FrameBody interface {
	frameBody()
}

// Frame header type bytes (AMQP §2.3.1).
const (
	TypeAMQP = 0x00
	TypeSASL = 0x01
)

// Performative descriptor codes (AMQP §2.7 domain amqp:*:list).
const (
	CodeOpen         = 0x10
	CodeBegin        = 0x11
	CodeAttach       = 0x12
	CodeFlow         = 0x13
	CodeTransfer     = 0x14
	CodeDisposition  = 0x15
	CodeDetach       = 0x16
	CodeEnd          = 0x17
	CodeClose        = 0x18
	CodeSASLMechs    = 0x40
	CodeSASLInit     = 0x41
	CodeSASLChallenge = 0x42
	CodeSASLResponse  = 0x43
	CodeSASLOutcome   = 0x44
)

type PerformOpen struct {
	ContainerID string
	Hostname    string
	MaxFrameSize uint32
	IdleTimeout  uint32 // milliseconds
}

func (*PerformOpen) frameBody() {}

type PerformBegin struct {
	RemoteChannel  *uint16
	NextOutgoingID uint32
}

func (*PerformBegin) frameBody() {}

type PerformAttach struct {
	Name               string
	Handle             uint32
	Role               encoding.Role
	SenderSettleMode   encoding.SenderSettleMode
	ReceiverSettleMode encoding.ReceiverSettleMode
	Source             *encoding.Source
	Target             *encoding.Target
}

func (*PerformAttach) frameBody() {}

type PerformFlow struct {
	Handle        *uint32
	DeliveryCount *uint32
	LinkCredit    *uint32
	Echo          bool
}

func (*PerformFlow) frameBody() {}

type PerformTransfer struct {
	Handle      uint32
	DeliveryID  uint32
	DeliveryTag []byte
	Settled     bool
	More        bool
	Payload     []byte
}

func (*PerformTransfer) frameBody() {}

type PerformDisposition struct {
	Role    encoding.Role
	First   uint32
	Last    uint32
	Settled bool
	State   encoding.DeliveryState
}

func (*PerformDisposition) frameBody() {}

type PerformDetach struct {
	Handle uint32
	Closed bool
	Error  *encoding.Error
}

func (*PerformDetach) frameBody() {}

type PerformEnd struct {
	Error *encoding.Error
}

func (*PerformEnd) frameBody() {}

type PerformClose struct {
	Error *encoding.Error
}

func (*PerformClose) frameBody() {}

type SASLMechanisms struct {
	Mechanisms []encoding.Symbol
}

func (*SASLMechanisms) frameBody() {}

type SASLInit struct {
	Mechanism       encoding.Symbol
	InitialResponse []byte
}

func (*SASLInit) frameBody() {}

type SASLOutcome struct {
	Code uint8 // 0 == ok, matches proton's PN_SASL_OK
}

func (*SASLOutcome) frameBody() {}
