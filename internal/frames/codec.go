package frames

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/corda-net/amqp-bridge/internal/buffer"
	"github.com/corda-net/amqp-bridge/internal/encoding"
)

// ErrIncomplete is returned by ReadFrame when buf does not yet hold a
// complete frame; the caller should wait for more input and retry.
var ErrIncomplete = errors.New("frames: incomplete frame")

// Header is the 8-byte frame header (AMQP §2.3.1): 4-byte size, 1-byte
// data offset (in 4-byte words, always 2 here), 1-byte frame type,
// 2-byte channel.
type Header struct {
	Type    uint8
	Channel uint16
}

// WriteFrame marshals body (with its descriptor) into a complete frame,
// including the 8-byte header, and appends it to buf.
func WriteFrame(buf *buffer.Buffer, hdr Header, body FrameBody) error {
	start := buf.Len()
	buf.Write([]byte{0, 0, 0, 0, 2, hdr.Type})
	var chb [2]byte
	binary.BigEndian.PutUint16(chb[:], hdr.Channel)
	buf.Write(chb[:])

	if err := marshalBody(buf, body); err != nil {
		return err
	}

	total := buf.Len() - start
	raw := buf.Bytes()
	binary.BigEndian.PutUint32(raw[start:], uint32(total))
	return nil
}

// ReadFrame consumes exactly one frame from buf. When buf does not yet
// hold a complete frame it consumes nothing and returns ErrIncomplete, so
// the caller can append more input and call again.
func ReadFrame(buf *buffer.Buffer) (Header, FrameBody, error) {
	raw := buf.Bytes()
	if len(raw) < 8 {
		return Header{}, nil, ErrIncomplete
	}
	size := binary.BigEndian.Uint32(raw[0:4])
	if uint32(len(raw)) < size {
		return Header{}, nil, ErrIncomplete
	}
	doff := raw[4]
	hdr := Header{Type: raw[5], Channel: binary.BigEndian.Uint16(raw[6:8])}
	buf.Skip(int(doff) * 4)
	bodyLen := int(size) - int(doff)*4
	bodyBuf := buffer.New(append([]byte(nil), buf.Next(bodyLen)...))
	body, err := unmarshalBody(bodyBuf)
	return hdr, body, err
}

func marshalBody(buf *buffer.Buffer, body FrameBody) error {
	switch b := body.(type) {
	case *PerformOpen:
		writeDesc(buf, CodeOpen)
		writeString(buf, b.ContainerID)
		writeString(buf, b.Hostname)
		writeUint32(buf, b.MaxFrameSize)
		writeUint32(buf, b.IdleTimeout)
	case *PerformBegin:
		writeDesc(buf, CodeBegin)
		writeOptUint16(buf, b.RemoteChannel)
		writeUint32(buf, b.NextOutgoingID)
	case *PerformAttach:
		writeDesc(buf, CodeAttach)
		writeString(buf, b.Name)
		writeUint32(buf, b.Handle)
		writeBool(buf, bool(b.Role))
		buf.WriteByte(byte(b.SenderSettleMode))
		buf.WriteByte(byte(b.ReceiverSettleMode))
		writeTerminus(buf, b.Source, b.Target)
	case *PerformFlow:
		writeDesc(buf, CodeFlow)
		writeOptUint32(buf, b.Handle)
		writeOptUint32(buf, b.DeliveryCount)
		writeOptUint32(buf, b.LinkCredit)
		writeBool(buf, b.Echo)
	case *PerformTransfer:
		writeDesc(buf, CodeTransfer)
		writeUint32(buf, b.Handle)
		writeUint32(buf, b.DeliveryID)
		writeBinary(buf, b.DeliveryTag)
		writeBool(buf, b.Settled)
		writeBool(buf, b.More)
		writeBinary(buf, b.Payload)
	case *PerformDisposition:
		writeDesc(buf, CodeDisposition)
		writeBool(buf, bool(b.Role))
		writeUint32(buf, b.First)
		writeUint32(buf, b.Last)
		writeBool(buf, b.Settled)
		writeDeliveryState(buf, b.State)
	case *PerformDetach:
		writeDesc(buf, CodeDetach)
		writeUint32(buf, b.Handle)
		writeBool(buf, b.Closed)
		writeOptError(buf, b.Error)
	case *PerformEnd:
		writeDesc(buf, CodeEnd)
		writeOptError(buf, b.Error)
	case *PerformClose:
		writeDesc(buf, CodeClose)
		writeOptError(buf, b.Error)
	case *SASLMechanisms:
		writeDesc(buf, CodeSASLMechs)
		writeUint32(buf, uint32(len(b.Mechanisms)))
		for _, m := range b.Mechanisms {
			writeString(buf, string(m))
		}
	case *SASLInit:
		writeDesc(buf, CodeSASLInit)
		writeString(buf, string(b.Mechanism))
		writeBinary(buf, b.InitialResponse)
	case *SASLOutcome:
		writeDesc(buf, CodeSASLOutcome)
		buf.WriteByte(b.Code)
	default:
		return fmt.Errorf("frames: marshal: unknown body type %T", body)
	}
	return nil
}

func unmarshalBody(buf *buffer.Buffer) (FrameBody, error) {
	code := readDesc(buf)
	switch code {
	case CodeOpen:
		return &PerformOpen{ContainerID: readString(buf), Hostname: readString(buf), MaxFrameSize: readUint32(buf), IdleTimeout: readUint32(buf)}, nil
	case CodeBegin:
		return &PerformBegin{RemoteChannel: readOptUint16(buf), NextOutgoingID: readUint32(buf)}, nil
	case CodeAttach:
		name := readString(buf)
		handle := readUint32(buf)
		role := encoding.Role(readBool(buf))
		ssm := encoding.SenderSettleMode(buf.Next(1)[0])
		rsm := encoding.ReceiverSettleMode(buf.Next(1)[0])
		src, tgt := readTerminus(buf)
		return &PerformAttach{Name: name, Handle: handle, Role: role, SenderSettleMode: ssm, ReceiverSettleMode: rsm, Source: src, Target: tgt}, nil
	case CodeFlow:
		return &PerformFlow{Handle: readOptUint32(buf), DeliveryCount: readOptUint32(buf), LinkCredit: readOptUint32(buf), Echo: readBool(buf)}, nil
	case CodeTransfer:
		return &PerformTransfer{Handle: readUint32(buf), DeliveryID: readUint32(buf), DeliveryTag: readBinary(buf), Settled: readBool(buf), More: readBool(buf), Payload: readBinary(buf)}, nil
	case CodeDisposition:
		role := encoding.Role(readBool(buf))
		first := readUint32(buf)
		last := readUint32(buf)
		settled := readBool(buf)
		state := readDeliveryState(buf)
		return &PerformDisposition{Role: role, First: first, Last: last, Settled: settled, State: state}, nil
	case CodeDetach:
		return &PerformDetach{Handle: readUint32(buf), Closed: readBool(buf), Error: readOptError(buf)}, nil
	case CodeEnd:
		return &PerformEnd{Error: readOptError(buf)}, nil
	case CodeClose:
		return &PerformClose{Error: readOptError(buf)}, nil
	case CodeSASLMechs:
		n := readUint32(buf)
		mechs := make([]encoding.Symbol, n)
		for i := range mechs {
			mechs[i] = encoding.Symbol(readString(buf))
		}
		return &SASLMechanisms{Mechanisms: mechs}, nil
	case CodeSASLInit:
		return &SASLInit{Mechanism: encoding.Symbol(readString(buf)), InitialResponse: readBinary(buf)}, nil
	case CodeSASLOutcome:
		return &SASLOutcome{Code: buf.Next(1)[0]}, nil
	default:
		return nil, fmt.Errorf("frames: unmarshal: unknown descriptor 0x%02x", code)
	}
}

// --- small fixed-width helpers; this is an internal wire format, not a
// byte-for-bit-compatible AMQP primitive encoder (that precision lives in
// package encoding, which governs the one section that must actually
// round-trip per spec.md P7: the message body). ---

func writeDesc(buf *buffer.Buffer, code byte) { buf.WriteByte(code) }
func readDesc(buf *buffer.Buffer) byte        { return buf.Next(1)[0] }

func writeBool(buf *buffer.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}
func readBool(buf *buffer.Buffer) bool { return buf.Next(1)[0] == 1 }

func writeUint32(buf *buffer.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
func readUint32(buf *buffer.Buffer) uint32 { return binary.BigEndian.Uint32(buf.Next(4)) }

func writeOptUint32(buf *buffer.Buffer, v *uint32) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeUint32(buf, *v)
}
func readOptUint32(buf *buffer.Buffer) *uint32 {
	if buf.Next(1)[0] == 0 {
		return nil
	}
	v := readUint32(buf)
	return &v
}

func writeOptUint16(buf *buffer.Buffer, v *uint16) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], *v)
	buf.Write(b[:])
}
func readOptUint16(buf *buffer.Buffer) *uint16 {
	if buf.Next(1)[0] == 0 {
		return nil
	}
	v := binary.BigEndian.Uint16(buf.Next(2))
	return &v
}

func writeString(buf *buffer.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}
func readString(buf *buffer.Buffer) string {
	n := readUint32(buf)
	return string(buf.Next(int(n)))
}

func writeBinary(buf *buffer.Buffer, p []byte) {
	writeUint32(buf, uint32(len(p)))
	buf.Write(p)
}
func readBinary(buf *buffer.Buffer) []byte {
	n := readUint32(buf)
	return append([]byte(nil), buf.Next(int(n))...)
}

func writeOptError(buf *buffer.Buffer, e *encoding.Error) {
	if e == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeString(buf, string(e.Condition))
	writeString(buf, e.Description)
}
func readOptError(buf *buffer.Buffer) *encoding.Error {
	if buf.Next(1)[0] == 0 {
		return nil
	}
	return &encoding.Error{Condition: encoding.Symbol(readString(buf)), Description: readString(buf)}
}

func writeTerminus(buf *buffer.Buffer, src *encoding.Source, tgt *encoding.Target) {
	writeBool(buf, src != nil)
	if src != nil {
		writeString(buf, src.Address)
		writeUint32(buf, uint32(src.Durable))
	}
	writeBool(buf, tgt != nil)
	if tgt != nil {
		writeString(buf, tgt.Address)
		writeUint32(buf, uint32(tgt.Durable))
		writeUint32(buf, uint32(len(tgt.Capabilities)))
		for _, c := range tgt.Capabilities {
			writeString(buf, string(c))
		}
	}
}

func readTerminus(buf *buffer.Buffer) (*encoding.Source, *encoding.Target) {
	var src *encoding.Source
	if readBool(buf) {
		src = &encoding.Source{Address: readString(buf), Durable: encoding.Durability(readUint32(buf))}
	}
	var tgt *encoding.Target
	if readBool(buf) {
		tgt = &encoding.Target{Address: readString(buf), Durable: encoding.Durability(readUint32(buf))}
		n := readUint32(buf)
		tgt.Capabilities = make([]encoding.Symbol, n)
		for i := range tgt.Capabilities {
			tgt.Capabilities[i] = encoding.Symbol(readString(buf))
		}
	}
	return src, tgt
}

func writeDeliveryState(buf *buffer.Buffer, s encoding.DeliveryState) {
	switch st := s.(type) {
	case nil:
		buf.WriteByte(0)
	case *encoding.StateAccepted:
		buf.WriteByte(1)
	case *encoding.StateRejected:
		buf.WriteByte(2)
		writeOptError(buf, st.Error)
	case *encoding.StateReleased:
		buf.WriteByte(3)
	case *encoding.StateModified:
		buf.WriteByte(4)
		writeBool(buf, st.DeliveryFailed)
		writeBool(buf, st.UndeliverableHere)
	}
}

func readDeliveryState(buf *buffer.Buffer) encoding.DeliveryState {
	switch buf.Next(1)[0] {
	case 0:
		return nil
	case 1:
		return &encoding.StateAccepted{}
	case 2:
		return &encoding.StateRejected{Error: readOptError(buf)}
	case 3:
		return &encoding.StateReleased{}
	case 4:
		return &encoding.StateModified{DeliveryFailed: readBool(buf), UndeliverableHere: readBool(buf)}
	default:
		return &encoding.StateReleased{}
	}
}
