package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/corda-net/amqp-bridge/internal/buffer"
)

// Section type codes from the AMQP 1.0 spec (§3.2), the subset this
// bridge round-trips: header, application-properties, data.
const (
	typeCodeHeader              = 0x70
	typeCodeApplicationProps    = 0x74
	typeCodeData                = 0x75
)

// primitive type codes, adapted from Azure/go-amqp's encode.go switch.
const (
	typeCodeNull      = 0x40
	typeCodeBoolTrue   = 0x41
	typeCodeBoolFalse  = 0x42
	typeCodeUint32     = 0x70
	typeCodeULong      = 0x80
	typeCodeBinaryVal8  = 0xa0
	typeCodeBinaryVal32 = 0xb0
	typeCodeStringVal8  = 0xa1
	typeCodeStringVal32 = 0xb1
	typeCodeSymbolVal8  = 0xa3
	typeCodeSymbolVal32 = 0xb3
	typeCodeMap8        = 0xc1
	typeCodeMap32        = 0xd1
)

// Message is the minimal AMQP message this bridge encodes/decodes: a
// durable Data body plus an application-properties map. Real AMQP messages
// carry many more optional sections; spec.md's codec never needs them.
type Message struct {
	Durable               bool
	ApplicationProperties map[string]interface{}
	Data                  []byte
}

// Marshal encodes msg's sections into buf, in AMQP wire order
// (header, application-properties, data).
func (m *Message) Marshal(buf *buffer.Buffer) error {
	if err := marshalHeader(buf, m.Durable); err != nil {
		return err
	}
	if len(m.ApplicationProperties) > 0 {
		if err := marshalApplicationProperties(buf, m.ApplicationProperties); err != nil {
			return err
		}
	}
	return marshalData(buf, m.Data)
}

func marshalHeader(buf *buffer.Buffer, durable bool) error {
	writeDescriptor(buf, typeCodeHeader)
	// single-field list: [durable]
	buf.WriteByte(0xc0) // list8
	buf.WriteByte(2)    // size placeholder ignored by our own decoder
	buf.WriteByte(1)    // count
	if durable {
		buf.WriteByte(typeCodeBoolTrue)
	} else {
		buf.WriteByte(typeCodeBoolFalse)
	}
	return nil
}

func marshalApplicationProperties(buf *buffer.Buffer, props map[string]interface{}) error {
	writeDescriptor(buf, typeCodeApplicationProps)
	return marshalMap(buf, props)
}

func marshalData(buf *buffer.Buffer, payload []byte) error {
	writeDescriptor(buf, typeCodeData)
	return marshalBinary(buf, payload)
}

func writeDescriptor(buf *buffer.Buffer, code byte) {
	buf.WriteByte(0x00) // descriptor constructor
	buf.WriteByte(0x53) // small-ulong
	buf.WriteByte(code)
}

func marshalMap(buf *buffer.Buffer, m map[string]interface{}) error {
	// encode entries into a scratch buffer first so we can size-prefix.
	scratch := buffer.Acquire()
	defer buffer.Release(scratch)

	for k, v := range m {
		if err := marshalString(scratch, k); err != nil {
			return err
		}
		if err := marshalValue(scratch, v); err != nil {
			return err
		}
	}

	body := scratch.Bytes()
	if len(body) > math.MaxUint8 {
		buf.WriteByte(typeCodeMap32)
		var szb [4]byte
		binary.BigEndian.PutUint32(szb[:], uint32(len(body)+4))
		buf.Write(szb[:])
		binary.BigEndian.PutUint32(szb[:], uint32(len(m)*2))
		buf.Write(szb[:])
	} else {
		buf.WriteByte(typeCodeMap8)
		buf.WriteByte(byte(len(body) + 1))
		buf.WriteByte(byte(len(m) * 2))
	}
	buf.Write(body)
	return nil
}

func marshalValue(buf *buffer.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(typeCodeNull)
	case string:
		return marshalString(buf, t)
	case Symbol:
		return marshalSymbol(buf, t)
	case bool:
		if t {
			buf.WriteByte(typeCodeBoolTrue)
		} else {
			buf.WriteByte(typeCodeBoolFalse)
		}
	case uint32:
		buf.WriteByte(typeCodeUint32)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], t)
		buf.Write(b[:])
	case []byte:
		return marshalBinary(buf, t)
	default:
		return fmt.Errorf("encoding: unsupported application-property value type %T", v)
	}
	return nil
}

func marshalString(buf *buffer.Buffer, s string) error {
	return marshalStrLike(buf, typeCodeStringVal8, typeCodeStringVal32, s)
}

func marshalSymbol(buf *buffer.Buffer, s Symbol) error {
	return marshalStrLike(buf, typeCodeSymbolVal8, typeCodeSymbolVal32, string(s))
}

func marshalStrLike(buf *buffer.Buffer, code8, code32 byte, s string) error {
	if len(s) > math.MaxUint8 {
		buf.WriteByte(code32)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(s)))
		buf.Write(b[:])
	} else {
		buf.WriteByte(code8)
		buf.WriteByte(byte(len(s)))
	}
	buf.WriteString(s)
	return nil
}

func marshalBinary(buf *buffer.Buffer, p []byte) error {
	if len(p) > math.MaxUint8 {
		buf.WriteByte(typeCodeBinaryVal32)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(p)))
		buf.Write(b[:])
	} else {
		buf.WriteByte(typeCodeBinaryVal8)
		buf.WriteByte(byte(len(p)))
	}
	buf.Write(p)
	return nil
}
