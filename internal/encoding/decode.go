package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/corda-net/amqp-bridge/internal/buffer"
)

// Unmarshal decodes the sections written by Marshal, in any order, and
// populates m. This decoder only understands the primitive shapes Marshal
// itself produces (it is a matched pair, not a general AMQP type decoder):
// an unknown section descriptor or value type code is an error.
func (m *Message) Unmarshal(buf *buffer.Buffer) error {
	for buf.Len() > 0 {
		code, err := readDescriptor(buf)
		if err != nil {
			return err
		}
		switch code {
		case typeCodeHeader:
			durable, err := unmarshalHeader(buf)
			if err != nil {
				return err
			}
			m.Durable = durable
		case typeCodeApplicationProps:
			props, err := unmarshalMap(buf)
			if err != nil {
				return err
			}
			m.ApplicationProperties = props
		case typeCodeData:
			data, err := unmarshalBinary(buf)
			if err != nil {
				return err
			}
			m.Data = data
		default:
			return fmt.Errorf("encoding: unknown section descriptor 0x%02x", code)
		}
	}
	return nil
}

func readDescriptor(buf *buffer.Buffer) (byte, error) {
	hdr := buf.Next(3)
	if len(hdr) != 3 || hdr[0] != 0x00 || hdr[1] != 0x53 {
		return 0, fmt.Errorf("encoding: malformed section descriptor")
	}
	return hdr[2], nil
}

func unmarshalHeader(buf *buffer.Buffer) (bool, error) {
	listCode := buf.Next(1)
	if len(listCode) != 1 || listCode[0] != 0xc0 {
		return false, fmt.Errorf("encoding: expected list8 for header")
	}
	buf.Skip(1) // size
	count := buf.Next(1)
	if len(count) != 1 || count[0] != 1 {
		return false, fmt.Errorf("encoding: expected single-field header list")
	}
	b := buf.Next(1)
	if len(b) != 1 {
		return false, fmt.Errorf("encoding: truncated header")
	}
	return b[0] == typeCodeBoolTrue, nil
}

func unmarshalMap(buf *buffer.Buffer) (map[string]interface{}, error) {
	code := buf.Next(1)
	if len(code) != 1 {
		return nil, fmt.Errorf("encoding: truncated map")
	}
	var count int
	switch code[0] {
	case typeCodeMap8:
		buf.Skip(1) // size
		n := buf.Next(1)
		count = int(n[0])
	case typeCodeMap32:
		buf.Skip(4) // size
		n := buf.Next(4)
		count = int(binary.BigEndian.Uint32(n))
	default:
		return nil, fmt.Errorf("encoding: expected map type, got 0x%02x", code[0])
	}

	out := make(map[string]interface{}, count/2)
	for i := 0; i < count; i += 2 {
		key, err := unmarshalStringLike(buf)
		if err != nil {
			return nil, err
		}
		val, err := unmarshalValue(buf)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

func unmarshalValue(buf *buffer.Buffer) (interface{}, error) {
	code := buf.Next(1)
	if len(code) != 1 {
		return nil, fmt.Errorf("encoding: truncated value")
	}
	switch code[0] {
	case typeCodeNull:
		return nil, nil
	case typeCodeBoolTrue:
		return true, nil
	case typeCodeBoolFalse:
		return false, nil
	case typeCodeUint32:
		b := buf.Next(4)
		return binary.BigEndian.Uint32(b), nil
	case typeCodeStringVal8, typeCodeSymbolVal8:
		n := buf.Next(1)
		return string(buf.Next(int(n[0]))), nil
	case typeCodeStringVal32, typeCodeSymbolVal32:
		n := buf.Next(4)
		return string(buf.Next(int(binary.BigEndian.Uint32(n)))), nil
	case typeCodeBinaryVal8:
		n := buf.Next(1)
		return append([]byte(nil), buf.Next(int(n[0]))...), nil
	case typeCodeBinaryVal32:
		n := buf.Next(4)
		return append([]byte(nil), buf.Next(int(binary.BigEndian.Uint32(n)))...), nil
	default:
		return nil, fmt.Errorf("encoding: unsupported value type code 0x%02x", code[0])
	}
}

func unmarshalStringLike(buf *buffer.Buffer) (string, error) {
	v, err := unmarshalValue(buf)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("encoding: expected string-like key")
	}
	return s, nil
}

func unmarshalBinary(buf *buffer.Buffer) ([]byte, error) {
	v, err := unmarshalValue(buf)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("encoding: expected binary data section")
	}
	return b, nil
}
