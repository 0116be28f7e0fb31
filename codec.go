package amqpbridge

import (
	"github.com/corda-net/amqp-bridge/internal/buffer"
	"github.com/corda-net/amqp-bridge/internal/encoding"
)

// encode builds an AMQP message from msg and serializes it, per spec.md
// §4.1: body = Data(payload), durable = true, empty top-level properties,
// application-properties copied from the caller and augmented with the
// authenticated local identity. It fails with an *EncodeError on any
// marshal failure — the caller treats the message as fatally undeliverable.
func encode(msg *SendableMessage, localLegalName string) ([]byte, error) {
	props := make(map[string]interface{}, len(msg.ApplicationProperties)+1)
	for k, v := range msg.ApplicationProperties {
		props[k] = v
	}
	props[ValidatedUserKey] = localLegalName

	m := &encoding.Message{
		Durable:               true,
		ApplicationProperties: props,
		Data:                  msg.Payload,
	}

	buf := buffer.Acquire()
	defer buffer.Release(buf)
	if err := m.Marshal(buf); err != nil {
		return nil, newEncodeError(err)
	}
	owned := make([]byte, buf.Len())
	copy(owned, buf.Bytes())
	return owned, nil
}

// decode reads everything readFn currently makes available and decodes it
// into an AMQP message (spec.md §4.1). The caller must first confirm the
// delivery is readable and not partial.
func decode(readFn func() []byte) (*encoding.Message, error) {
	raw := readFn()
	buf := buffer.New(raw)
	m := &encoding.Message{}
	if err := m.Unmarshal(buf); err != nil {
		return nil, err
	}
	return m, nil
}
