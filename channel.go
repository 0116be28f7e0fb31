package amqpbridge

import "github.com/corda-net/amqp-bridge/internal/engine"

// Channel is the socket pipeline collaborator this state machine holds a
// weak reference to (spec.md §5, §6): "the socket channel is owned by the
// pipeline." It accepts either a raw transport (zero-copy pending-frame
// writes) or a ReceivedMessage (upstream delivery), and exposes the local/
// remote endpoints used to populate ReceivedMessage.
type Channel interface {
	WriteTransport(t *engine.Transport)
	WriteMessage(msg *ReceivedMessage)
	LocalEndpoint() Endpoint
	RemoteEndpoint() Endpoint
	Close()
}

// OutputSink is the destination transportProcessOutput pumps bytes into
// (spec.md §4.6): an outbound buffer allocated from a channel context.
type OutputSink interface {
	Write(p []byte) error
	Flush() error
}
