package amqpbridge

import (
	"github.com/google/uuid"

	"github.com/corda-net/amqp-bridge/internal/engine"
)

// adapter wraps the engine Connection/Transport/Collector triple (spec.md
// §4.2 / §2.2). Construction follows spec.md's six numbered steps exactly.
type adapter struct {
	conn      *engine.Connection
	transport *engine.Transport
	collector *engine.Collector
}

// newAdapter builds the adapter. serverMode selects which side opens the
// connection locally at construction (step 6); username/password drive
// SASL mechanism selection (spec.md §4.7).
func newAdapter(cfg Config, serverMode bool, username, password string) *adapter {
	containerID := "CORDA:" + uuid.NewString()

	conn := engine.NewConnection(containerID, serverMode)
	transport := engine.NewTransport(conn, cfg.IdleTimeout, cfg.MaxFrameSize)
	transport.ConfigureSASL(username, password)
	transport.Bind()

	a := &adapter{conn: conn, transport: transport, collector: conn.Collector}

	if !serverMode {
		conn.Open()
	}
	return a
}

// pending drives frame generation as a side effect and reports how many
// output bytes are now ready (spec.md §4.2).
func (a *adapter) pending() int {
	return a.transport.Pending()
}

func (a *adapter) output(max int) []byte {
	return a.transport.Output(max)
}

func (a *adapter) processInput(p []byte) error {
	return a.transport.ProcessInput(p)
}

// nextEvent pops the next pending engine event, if any.
func (a *adapter) nextEvent() (engine.Event, bool) {
	return a.collector.Next()
}
