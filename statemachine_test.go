package amqpbridge

import (
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corda-net/amqp-bridge/internal/encoding"
	"github.com/corda-net/amqp-bridge/internal/engine"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

// pumpChannel wires two StateMachines together in-process: whatever one
// side wants to write to its "socket" is handed straight to the other
// side's TransportProcessInput. This is the two-Transport simulation the
// end-to-end scenarios in spec.md §8 are tested against, without any real
// network.
type pumpChannel struct {
	peer     *StateMachine
	local    Endpoint
	remote   Endpoint
	received []*ReceivedMessage
	closed   bool
}

func (c *pumpChannel) WriteTransport(t *engine.Transport) {
	n := t.Pending()
	if n <= 0 {
		return
	}
	b := t.Output(n)
	if len(b) == 0 {
		return
	}
	_ = c.peer.TransportProcessInput(b)
}

func (c *pumpChannel) WriteMessage(m *ReceivedMessage) { c.received = append(c.received, m) }
func (c *pumpChannel) LocalEndpoint() Endpoint         { return c.local }
func (c *pumpChannel) RemoteEndpoint() Endpoint        { return c.remote }
func (c *pumpChannel) Close()                          { c.closed = true }

func pump(client, server *StateMachine, rounds int) {
	for i := 0; i < rounds; i++ {
		client.ProcessTransport()
		server.ProcessTransport()
	}
}

// TestHappyPathSingleMessage is end-to-end scenario 1 of spec.md §8.
func TestHappyPathSingleMessage(t *testing.T) {
	cfg := LoadConfig()
	server := NewStateMachine(cfg, true, "", "", "O=Server,L=London,C=GB", testLogger())
	client := NewStateMachine(cfg, false, "", "", "O=Client,L=London,C=GB", testLogger())

	serverChan := &pumpChannel{peer: client}
	clientChan := &pumpChannel{peer: server}
	server.SetChannel(serverChan)
	client.SetChannel(clientChan)
	server.SetRemoteLegalName("O=Client,L=London,C=GB")
	client.SetRemoteLegalName("O=Server,L=London,C=GB")

	pump(client, server, 4) // settle Open/Begin

	msg := NewSendableMessage("addr1", []byte{0xDE, 0xAD}, map[string]interface{}{"id": "u1"})
	var status MessageStatus
	var completed bool
	msg.OnComplete = func(s MessageStatus) { status = s; completed = true }

	client.TransportWriteMessage(msg)
	pump(client, server, 8) // Attach, Flow, Transfer

	require.Len(t, serverChan.received, 1)
	rm := serverChan.received[0]
	assert.Equal(t, []byte{0xDE, 0xAD}, rm.Payload)
	assert.Equal(t, "addr1", rm.SourceAddress)
	assert.Equal(t, "O=Client,L=London,C=GB", rm.ApplicationProperties[ValidatedUserKey])
	assert.Equal(t, "u1", rm.ApplicationProperties["id"])

	server.SettleReceived(rm, true)
	pump(client, server, 4) // Disposition back to client

	require.True(t, completed)
	assert.Equal(t, StatusAcknowledged, status)
}

// TestQueuedBeforeSessionReady is end-to-end scenario 2 of spec.md §8.
func TestQueuedBeforeSessionReady(t *testing.T) {
	cfg := LoadConfig()
	server := NewStateMachine(cfg, true, "", "", "server-name", testLogger())
	client := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	serverChan := &pumpChannel{peer: client}
	clientChan := &pumpChannel{peer: server}
	server.SetChannel(serverChan)
	client.SetChannel(clientChan)

	msg := NewSendableMessage("addr1", []byte{1, 2, 3}, nil)
	server.TransportWriteMessage(msg)
	require.Equal(t, SessionUninitialized, server.session.Value())
	_, hasSender := server.registry.sender("addr1")
	require.False(t, hasSender, "no sender until the session opens")

	pump(client, server, 10)

	_, hasSender = server.registry.sender("addr1")
	assert.True(t, hasSender, "getSender runs once connection-local-open fires")
	require.Len(t, clientChan.received, 1)
	assert.Equal(t, []byte{1, 2, 3}, clientChan.received[0].Payload)
}

// TestCreditZeroThenFlow is end-to-end scenario 3 of spec.md §8, driven
// directly against transmitMessages/handle the way the teacher's own
// tests drive link.linkCredit directly rather than through a full
// transport round-trip.
func TestCreditZeroThenFlow(t *testing.T) {
	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	sender := engine.NewSender(sm.session.Session(), "test-sender", "addr1")
	sender.Open()
	sm.drainEvents()

	m1 := NewSendableMessage("addr1", []byte("m1"), nil)
	m2 := NewSendableMessage("addr1", []byte("m2"), nil)
	for _, m := range []*SendableMessage{m1, m2} {
		buf, err := encode(m, sm.localLegalName)
		require.NoError(t, err)
		m.setBuf(buf)
		sm.queues.enqueue("addr1", m)
	}

	sm.transmitMessages(sender)
	assert.Equal(t, StatusUnsent, m1.Status())
	assert.Equal(t, StatusUnsent, m2.Status())

	sender.Credit = 1
	sm.handle(engine.Event{Type: engine.EventLinkFlow, Connection: sm.adapter.conn, Sender: sender})

	assert.Equal(t, StatusSent, m1.Status())
	assert.Equal(t, StatusUnsent, m2.Status(), "second message remains queued until the next credit")
}

// TestRemoteRejectsDelivery is end-to-end scenario 4 of spec.md §8.
func TestRemoteRejectsDelivery(t *testing.T) {
	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	msg := NewSendableMessage("addr1", []byte("m"), nil)
	sm.queues.appendUnacked(msg)

	d := &engine.Delivery{Context: msg, RemotelySettled: true, RemoteState: &encoding.StateReleased{}}
	sm.handle(engine.Event{Type: engine.EventDelivery, Connection: sm.adapter.conn, Sender: &engine.Sender{}, Delivery: d})

	assert.Equal(t, StatusRejected, msg.Status())
	assert.True(t, d.Settled())
	assert.Empty(t, sm.queues.drainUnacked())
}

// TestAddressCreatePermissionError is end-to-end scenario 5 of spec.md §8.
func TestAddressCreatePermissionError(t *testing.T) {
	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	m1 := NewSendableMessage("addr_bad", []byte("1"), nil)
	m2 := NewSendableMessage("addr_bad", []byte("2"), nil)
	var s1, s2 MessageStatus
	m1.OnComplete = func(s MessageStatus) { s1 = s }
	m2.OnComplete = func(s MessageStatus) { s2 = s }
	sm.queues.enqueue("addr_bad", m1)
	sm.queues.enqueue("addr_bad", m2)

	sender := engine.NewSender(sm.session.Session(), "bad-sender", "addr_bad")
	cond := &encoding.Error{
		Condition:   "amqp:not-found",
		Description: "no such address: AMQ119032: destination address cannot be created",
	}
	sm.handle(engine.Event{Type: engine.EventLinkRemoteClose, Connection: sm.adapter.conn, Sender: sender, Condition: cond})

	assert.Equal(t, StatusAcknowledged, s1)
	assert.Equal(t, StatusAcknowledged, s2)
	assert.Empty(t, sm.queues.addresses())
}

// TestAbruptDisconnectMidFlight is end-to-end scenario 6 of spec.md §8.
// The malformed frame below is deliberately NOT truncated (its declared
// size matches the bytes present) so ReadFrame reports a genuine decode
// failure rather than ErrIncomplete.
func TestAbruptDisconnectMidFlight(t *testing.T) {
	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	inFlight := NewSendableMessage("addr1", []byte("a"), nil)
	queued := NewSendableMessage("addr1", []byte("b"), nil)
	var inFlightStatus, queuedStatus MessageStatus
	inFlight.OnComplete = func(s MessageStatus) { inFlightStatus = s }
	queued.OnComplete = func(s MessageStatus) { queuedStatus = s }
	sm.queues.appendUnacked(inFlight)
	sm.queues.enqueue("addr1", queued)

	malformed := []byte{0, 0, 0, 9, 2, 0, 0, 0, 0xFF}
	err := sm.TransportProcessInput(malformed)
	require.Error(t, err)
	require.NotNil(t, sm.adapter.transport.Condition)
	assert.EqualValues(t, ioConditionSymbol, sm.adapter.transport.Condition.Condition)

	// TransportProcessInput's failTransport call already closed one half
	// of the transport; the mutual tail/head-closed handlers and the
	// transport's own cascade (spec.md §2.6) drive the rest through to
	// connection-final without any further help from the test.
	assert.Equal(t, StatusRejected, inFlightStatus)
	assert.Equal(t, StatusRejected, queuedStatus)
	assert.True(t, sm.queues.empty())
	assert.True(t, sm.registry.empty())
	assert.Equal(t, SessionClosed, sm.session.Value())
}

// TestTagUniqueness covers P4's uniqueness half: every delivery tag on a
// single sender is a distinct 4-byte value.
func TestTagUniqueness(t *testing.T) {
	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	sender := engine.NewSender(sm.session.Session(), "s", "addr1")
	sender.Open()
	sm.drainEvents()
	sender.Credit = 5

	for i := 0; i < 5; i++ {
		m := NewSendableMessage("addr1", []byte{byte(i)}, nil)
		buf, err := encode(m, sm.localLegalName)
		require.NoError(t, err)
		m.setBuf(buf)
		sm.queues.enqueue("addr1", m)
	}
	sm.transmitMessages(sender)

	seen := make(map[string]bool)
	for _, d := range sender.Deliveries() {
		tag := string(d.Tag)
		require.False(t, seen[tag], "tag repeated")
		seen[tag] = true
		assert.Len(t, d.Tag, 4)
	}
	assert.Len(t, seen, 5)
}

// TestCleanupTotality covers P5: after connection-final, both queues and
// both registries are empty. leaktest guards the single-threaded,
// synchronous design's core property: nothing here ever spawns a
// goroutine, so cleanup can never leave one stranded.
func TestCleanupTotality(t *testing.T) {
	defer leaktest.Check(t)()

	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	for i := 0; i < 3; i++ {
		sm.queues.enqueue("addr1", NewSendableMessage("addr1", []byte{byte(i)}, nil))
	}
	sm.queues.appendUnacked(NewSendableMessage("addr2", []byte("x"), nil))
	sm.registry.putSender("addr1", engine.NewSender(sm.session.Session(), "s", "addr1"))

	// Drive cleanup through the real cascade (spec.md §2.6) rather than
	// injecting EventConnectionFinal directly: a local close walks
	// CloseTail/CloseHead through to finalize() and EventTransportClosed.
	sm.adapter.conn.Close()
	sm.drainEvents()

	assert.True(t, sm.queues.empty())
	assert.True(t, sm.registry.empty())
	assert.Equal(t, SessionClosed, sm.session.Value())
}

// TestStaleEventIgnored covers spec.md §7 error kind 4: an event whose
// connection identity does not match the one this state machine owns is
// logged and ignored, not mutated against.
func TestStaleEventIgnored(t *testing.T) {
	cfg := LoadConfig()
	sm := NewStateMachine(cfg, false, "", "", "client-name", testLogger())

	other := engine.NewConnection("CORDA:other", false)
	before := sm.session.Value()
	sm.handle(engine.Event{Type: engine.EventConnectionFinal, Connection: other})

	assert.Equal(t, before, sm.session.Value(), "a stale event must not trigger cleanup")
}
