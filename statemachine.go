package amqpbridge

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/corda-net/amqp-bridge/internal/encoding"
	"github.com/corda-net/amqp-bridge/internal/engine"
	"github.com/corda-net/amqp-bridge/internal/mdc"
)

// StateMachine is the per-connection orchestrator of spec.md §2.6/§4.6 —
// the piece that ties the AMQP engine adapter, the session state, the
// link registry and the outbound queues into one event-driven dispatcher.
// It is strictly single-threaded per connection (spec.md §5): every
// method here is expected to be invoked serially by one external
// executor, never concurrently.
type StateMachine struct {
	cfg    Config
	logger *logrus.Entry

	adapter *adapter
	// connID is the arena identity spec.md design note 9 asks for: events
	// are matched against this integer instead of pointer equality, so a
	// stale event referencing a freed-and-reused connection is reliably
	// ignored.
	connID int64

	session  SessionState
	registry *linkRegistry
	queues   *outboundQueues

	localLegalName  string
	remoteLegalName string

	channel Channel

	nextTagID uint32
}

// NewStateMachine constructs the adapter (spec.md §4.2's six steps run
// inside newAdapter) and drains whatever events that construction already
// produced (connection-init, and for client mode connection-local-open).
func NewStateMachine(cfg Config, serverMode bool, username, password, localLegalName string, logger *logrus.Logger) *StateMachine {
	a := newAdapter(cfg, serverMode, username, password)
	sm := &StateMachine{
		cfg:            cfg,
		adapter:        a,
		connID:         a.conn.ID,
		registry:       newLinkRegistry(),
		queues:         newOutboundQueues(),
		localLegalName: localLegalName,
	}
	sm.logger = mdc.New(logger, serverMode, localLegalName, "", a.conn.ID)
	sm.drainEvents()
	return sm
}

// SetChannel attaches the socket pipeline channel (spec.md §6's "observed
// upstream" collaborator). Passing nil detaches it.
func (sm *StateMachine) SetChannel(ch Channel) { sm.channel = ch }

// SetRemoteLegalName records the authenticated peer identity once
// upstream identification completes; it is stamped onto every inbound
// ReceivedMessage's application properties from that point on.
func (sm *StateMachine) SetRemoteLegalName(name string) {
	sm.remoteLegalName = name
	sm.logger = mdc.WithRemoteLegalName(sm.logger, name)
}

// --- public ingress operations (spec.md §4.6, §6) ---

// TransportWriteMessage enqueues msg for transmission, per spec.md §4.6.
func (sm *StateMachine) TransportWriteMessage(msg *SendableMessage) {
	if sm.session.Value() == SessionClosed {
		msg.doComplete(StatusRejected)
		return
	}

	buf, err := encode(msg, sm.localLegalName)
	if err != nil {
		sm.logger.WithError(err).Warn("message encode failed, rejecting")
		msg.doComplete(StatusRejected)
		return
	}
	msg.setBuf(buf)
	sm.queues.enqueue(msg.Topic, msg)

	if sm.session.Value() == SessionActive {
		if sender := sm.getSender(msg.Topic); sender != nil {
			sm.transmitMessages(sender)
		}
	}
	sm.drainEvents()
}

// TransportProcessInput feeds inbound bytes into the transport in
// MaxFrameSize-sized chunks, per spec.md §4.6.
func (sm *StateMachine) TransportProcessInput(p []byte) error {
	chunk := int(sm.cfg.MaxFrameSize)
	if chunk <= 0 {
		chunk = len(p)
	}
	for len(p) > 0 {
		n := chunk
		if n > len(p) {
			n = len(p)
		}
		if err := sm.adapter.processInput(p[:n]); err != nil {
			sm.failTransport(err, true)
			sm.drainEvents()
			return err
		}
		p = p[n:]
	}
	sm.drainEvents()
	return nil
}

// TransportProcessOutput drains the transport's output buffer into sink
// until empty, per spec.md §4.6.
func (sm *StateMachine) TransportProcessOutput(sink OutputSink) error {
	for {
		n := sm.adapter.pending()
		if n == 0 {
			break
		}
		b := sm.adapter.output(n)
		if len(b) == 0 {
			break
		}
		if err := sink.Write(b); err != nil {
			sm.failTransport(err, false)
			sm.drainEvents()
			return err
		}
	}
	if err := sink.Flush(); err != nil {
		sm.failTransport(err, false)
		sm.drainEvents()
		return err
	}
	sm.drainEvents()
	return nil
}

// ProcessTransport pokes the engine to emit pending frames, per spec.md
// §4.6's generic "transport" progress path.
func (sm *StateMachine) ProcessTransport() {
	sm.transportProgress()
	sm.drainEvents()
}

// failTransport implements spec.md §7 error kind 2: tag the transport
// with the proton:io condition and force the matching half-close cycle.
func (sm *StateMachine) failTransport(cause error, inbound bool) {
	sm.adapter.transport.Condition = &encoding.Error{Condition: ioConditionSymbol, Description: cause.Error()}
	if inbound {
		sm.adapter.transport.CloseTail()
	} else {
		sm.adapter.transport.CloseHead()
	}
	pend := sm.adapter.pending()
	if pend < 0 {
		pend = 0
	}
	sm.adapter.transport.Pop(pend)
}

// --- link registry / transmission (spec.md §4.4, §4.5) ---

func (sm *StateMachine) getSender(address string) *engine.Sender {
	if s, ok := sm.registry.sender(address); ok {
		return s
	}
	session := sm.session.Session()
	if session == nil {
		return nil
	}
	s := engine.NewSender(session, uuid.NewString(), address)
	s.Open()
	return s
}

func (sm *StateMachine) nextTag() []byte {
	sm.nextTagID++
	tag := make([]byte, 4)
	binary.BigEndian.PutUint32(tag, sm.nextTagID)
	return tag
}

// transmitMessages implements spec.md §4.5 exactly: while credit remains,
// pull the next queued message for this sender's address, hand it to the
// engine, and move it to unackedQueue.
func (sm *StateMachine) transmitMessages(sender *engine.Sender) {
	address := sender.Target.Address
	for sender.Credit > 0 {
		msg := sm.queues.pollFirst(address)
		if msg == nil {
			break
		}
		delivery := sender.NewDelivery(sm.nextTag())
		delivery.Context = msg

		func() {
			defer msg.release() // scoped release on every exit path (spec.md §4.5)
			sender.Send(delivery, msg.encodedBuf())
		}()

		msg.setStatus(StatusSent)
		sm.queues.appendUnacked(msg)
		sender.Advance()
	}
}

func (sm *StateMachine) handleRemoteCreatePermissionError(address string) {
	for _, msg := range sm.queues.drain(address) {
		msg.doComplete(StatusAcknowledged)
	}
}

// --- cleanup (spec.md §4.6 connection-final, transport-closed) ---

func (sm *StateMachine) cleanupFinal() {
	pending := append(sm.queues.drainAll(), sm.queues.drainUnacked()...)
	for _, msg := range pending {
		msg.doComplete(StatusRejected)
		msg.release()
	}
	sm.registry.clear()
	sm.session.Close()
	sm.adapter.conn.Context = nil
	if sm.channel != nil {
		sm.channel.Close()
		sm.channel = nil
	}
}

func (sm *StateMachine) freeTransport() {
	if sm.adapter.transport == nil {
		return
	}
	sm.adapter.transport.Unbind()
	sm.adapter.transport.Free()
}

// transportProgress is the "transport" generic-progress handler of
// spec.md §4.6: if the transport already finished closing, run the same
// cleanup transport-closed would; otherwise push any pending bytes to the
// channel.
func (sm *StateMachine) transportProgress() {
	if sm.adapter.transport.Closed() {
		sm.freeTransport()
		return
	}
	if n := sm.adapter.pending(); n > 0 && sm.channel != nil {
		sm.channel.WriteTransport(sm.adapter.transport)
	}
}

// linkAddress resolves the address under which a link is (or should be)
// registered: a sender's target address, or a receiver's target address
// falling back to its source address when the target is empty
// (SPEC_FULL.md Open Questions decision 1).
func linkAddress(sender *engine.Sender, receiver *engine.Receiver) string {
	if sender != nil {
		return sender.Target.Address
	}
	if receiver != nil {
		if receiver.Target != nil && receiver.Target.Address != "" {
			return receiver.Target.Address
		}
		if receiver.Source != nil {
			return receiver.Source.Address
		}
	}
	return ""
}

// --- event dispatch (spec.md §4.6) ---

func (sm *StateMachine) drainEvents() {
	for {
		evt, ok := sm.adapter.nextEvent()
		if !ok {
			return
		}
		sm.handle(evt)
	}
}

// handle is the single dispatch entry point every engine event passes
// through (spec.md design note 9): a closed tagged switch instead of
// virtual dispatch, all state transitions co-located here.
func (sm *StateMachine) handle(evt engine.Event) {
	if evt.Connection != nil && evt.Connection.ID != sm.connID {
		sm.logger.WithField("event", evt.Type.String()).Debug("stale event ignored")
		return
	}

	switch evt.Type {
	case engine.EventConnectionInit:
		sm.logger.Debug("connection-init")

	case engine.EventConnectionLocalOpen:
		session := engine.NewSession(sm.adapter.conn)
		sm.adapter.conn.Session = session
		session.Open()
		sm.session.Init(session)
		for _, addr := range sm.queues.addresses() {
			sm.getSender(addr)
		}

	case engine.EventConnectionLocalClose:
		if sm.session.Value() == SessionActive && sm.session.Session() != nil {
			sm.session.Session().Close()
		}
		// Continues spec.md §2.6's cascade: the transport's own mutual
		// tail/head-closed handlers below drive this through to
		// connection-final, whichever side closed first.
		sm.adapter.transport.CloseTail()

	case engine.EventConnectionUnbound:
		if sm.channel != nil {
			sm.channel.Close()
			sm.channel = nil
		}

	case engine.EventConnectionFinal:
		sm.cleanupFinal()

	case engine.EventTransportHeadClosed:
		sm.adapter.transport.CloseTail()
		sm.transportProgress()

	case engine.EventTransportTailClosed:
		sm.adapter.transport.CloseHead()
		sm.transportProgress()

	case engine.EventTransportClosed:
		sm.freeTransport()

	case engine.EventTransportError:
		if evt.Condition != nil {
			sm.logger.WithField("condition", evt.Condition.Error()).Warn("transport error")
		} else {
			sm.logger.Warn("transport error with no condition")
		}
		sm.transportProgress()

	case engine.EventTransport:
		sm.transportProgress()

	case engine.EventSessionInit, engine.EventSessionLocalOpen:
		sm.logger.WithField("event", evt.Type.String()).Debug("session event")

	case engine.EventSessionLocalClose:
		sm.logger.Debug("session-local-close")
		sm.session.Close()

	case engine.EventSessionFinal:
		sm.session.Close()
		// spec.md §4.6 session-final: force transport cleanup here to
		// guarantee a subsequent connection-final, covering the case
		// where transport-closed was never otherwise triggered (e.g. a
		// remote End arriving without a preceding local/remote Close).
		sm.adapter.transport.CloseTail()

	case engine.EventLinkLocalOpen:
		if evt.Sender != nil {
			sm.registry.putSender(linkAddress(evt.Sender, nil), evt.Sender)
			sm.transmitMessages(evt.Sender)
		} else if evt.Receiver != nil {
			if addr := linkAddress(nil, evt.Receiver); addr != "" {
				sm.registry.putReceiver(addr, evt.Receiver)
			} else {
				sm.logger.Debug("receiver link has no target or source address, not registered")
			}
		}

	case engine.EventLinkRemoteOpen:
		var tgt *encoding.Target
		if evt.Sender != nil {
			tgt = evt.Sender.Target
		} else if evt.Receiver != nil {
			tgt = evt.Receiver.Target
		}
		if encoding.IsTransactionCoordinator(tgt) {
			sm.logger.Debug("remote transaction coordinator accepted")
		}

	case engine.EventLinkRemoteClose:
		sm.onLinkRemoteClose(evt)

	case engine.EventLinkFinal:
		if evt.Sender != nil {
			sm.registry.removeSenderByHandle(evt.Sender)
		} else if evt.Receiver != nil {
			sm.registry.removeReceiverByHandle(evt.Receiver)
		}

	case engine.EventLinkFlow:
		if evt.Sender != nil && evt.Sender.Credit > 0 {
			sm.transmitMessages(evt.Sender)
		}

	case engine.EventDelivery:
		sm.onDelivery(evt)
	}
}

// onLinkRemoteClose implements spec.md §4.6's link-remote-close contract
// and §7 error kind 3 (remote link error policy).
func (sm *StateMachine) onLinkRemoteClose(evt engine.Event) {
	cond := evt.Condition
	if cond == nil {
		return
	}
	desc := cond.Description
	if desc == "" {
		desc = noDescription
	}
	sm.logger.WithField("condition", string(cond.Condition)+": "+desc).Warn("link-remote-close")

	if strings.Contains(desc, permissionDeniedCode) {
		sm.handleRemoteCreatePermissionError(linkAddress(evt.Sender, evt.Receiver))
	}

	sm.adapter.transport.Condition = cond
	sm.adapter.transport.CloseTail()
	pend := sm.adapter.pending()
	if pend < 0 {
		pend = 0
	}
	sm.adapter.transport.Pop(pend)
}

// onDelivery implements spec.md §4.6's delivery handler for both roles.
func (sm *StateMachine) onDelivery(evt engine.Event) {
	d := evt.Delivery
	if evt.Receiver != nil {
		sm.onReceiverDelivery(evt.Receiver, d)
		return
	}
	if evt.Sender != nil {
		sm.onSenderDelivery(d)
	}
}

func (sm *StateMachine) onReceiverDelivery(r *engine.Receiver, d *engine.Delivery) {
	if !d.Readable || d.Partial {
		return
	}
	payload, _ := d.Context.([]byte)
	m, err := decode(func() []byte { return payload })
	if err != nil {
		sm.logger.WithError(err).Warn("delivery decode failed, rejecting")
		r.SettleWith(d, &encoding.StateRejected{Error: &encoding.Error{Condition: "decode-error", Description: err.Error()}})
		return
	}

	if sm.channel == nil {
		r.SettleWith(d, &encoding.StateRejected{})
		return
	}

	props := make(map[string]interface{}, len(m.ApplicationProperties)+1)
	for k, v := range m.ApplicationProperties {
		props[k] = v
	}
	props[ValidatedUserKey] = sm.remoteLegalName

	rm := &ReceivedMessage{
		Payload:               m.Data,
		SourceAddress:         linkAddress(nil, r),
		RemoteLegalName:       sm.remoteLegalName,
		LocalLegalName:        sm.localLegalName,
		ApplicationProperties: props,
		Handle:                d,
	}
	rm.RemoteEndpoint = sm.channel.RemoteEndpoint()
	rm.LocalEndpoint = sm.channel.LocalEndpoint()
	sm.channel.WriteMessage(rm)
}

// SettleReceived lets the upstream caller settle a delivery obtained via
// ReceivedMessage.Handle (spec.md §3: "an opaque handle ... for later
// settlement by upstream").
func (sm *StateMachine) SettleReceived(rm *ReceivedMessage, accepted bool) {
	d, ok := rm.Handle.(*engine.Delivery)
	if !ok || d.Receiver == nil {
		return
	}
	var state encoding.DeliveryState = &encoding.StateReleased{}
	if accepted {
		state = &encoding.StateAccepted{}
	}
	d.Receiver.SettleWith(d, state)
}

func (sm *StateMachine) onSenderDelivery(d *engine.Delivery) {
	status := StatusRejected
	if d.RemotelySettled && encoding.IsAccepted(d.RemoteState) {
		status = StatusAcknowledged
	}
	if msg, ok := d.Context.(*SendableMessage); ok {
		sm.queues.removeUnacked(msg)
		msg.doComplete(status)
	}
	d.Settle()
}
