package engine

import (
	"time"

	"github.com/corda-net/amqp-bridge/internal/buffer"
	"github.com/corda-net/amqp-bridge/internal/encoding"
	"github.com/corda-net/amqp-bridge/internal/frames"
)

// pendingFrame is a performative queued for emission but not yet
// serialized; Pending() is what actually drives frame generation
// (spec.md §4.2), matching proton's lazy pn_transport_pending semantics.
type pendingFrame struct {
	typ     uint8
	channel uint16
	body    frames.FrameBody
}

// Transport wraps a Connection's byte-level protocol state: the input/
// output buffers, idle timeout and max-frame-size configuration, and the
// SASL layer negotiated ahead of the AMQP frame stream.
type Transport struct {
	conn         *Connection
	IdleTimeout  time.Duration
	MaxFrameSize uint32

	input   *buffer.Buffer
	output  *buffer.Buffer
	pending []pendingFrame

	sasl *saslState

	Condition *encoding.Error

	headClosed bool
	tailClosed bool
	closed     bool
	freed      bool
}

// NewTransport allocates a Transport for conn with the given idle-timeout
// and max-frame-size (spec.md §4.2, defaults 10000ms / 131072 bytes,
// overridden via AmqpIdleTimeout / AmqpMaxFrameSize).
func NewTransport(conn *Connection, idleTimeout time.Duration, maxFrameSize uint32) *Transport {
	return &Transport{
		conn:         conn,
		IdleTimeout:  idleTimeout,
		MaxFrameSize: maxFrameSize,
		input:        buffer.Acquire(),
		output:       buffer.Acquire(),
	}
}

// Bind attaches t to its connection.
func (t *Transport) Bind() {
	t.conn.Transport = t
}

// ConfigureSASL sets up the PLAIN/ANONYMOUS mechanism per spec.md §4.7 and
// queues this side's opening SASL frame(s).
func (t *Transport) ConfigureSASL(username, password string) {
	t.sasl = newSASL(t.conn.ServerMode, username, password)
	t.negotiateSASL()
}

func (t *Transport) enqueue(channel uint16, body frames.FrameBody) {
	t.pending = append(t.pending, pendingFrame{typ: frames.TypeAMQP, channel: channel, body: body})
}

func (t *Transport) enqueueSASL(body frames.FrameBody) {
	t.pending = append(t.pending, pendingFrame{typ: frames.TypeSASL, channel: 0, body: body})
}

func (t *Transport) queueOpen(c *Connection) {
	t.enqueue(0, &frames.PerformOpen{
		ContainerID:  c.ContainerID,
		MaxFrameSize: t.MaxFrameSize,
		IdleTimeout:  uint32(t.IdleTimeout / time.Millisecond),
	})
}

func (t *Transport) queueBegin(s *Session) {
	t.enqueue(s.Channel, &frames.PerformBegin{NextOutgoingID: 0})
}

func (t *Transport) queueEnd(s *Session, cond *encoding.Error) {
	t.enqueue(s.Channel, &frames.PerformEnd{Error: cond})
}

func (t *Transport) queueAttach(s *Session, handle uint32, name string, role encoding.Role, ssm encoding.SenderSettleMode, rsm encoding.ReceiverSettleMode, src *encoding.Source, tgt *encoding.Target) {
	t.enqueue(s.Channel, &frames.PerformAttach{
		Name:               name,
		Handle:             handle,
		Role:               role,
		SenderSettleMode:   ssm,
		ReceiverSettleMode: rsm,
		Source:             src,
		Target:             tgt,
	})
}

func (t *Transport) queueFlow(s *Session, handle uint32, credit uint32) {
	h := handle
	c := credit
	t.enqueue(s.Channel, &frames.PerformFlow{Handle: &h, LinkCredit: &c})
}

func (t *Transport) queueTransfer(s *Session, handle uint32, d *Delivery, payload []byte) {
	t.enqueue(s.Channel, &frames.PerformTransfer{
		Handle:      handle,
		DeliveryID:  d.ID,
		DeliveryTag: d.Tag,
		Payload:     payload,
	})
}

func (t *Transport) queueDisposition(s *Session, role encoding.Role, deliveryID uint32, state encoding.DeliveryState) {
	t.enqueue(s.Channel, &frames.PerformDisposition{Role: role, First: deliveryID, Last: deliveryID, Settled: true, State: state})
}

func (t *Transport) queueDetach(s *Session, handle uint32, closed bool, cond *encoding.Error) {
	t.enqueue(s.Channel, &frames.PerformDetach{Handle: handle, Closed: closed, Error: cond})
}

func (t *Transport) queueClose(cond *encoding.Error) {
	t.enqueue(0, &frames.PerformClose{Error: cond})
}

// Pending serializes every queued performative into the output buffer and
// returns its current length — the side effect spec.md §4.2 describes.
func (t *Transport) Pending() int {
	for _, pf := range t.pending {
		_ = frames.WriteFrame(t.output, frames.Header{Type: pf.typ, Channel: pf.channel}, pf.body)
	}
	t.pending = t.pending[:0]
	return t.output.Len()
}

// Output pops up to max bytes of serialized output.
func (t *Transport) Output(max int) []byte {
	if max <= 0 {
		max = t.output.Len()
	}
	return append([]byte(nil), t.output.Next(max)...)
}

// ProcessInput feeds raw inbound bytes into the transport and dispatches
// any complete frames they produce. It never returns an error for
// incomplete data — only for genuinely malformed input — matching
// spec.md §4.6's "on any exception" input-error path.
func (t *Transport) ProcessInput(p []byte) error {
	t.input.Write(p)
	for {
		hdr, body, err := frames.ReadFrame(t.input)
		if err == frames.ErrIncomplete {
			return nil
		}
		if err != nil {
			return err
		}
		t.dispatch(hdr, body)
	}
}

func (t *Transport) dispatch(hdr frames.Header, body frames.FrameBody) {
	if hdr.Type == frames.TypeSASL {
		return // SASL handshake is fire-and-forget in this simulation
	}
	switch fr := body.(type) {
	case *frames.PerformOpen:
		if t.conn.ServerMode && !t.conn.LocalOpen {
			t.conn.Open()
		}
	case *frames.PerformBegin:
		// nothing further required: our own session is opened as part of
		// connection-local-open, mirroring spec.md's lifecycle text.
	case *frames.PerformAttach:
		t.onAttach(fr)
	case *frames.PerformFlow:
		t.onFlow(fr)
	case *frames.PerformTransfer:
		t.onTransfer(fr)
	case *frames.PerformDisposition:
		t.onDisposition(fr)
	case *frames.PerformDetach:
		t.onDetach(fr)
	case *frames.PerformEnd:
		if t.conn.Session != nil && !t.conn.Session.Closed {
			t.conn.Session.Close()
			t.conn.Collector.put(Event{Type: EventSessionFinal, Connection: t.conn, Session: t.conn.Session})
		}
	case *frames.PerformClose:
		t.conn.Close()
	}
}

func (t *Transport) onAttach(fr *frames.PerformAttach) {
	s := t.conn.Session
	if s == nil {
		return
	}
	if fr.Role == encoding.RoleSender {
		// remote opened a sender targeting us: auto-create the reciprocal
		// receiver (spec.md §4.4: receivers are created by the remote
		// attaching, never by the state machine).
		r := &Receiver{
			Session:            s,
			Name:               fr.Name,
			Handle:             s.allocHandle(),
			RemoteHandle:       fr.Handle,
			Source:             fr.Source,
			Target:             fr.Target,
			SenderSettleMode:   fr.SenderSettleMode,
			ReceiverSettleMode: fr.ReceiverSettleMode,
		}
		s.remoteHandles[fr.Handle] = r
		r.Open()
		t.conn.Collector.put(Event{Type: EventLinkRemoteOpen, Connection: t.conn, Session: s, Receiver: r})
		return
	}
	// role == receiver: this is the remote's response to one of our senders
	if v, ok := s.linksByName[fr.Name]; ok {
		if snd, ok := v.(*Sender); ok {
			s.remoteHandles[fr.Handle] = snd
			t.conn.Collector.put(Event{Type: EventLinkRemoteOpen, Connection: t.conn, Session: s, Sender: snd})
		}
	}
}

func (t *Transport) onFlow(fr *frames.PerformFlow) {
	s := t.conn.Session
	if s == nil || fr.Handle == nil {
		return
	}
	v, ok := s.remoteHandles[*fr.Handle]
	if !ok {
		return
	}
	snd, ok := v.(*Sender)
	if !ok {
		return
	}
	if fr.LinkCredit != nil {
		snd.Credit = *fr.LinkCredit
	}
	t.conn.Collector.put(Event{Type: EventLinkFlow, Connection: t.conn, Session: s, Sender: snd})
}

func (t *Transport) onTransfer(fr *frames.PerformTransfer) {
	s := t.conn.Session
	if s == nil {
		return
	}
	v, ok := s.remoteHandles[fr.Handle]
	if !ok {
		return
	}
	r, ok := v.(*Receiver)
	if !ok {
		return
	}
	d := &Delivery{Tag: fr.DeliveryTag, ID: fr.DeliveryID, Receiver: r, Readable: true, Partial: false, Context: fr.Payload}
	t.conn.Collector.put(Event{Type: EventDelivery, Connection: t.conn, Session: s, Receiver: r, Delivery: d})
}

func (t *Transport) onDisposition(fr *frames.PerformDisposition) {
	s := t.conn.Session
	if s == nil || fr.Role != encoding.RoleReceiver {
		return
	}
	// fr.First/Last address a range of delivery IDs; every sender's
	// deliveries map is searched since the frame carries no handle.
	for h := range s.remoteHandles {
		snd, ok := s.remoteHandles[h].(*Sender)
		if !ok {
			continue
		}
		for id := fr.First; id <= fr.Last; id++ {
			if d, ok := snd.deliveries[id]; ok {
				d.RemotelySettled = fr.Settled
				d.RemoteState = fr.State
				t.conn.Collector.put(Event{Type: EventDelivery, Connection: t.conn, Session: s, Sender: snd, Delivery: d})
			}
		}
	}
}

func (t *Transport) onDetach(fr *frames.PerformDetach) {
	s := t.conn.Session
	if s == nil {
		return
	}
	v, ok := s.links[fr.Handle]
	if !ok {
		return
	}
	switch l := v.(type) {
	case *Sender:
		t.conn.Collector.put(Event{Type: EventLinkRemoteClose, Connection: t.conn, Session: s, Sender: l, Condition: fr.Error})
		t.conn.Collector.put(Event{Type: EventLinkFinal, Connection: t.conn, Session: s, Sender: l})
	case *Receiver:
		t.conn.Collector.put(Event{Type: EventLinkRemoteClose, Connection: t.conn, Session: s, Receiver: l, Condition: fr.Error})
		t.conn.Collector.put(Event{Type: EventLinkFinal, Connection: t.conn, Session: s, Receiver: l})
	}
}

// CloseTail stops accepting further input (spec.md §4.6 transport-head-
// closed handler calls this) and emits transport-tail-closed once.
func (t *Transport) CloseTail() {
	if t.tailClosed {
		return
	}
	t.tailClosed = true
	t.conn.Collector.put(Event{Type: EventTransportTailClosed, Connection: t.conn})
	t.maybeMarkClosed()
}

// CloseHead stops producing further output and emits transport-head-closed
// once.
func (t *Transport) CloseHead() {
	if t.headClosed {
		return
	}
	t.headClosed = true
	t.conn.Collector.put(Event{Type: EventTransportHeadClosed, Connection: t.conn})
	t.maybeMarkClosed()
}

// maybeMarkClosed continues spec.md §2.6's cascade (tail-close → head-
// close → connection-final → transport-close) once both halves have
// unwound, so reaching this point never depends on some other caller
// remembering to call MarkClosed explicitly.
func (t *Transport) maybeMarkClosed() {
	if t.headClosed && t.tailClosed {
		t.MarkClosed()
	}
}

// MarkClosed finalizes the owning connection and then records that both
// head and tail have unwound, in that order, matching spec.md §2.6's
// cascade text ("...connection-final → transport-close").
func (t *Transport) MarkClosed() {
	if t.closed {
		return
	}
	t.closed = true
	t.conn.finalize()
	t.conn.Collector.put(Event{Type: EventTransportClosed, Connection: t.conn})
}

func (t *Transport) Closed() bool { return t.closed }

// Unbind detaches the transport from its connection.
func (t *Transport) Unbind() {
	t.conn.Transport = nil
}

// Free releases the transport's pooled buffers. Idempotent.
func (t *Transport) Free() {
	if t.freed {
		return
	}
	t.freed = true
	buffer.Release(t.input)
	buffer.Release(t.output)
}

// Pop discards up to n bytes of not-yet-sent output, simulating proton's
// pn_transport_pop used to force a head-close cycle after an I/O error.
func (t *Transport) Pop(n int) {
	if n <= 0 {
		return
	}
	t.output.Next(n)
}
