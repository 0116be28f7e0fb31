package amqpbridge

import "container/list"

// outboundQueues implements spec.md §3's messageQueues (per-address FIFO)
// and unackedQueue (FIFO by send order, random-access removal by
// identity). Design note 9 rules out an array-backed ring because
// settlement order is not strictly send order under failure; container/
// list gives the same intrusive-list behavior without a hand-rolled
// linked structure — each *list.Element IS the removal handle, so removal
// by identity is O(1) instead of a linear scan.
//
// No third-party queue/list library appears anywhere in the retrieved
// pack; container/list is the standard-library equivalent of exactly the
// intrusive doubly-linked list the design note calls for, so it is used
// directly rather than hand-rolling one (see DESIGN.md).
type outboundQueues struct {
	messageQueues map[string]*list.List
	unacked       *list.List
	unackedIndex  map[*SendableMessage]*list.Element
}

func newOutboundQueues() *outboundQueues {
	return &outboundQueues{
		messageQueues: make(map[string]*list.List),
		unacked:       list.New(),
		unackedIndex:  make(map[*SendableMessage]*list.Element),
	}
}

func (q *outboundQueues) enqueue(address string, msg *SendableMessage) {
	l, ok := q.messageQueues[address]
	if !ok {
		l = list.New()
		q.messageQueues[address] = l
	}
	l.PushBack(msg)
}

// pollFirst removes and returns the oldest queued message for address, or
// nil if none is queued.
func (q *outboundQueues) pollFirst(address string) *SendableMessage {
	l, ok := q.messageQueues[address]
	if !ok || l.Len() == 0 {
		return nil
	}
	front := l.Front()
	l.Remove(front)
	return front.Value.(*SendableMessage)
}

// drain removes and returns every message queued for address, in FIFO
// order, used by the address-create permission-error path (spec.md §4.6)
// which must empty the queue after marking each message Acknowledged.
func (q *outboundQueues) drain(address string) []*SendableMessage {
	l, ok := q.messageQueues[address]
	if !ok {
		return nil
	}
	out := make([]*SendableMessage, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*SendableMessage))
	}
	l.Init()
	return out
}

// addresses lists every address with a non-empty queue, used to call
// getSender for each on connection-local-open (spec.md §4.6).
func (q *outboundQueues) addresses() []string {
	out := make([]string, 0, len(q.messageQueues))
	for addr, l := range q.messageQueues {
		if l.Len() > 0 {
			out = append(out, addr)
		}
	}
	return out
}

func (q *outboundQueues) appendUnacked(msg *SendableMessage) {
	e := q.unacked.PushBack(msg)
	q.unackedIndex[msg] = e
}

// removeUnacked removes msg from unackedQueue by identity in O(1), per
// spec.md §4.5/§8 P2 and P4.
func (q *outboundQueues) removeUnacked(msg *SendableMessage) bool {
	e, ok := q.unackedIndex[msg]
	if !ok {
		return false
	}
	q.unacked.Remove(e)
	delete(q.unackedIndex, msg)
	return true
}

// drainUnacked removes and returns every in-flight message, used by
// connection-final cleanup (spec.md §4.6).
func (q *outboundQueues) drainUnacked() []*SendableMessage {
	out := make([]*SendableMessage, 0, q.unacked.Len())
	for e := q.unacked.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*SendableMessage))
	}
	q.unacked.Init()
	q.unackedIndex = make(map[*SendableMessage]*list.Element)
	return out
}

// drainAll empties every address queue, returning messages in FIFO order
// within each address (order across addresses is unspecified, matching
// spec.md §5's "no cross-address ordering is promised").
func (q *outboundQueues) drainAll() []*SendableMessage {
	var out []*SendableMessage
	for addr := range q.messageQueues {
		out = append(out, q.drain(addr)...)
	}
	return out
}

// empty reports whether both messageQueues and unackedQueue are empty,
// used by the P5 cleanup-totality check.
func (q *outboundQueues) empty() bool {
	if q.unacked.Len() != 0 {
		return false
	}
	for _, l := range q.messageQueues {
		if l.Len() != 0 {
			return false
		}
	}
	return true
}
