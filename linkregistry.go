package amqpbridge

import "github.com/corda-net/amqp-bridge/internal/engine"

// linkRegistry holds the per-address sender/receiver maps of spec.md §2.4
// and §3. Senders are created lazily by getSender; receivers are recorded
// only when the remote attaches to us (spec.md §4.4).
type linkRegistry struct {
	senders   map[string]*engine.Sender
	receivers map[string]*engine.Receiver
}

func newLinkRegistry() *linkRegistry {
	return &linkRegistry{
		senders:   make(map[string]*engine.Sender),
		receivers: make(map[string]*engine.Receiver),
	}
}

func (r *linkRegistry) sender(address string) (*engine.Sender, bool) {
	s, ok := r.senders[address]
	return s, ok
}

func (r *linkRegistry) putSender(address string, s *engine.Sender) {
	r.senders[address] = s
}

func (r *linkRegistry) removeSenderByHandle(handle *engine.Sender) {
	for addr, s := range r.senders {
		if s == handle {
			delete(r.senders, addr)
			return
		}
	}
}

func (r *linkRegistry) putReceiver(address string, rcv *engine.Receiver) {
	r.receivers[address] = rcv
}

func (r *linkRegistry) removeReceiverByHandle(handle *engine.Receiver) {
	for addr, rc := range r.receivers {
		if rc == handle {
			delete(r.receivers, addr)
			return
		}
	}
}

// empty reports whether both maps are empty, used by the P5 cleanup-
// totality check after connection-final.
func (r *linkRegistry) empty() bool {
	return len(r.senders) == 0 && len(r.receivers) == 0
}

func (r *linkRegistry) clear() {
	r.senders = make(map[string]*engine.Sender)
	r.receivers = make(map[string]*engine.Receiver)
}
