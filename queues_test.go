package amqpbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPerAddressFIFO covers P3: messages enqueued to the same address are
// polled back in enqueue order.
func TestPerAddressFIFO(t *testing.T) {
	q := newOutboundQueues()
	m1 := NewSendableMessage("addr1", []byte("1"), nil)
	m2 := NewSendableMessage("addr1", []byte("2"), nil)
	q.enqueue("addr1", m1)
	q.enqueue("addr1", m2)

	require.Equal(t, m1, q.pollFirst("addr1"))
	require.Equal(t, m2, q.pollFirst("addr1"))
	assert.Nil(t, q.pollFirst("addr1"))
}

// TestNoDoubleQueue covers P2: a message moved from messageQueues into
// unackedQueue no longer appears in messageQueues, and removeUnacked takes
// it out by identity, not by scanning for equal content.
func TestNoDoubleQueue(t *testing.T) {
	q := newOutboundQueues()
	m1 := NewSendableMessage("addr1", []byte("1"), nil)
	m2 := NewSendableMessage("addr1", []byte("1"), nil) // same payload as m1, distinct identity

	q.enqueue("addr1", m1)
	polled := q.pollFirst("addr1")
	require.Same(t, m1, polled)
	q.appendUnacked(polled)

	assert.Nil(t, q.pollFirst("addr1"))

	q.appendUnacked(m2)
	require.True(t, q.removeUnacked(m1))
	assert.False(t, q.removeUnacked(m1), "removing the same identity twice must fail")

	remaining := q.drainUnacked()
	require.Len(t, remaining, 1)
	assert.Same(t, m2, remaining[0])
}

func TestDrainAndAddresses(t *testing.T) {
	q := newOutboundQueues()
	q.enqueue("addr_bad", NewSendableMessage("addr_bad", nil, nil))
	q.enqueue("addr_bad", NewSendableMessage("addr_bad", nil, nil))
	q.enqueue("addr_good", NewSendableMessage("addr_good", nil, nil))

	addrs := q.addresses()
	assert.ElementsMatch(t, []string{"addr_bad", "addr_good"}, addrs)

	drained := q.drain("addr_bad")
	assert.Len(t, drained, 2)
	assert.Empty(t, q.drain("addr_bad"))
	assert.ElementsMatch(t, []string{"addr_good"}, q.addresses())
}

func TestQueuesEmpty(t *testing.T) {
	q := newOutboundQueues()
	assert.True(t, q.empty())

	m := NewSendableMessage("addr1", nil, nil)
	q.enqueue("addr1", m)
	assert.False(t, q.empty())

	q.pollFirst("addr1")
	assert.True(t, q.empty())

	q.appendUnacked(m)
	assert.False(t, q.empty())
	q.removeUnacked(m)
	assert.True(t, q.empty())
}
