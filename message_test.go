package amqpbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDoCompleteExactlyOnce covers P1 (terminal-once): the completion
// hook fires exactly once, and a later call with a different status is a
// no-op.
func TestDoCompleteExactlyOnce(t *testing.T) {
	msg := NewSendableMessage("addr1", []byte("hello"), nil)
	var calls []MessageStatus
	msg.OnComplete = func(s MessageStatus) { calls = append(calls, s) }

	msg.doComplete(StatusAcknowledged)
	msg.doComplete(StatusRejected)
	msg.doComplete(StatusAcknowledged)

	require.Len(t, calls, 1)
	assert.Equal(t, StatusAcknowledged, calls[0])
	assert.Equal(t, StatusAcknowledged, msg.Status())
}

// TestReleaseIdempotent covers the release() contract in spec.md §3: safe
// to call more than once, and it drops the buffer reference.
func TestReleaseIdempotent(t *testing.T) {
	msg := NewSendableMessage("addr1", []byte("hello"), nil)
	msg.setBuf([]byte{1, 2, 3})

	msg.release()
	msg.release()

	assert.Nil(t, msg.encodedBuf())
}

func TestMessageStatusString(t *testing.T) {
	assert.Equal(t, "Unsent", StatusUnsent.String())
	assert.Equal(t, "Sent", StatusSent.String())
	assert.Equal(t, "Acknowledged", StatusAcknowledged.String())
	assert.Equal(t, "Rejected", StatusRejected.String())
}
