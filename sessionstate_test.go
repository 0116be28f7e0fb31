package amqpbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corda-net/amqp-bridge/internal/engine"
)

// TestSessionStateMonotone covers P6: the transition graph admits no
// cycles — once Closed, Init must never move it back to Active.
func TestSessionStateMonotone(t *testing.T) {
	var s SessionState
	assert.Equal(t, SessionUninitialized, s.Value())

	conn := engine.NewConnection("CORDA:test", false)
	sess := engine.NewSession(conn)
	s.Init(sess)
	assert.Equal(t, SessionActive, s.Value())
	assert.Same(t, sess, s.Session())

	s.Close()
	assert.Equal(t, SessionClosed, s.Value())
	assert.Nil(t, s.Session())

	// Closed is a sink: idempotent, never regresses to Active.
	s.Close()
	assert.Equal(t, SessionClosed, s.Value())
	s.Init(sess)
	assert.Equal(t, SessionClosed, s.Value())
}
