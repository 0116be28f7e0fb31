package engine

import (
	"github.com/corda-net/amqp-bridge/internal/encoding"
	"github.com/corda-net/amqp-bridge/internal/frames"
)

// saslState drives the PLAIN/ANONYMOUS negotiation described in spec.md
// §4.7, ahead of the AMQP frame layer starting. Authentication policy
// (verifying PLAIN credentials) belongs to a higher layer; this engine
// only negotiates the mechanism and, in server role, signals success
// immediately.
type saslState struct {
	serverMode bool
	mechanism  encoding.Symbol
	username   string
	password   string
	done       bool
}

func newSASL(serverMode bool, username, password string) *saslState {
	mech := encoding.Symbol("ANONYMOUS")
	if username != "" {
		mech = "PLAIN"
	}
	return &saslState{serverMode: serverMode, mechanism: mech, username: username, password: password}
}

// negotiateSASL queues this side's opening SASL frames. Server role advertises
// mechanisms and, since authentication policy lives upstream, signals
// PN_SASL_OK immediately. Client role advertises its chosen mechanism and
// an initial response built from the PLAIN/ANONYMOUS credentials.
func (t *Transport) negotiateSASL() {
	s := t.sasl
	if s == nil {
		return
	}
	if s.serverMode {
		t.enqueueSASL(&frames.SASLMechanisms{Mechanisms: []encoding.Symbol{s.mechanism}})
		t.enqueueSASL(&frames.SASLOutcome{Code: 0}) // PN_SASL_OK
		s.done = true
		return
	}
	initial := []byte(s.username)
	if s.mechanism == "PLAIN" {
		initial = append([]byte{0}, append([]byte(s.username), append([]byte{0}, []byte(s.password)...)...)...)
	}
	t.enqueueSASL(&frames.SASLInit{Mechanism: s.mechanism, InitialResponse: initial})
	s.done = true
}
