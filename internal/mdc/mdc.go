// Package mdc builds the mapped-diagnostic-context logrus.Entry every
// component logs through (spec.md §7: "errors are logged with an MDC
// carrying serverMode, localLegalName, remoteLegalName, and a connection
// identifier"). Design note 9 asks for a context struct threaded through
// the logger rather than thread-local state; since this state machine is
// single-threaded per connection (spec.md §5) that struct collapses to one
// logrus.Entry built once at adapter construction and passed down.
package mdc

import "github.com/sirupsen/logrus"

// New builds the per-connection diagnostic entry. connID is the engine
// arena id (design note 9), not a socket fd or similar externally visible
// identifier.
func New(base *logrus.Logger, serverMode bool, localLegalName, remoteLegalName string, connID int64) *logrus.Entry {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return base.WithFields(logrus.Fields{
		"serverMode":      serverMode,
		"localLegalName":  localLegalName,
		"remoteLegalName": remoteLegalName,
		"connID":          connID,
	})
}

// WithRemoteLegalName returns a derived entry once the remote peer's legal
// name becomes known (it is not available at construction time, only after
// SASL/application-level identification completes upstream).
func WithRemoteLegalName(entry *logrus.Entry, remoteLegalName string) *logrus.Entry {
	return entry.WithField("remoteLegalName", remoteLegalName)
}
