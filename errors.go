package amqpbridge

import "github.com/pkg/errors"

// EncodeError wraps a failure to serialize a SendableMessage (spec.md §7
// error kind 1). It never crosses the public API: transportWriteMessage
// catches it internally and completes the message as Rejected.
type EncodeError struct {
	cause error
}

func (e *EncodeError) Error() string {
	return errors.Wrap(e.cause, "amqpbridge: encode failed").Error()
}

func (e *EncodeError) Unwrap() error { return e.cause }

func newEncodeError(cause error) *EncodeError {
	return &EncodeError{cause: cause}
}

// ioConditionSymbol is the proton-style condition symbol attached to the
// transport when an input or output exception occurs (spec.md §7 error
// kind 2).
const ioConditionSymbol = "proton:io"

// permissionDeniedCode is the well-known remote condition substring that
// marks "destination address cannot be created on peer" (spec.md §6, §7
// error kind 3).
const permissionDeniedCode = "AMQ119032"

// noDescription is substituted for a missing/empty remote condition
// description so link-remote-close handling never branches on a nil
// string (SPEC_FULL.md Open Questions decision 2).
const noDescription = "remote closed link with no description"
