package controller

import (
	"errors"
	"fmt"
)

// Normalized controller errors. Transport failures are propagated as-is and
// never downgraded to one of these.
var (
	// ErrNotConnected is returned when an operation is attempted before
	// Connect or after Disconnect.
	ErrNotConnected = errors.New("NOT_CONNECTED")

	// ErrInvalidArgument is returned when a ramp is requested with a
	// non-positive step or a negative dwell, before any command is sent.
	ErrInvalidArgument = errors.New("INVALID_ARGUMENT")
)

// ProtocolError reports a response that could not be parsed into the
// expected type. It preserves the command and the raw response text for
// diagnosis.
type ProtocolError struct {
	Command  string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("PROTOCOL_ERROR: command %q got unparsable response %q", e.Command, e.Response)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// outcomeToken maps an operation result to the normalized code recorded in
// the audit log.
func outcomeToken(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrNotConnected):
		return "NOT_CONNECTED"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	default:
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return "PROTOCOL_ERROR"
		}
		return "TRANSPORT_FAILURE"
	}
}
