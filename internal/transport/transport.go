// Package transport defines the narrow channel contract the controller
// talks through, plus the concrete bindings: a Prologix USB-GPIB controller
// for real hardware and a newline-delimited TCP client for an instrument
// LAN port or the emulator daemon.
//
// A transport is single-owner and strictly ordered: the protocol carries no
// operation identifiers, so a Query must return the response to that exact
// command. Sharing one transport between controllers is unsupported.
package transport

import "errors"

// ErrNotOpen is returned when a transport is used before Open or after
// Close.
var ErrNotOpen = errors.New("transport is not open")

// Transport is the line-oriented channel to one instrument.
type Transport interface {
	// Open establishes the session.
	Open() error

	// Close releases the session.
	Close() error

	// Write sends a command without expecting a response.
	Write(command string) error

	// Query sends a command and blocks for a single response line, trimmed
	// of surrounding whitespace.
	Query(command string) (string, error)
}
