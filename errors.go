package camilladsp

import (
	"errors"
	"fmt"
)

// Every client operation fails with exactly one of the following kinds.
// Callers tell them apart with errors.Is / errors.As, or with KindOf:
//
//   - *ConnectionRefusedError: the engine could not be reached at connect time
//   - ErrNotConnected: no live stream, nothing was sent
//   - *IOError: the stream broke during an exchange; the client is disconnected
//   - *ProtocolError: the engine sent something unparseable or uncorrelated;
//     the connection stays usable
//   - *CamillaError: the engine understood the command and rejected it;
//     the connection stays usable

// ErrNotConnected is returned when an operation is attempted without a live stream.
var ErrNotConnected = errors.New("camilladsp: not connected")

// ConnectionRefusedError reports a failure to establish the connection, either
// at the transport level or during the version handshake.
//
// Connection handling: nothing is open; call Connect again to retry.
type ConnectionRefusedError struct {
	Addr string
	Err  error
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("camilladsp: connection to %s refused: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionRefusedError) Unwrap() error {
	return e.Err
}

// ShouldReconnect returns true - nothing is connected
func (e *ConnectionRefusedError) ShouldReconnect() bool {
	return true
}

// IOError wraps a transport failure during send or receive.
//
// Common causes:
//   - Engine restarted or crashed
//   - Network drop
//   - Caller deadline expired while waiting for a reply
//   - Disconnect called while an exchange was blocked
//
// Connection handling: the client is already disconnected, RECONNECT explicitly
type IOError struct {
	Op      string // "send" or "receive"
	Command string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("camilladsp: lost connection during %s of %s: %v", e.Op, e.Command, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *IOError) Unwrap() error {
	return e.Err
}

// ShouldReconnect returns true - the stream is gone
func (e *IOError) ShouldReconnect() bool {
	return true
}

// ProtocolError reports a reply that could not be parsed, did not answer the
// outstanding command, or carried a value of the wrong shape. It is also used
// when a request cannot be encoded.
//
// Connection handling: the stream is intact and can be REUSED
type ProtocolError struct {
	Command string
	Message string
	Err     error // Underlying error, if any
}

func (e *ProtocolError) Error() string {
	msg := "camilladsp: protocol violation in " + e.Command + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ShouldReconnect returns false - the transport is still healthy
func (e *ProtocolError) ShouldReconnect() bool {
	return false
}

// CamillaError is the engine's explicit rejection of a command, for example an
// invalid configuration. Message is the engine's text, verbatim.
//
// Connection handling: the connection can be REUSED
type CamillaError struct {
	Command string
	Message string
}

func (e *CamillaError) Error() string {
	return e.Message
}

// ShouldReconnect returns false - the engine answered
func (e *CamillaError) ShouldReconnect() bool {
	return false
}

// ErrorWithConnectionState is implemented by the error kinds that know whether
// the connection survived them.
type ErrorWithConnectionState interface {
	error
	ShouldReconnect() bool
}

// ShouldReconnect reports whether err leaves the client without a usable
// connection. It is true for ErrNotConnected, *ConnectionRefusedError and
// *IOError, false for *ProtocolError, *CamillaError and nil.
//
// Usage:
//
//	state, err := client.GetState(ctx)
//	if camilladsp.ShouldReconnect(err) {
//	    err = client.Connect(ctx)
//	}
func ShouldReconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldReconnect()
	}

	// Unknown error type - be conservative and reconnect
	return true
}

// Kind classifies client errors.
type Kind int

const (
	KindNone Kind = iota
	KindConnectionRefused
	KindNotConnected
	KindIO
	KindProtocol
	KindCamilla
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectionRefused:
		return "connection refused"
	case KindNotConnected:
		return "not connected"
	case KindIO:
		return "io failure"
	case KindProtocol:
		return "protocol violation"
	case KindCamilla:
		return "camilla error"
	default:
		return "other"
	}
}

// KindOf returns the kind of err. Errors not produced by this package are KindOther.
func KindOf(err error) Kind {
	var (
		refused  *ConnectionRefusedError
		ioErr    *IOError
		protoErr *ProtocolError
		camilla  *CamillaError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &refused):
		return KindConnectionRefused
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.As(err, &ioErr):
		return KindIO
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.As(err, &camilla):
		return KindCamilla
	default:
		return KindOther
	}
}
