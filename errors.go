package wirecheck

import (
	"errors"
	"fmt"
)

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("protocol error")

// Structural violations wrapped by ProtocolError.
var (
	// ErrUnknownKind is returned when a frame carries a tag outside the Kind enumeration.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrUnknownAlgorithm is returned when an algorithm name has no binding.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrArity is returned when the argument count does not match the kind's contract.
	ErrArity = errors.New("wrong argument count")
	// ErrMalformedArgument is returned when an argument cannot be parsed into its field.
	ErrMalformedArgument = errors.New("malformed argument")
	// ErrPayloadTooLarge is returned when a text payload exceeds the configured maximum.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Errors surfaced to the harness. The command maps them to process exit codes.
var (
	ErrBind       = errors.New("bind failed")
	ErrConnect    = errors.New("connect failed")
	ErrTestFailed = errors.New("test failed")
)

// Errors returned by connection operations.
var (
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvalidOption is returned when an option value is out of range.
	ErrInvalidOption = errors.New("invalid option")
)

// ProtocolError reports a structural violation of the wire protocol.
// It is never retried: the message that caused it is discarded.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// TestFailure reports which step of a Suite failed and why.
// A nil Err means the peer's data was well formed but judged invalid.
type TestFailure struct {
	Test string
	Err  error
}

func (e *TestFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("test %q failed", e.Test)
	}
	return fmt.Sprintf("test %q failed: %v", e.Test, e.Err)
}

func (e *TestFailure) Unwrap() error { return e.Err }

// Is reports whether target is ErrTestFailed.
func (e *TestFailure) Is(target error) bool { return target == ErrTestFailed }
