package protocol

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a protocol-level failure.
// The connection reader decides per type whether to drop a frame or
// terminate the connection.
type ErrorType int

const (
	// ErrTypeUnknown is returned by TypeOf for errors that are not *Error
	ErrTypeUnknown ErrorType = iota
	// ErrTypeHandshake indicates a missing or malformed upgrade request
	ErrTypeHandshake
	// ErrTypeProtocolViolation indicates a malformed frame or bad frame sequencing
	ErrTypeProtocolViolation
	// ErrTypeOversizedPayload indicates a frame or message above the configured ceiling
	ErrTypeOversizedPayload
	// ErrTypeTransport indicates a read or write failure on the underlying stream
	ErrTypeTransport
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeHandshake:
		return "Handshake Failure"
	case ErrTypeProtocolViolation:
		return "Protocol Violation"
	case ErrTypeOversizedPayload:
		return "Oversized Payload"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Reasons wrapped by *Error. Use errors.Is to test for a specific reason and
// the Is* helpers to test for the category.
var (
	ErrMissingKey             = errors.New("missing Sec-WebSocket-Key")
	ErrMalformedKey           = errors.New("malformed Sec-WebSocket-Key")
	ErrInvalidOpcode          = errors.New("invalid opcode")
	ErrReservedBits           = errors.New("reserved bits set without negotiated extension")
	ErrUnmaskedFrame          = errors.New("unmasked client frame")
	ErrFragmentedControl      = errors.New("fragmented control frame")
	ErrControlTooLarge        = errors.New("control frame payload exceeds 125 bytes")
	ErrLengthOverflow         = errors.New("64-bit payload length has the most significant bit set")
	ErrUnexpectedContinuation = errors.New("continuation frame without a message in progress")
	ErrMessageInProgress      = errors.New("new data frame while a fragmented message is in progress")
	ErrInvalidClosePayload    = errors.New("invalid close frame payload")
	ErrInvalidUTF8            = errors.New("text message is not valid UTF-8")
	ErrFrameTooLarge          = errors.New("frame payload exceeds limit")
	ErrMessageTooLarge        = errors.New("message payload exceeds limit")
	ErrShortBuffer            = errors.New("decoder step given wrong number of bytes")
)

// Error is a classified WebSocket failure.
type Error struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable context
	CloseCode CloseCode // Status code to send in the Close frame (0 = none)
	Err       error     // Underlying reason or transport error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return fmt.Sprintf("websocket: %s: %v", e.Type, e.Err)
		}
		return fmt.Sprintf("websocket: %s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("websocket: %s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewHandshakeError wraps a handshake failure reason.
func NewHandshakeError(reason error, msg string) *Error {
	return &Error{Type: ErrTypeHandshake, Message: msg, Err: reason}
}

// NewProtocolError wraps a protocol violation reason. The close code is 1002
// unless the reason maps to a more specific status.
func NewProtocolError(reason error, msg string) *Error {
	code := CloseProtocolError
	if errors.Is(reason, ErrInvalidUTF8) {
		code = CloseInvalidPayload
	}
	return &Error{Type: ErrTypeProtocolViolation, Message: msg, CloseCode: code, Err: reason}
}

// NewOversizedError wraps a size-limit failure.
func NewOversizedError(reason error, size, limit uint64) *Error {
	return &Error{
		Type:      ErrTypeOversizedPayload,
		Message:   fmt.Sprintf("%d bytes, limit %d", size, limit),
		CloseCode: CloseMessageTooBig,
		Err:       reason,
	}
}

// NewTransportError wraps a read or write failure on the stream.
func NewTransportError(err error, msg string) *Error {
	return &Error{Type: ErrTypeTransport, Message: msg, Err: err}
}

// TypeOf returns the ErrorType of err, or ErrTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrTypeUnknown
}

// IsHandshakeFailure reports whether err is a handshake failure
func IsHandshakeFailure(err error) bool { return TypeOf(err) == ErrTypeHandshake }

// IsProtocolViolation reports whether err is a protocol violation
func IsProtocolViolation(err error) bool { return TypeOf(err) == ErrTypeProtocolViolation }

// IsOversized reports whether err is an oversized payload error
func IsOversized(err error) bool { return TypeOf(err) == ErrTypeOversizedPayload }

// IsTransport reports whether err is a transport error
func IsTransport(err error) bool { return TypeOf(err) == ErrTypeTransport }

// CloseCodeFor returns the status code a server should send before closing
// because of err. Unclassified errors map to CloseInternalError.
func CloseCodeFor(err error) CloseCode {
	var e *Error
	if errors.As(err, &e) && e.CloseCode != 0 {
		return e.CloseCode
	}
	return CloseInternalError
}
