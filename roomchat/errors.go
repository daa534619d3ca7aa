package roomchat

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes client-side failures.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// ErrorConnection covers dial failures and abnormal closes.
	ErrorConnection

	// ErrorReconnectExhausted is terminal: the retry ceiling was reached.
	ErrorReconnectExhausted

	// ErrorDecode marks a malformed inbound frame.
	ErrorDecode

	// ErrorSnapshot marks a failed presence snapshot or history fetch.
	ErrorSnapshot

	// ErrorCommand marks a failed REST command (e.g. force disconnect).
	ErrorCommand

	// ErrorStale marks a result that arrived for a superseded room attach.
	ErrorStale

	// ErrorNotConnected means an operation needs an open session.
	ErrorNotConnected

	// ErrorInvalidConfig means the client was misconfigured.
	ErrorInvalidConfig
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorConnection:
		return "connection_error"
	case ErrorReconnectExhausted:
		return "reconnect_exhausted"
	case ErrorDecode:
		return "decode_error"
	case ErrorSnapshot:
		return "snapshot_error"
	case ErrorCommand:
		return "command_error"
	case ErrorStale:
		return "stale_context"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorInvalidConfig:
		return "invalid_config"
	default:
		return fmt.Sprintf("unknown_code_%d", int(e))
	}
}

// ClientError is a structured error with code and context.
type ClientError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *ClientError) Unwrap() error {
	return e.Wrapped
}

// Is matches two ClientErrors by code.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a ClientError with the given code and message.
func NewError(code ErrorCode, message string) *ClientError {
	return &ClientError{Code: code, Message: message}
}

// WrapError wraps an existing error with a ClientError.
func WrapError(code ErrorCode, message string, err error) *ClientError {
	return &ClientError{Code: code, Message: message, Wrapped: err}
}

// IsTerminal reports whether err means the client gave up reconnecting.
func IsTerminal(err error) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == ErrorReconnectExhausted
}
