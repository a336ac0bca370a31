package libsql

import (
	"errors"
	"fmt"
)

// ErrorType represents the stage of a boundary call that failed
type ErrorType int

const (
	// ErrorTypeUnknown represents an unclassified failure
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeDecode represents a host term that matches no database value kind
	ErrorTypeDecode
	// ErrorTypeOpen represents a failure to construct a local or remote database
	ErrorTypeOpen
	// ErrorTypeConnect represents a failure to derive a connection
	ErrorTypeConnect
	// ErrorTypeQuery represents a failure to submit a statement or read its rows
	ErrorTypeQuery
	// ErrorTypeHandle represents an unknown, released or mismatched handle id
	ErrorTypeHandle
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeDecode:
		return "DecodeError"
	case ErrorTypeOpen:
		return "OpenError"
	case ErrorTypeConnect:
		return "ConnectError"
	case ErrorTypeQuery:
		return "QueryError"
	case ErrorTypeHandle:
		return "HandleError"
	default:
		return "Error"
	}
}

// Error is a failure of a single boundary call. The host only ever sees
// its message.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// NewError creates a new Error with the specified type and message
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with the specified type, message, and underlying cause
func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewDecodeError reports a term that could not be converted to a Value
func NewDecodeError(message string) *Error {
	return NewError(ErrorTypeDecode, message)
}

// NewOpenError wraps a database construction failure
func NewOpenError(message string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeOpen, message, cause)
}

// NewConnectError wraps a connection derivation failure
func NewConnectError(message string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeConnect, message, cause)
}

// NewQueryError wraps a statement or row materialization failure
func NewQueryError(message string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeQuery, message, cause)
}

// NewHandleError wraps a handle lookup failure
func NewHandleError(message string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeHandle, message, cause)
}

// IsErrorType reports whether err (or anything it wraps) is an *Error of
// the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsType(errorType)
	}
	return false
}
