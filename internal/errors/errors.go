package errors

import (
	stderrors "errors"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidAction             = New(CodeInvalidAction, "invalid action")
	ErrInsufficientResource      = New(CodeInsufficientResource, "insufficient resource")
	ErrIllegalSelection          = New(CodeIllegalSelection, "illegal selection")
	ErrInternalProcessingFailure = New(CodeInternalProcessingFailure, "internal processing failure")
	ErrLifecycleViolation        = New(CodeLifecycleViolation, "lifecycle violation")
)

// GetCode extracts the error code from an error chain.
// Returns CodeUnknown if no domain error is found.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// UserMessage is the text a client may see for err. Internal failures and
// anything uncoded collapse to a generic "invalid action".
func UserMessage(err error) string {
	var e *Error
	if !stderrors.As(err, &e) {
		return "invalid action"
	}
	switch e.Code {
	case CodeInternalProcessingFailure, CodeUnknown:
		return "invalid action"
	case CodeInsufficientResource:
		if r := e.Metadata["resource"]; r != "" {
			return "insufficient " + r
		}
		return "insufficient resources"
	default:
		return e.Message
	}
}
