// Package errors provides the coded domain errors of the match engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidAction is returned for an action outside the offered legal set.
	CodeInvalidAction Code = "INVALID_ACTION"
	// CodeInsufficientResource is returned when mana, stamina or spell charges fall short.
	CodeInsufficientResource Code = "INSUFFICIENT_RESOURCE"
	// CodeIllegalSelection is returned for a selection the interaction state does not allow.
	CodeIllegalSelection Code = "ILLEGAL_SELECTION"
	// CodeInternalProcessingFailure wraps anything that went wrong while mutating state.
	CodeInternalProcessingFailure Code = "INTERNAL_PROCESSING_FAILURE"
	// CodeLifecycleViolation is returned for operations against a match in the wrong status.
	CodeLifecycleViolation Code = "LIFECYCLE_VIOLATION"

	// Transport errors
	CodeMatchNotFound  Code = "MATCH_NOT_FOUND"
	CodeUnknownPlayer  Code = "UNKNOWN_PLAYER"
	CodeMalformedInput Code = "MALFORMED_INPUT"
)

// GRPCCode maps a domain code to the status code used in transport envelopes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidAction,
		CodeIllegalSelection,
		CodeMalformedInput:
		return codes.InvalidArgument

	case CodeInsufficientResource:
		return codes.ResourceExhausted

	case CodeLifecycleViolation:
		return codes.FailedPrecondition

	case CodeMatchNotFound:
		return codes.NotFound

	case CodeUnknownPlayer:
		return codes.PermissionDenied

	default:
		return codes.Internal
	}
}

// Surfaced reports whether errors with this code are ever sent to a client.
func (c Code) Surfaced() bool {
	return c != CodeLifecycleViolation
}
