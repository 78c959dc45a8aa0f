// Package apperr provides standardized domain error types for the application.
// External clients translate transport and protocol failures into these typed
// errors so the dispute engine can decide between retrying, failing a single
// record, or aborting the whole run.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found. Callers treat it as a signal, not a failure.
	KindNotFound
	// KindValidation indicates malformed input or an inconsistent cross-system reference.
	KindValidation
	// KindConnectivity indicates a transient transport fault (refused, reset, 5xx, throttled).
	KindConnectivity
	// KindTimeout indicates a transport fault caused by a deadline or upstream timeout.
	KindTimeout
	// KindUnauthorized indicates rejected credentials. Fatal for the whole run.
	KindUnauthorized
	// KindConflict indicates a conflict with existing state (e.g., a run already in progress).
	KindConflict
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindNotFound:     "not_found",
	KindValidation:   "validation",
	KindConnectivity: "connectivity",
	KindTimeout:      "timeout",
	KindUnauthorized: "unauthorized",
	KindConflict:     "conflict",
	KindInternal:     "internal",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a data validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Connectivity creates a transient connectivity error.
func Connectivity(message string, err error) *Error {
	return Wrap(KindConnectivity, message, err)
}

// Timeout creates a transient timeout error.
func Timeout(message string, err error) *Error {
	return Wrap(KindTimeout, message, err)
}

// Unauthorized creates an authentication error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}

// IsTransient reports whether err is a connectivity or timeout fault worth retrying.
func IsTransient(err error) bool {
	switch GetKind(err) {
	case KindConnectivity, KindTimeout:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err must halt the entire run.
func IsFatal(err error) bool {
	return Is(err, KindUnauthorized)
}
