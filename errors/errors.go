// Package errors provides error handling for entres.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping with context, and safe details, and defines the error
// taxonomy used by the resolution engine:
//
//   - ErrInvalidRequest: malformed input, invalid model, unknown attribute type
//   - ErrNotFound: the referenced entity type has no model
//   - ErrBackend: a document store query failed (ErrTimeout is a backend timeout)
//   - ErrCancelled: the caller cancelled the job
//   - ErrInternal: unexpected failure inside merge or aggregation
//
// Usage:
//
//	if err := store.Search(ctx, req); err != nil {
//	    return errors.WrapBackend(err, "search users")
//	}
//
//	switch errors.Classify(err) {
//	case errors.TypeValidation:
//	    // 400
//	}
package errors

import (
	"context"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf   = crdb.AssertionFailedf
	IsAssertionFailure = crdb.IsAssertionFailure
)

// Sentinel errors of the resolution taxonomy.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrInvalidRequest indicates malformed input or an invalid entity model
	ErrInvalidRequest = New("invalid request")

	// ErrNotFound indicates the requested entity model does not exist
	ErrNotFound = New("not found")

	// ErrBackend indicates a document store query failed
	ErrBackend = New("backend error")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrCancelled indicates the caller cancelled the operation
	ErrCancelled = New("cancelled")

	// ErrInternal indicates an unexpected failure in the engine itself
	ErrInternal = New("internal error")

	// ErrJobAlreadyRun is returned when a job instance is run a second time
	ErrJobAlreadyRun = New("job has already been run")
)

// ErrorType is the caller-facing classification of an error.
type ErrorType string

const (
	TypeValidation ErrorType = "validation_exception"
	TypeNotFound   ErrorType = "not_found_exception"
	TypeBackend    ErrorType = "backend_exception"
	TypeTimeout    ErrorType = "timeout_exception"
	TypeCancelled  ErrorType = "cancelled_exception"
	TypeInternal   ErrorType = "internal_exception"
)

// Classify maps an error onto the taxonomy. Unknown errors are internal.
func Classify(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrCancelled), Is(err, context.Canceled):
		return TypeCancelled
	case Is(err, ErrNotFound):
		return TypeNotFound
	case Is(err, ErrInvalidRequest):
		return TypeValidation
	case Is(err, ErrTimeout), Is(err, context.DeadlineExceeded):
		return TypeTimeout
	case Is(err, ErrBackend):
		return TypeBackend
	default:
		return TypeInternal
	}
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsTimeoutError checks if an error is a timeout, ours or the context's
func IsTimeoutError(err error) bool {
	return err != nil && (Is(err, ErrTimeout) || Is(err, context.DeadlineExceeded))
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// WrapInvalidRequest marks err as an invalid request and adds context. The
// cause chain of err is kept.
func WrapInvalidRequest(err error, msg string) error {
	return Wrap(Mark(err, ErrInvalidRequest), msg)
}

// WrapBackend marks err as a backend failure. Context deadlines become ErrTimeout
// so callers can tell a slow query from a broken one; a cancelled context stays
// a cancellation.
func WrapBackend(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case Is(err, context.Canceled) || Is(err, ErrCancelled):
		return Wrap(Mark(err, ErrCancelled), msg)
	case IsTimeoutError(err):
		return Wrap(Mark(err, ErrTimeout), msg)
	case Is(err, ErrBackend):
		return Wrap(err, msg)
	}
	return Wrap(Mark(err, ErrBackend), msg)
}

// NewInternalError wraps an unexpected failure as ErrInternal, keeping the stack
func NewInternalError(format string, args ...interface{}) error {
	return WithStack(Wrap(ErrInternal, Newf(format, args...).Error()))
}
