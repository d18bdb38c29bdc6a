// Package apperr defines the error kinds the engines surface to callers.
// Every error returned by an engine either carries one of these marks or is
// a storage error wrapped with context and propagated unmodified.
package apperr

import "github.com/cockroachdb/errors"

var (
	// ErrNotFound marks errors for missing collections, albums, tracks or
	// queue items. Not retryable.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks errors rejected before any mutation: malformed
	// sections, order/reorder set mismatches, slug collisions.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks concurrency-induced failures. The whole operation
	// can be retried safely.
	ErrConflict = errors.New("conflict")
)

// NotFound returns a new error marked as ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Validation returns a new error marked as ErrValidation.
func Validation(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// Conflict returns a new error marked as ErrConflict.
func Conflict(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// IsNotFound reports whether err is marked as ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is marked as ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is marked as ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
