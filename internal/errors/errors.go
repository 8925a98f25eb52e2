// Package errors provides error handling for memvault.
//
// This package re-exports github.com/cockroachdb/errors (stack traces,
// wrapping, error marks) and defines the sentinel errors that make up the
// subsystem's error taxonomy. Components wrap these sentinels so that call
// sites can decide between degrading gracefully and propagating:
//
//	if err := store.Retrieve(key); err != nil {
//	    if errors.IsNotFound(err) {
//	        // treat as absent
//	    }
//	    return errors.Wrap(err, "retrieve chunk")
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping.
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	WithHint    = crdb.WithHint
	WithDetail  = crdb.WithDetail
)

// Error inspection.
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors forming the subsystem taxonomy. Wrap these with
// errors.Wrap to add context while preserving the type for Is checks.
var (
	// ErrAccessDenied indicates the caller lacks permission for an operation.
	ErrAccessDenied = New("access denied")

	// ErrEncryption indicates a key-load, encrypt, or decrypt failure.
	// At startup a key-load failure is fatal; at decrypt time it means the
	// payload for that key is lost (recoverable for the caller).
	ErrEncryption = New("encryption failure")

	// ErrStorage indicates a tiered-storage I/O failure other than a
	// missing key.
	ErrStorage = New("storage failure")

	// ErrCache indicates a cache-level failure. Callers normally never see
	// this: cache errors degrade to misses inside the cache manager.
	ErrCache = New("cache failure")

	// ErrValidation indicates malformed input (e.g., empty text handed to
	// the chunker).
	ErrValidation = New("validation failure")

	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = New("not found")

	// ErrClosed indicates an operation on a component after Shutdown.
	ErrClosed = New("already closed")
)

// IsAccessDenied reports whether err is or wraps ErrAccessDenied.
func IsAccessDenied(err error) bool {
	return err != nil && Is(err, ErrAccessDenied)
}

// IsEncryption reports whether err is or wraps ErrEncryption.
func IsEncryption(err error) bool {
	return err != nil && Is(err, ErrEncryption)
}

// IsSecurityError reports whether err belongs to the security family
// (access denied or encryption failure). Security errors propagate to the
// engine boundary; everything else degrades in place.
func IsSecurityError(err error) bool {
	return IsAccessDenied(err) || IsEncryption(err)
}

// IsStorage reports whether err is or wraps ErrStorage.
func IsStorage(err error) bool {
	return err != nil && Is(err, ErrStorage)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsValidation reports whether err is or wraps ErrValidation.
func IsValidation(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// NewNotFound creates a not-found error with a formatted message.
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewValidation creates a validation error with a formatted message.
func NewValidation(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}
