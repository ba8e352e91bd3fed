// Package errors provides error handling for tickd.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrDraining) {
//	    // bus is shutting down; treat as a drop
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
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
	Join         = crdb.Join
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the market-data pipeline.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrNotRunning indicates an operation was attempted against a
	// component that has not been started or has already stopped
	ErrNotRunning = New("not running")

	// ErrDraining indicates the event bus is shutting down and no longer
	// accepts new events
	ErrDraining = New("bus draining")

	// ErrQueueFull indicates a bounded queue rejected an event after the
	// publish retry budget was exhausted
	ErrQueueFull = New("queue full")

	// ErrUnknownInterval indicates a bar interval tag outside the supported set
	ErrUnknownInterval = New("unknown bar interval")

	// ErrUnknownExchange indicates an exchange id outside the supported set
	ErrUnknownExchange = New("unknown exchange")

	// ErrDependencyCycle indicates the supervisor's component graph is cyclic
	ErrDependencyCycle = New("dependency cycle")

	// ErrUnknownComponent indicates a dependency on an unregistered component
	ErrUnknownComponent = New("unknown component")

	// ErrShutdownTimeout indicates a component did not stop within its grace period
	ErrShutdownTimeout = New("shutdown timed out")

	// ErrBatchAborted indicates a storage batch was dropped after retries
	ErrBatchAborted = New("batch aborted")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDrainingError checks if an error is or wraps ErrDraining.
// Publishers treat these as drops, not faults.
func IsDrainingError(err error) bool {
	return err != nil && Is(err, ErrDraining)
}

// IsShutdownTimeout checks if an error is or wraps ErrShutdownTimeout.
func IsShutdownTimeout(err error) bool {
	return err != nil && Is(err, ErrShutdownTimeout)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
