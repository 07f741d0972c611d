package gopool

import (
	"errors"
	"fmt"
)

// sentinel errors returned by the core.
var (
	// ErrShutdown is returned to any Acquire that is attempted, or already
	// pending, once the pool has been shut down.
	ErrShutdown = errors.New("gopool: pool is shut down")

	// ErrAcquireTimeout is returned when a borrower's deadline elapses
	// while it is still waiting for a resource.
	ErrAcquireTimeout = errors.New("gopool: acquire timed out")

	// ErrMissingAllocator is returned by Config.ValidateAndDefault when no
	// Allocator was supplied.
	ErrMissingAllocator = errors.New("gopool: allocator is a mandatory config")
)

// AllocationError wraps a failure raised by the user-supplied Allocator.
type AllocationError struct {
	Cause error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("gopool: allocation failed: %v", e.Cause)
}

func (e *AllocationError) Unwrap() error {
	return e.Cause
}

// ReleaseHandlerError wraps a failure raised by the user-supplied release
// handler. The resource is always destroyed when this error occurs.
type ReleaseHandlerError struct {
	Cause error
}

func (e *ReleaseHandlerError) Error() string {
	return fmt.Sprintf("gopool: release handler failed: %v", e.Cause)
}

func (e *ReleaseHandlerError) Unwrap() error {
	return e.Cause
}
