// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrCancelled is matched by every CancelError.
	ErrCancelled = errors.New("algorithm cancelled")

	// ErrNilToken is returned when a nil token is supplied.
	ErrNilToken = errors.New("cancellation token must not be nil")
)

// CancelError is raised at an interruption point once cancellation was requested.
//
// It is a cooperative signal, not a true failure: the algorithm boundary
// reports it as a failed execution but logs it at warning level.
type CancelError struct {
	Reason CancelReason
}

// Error implements error.
func (e *CancelError) Error() string {
	if e.Reason.Message == "" {
		return fmt.Sprintf("%v (%s)", ErrCancelled, e.Reason.Type)
	}
	return fmt.Sprintf("%v (%s): %s", ErrCancelled, e.Reason.Type, e.Reason.Message)
}

// Unwrap returns ErrCancelled.
func (e *CancelError) Unwrap() error {
	return ErrCancelled
}

// IsCancel reports whether err is, or wraps, a cancellation.
func IsCancel(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// CancelType indicates why cancellation occurred.
type CancelType int

const (
	// CancelUser indicates an explicit Cancel call (API, Ctrl+C, stop button).
	CancelUser CancelType = iota

	// CancelTimeout indicates a deadline on the driving context expired.
	CancelTimeout

	// CancelParent indicates the owning parent algorithm was cancelled.
	CancelParent

	// CancelSuperseded indicates a runner replaced the algorithm with a new one.
	CancelSuperseded

	// CancelShutdown indicates the framework is shutting down.
	CancelShutdown
)

// String returns the string representation of the cancel type.
func (t CancelType) String() string {
	switch t {
	case CancelUser:
		return "user"
	case CancelTimeout:
		return "timeout"
	case CancelParent:
		return "parent"
	case CancelSuperseded:
		return "superseded"
	case CancelShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// State represents the current state of a token.
type State int32

const (
	// StateRunning indicates no cancellation was requested.
	StateRunning State = iota

	// StateCancelling indicates cancellation was signaled and the worker has not yet stopped.
	StateCancelling

	// StateCancelled indicates the worker observed cancellation and stopped.
	StateCancelled

	// StateDone indicates normal completion.
	StateDone
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateCancelled:
		return "cancelled"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if this is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateDone
}

// CancelReason describes why a token was cancelled.
type CancelReason struct {
	// Type classifies the trigger.
	Type CancelType

	// Message is a human-readable explanation.
	Message string

	// Component names who requested the cancellation.
	Component string

	// Timestamp is when cancellation was requested (Unix milliseconds UTC).
	Timestamp int64
}

// UserReason is shorthand for a user-initiated cancellation.
func UserReason(message string) CancelReason {
	return CancelReason{Type: CancelUser, Message: message, Timestamp: time.Now().UnixMilli()}
}
