// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel holds the error taxonomy shared by every layer of the
// reduction runtime.
//
// Each error kind is a sentinel that typed errors unwrap to, so callers can
// match with errors.Is regardless of which component produced the failure:
//
//	if errors.Is(err, kernel.ErrNotFound) {
//	    // property, workspace or algorithm missing
//	}
//
// Thread Safety:
//
//	All types in this package are immutable after construction.
package kernel

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

var (
	// ErrDuplicateName is returned when a name is already taken.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrNotFound is returned when a named object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName is returned when a name is empty or contains illegal characters.
	ErrInvalidName = errors.New("invalid name")

	// ErrType is returned when a stored value is not of the requested type.
	ErrType = errors.New("type mismatch")

	// ErrInvalidValue is returned when a validator or parser rejects a value.
	ErrInvalidValue = errors.New("invalid value")

	// ErrRuntime is the catch-all for failures raised while executing.
	ErrRuntime = errors.New("runtime error")
)

// -----------------------------------------------------------------------------
// Typed errors
// -----------------------------------------------------------------------------

// NameError reports a failure addressing a named object.
//
// Kind is one of ErrDuplicateName, ErrNotFound or ErrInvalidName. Scope names
// the container ("property", "workspace", "algorithm", ...).
type NameError struct {
	Kind   error
	Scope  string
	Name   string
	Detail string
}

// Error implements error.
func (e *NameError) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Scope, e.Name, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the sentinel kind.
func (e *NameError) Unwrap() error {
	return e.Kind
}

// DuplicateName builds a NameError of kind ErrDuplicateName.
func DuplicateName(scope, name string) error {
	return &NameError{Kind: ErrDuplicateName, Scope: scope, Name: name}
}

// NotFound builds a NameError of kind ErrNotFound.
func NotFound(scope, name string) error {
	return &NameError{Kind: ErrNotFound, Scope: scope, Name: name}
}

// InvalidName builds a NameError of kind ErrInvalidName.
func InvalidName(scope, name, detail string) error {
	return &NameError{Kind: ErrInvalidName, Scope: scope, Name: name, Detail: detail}
}

// TypeError reports a typed access against a value of another type.
type TypeError struct {
	Name string
	Want string
	Got  string
}

// Error implements error.
func (e *TypeError) Error() string {
	return fmt.Sprintf("%q: %v: want %s, got %s", e.Name, ErrType, e.Want, e.Got)
}

// Unwrap returns ErrType.
func (e *TypeError) Unwrap() error {
	return ErrType
}

// ValueError reports a value rejected by conversion or validation.
type ValueError struct {
	Name   string
	Value  string
	Reason string
}

// Error implements error.
func (e *ValueError) Error() string {
	return fmt.Sprintf("%q: %v %q: %s", e.Name, ErrInvalidValue, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidValue.
func (e *ValueError) Unwrap() error {
	return ErrInvalidValue
}

// RuntimeError wraps a failure raised while an algorithm was executing.
//
// Cause may be nil when the failure originated from a recovered panic; the
// panic value is then carried in Message.
type RuntimeError struct {
	Op      string
	Message string
	Cause   error
}

// Error implements error.
func (e *RuntimeError) Error() string {
	switch {
	case e.Cause != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

// Unwrap returns both ErrRuntime and the cause so either can be matched.
func (e *RuntimeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRuntime}
	}
	return []error{ErrRuntime, e.Cause}
}
