// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithm

// State is the lifecycle state of an Algorithm.
type State int32

const (
	// StateUninitialized is the state before Initialize.
	StateUninitialized State = iota

	// StateInitialized means properties are declared and the instance can run.
	StateInitialized

	// StateRunning means Exec is in progress.
	StateRunning

	// StateFinished means the last execution succeeded.
	StateFinished

	// StateFailed means the last execution failed validation, errored or was cancelled.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s ends an execution.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed
}

// CanExecute reports whether Execute may start from s.
//
// Uninitialized is accepted because Execute initializes lazily.
func (s State) CanExecute() bool {
	return s != StateRunning
}
