// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package algorithm is the execution runtime for named, versioned units of work.
//
// An Implementation supplies Init (declare properties) and Exec (do the work).
// The runtime wraps it in an Algorithm that owns the property manager, the
// lifecycle state machine, validation, cancellation, progress reporting,
// history stamping and child composition.
//
//	env := algorithm.NewEnvironment()
//	_ = env.Factory.Register(func() algorithm.Implementation { return &Scale{} })
//	alg, _ := env.Create("Scale", -1)
//	_ = alg.SetPropertyValue("InputWorkspace", "raw")
//	_ = alg.SetPropertyValue("OutputWorkspace", "scaled")
//	ok, err := alg.Execute(ctx)
package algorithm

import "context"

// Implementation is the contract a concrete algorithm provides.
//
// Init declares properties on a.Properties(). Exec reads them, does the work,
// sets output properties and polls a.InterruptionPoint(ctx) at safe places.
// Exec must not retain a after returning.
type Implementation interface {
	Name() string
	Version() int
	Category() string
	Init(a *Algorithm) error
	Exec(ctx context.Context, a *Algorithm) error
}

// Summarizer is implemented by algorithms that describe themselves.
type Summarizer interface {
	Summary() string
}

// CrossValidator checks constraints that span several properties.
//
// ValidateInputs runs after every property is individually valid and returns
// name→message for each violation. An empty or nil map means valid.
type CrossValidator interface {
	ValidateInputs(a *Algorithm) map[string]string
}

// Constructor creates a fresh Implementation. Each call must return a new value.
type Constructor func() Implementation
