// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package algorithms holds the stock algorithms shipped with the runtime.
//
// They are deliberately simple numerically. Their purpose is to give the
// CLI, the server and integration tests real algorithms that create, read,
// transform, rename, group and delete workspaces through the normal
// execution path, including children, progress and cancellation.
package algorithms

import (
	"errors"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// Categories used by the stock algorithms.
const (
	CategoryArithmetic  = "Arithmetic"
	CategoryWorkspaces  = `Utility\Workspaces`
	CategoryDevelopment = `Utility\Development`
)

// Constructors lists every stock algorithm.
func Constructors() []algorithm.Constructor {
	return []algorithm.Constructor{
		NewCreateWorkspace,
		NewScale,
		NewPlus,
		NewPause,
		NewScaleAndAdd,
		NewRenameWorkspace,
		NewDeleteWorkspace,
		NewGroupWorkspaces,
		NewCloneWorkspace,
	}
}

// Register adds every stock algorithm to f.
func Register(f *algorithm.Factory) error {
	var errs []error
	for _, ctor := range Constructors() {
		if err := f.Register(ctor); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isInPlace reports whether OutputWorkspace names the object already held
// by in, in which case in is modified rather than copied.
func isInPlace(a *algorithm.Algorithm, in workspace.Workspace) bool {
	name, err := a.PropertyValue("OutputWorkspace")
	if err != nil || name == "" {
		return false
	}
	ads := a.Environment().ADS
	if ads == nil {
		return false
	}
	existing, err := ads.Retrieve(name)
	return err == nil && existing == in
}
