// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithms

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// -----------------------------------------------------------------------------
// RenameWorkspace
// -----------------------------------------------------------------------------

// RenameWorkspace moves a data-service entry to a new name.
type RenameWorkspace struct{}

// NewRenameWorkspace is the factory constructor.
func NewRenameWorkspace() algorithm.Implementation { return &RenameWorkspace{} }

func (*RenameWorkspace) Name() string     { return "RenameWorkspace" }
func (*RenameWorkspace) Version() int     { return 1 }
func (*RenameWorkspace) Category() string { return CategoryWorkspaces }

func (*RenameWorkspace) Init(a *algorithm.Algorithm) error {
	if _, err := algorithm.DeclareWorkspace(a, "InputWorkspace", property.Input); err != nil {
		return err
	}
	if _, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output); err != nil {
		return err
	}
	_, err := algorithm.Declare(a, "OverwriteExisting", true,
		property.WithDoc[bool]("Replace an existing workspace with the new name"))
	return err
}

// ValidateInputs rejects renaming a workspace onto its own name.
func (*RenameWorkspace) ValidateInputs(a *algorithm.Algorithm) map[string]string {
	in, _ := a.PropertyValue("InputWorkspace")
	out, _ := a.PropertyValue("OutputWorkspace")
	if in != "" && in == out {
		return map[string]string{"OutputWorkspace": "must differ from InputWorkspace"}
	}
	return nil
}

func (*RenameWorkspace) Exec(_ context.Context, a *algorithm.Algorithm) error {
	ws, err := algorithm.GetWorkspace[workspace.Workspace](a, "InputWorkspace")
	if err != nil {
		return err
	}
	ads := a.Environment().ADS
	oldName, _ := a.PropertyValue("InputWorkspace")
	newName, _ := a.PropertyValue("OutputWorkspace")
	overwrite, _ := algorithm.Get[bool](a, "OverwriteExisting")

	if existing, err := ads.Retrieve(newName); err == nil && existing != ws {
		if !overwrite {
			return kernel.DuplicateName("workspace", newName)
		}
		if err := ads.Remove(newName); err != nil {
			return err
		}
	}
	if err := ads.Rename(oldName, newName); err != nil {
		return err
	}
	return algorithm.SetWorkspace(a, "OutputWorkspace", ws)
}

// -----------------------------------------------------------------------------
// DeleteWorkspace
// -----------------------------------------------------------------------------

// DeleteWorkspace removes an entry from the data service. Deleting a group
// also deletes its members.
type DeleteWorkspace struct{}

// NewDeleteWorkspace is the factory constructor.
func NewDeleteWorkspace() algorithm.Implementation { return &DeleteWorkspace{} }

func (*DeleteWorkspace) Name() string     { return "DeleteWorkspace" }
func (*DeleteWorkspace) Version() int     { return 1 }
func (*DeleteWorkspace) Category() string { return CategoryWorkspaces }

func (*DeleteWorkspace) Init(a *algorithm.Algorithm) error {
	_, err := algorithm.DeclareWorkspace(a, "Workspace", property.Input)
	return err
}

func (*DeleteWorkspace) Exec(_ context.Context, a *algorithm.Algorithm) error {
	ws, err := algorithm.GetWorkspace[workspace.Workspace](a, "Workspace")
	if err != nil {
		return err
	}
	name, _ := a.PropertyValue("Workspace")
	ads := a.Environment().ADS
	if _, isGroup := ws.(*workspace.Group); isGroup {
		return ads.DeepRemoveGroup(name)
	}
	return ads.Remove(name)
}

// -----------------------------------------------------------------------------
// GroupWorkspaces
// -----------------------------------------------------------------------------

// GroupWorkspaces creates a Group listing existing entries.
type GroupWorkspaces struct{}

// NewGroupWorkspaces is the factory constructor.
func NewGroupWorkspaces() algorithm.Implementation { return &GroupWorkspaces{} }

func (*GroupWorkspaces) Name() string     { return "GroupWorkspaces" }
func (*GroupWorkspaces) Version() int     { return 1 }
func (*GroupWorkspaces) Category() string { return CategoryWorkspaces }

func (*GroupWorkspaces) Init(a *algorithm.Algorithm) error {
	if _, err := algorithm.Declare(a, "InputWorkspaces", []string(nil),
		property.WithValidator[[]string](property.MandatoryList[string]{}),
		property.WithDoc[[]string]("Names of the workspaces to group")); err != nil {
		return err
	}
	_, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output)
	return err
}

// ValidateInputs reports members missing from the data service.
func (*GroupWorkspaces) ValidateInputs(a *algorithm.Algorithm) map[string]string {
	names, _ := algorithm.Get[[]string](a, "InputWorkspaces")
	var missing []string
	for _, n := range names {
		if !a.Environment().ADS.DoesExist(strings.TrimSpace(n)) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return map[string]string{"InputWorkspaces": fmt.Sprintf("not found: %s", strings.Join(missing, ", "))}
	}
	return nil
}

func (*GroupWorkspaces) Exec(ctx context.Context, a *algorithm.Algorithm) error {
	names, _ := algorithm.Get[[]string](a, "InputWorkspaces")
	g := workspace.NewGroup()
	for _, n := range names {
		if err := a.InterruptionPoint(ctx); err != nil {
			return err
		}
		g.Add(strings.TrimSpace(n))
	}
	return algorithm.SetWorkspace(a, "OutputWorkspace", g)
}

// -----------------------------------------------------------------------------
// CloneWorkspace
// -----------------------------------------------------------------------------

// CloneWorkspace stores a deep copy of the input under a new name.
type CloneWorkspace struct{}

// NewCloneWorkspace is the factory constructor.
func NewCloneWorkspace() algorithm.Implementation { return &CloneWorkspace{} }

func (*CloneWorkspace) Name() string     { return "CloneWorkspace" }
func (*CloneWorkspace) Version() int     { return 1 }
func (*CloneWorkspace) Category() string { return CategoryWorkspaces }

func (*CloneWorkspace) Init(a *algorithm.Algorithm) error {
	if _, err := algorithm.DeclareWorkspace(a, "InputWorkspace", property.Input); err != nil {
		return err
	}
	_, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output)
	return err
}

func (*CloneWorkspace) Exec(_ context.Context, a *algorithm.Algorithm) error {
	ws, err := algorithm.GetWorkspace[workspace.Workspace](a, "InputWorkspace")
	if err != nil {
		return err
	}
	return algorithm.SetWorkspace(a, "OutputWorkspace", ws.Clone())
}
