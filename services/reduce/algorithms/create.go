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

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// CreateWorkspace builds a Matrix filled with a constant.
type CreateWorkspace struct{}

// NewCreateWorkspace is the factory constructor.
func NewCreateWorkspace() algorithm.Implementation { return &CreateWorkspace{} }

func (*CreateWorkspace) Name() string     { return "CreateWorkspace" }
func (*CreateWorkspace) Version() int     { return 1 }
func (*CreateWorkspace) Category() string { return CategoryWorkspaces }
func (*CreateWorkspace) Summary() string {
	return "Creates a matrix workspace with every Y set to Value and every E set to Error."
}

func (*CreateWorkspace) Init(a *algorithm.Algorithm) error {
	if _, err := algorithm.Declare(a, "NSpec", 1,
		property.WithValidator[int](property.LowerBound(1)),
		property.WithDoc[int]("Number of spectra")); err != nil {
		return err
	}
	if _, err := algorithm.Declare(a, "NBins", 10,
		property.WithValidator[int](property.LowerBound(1)),
		property.WithDoc[int]("Number of bins per spectrum")); err != nil {
		return err
	}
	if _, err := algorithm.Declare(a, "Value", 0.0, property.WithDoc[float64]("Y value")); err != nil {
		return err
	}
	if _, err := algorithm.Declare(a, "Error", 0.0,
		property.WithValidator[float64](property.LowerBound(0.0)),
		property.WithDoc[float64]("E value")); err != nil {
		return err
	}
	if _, err := algorithm.Declare(a, "Title", "", property.WithDoc[string]("Workspace title")); err != nil {
		return err
	}
	_, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output)
	return err
}

func (*CreateWorkspace) Exec(ctx context.Context, a *algorithm.Algorithm) error {
	nspec, _ := algorithm.Get[int](a, "NSpec")
	nbins, _ := algorithm.Get[int](a, "NBins")
	value, _ := algorithm.Get[float64](a, "Value")
	errVal, _ := algorithm.Get[float64](a, "Error")
	title, _ := algorithm.Get[string](a, "Title")

	m, err := workspace.NewMatrix(nspec, nbins)
	if err != nil {
		return err
	}

	prog := algorithm.NewProgress(a, 0, 1, nspec)
	for i := range nspec {
		y, e := m.Y(i), m.E(i)
		for j := range y {
			y[j] = value
			e[j] = errVal
		}
		if err := prog.Report(ctx, "filling spectra"); err != nil {
			return err
		}
	}
	if title != "" {
		m.SetTitle(title)
	}
	return algorithm.SetWorkspace(a, "OutputWorkspace", m)
}
