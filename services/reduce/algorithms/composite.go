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

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// ScaleAndAdd computes Y*Factor + Offset by running Scale twice as child
// algorithms. Each child owns half of the progress range and its record
// is nested in this algorithm's history.
type ScaleAndAdd struct{}

// NewScaleAndAdd is the factory constructor.
func NewScaleAndAdd() algorithm.Implementation { return &ScaleAndAdd{} }

func (*ScaleAndAdd) Name() string     { return "ScaleAndAdd" }
func (*ScaleAndAdd) Version() int     { return 1 }
func (*ScaleAndAdd) Category() string { return CategoryArithmetic }

func (*ScaleAndAdd) Init(a *algorithm.Algorithm) error {
	if _, err := algorithm.DeclareWorkspace(a, "InputWorkspace", property.Input, algorithm.WithKinds("Matrix")); err != nil {
		return err
	}
	if _, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output); err != nil {
		return err
	}
	if _, err := algorithm.Declare(a, "Factor", 1.0); err != nil {
		return err
	}
	_, err := algorithm.Declare(a, "Offset", 0.0)
	return err
}

func (*ScaleAndAdd) Exec(ctx context.Context, a *algorithm.Algorithm) error {
	in, err := algorithm.GetWorkspace[*workspace.Matrix](a, "InputWorkspace")
	if err != nil {
		return err
	}
	factor, _ := algorithm.Get[float64](a, "Factor")
	offset, _ := algorithm.Get[float64](a, "Offset")

	scaled, err := runScaleChild(ctx, a, in, OpMultiply, factor, 0, 0.5)
	if err != nil {
		return err
	}
	shifted, err := runScaleChild(ctx, a, scaled, OpAdd, offset, 0.5, 1)
	if err != nil {
		return err
	}
	return algorithm.SetWorkspace(a, "OutputWorkspace", shifted)
}

func runScaleChild(ctx context.Context, a *algorithm.Algorithm, in *workspace.Matrix, op string, factor, low, high float64) (*workspace.Matrix, error) {
	child, err := a.CreateChildAlgorithm("Scale", low, high, true, -1)
	if err != nil {
		return nil, err
	}
	if err := child.SetProperty("InputWorkspace", workspace.Workspace(in)); err != nil {
		return nil, err
	}
	if err := child.SetPropertyValue("OutputWorkspace", "__"+op); err != nil {
		return nil, err
	}
	if err := algorithm.Set(child, "Operation", op); err != nil {
		return nil, err
	}
	if err := algorithm.Set(child, "Factor", factor); err != nil {
		return nil, err
	}
	if _, err := child.Execute(ctx); err != nil {
		return nil, fmt.Errorf("%s child: %w", op, err)
	}
	return algorithm.GetWorkspace[*workspace.Matrix](child, "OutputWorkspace")
}
