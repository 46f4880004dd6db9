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
	"math"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/parallel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// Scale operations.
const (
	OpMultiply = "Multiply"
	OpAdd      = "Add"
)

// -----------------------------------------------------------------------------
// Scale
// -----------------------------------------------------------------------------

// Scale multiplies every Y by Factor, or adds Factor to it.
//
// Multiply scales E by |Factor|; Add leaves E unchanged. When
// OutputWorkspace names the input the workspace is modified in place.
type Scale struct{}

// NewScale is the factory constructor.
func NewScale() algorithm.Implementation { return &Scale{} }

func (*Scale) Name() string     { return "Scale" }
func (*Scale) Version() int     { return 1 }
func (*Scale) Category() string { return CategoryArithmetic }

func (*Scale) Init(a *algorithm.Algorithm) error {
	if _, err := algorithm.DeclareWorkspace(a, "InputWorkspace", property.Input, algorithm.WithKinds("Matrix")); err != nil {
		return err
	}
	if _, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output); err != nil {
		return err
	}
	if _, err := algorithm.Declare(a, "Factor", 1.0); err != nil {
		return err
	}
	_, err := algorithm.Declare(a, "Operation", OpMultiply,
		property.WithValidator[string](property.NewList(OpMultiply, OpAdd)))
	return err
}

func (*Scale) Exec(ctx context.Context, a *algorithm.Algorithm) error {
	in, err := algorithm.GetWorkspace[*workspace.Matrix](a, "InputWorkspace")
	if err != nil {
		return err
	}
	factor, _ := algorithm.Get[float64](a, "Factor")
	op, _ := algorithm.Get[string](a, "Operation")

	out := in
	if !isInPlace(a, in) {
		out = in.Clone().(*workspace.Matrix)
	}

	err = parallel.For(ctx, out.NumSpectra(), func(_ context.Context, i int) error {
		y, e := out.Y(i), out.E(i)
		for j := range y {
			if op == OpAdd {
				y[j] += factor
				continue
			}
			y[j] *= factor
			e[j] *= math.Abs(factor)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.Progress(1, "scaled")
	return algorithm.SetWorkspace(a, "OutputWorkspace", out)
}

// -----------------------------------------------------------------------------
// Plus
// -----------------------------------------------------------------------------

// Plus adds two matrices bin by bin, combining errors in quadrature.
type Plus struct{}

// NewPlus is the factory constructor.
func NewPlus() algorithm.Implementation { return &Plus{} }

func (*Plus) Name() string     { return "Plus" }
func (*Plus) Version() int     { return 1 }
func (*Plus) Category() string { return CategoryArithmetic }

func (*Plus) Init(a *algorithm.Algorithm) error {
	for _, name := range []string{"LHSWorkspace", "RHSWorkspace"} {
		if _, err := algorithm.DeclareWorkspace(a, name, property.Input, algorithm.WithKinds("Matrix")); err != nil {
			return err
		}
	}
	_, err := algorithm.DeclareWorkspace(a, "OutputWorkspace", property.Output)
	return err
}

// ValidateInputs rejects operands of different shape.
func (*Plus) ValidateInputs(a *algorithm.Algorithm) map[string]string {
	lhs, err := algorithm.GetWorkspace[*workspace.Matrix](a, "LHSWorkspace")
	if err != nil {
		return nil
	}
	rhs, err := algorithm.GetWorkspace[*workspace.Matrix](a, "RHSWorkspace")
	if err != nil {
		return nil
	}
	if !lhs.SameShape(rhs) {
		return map[string]string{"RHSWorkspace": "must have the same shape as LHSWorkspace"}
	}
	return nil
}

func (*Plus) Exec(ctx context.Context, a *algorithm.Algorithm) error {
	lhs, err := algorithm.GetWorkspace[*workspace.Matrix](a, "LHSWorkspace")
	if err != nil {
		return err
	}
	rhs, err := algorithm.GetWorkspace[*workspace.Matrix](a, "RHSWorkspace")
	if err != nil {
		return err
	}

	out := lhs
	if !isInPlace(a, lhs) {
		out = lhs.Clone().(*workspace.Matrix)
	}

	err = parallel.For(ctx, out.NumSpectra(), func(_ context.Context, i int) error {
		y, e := out.Y(i), out.E(i)
		ry, re := rhs.Y(i), rhs.E(i)
		for j := range y {
			y[j] += ry[j]
			e[j] = math.Hypot(e[j], re[j])
		}
		return nil
	})
	if err != nil {
		return err
	}
	return algorithm.SetWorkspace(a, "OutputWorkspace", out)
}
