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

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
)

// CreateChildAlgorithm creates a registered algorithm as a child of a.
//
// Inputs:
//   - name: Registered algorithm name.
//   - low, high: Sub-range of a's progress the child reports into.
//   - emitProgress: Whether child progress is forwarded to a.
//   - version: Registered version, or -1 for the highest.
//
// Outputs:
//   - *Algorithm: Initialized child with rethrow on.
//   - error: NotFound if unregistered, ErrInvalidProgressRange, or the Init error.
func (a *Algorithm) CreateChildAlgorithm(name string, low, high float64, emitProgress bool, version int) (*Algorithm, error) {
	impl, err := a.env.Factory.Create(name, version)
	if err != nil {
		return nil, err
	}
	return a.CreateChild(impl, low, high, emitProgress)
}

// CreateChild wraps impl as a child of a.
//
// Description:
//
//	The child shares a's cancellation token for a's current execution,
//	reports progress into [low, high] of a, rethrows errors, and starts
//	with every Input/InOut property that a has set explicitly under the
//	same name. Its history nests under a's record; it does not touch the
//	data service unless SetAlwaysStoreInADS(true).
func (a *Algorithm) CreateChild(impl Implementation, low, high float64, emitProgress bool) (*Algorithm, error) {
	if low < 0 || high > 1 || low > high {
		return nil, fmt.Errorf("%s child %s [%g, %g]: %w", a.Name(), impl.Name(), low, high, ErrInvalidProgressRange)
	}

	c := New(impl, a.env)
	c.parent = a
	c.isChild = true
	c.low, c.high = low, high
	c.emitProgress = emitProgress
	c.rethrow = true
	c.baseLogger = a.Logger().With(slog.String("child", impl.Name()))
	c.logger = c.baseLogger

	if err := c.Initialize(); err != nil {
		return nil, err
	}
	c.inheritProperties(a)
	return c, nil
}

// inheritProperties copies parent values the user set explicitly onto
// same-named input properties of a.
func (a *Algorithm) inheritProperties(parent *Algorithm) {
	for _, cp := range a.props.Properties() {
		if !cp.Direction().IsInput() {
			continue
		}
		pp, err := parent.props.Property(cp.Name())
		if err != nil || pp.IsDefault() || pp.Direction() == property.Output {
			continue
		}
		if err := cp.SetValueFromProperty(pp); err != nil {
			a.Logger().Debug("property not inherited",
				slog.String("property", cp.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
