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
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

var (
	// ErrAlreadyRunning is returned when Execute is called on a running instance.
	ErrAlreadyRunning = errors.New("algorithm is already running")

	// ErrNilContext is returned when Execute receives a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidProgressRange is returned for a child range outside [0,1] or inverted.
	ErrInvalidProgressRange = errors.New("invalid progress range")

	// ErrNoDataService is returned when a workspace name must be resolved but
	// the environment has no data service.
	ErrNoDataService = errors.New("no analysis data service")
)

// ValidationError aggregates every property violation found before exec.
//
// Errors maps property name to message. Unwraps to kernel.ErrInvalidValue.
type ValidationError struct {
	Algorithm string
	Errors    map[string]string
}

// Error renders the violations sorted by property name.
func (e *ValidationError) Error() string {
	names := slices.Sorted(maps.Keys(e.Errors))
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s: %s", n, e.Errors[n])
	}
	return fmt.Sprintf("%s: invalid properties: %s", e.Algorithm, strings.Join(parts, "; "))
}

// Unwrap returns kernel.ErrInvalidValue.
func (e *ValidationError) Unwrap() error {
	return kernel.ErrInvalidValue
}
