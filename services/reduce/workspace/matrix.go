// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"fmt"
	"slices"
)

// Matrix is a set of spectra sharing one X axis.
//
// Each spectrum has len(X) bins of Y values with matching E (error) values.
// Accessors do not lock; callers coordinate through Lock/RLock.
type Matrix struct {
	Base
	x []float64
	y [][]float64
	e [][]float64
}

// NewMatrix creates a zero-filled matrix with X = 0..bins-1.
func NewMatrix(spectra, bins int) (*Matrix, error) {
	if spectra < 0 || bins < 0 {
		return nil, fmt.Errorf("matrix dimensions must be non-negative, got %dx%d", spectra, bins)
	}
	m := &Matrix{
		x: make([]float64, bins),
		y: make([][]float64, spectra),
		e: make([][]float64, spectra),
	}
	m.InitBase()
	for i := range m.x {
		m.x[i] = float64(i)
	}
	for i := 0; i < spectra; i++ {
		m.y[i] = make([]float64, bins)
		m.e[i] = make([]float64, bins)
	}
	return m, nil
}

// Kind implements Workspace.
func (m *Matrix) Kind() string { return "Matrix" }

// NumSpectra returns the number of spectra.
func (m *Matrix) NumSpectra() int { return len(m.y) }

// NumBins returns the number of bins per spectrum.
func (m *Matrix) NumBins() int { return len(m.x) }

// X returns the shared X axis. The slice is owned by the matrix.
func (m *Matrix) X() []float64 { return m.x }

// Y returns spectrum i's values. The slice is owned by the matrix.
func (m *Matrix) Y(i int) []float64 { return m.y[i] }

// E returns spectrum i's errors. The slice is owned by the matrix.
func (m *Matrix) E(i int) []float64 { return m.e[i] }

// SetY replaces spectrum i's values; len(y) must equal NumBins.
func (m *Matrix) SetY(i int, y []float64) error {
	if err := m.checkSpectrum(i, len(y)); err != nil {
		return err
	}
	copy(m.y[i], y)
	return nil
}

// SetE replaces spectrum i's errors; len(e) must equal NumBins.
func (m *Matrix) SetE(i int, e []float64) error {
	if err := m.checkSpectrum(i, len(e)); err != nil {
		return err
	}
	copy(m.e[i], e)
	return nil
}

// Fill sets every Y to v and every E to err.
func (m *Matrix) Fill(v, err float64) {
	for i := range m.y {
		for j := range m.y[i] {
			m.y[i][j] = v
			m.e[i][j] = err
		}
	}
}

// SameShape reports whether other has the same dimensions.
func (m *Matrix) SameShape(other *Matrix) bool {
	return m.NumSpectra() == other.NumSpectra() && m.NumBins() == other.NumBins()
}

func (m *Matrix) checkSpectrum(i, n int) error {
	if i < 0 || i >= len(m.y) {
		return fmt.Errorf("spectrum index %d out of range [0,%d)", i, len(m.y))
	}
	if n != len(m.x) {
		return fmt.Errorf("spectrum %d: got %d values, want %d", i, n, len(m.x))
	}
	return nil
}

// MemorySize implements Workspace.
func (m *Matrix) MemorySize() int64 {
	return int64(8 * (len(m.x) + 2*len(m.y)*len(m.x)))
}

// Clone implements Workspace.
func (m *Matrix) Clone() Workspace {
	m.RLock()
	defer m.RUnlock()
	c := &Matrix{
		x: slices.Clone(m.x),
		y: make([][]float64, len(m.y)),
		e: make([][]float64, len(m.e)),
	}
	c.initCloneOf(&m.Base)
	for i := range m.y {
		c.y[i] = slices.Clone(m.y[i])
		c.e[i] = slices.Clone(m.e[i])
	}
	return c
}
