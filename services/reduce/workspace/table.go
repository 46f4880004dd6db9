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

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// Table is a row-oriented table of string cells with named columns.
type Table struct {
	Base
	columns []string
	rows    [][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c == "" {
			return nil, kernel.InvalidName("column", c, "name must not be empty")
		}
		if _, dup := seen[c]; dup {
			return nil, kernel.DuplicateName("column", c)
		}
		seen[c] = struct{}{}
	}
	t := &Table{columns: slices.Clone(columns)}
	t.InitBase()
	return t, nil
}

// Kind implements Workspace.
func (t *Table) Kind() string { return "Table" }

// Columns returns the column names.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return len(t.rows) }

// AppendRow adds a row; it must have one cell per column.
func (t *Table) AppendRow(cells ...string) error {
	if len(cells) != len(t.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.columns))
	}
	t.rows = append(t.rows, slices.Clone(cells))
	return nil
}

// Cell returns the cell at row and column name.
func (t *Table) Cell(row int, column string) (string, error) {
	c := slices.Index(t.columns, column)
	if c < 0 {
		return "", kernel.NotFound("column", column)
	}
	if row < 0 || row >= len(t.rows) {
		return "", fmt.Errorf("row %d out of range [0,%d)", row, len(t.rows))
	}
	return t.rows[row][c], nil
}

// MemorySize implements Workspace.
func (t *Table) MemorySize() int64 {
	var n int64
	for _, r := range t.rows {
		for _, c := range r {
			n += int64(len(c))
		}
	}
	return n
}

// Clone implements Workspace.
func (t *Table) Clone() Workspace {
	t.RLock()
	defer t.RUnlock()
	c := &Table{columns: slices.Clone(t.columns), rows: make([][]string, len(t.rows))}
	c.initCloneOf(&t.Base)
	for i, r := range t.rows {
		c.rows[i] = slices.Clone(r)
	}
	return c
}
