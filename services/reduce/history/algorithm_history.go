// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records provenance: which algorithms, with which
// parameters, produced a workspace.
//
// An AlgorithmHistory is immutable once built. A WorkspaceHistory is the
// ordered list of AlgorithmHistory records carried by one workspace; it only
// ever grows by Add or Merge.
//
// # Printing
//
// Print renders a WorkspaceHistory as indented text, with child algorithm
// records nested beneath their parent. Script renders the top-level records
// as one call per line, which Replay in the algorithm package can re-run.
package history

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PropertyHistory is the snapshot of one property at execution time.
type PropertyHistory struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Type      string `json:"type"`
	IsDefault bool   `json:"is_default"`
	Direction string `json:"direction"`
}

// Record is the input to NewAlgorithmHistory.
type Record struct {
	// ID identifies the record; a random UUID is generated when zero.
	ID uuid.UUID

	Name      string
	Version   int
	ExecCount int
	Start     time.Time
	Duration  time.Duration

	// Properties in declaration order.
	Properties []PropertyHistory

	// Children are nested records of child algorithms, in execution order.
	Children []*AlgorithmHistory
}

// AlgorithmHistory is one immutable execution record.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type AlgorithmHistory struct {
	id         uuid.UUID
	name       string
	version    int
	execCount  int
	start      time.Time
	duration   time.Duration
	properties []PropertyHistory
	children   []*AlgorithmHistory
}

// NewAlgorithmHistory builds a record, copying the slices in rec.
func NewAlgorithmHistory(rec Record) *AlgorithmHistory {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &AlgorithmHistory{
		id:         id,
		name:       rec.Name,
		version:    rec.Version,
		execCount:  rec.ExecCount,
		start:      rec.Start,
		duration:   rec.Duration,
		properties: slices.Clone(rec.Properties),
		children:   slices.Clone(rec.Children),
	}
}

// ID returns the unique record ID.
func (h *AlgorithmHistory) ID() uuid.UUID { return h.id }

// Name returns the algorithm name.
func (h *AlgorithmHistory) Name() string { return h.name }

// Version returns the algorithm version.
func (h *AlgorithmHistory) Version() int { return h.version }

// ExecCount returns how many times the instance had executed, this run included.
func (h *AlgorithmHistory) ExecCount() int { return h.execCount }

// Start returns the execution start time.
func (h *AlgorithmHistory) Start() time.Time { return h.start }

// Duration returns the wall-clock execution time.
func (h *AlgorithmHistory) Duration() time.Duration { return h.duration }

// Properties returns a copy of the property snapshot.
func (h *AlgorithmHistory) Properties() []PropertyHistory {
	return slices.Clone(h.properties)
}

// Children returns the nested child records.
func (h *AlgorithmHistory) Children() []*AlgorithmHistory {
	return slices.Clone(h.children)
}

// Property returns the snapshot of one property (case-insensitive).
func (h *AlgorithmHistory) Property(name string) (PropertyHistory, bool) {
	for _, p := range h.properties {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return PropertyHistory{}, false
}

// Print writes the record and its children, indented by indent spaces.
func (h *AlgorithmHistory) Print(w io.Writer, indent int) {
	pad := strings.Repeat(" ", indent)
	fmt.Fprintf(w, "%sAlgorithm: %s v%d\n", pad, h.name, h.version)
	fmt.Fprintf(w, "%sExecution Date: %s\n", pad, h.start.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(w, "%sExecution Duration: %.3f seconds\n", pad, h.duration.Seconds())
	fmt.Fprintf(w, "%sParameters:\n", pad)
	for _, p := range h.properties {
		def := "No"
		if p.IsDefault {
			def = "Yes"
		}
		fmt.Fprintf(w, "%s  Name: %s, Value: %s, Default?: %s, Direction: %s\n",
			pad, p.Name, p.Value, def, p.Direction)
	}
	if len(h.children) > 0 {
		fmt.Fprintf(w, "%sChild algorithms:\n", pad)
		for _, c := range h.children {
			c.Print(w, indent+4)
		}
	}
}

// String implements fmt.Stringer.
func (h *AlgorithmHistory) String() string {
	var sb strings.Builder
	h.Print(&sb, 0)
	return sb.String()
}

// -----------------------------------------------------------------------------
// JSON
// -----------------------------------------------------------------------------

type algorithmHistoryJSON struct {
	ID         uuid.UUID              `json:"id"`
	Name       string                 `json:"name"`
	Version    int                    `json:"version"`
	ExecCount  int                    `json:"exec_count"`
	Start      time.Time              `json:"start"`
	DurationNS int64                  `json:"duration_ns"`
	Properties []PropertyHistory      `json:"properties"`
	Children   []algorithmHistoryJSON `json:"children,omitempty"`
}

func (h *AlgorithmHistory) toJSON() algorithmHistoryJSON {
	out := algorithmHistoryJSON{
		ID:         h.id,
		Name:       h.name,
		Version:    h.version,
		ExecCount:  h.execCount,
		Start:      h.start,
		DurationNS: int64(h.duration),
		Properties: h.properties,
	}
	for _, c := range h.children {
		out.Children = append(out.Children, c.toJSON())
	}
	return out
}

func fromJSON(j algorithmHistoryJSON) *AlgorithmHistory {
	rec := Record{
		ID:         j.ID,
		Name:       j.Name,
		Version:    j.Version,
		ExecCount:  j.ExecCount,
		Start:      j.Start,
		Duration:   time.Duration(j.DurationNS),
		Properties: j.Properties,
	}
	for _, c := range j.Children {
		rec.Children = append(rec.Children, fromJSON(c))
	}
	return NewAlgorithmHistory(rec)
}
