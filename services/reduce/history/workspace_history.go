// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// EnvironmentHistory describes where a workspace history started.
type EnvironmentHistory struct {
	Framework string    `json:"framework"`
	Version   string    `json:"version"`
	GoVersion string    `json:"go_version"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
	Created   time.Time `json:"created"`
}

// CurrentEnvironment captures the running process's environment.
func CurrentEnvironment(framework, version string) EnvironmentHistory {
	return EnvironmentHistory{
		Framework: framework,
		Version:   version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Created:   time.Now().UTC(),
	}
}

// String renders "framework version (goX os/arch)".
func (e EnvironmentHistory) String() string {
	return fmt.Sprintf("%s %s (%s %s/%s)", e.Framework, e.Version, e.GoVersion, e.OS, e.Arch)
}

// WorkspaceHistory is the ordered provenance of one workspace.
//
// Thread Safety: Safe for concurrent use.
type WorkspaceHistory struct {
	mu   sync.RWMutex
	env  EnvironmentHistory
	algs []*AlgorithmHistory
}

// NewWorkspaceHistory creates an empty history.
func NewWorkspaceHistory(env EnvironmentHistory) *WorkspaceHistory {
	return &WorkspaceHistory{env: env}
}

// Environment returns the environment the history was created in.
func (wh *WorkspaceHistory) Environment() EnvironmentHistory {
	wh.mu.RLock()
	defer wh.mu.RUnlock()
	return wh.env
}

// Add appends a record. A record whose ID is already present is ignored.
func (wh *WorkspaceHistory) Add(h *AlgorithmHistory) {
	if h == nil {
		return
	}
	wh.mu.Lock()
	defer wh.mu.Unlock()
	if wh.containsLocked(h.ID()) {
		return
	}
	wh.algs = append(wh.algs, h)
}

// Merge adds every record of other not already present.
//
// Description:
//
//	The result is ordered by execution start; records with equal start keep
//	their relative order. Used when an algorithm combines several inputs into
//	a new output so the output inherits each input's derivation.
func (wh *WorkspaceHistory) Merge(other *WorkspaceHistory) {
	if other == nil || other == wh {
		return
	}
	incoming := other.AlgorithmHistories()

	wh.mu.Lock()
	defer wh.mu.Unlock()
	for _, h := range incoming {
		if !wh.containsLocked(h.ID()) {
			wh.algs = append(wh.algs, h)
		}
	}
	slices.SortStableFunc(wh.algs, func(a, b *AlgorithmHistory) int {
		return a.Start().Compare(b.Start())
	})
}

func (wh *WorkspaceHistory) containsLocked(id uuid.UUID) bool {
	return slices.ContainsFunc(wh.algs, func(h *AlgorithmHistory) bool { return h.ID() == id })
}

// AlgorithmHistories returns the records in order.
func (wh *WorkspaceHistory) AlgorithmHistories() []*AlgorithmHistory {
	wh.mu.RLock()
	defer wh.mu.RUnlock()
	return slices.Clone(wh.algs)
}

// AlgorithmHistory returns the record at index i.
func (wh *WorkspaceHistory) AlgorithmHistory(i int) (*AlgorithmHistory, error) {
	wh.mu.RLock()
	defer wh.mu.RUnlock()
	if i < 0 || i >= len(wh.algs) {
		return nil, kernel.NotFound("history", fmt.Sprintf("index %d", i))
	}
	return wh.algs[i], nil
}

// Last returns the most recent record, or nil when empty.
func (wh *WorkspaceHistory) Last() *AlgorithmHistory {
	wh.mu.RLock()
	defer wh.mu.RUnlock()
	if len(wh.algs) == 0 {
		return nil
	}
	return wh.algs[len(wh.algs)-1]
}

// Size returns the number of records.
func (wh *WorkspaceHistory) Size() int {
	wh.mu.RLock()
	defer wh.mu.RUnlock()
	return len(wh.algs)
}

// Empty reports whether no record was added.
func (wh *WorkspaceHistory) Empty() bool {
	return wh.Size() == 0
}

// Clone returns an independent copy sharing the immutable records.
func (wh *WorkspaceHistory) Clone() *WorkspaceHistory {
	wh.mu.RLock()
	defer wh.mu.RUnlock()
	return &WorkspaceHistory{env: wh.env, algs: slices.Clone(wh.algs)}
}

// Print writes the full history as indented text.
func (wh *WorkspaceHistory) Print(w io.Writer) {
	env := wh.Environment()
	fmt.Fprintf(w, "Framework: %s\n", env)
	for i, h := range wh.AlgorithmHistories() {
		fmt.Fprintf(w, "%d:\n", i+1)
		h.Print(w, 2)
	}
}

// String implements fmt.Stringer.
func (wh *WorkspaceHistory) String() string {
	var sb strings.Builder
	wh.Print(&sb)
	return sb.String()
}

type workspaceHistoryJSON struct {
	Environment EnvironmentHistory     `json:"environment"`
	Algorithms  []algorithmHistoryJSON `json:"algorithms"`
}

// MarshalJSON implements json.Marshaler.
func (wh *WorkspaceHistory) MarshalJSON() ([]byte, error) {
	out := workspaceHistoryJSON{Environment: wh.Environment()}
	for _, h := range wh.AlgorithmHistories() {
		out.Algorithms = append(out.Algorithms, h.toJSON())
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (wh *WorkspaceHistory) UnmarshalJSON(data []byte) error {
	var in workspaceHistoryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decoding workspace history: %w", err)
	}
	algs := make([]*AlgorithmHistory, 0, len(in.Algorithms))
	for _, j := range in.Algorithms {
		algs = append(algs, fromJSON(j))
	}

	wh.mu.Lock()
	defer wh.mu.Unlock()
	wh.env = in.Environment
	wh.algs = algs
	return nil
}
