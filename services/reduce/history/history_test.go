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
	"strings"
	"testing"
	"time"
)

func record(name string, start time.Time, props ...PropertyHistory) *AlgorithmHistory {
	return NewAlgorithmHistory(Record{
		Name:       name,
		Version:    1,
		ExecCount:  1,
		Start:      start,
		Duration:   1500 * time.Millisecond,
		Properties: props,
	})
}

func TestWorkspaceHistory_AddKeepsOrder(t *testing.T) {
	wh := NewWorkspaceHistory(CurrentEnvironment("reduce", "test"))
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := record("A", t0)
	b := record("B", t0.Add(time.Second))
	wh.Add(a)
	wh.Add(b)
	wh.Add(a)

	if wh.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", wh.Size())
	}
	got := wh.AlgorithmHistories()
	if got[0].Name() != "A" || got[1].Name() != "B" {
		t.Errorf("order = %s,%s", got[0].Name(), got[1].Name())
	}
	if wh.Last() != b {
		t.Error("Last() should return the newest record")
	}
	if _, err := wh.AlgorithmHistory(5); err == nil {
		t.Error("out of range index should fail")
	}
}

func TestWorkspaceHistory_MergeDedupesAndSorts(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	shared := record("Load", t0)

	left := NewWorkspaceHistory(EnvironmentHistory{})
	left.Add(shared)
	left.Add(record("Scale", t0.Add(2*time.Second)))

	right := NewWorkspaceHistory(EnvironmentHistory{})
	right.Add(shared)
	right.Add(record("Shift", t0.Add(time.Second)))

	merged := left.Clone()
	merged.Merge(right)

	var names []string
	for _, h := range merged.AlgorithmHistories() {
		names = append(names, h.Name())
	}
	if strings.Join(names, ",") != "Load,Shift,Scale" {
		t.Errorf("merged order = %v", names)
	}
	if left.Size() != 2 {
		t.Errorf("Clone should be independent, left.Size() = %d", left.Size())
	}
}

func TestAlgorithmHistory_PrintNestsChildren(t *testing.T) {
	t0 := time.Now()
	child := record("Scale", t0, PropertyHistory{Name: "Factor", Value: "2", Direction: "Input"})
	parent := NewAlgorithmHistory(Record{
		Name:     "ScaleAndAdd",
		Version:  1,
		Start:    t0,
		Children: []*AlgorithmHistory{child},
	})

	wh := NewWorkspaceHistory(CurrentEnvironment("reduce", "test"))
	wh.Add(parent)
	out := wh.String()

	if !strings.Contains(out, "  Algorithm: ScaleAndAdd v1") {
		t.Errorf("missing parent line:\n%s", out)
	}
	if !strings.Contains(out, "      Algorithm: Scale v1") {
		t.Errorf("child not indented under parent:\n%s", out)
	}
	if !strings.Contains(out, "Name: Factor, Value: 2, Default?: No, Direction: Input") {
		t.Errorf("missing parameter line:\n%s", out)
	}
}

func TestScript(t *testing.T) {
	wh := NewWorkspaceHistory(EnvironmentHistory{})
	wh.Add(record("CreateWorkspace", time.Now(),
		PropertyHistory{Name: "OutputWorkspace", Value: "ws", Direction: "Output"},
		PropertyHistory{Name: "Title", Value: "it's", Direction: "Input"},
		PropertyHistory{Name: "Rows", Value: "10", Direction: "Input", IsDefault: true},
		PropertyHistory{Name: "Note", Value: "n", Direction: "None"},
	))
	wh.Add(record("Scale", time.Now()))

	want := "CreateWorkspace(OutputWorkspace='ws', Title='it\\'s')\nScale()"
	if got := Script(wh); got != want {
		t.Errorf("Script() = %q, want %q", got, want)
	}
}

func TestWorkspaceHistory_JSON(t *testing.T) {
	t0 := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	child := record("Plus", t0)
	wh := NewWorkspaceHistory(CurrentEnvironment("reduce", "1.0"))
	wh.Add(NewAlgorithmHistory(Record{Name: "Sum", Version: 2, Start: t0, Duration: time.Second, Children: []*AlgorithmHistory{child}}))

	data, err := json.Marshal(wh)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back WorkspaceHistory
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", back.Size())
	}
	h := back.Last()
	if h.ID() != wh.Last().ID() || h.Version() != 2 || h.Duration() != time.Second {
		t.Errorf("decoded record mismatch: %+v", h)
	}
	if len(h.Children()) != 1 || h.Children()[0].ID() != child.ID() {
		t.Error("children not decoded")
	}
	if back.Environment().Framework != "reduce" {
		t.Errorf("environment = %+v", back.Environment())
	}
}
