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
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

func testEnv(t *testing.T) *algorithm.Environment {
	t.Helper()
	f := algorithm.NewFactory()
	if err := Register(f); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return algorithm.NewEnvironment(
		algorithm.WithFactory(f),
		algorithm.WithLogger(slog.New(slog.DiscardHandler)),
		algorithm.WithProgressInterval(0),
	)
}

// run creates name, applies props and executes with rethrow on.
func run(t *testing.T, env *algorithm.Environment, name string, props map[string]string) (*algorithm.Algorithm, error) {
	t.Helper()
	a, err := env.Create(name, -1)
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	a.SetRethrows(true)
	if err := a.SetProperties(props); err != nil {
		return a, err
	}
	_, err = a.Execute(context.Background())
	return a, err
}

func mustRun(t *testing.T, env *algorithm.Environment, name string, props map[string]string) *algorithm.Algorithm {
	t.Helper()
	a, err := run(t, env, name, props)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return a
}

func matrix(t *testing.T, env *algorithm.Environment, name string) *workspace.Matrix {
	t.Helper()
	m, err := dataservice.Retrieve[*workspace.Matrix](env.ADS, name)
	if err != nil {
		t.Fatalf("retrieve %s: %v", name, err)
	}
	return m
}

func create(t *testing.T, env *algorithm.Environment, name, value string) {
	t.Helper()
	mustRun(t, env, "CreateWorkspace", map[string]string{
		"NSpec": "2", "NBins": "3", "Value": value, "Error": "1", "OutputWorkspace": name,
	})
}

func historyNames(ws workspace.Workspace) []string {
	var out []string
	for _, h := range ws.History().AlgorithmHistories() {
		out = append(out, h.Name())
	}
	return out
}

func assertAllY(t *testing.T, m *workspace.Matrix, want float64) {
	t.Helper()
	for i := range m.NumSpectra() {
		for j, y := range m.Y(i) {
			if math.Abs(y-want) > 1e-12 {
				t.Fatalf("Y[%d][%d] = %g, want %g", i, j, y, want)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	f := algorithm.NewFactory()
	if err := Register(f); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, ctor := range Constructors() {
		impl := ctor()
		if !f.Exists(impl.Name(), impl.Version()) {
			t.Errorf("%s v%d not registered", impl.Name(), impl.Version())
		}
	}
	if err := Register(f); !errors.Is(err, kernel.ErrDuplicateName) {
		t.Errorf("second Register err = %v, want ErrDuplicateName", err)
	}
}

// -----------------------------------------------------------------------------
// CreateWorkspace
// -----------------------------------------------------------------------------

func TestCreateWorkspace(t *testing.T) {
	env := testEnv(t)
	mustRun(t, env, "CreateWorkspace", map[string]string{
		"NSpec": "3", "NBins": "4", "Value": "2.5", "Title": "flat", "OutputWorkspace": "W",
	})

	m := matrix(t, env, "W")
	if m.NumSpectra() != 3 || m.NumBins() != 4 {
		t.Fatalf("shape = %dx%d, want 3x4", m.NumSpectra(), m.NumBins())
	}
	assertAllY(t, m, 2.5)
	if m.Title() != "flat" {
		t.Errorf("title = %q", m.Title())
	}
	if got := historyNames(m); !slices.Equal(got, []string{"CreateWorkspace"}) {
		t.Errorf("history = %v", got)
	}
}

func TestCreateWorkspace_InvalidSize(t *testing.T) {
	env := testEnv(t)
	a, err := env.Create("CreateWorkspace", -1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a.SetRethrows(true)

	// The rejected value is kept so validation reports it at execution.
	err = a.SetProperties(map[string]string{"NSpec": "0", "OutputWorkspace": "W"})
	var vale *kernel.ValueError
	if !errors.As(err, &vale) || vale.Name != "NSpec" {
		t.Fatalf("SetProperties err = %v, want NSpec ValueError", err)
	}

	ok, err := a.Execute(context.Background())
	var verr *algorithm.ValidationError
	if ok || !errors.As(err, &verr) {
		t.Fatalf("Execute = %v, %v; want false, ValidationError", ok, err)
	}
	if _, ok := verr.Errors["NSpec"]; !ok {
		t.Errorf("errors = %v, want NSpec entry", verr.Errors)
	}
	if env.ADS.DoesExist("W") {
		t.Error("nothing should be stored")
	}
}

// -----------------------------------------------------------------------------
// Arithmetic
// -----------------------------------------------------------------------------

func TestScale_NewOutput(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "3")
	mustRun(t, env, "Scale", map[string]string{"InputWorkspace": "A", "OutputWorkspace": "B", "Factor": "-2"})

	a, b := matrix(t, env, "A"), matrix(t, env, "B")
	if a == b {
		t.Fatal("output should be a new workspace")
	}
	assertAllY(t, a, 3)
	assertAllY(t, b, -6)
	if got := b.E(0)[0]; got != 2 {
		t.Errorf("E = %g, want 2", got)
	}
	if got := historyNames(b); !slices.Equal(got, []string{"CreateWorkspace", "Scale"}) {
		t.Errorf("history = %v", got)
	}
	if got := historyNames(a); !slices.Equal(got, []string{"CreateWorkspace"}) {
		t.Errorf("input history = %v", got)
	}
}

func TestScale_InPlace(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	before := matrix(t, env, "A")

	mustRun(t, env, "Scale", map[string]string{
		"InputWorkspace": "A", "OutputWorkspace": "A", "Factor": "5", "Operation": OpAdd,
	})

	after := matrix(t, env, "A")
	if before != after {
		t.Fatal("in-place scale should keep the same object")
	}
	assertAllY(t, after, 6)
	if got := after.E(1)[2]; got != 1 {
		t.Errorf("Add should leave E, got %g", got)
	}
	if got := historyNames(after); !slices.Equal(got, []string{"CreateWorkspace", "Scale"}) {
		t.Errorf("history = %v", got)
	}
}

func TestScale_BadOperation(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	a, err := env.Create("Scale", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetPropertyValue("Operation", "Divide"); err == nil {
		t.Error("Divide should be rejected")
	}
}

func TestPlus(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	create(t, env, "B", "2")
	mustRun(t, env, "Plus", map[string]string{"LHSWorkspace": "A", "RHSWorkspace": "B", "OutputWorkspace": "C"})

	c := matrix(t, env, "C")
	assertAllY(t, c, 3)
	if got, want := c.E(0)[0], math.Sqrt2; math.Abs(got-want) > 1e-12 {
		t.Errorf("E = %g, want %g", got, want)
	}
	got := historyNames(c)
	if len(got) != 3 || got[2] != "Plus" {
		t.Errorf("history = %v, want both creates then Plus", got)
	}
}

func TestPlus_ShapeMismatch(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	mustRun(t, env, "CreateWorkspace", map[string]string{"NSpec": "1", "NBins": "3", "OutputWorkspace": "Small"})

	_, err := run(t, env, "Plus", map[string]string{"LHSWorkspace": "A", "RHSWorkspace": "Small", "OutputWorkspace": "C"})
	var verr *algorithm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := verr.Errors["RHSWorkspace"]; !ok {
		t.Errorf("errors = %v", verr.Errors)
	}
}

// -----------------------------------------------------------------------------
// Composite
// -----------------------------------------------------------------------------

func TestScaleAndAdd(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "2")

	a, err := env.Create("ScaleAndAdd", -1)
	if err != nil {
		t.Fatal(err)
	}
	a.SetRethrows(true)

	var mu sync.Mutex
	var progress []float64
	a.Subscribe(func(n algorithm.Notification) {
		mu.Lock()
		progress = append(progress, n.Progress)
		mu.Unlock()
	}, algorithm.KindProgress)

	if err := a.SetProperties(map[string]string{
		"InputWorkspace": "A", "OutputWorkspace": "B", "Factor": "3", "Offset": "1",
	}); err != nil {
		t.Fatal(err)
	}
	if ok, err := a.Execute(context.Background()); !ok || err != nil {
		t.Fatalf("Execute = %v, %v", ok, err)
	}

	assertAllY(t, matrix(t, env, "B"), 7)
	assertAllY(t, matrix(t, env, "A"), 2)

	for _, name := range env.ADS.Names(true) {
		if name != "A" && name != "B" {
			t.Errorf("unexpected entry %q; child outputs must stay out of the data service", name)
		}
	}

	last := matrix(t, env, "B").History().Last()
	if last.Name() != "ScaleAndAdd" {
		t.Fatalf("last record = %s", last.Name())
	}
	if n := len(last.Children()); n != 2 {
		t.Fatalf("children = %d, want 2", n)
	}
	for _, c := range last.Children() {
		if c.Name() != "Scale" {
			t.Errorf("child = %s, want Scale", c.Name())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progress) == 0 || progress[len(progress)-1] != 1 {
		t.Errorf("progress = %v, want to end at 1", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress not monotonic: %v", progress)
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Pause
// -----------------------------------------------------------------------------

func TestPause_Completes(t *testing.T) {
	env := testEnv(t)
	start := time.Now()
	a := mustRun(t, env, "Pause", map[string]string{"Duration": "0.06"})
	if time.Since(start) < 60*time.Millisecond {
		t.Error("Pause returned early")
	}
	if a.LastProgress() != 1 {
		t.Errorf("progress = %g, want 1", a.LastProgress())
	}
}

func TestPause_Cancel(t *testing.T) {
	env := testEnv(t)
	a, err := env.Create("Pause", -1)
	if err != nil {
		t.Fatal(err)
	}
	a.SetRethrows(true)
	if err := a.SetPropertyValue("Duration", "0"); err != nil {
		t.Fatal(err)
	}

	h, err := a.ExecuteAsync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	a.Cancel()

	if !h.TryWait(2 * time.Second) {
		t.Fatal("Pause did not stop after cancel")
	}
	ok, err := h.Result()
	if ok || !cancel.IsCancel(err) {
		t.Errorf("result = %v, %v; want cancel error", ok, err)
	}
}

func TestPause_ContextDeadline(t *testing.T) {
	env := testEnv(t)
	a, err := env.Create("Pause", -1)
	if err != nil {
		t.Fatal(err)
	}
	a.SetRethrows(true)
	_ = a.SetPropertyValue("Duration", "-1")

	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelFn()
	if ok, err := a.Execute(ctx); ok || !cancel.IsCancel(err) {
		t.Errorf("Execute = %v, %v; want cancel error", ok, err)
	}
}

// -----------------------------------------------------------------------------
// Workspace management
// -----------------------------------------------------------------------------

func TestRenameWorkspace(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	orig := matrix(t, env, "A")

	mustRun(t, env, "RenameWorkspace", map[string]string{"InputWorkspace": "A", "OutputWorkspace": "B"})

	if env.ADS.DoesExist("A") {
		t.Error("A should be gone")
	}
	b := matrix(t, env, "B")
	if b != orig {
		t.Error("rename should keep the object")
	}
	if got := historyNames(b); !slices.Equal(got, []string{"CreateWorkspace", "RenameWorkspace"}) {
		t.Errorf("history = %v", got)
	}
}

func TestRenameWorkspace_Overwrite(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	create(t, env, "B", "2")

	_, err := run(t, env, "RenameWorkspace", map[string]string{
		"InputWorkspace": "A", "OutputWorkspace": "B", "OverwriteExisting": "0",
	})
	if !errors.Is(err, kernel.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}

	mustRun(t, env, "RenameWorkspace", map[string]string{"InputWorkspace": "A", "OutputWorkspace": "B"})
	assertAllY(t, matrix(t, env, "B"), 1)
	if env.ADS.Size() != 1 {
		t.Errorf("size = %d, want 1", env.ADS.Size())
	}
}

func TestRenameWorkspace_SameName(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	_, err := run(t, env, "RenameWorkspace", map[string]string{"InputWorkspace": "A", "OutputWorkspace": "A"})
	var verr *algorithm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestGroupAndDelete(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	create(t, env, "B", "2")
	create(t, env, "C", "3")

	mustRun(t, env, "GroupWorkspaces", map[string]string{"InputWorkspaces": "A,B", "OutputWorkspace": "G"})
	g, err := dataservice.Retrieve[*workspace.Group](env.ADS, "G")
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Members(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("members = %v", got)
	}

	mustRun(t, env, "DeleteWorkspace", map[string]string{"Workspace": "G"})
	for _, n := range []string{"G", "A", "B"} {
		if env.ADS.DoesExist(n) {
			t.Errorf("%s should be deleted with the group", n)
		}
	}

	mustRun(t, env, "DeleteWorkspace", map[string]string{"Workspace": "C"})
	if env.ADS.Size() != 0 {
		t.Errorf("size = %d, want 0", env.ADS.Size())
	}
}

func TestGroupWorkspaces_MissingMember(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "1")
	_, err := run(t, env, "GroupWorkspaces", map[string]string{"InputWorkspaces": "A,Nope", "OutputWorkspace": "G"})
	var verr *algorithm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestDeleteWorkspace_Missing(t *testing.T) {
	env := testEnv(t)
	_, err := run(t, env, "DeleteWorkspace", map[string]string{"Workspace": "ghost"})
	if err == nil {
		t.Fatal("deleting a missing workspace should fail")
	}
}

func TestCloneWorkspace(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "4")
	mustRun(t, env, "CloneWorkspace", map[string]string{"InputWorkspace": "A", "OutputWorkspace": "B"})

	a, b := matrix(t, env, "A"), matrix(t, env, "B")
	if a.ID() == b.ID() {
		t.Error("clone should have a new ID")
	}
	assertAllY(t, b, 4)
	b.Y(0)[0] = 99
	if a.Y(0)[0] == 99 {
		t.Error("clone shares data with its source")
	}
	if got := historyNames(b); !slices.Equal(got, []string{"CreateWorkspace", "CloneWorkspace"}) {
		t.Errorf("history = %v", got)
	}
}

// -----------------------------------------------------------------------------
// Replay
// -----------------------------------------------------------------------------

func TestReplay_RebuildsWorkspace(t *testing.T) {
	env := testEnv(t)
	create(t, env, "A", "2")
	mustRun(t, env, "Scale", map[string]string{"InputWorkspace": "A", "OutputWorkspace": "A", "Factor": "3"})
	wh := matrix(t, env, "A").History().Clone()

	fresh := testEnv(t)
	n, err := algorithm.Replay(context.Background(), fresh, wh)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 2 {
		t.Errorf("replayed %d, want 2", n)
	}
	assertAllY(t, matrix(t, fresh, "A"), 6)
}
