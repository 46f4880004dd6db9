// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package framework

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithms"
	"github.com/AleutianAI/AleutianReduce/services/reduce/archive"
	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

var discard = slog.New(slog.DiscardHandler)

func newFramework(t *testing.T, cfg *config.Config) *Framework {
	t.Helper()
	f, err := New(context.Background(), cfg, WithLogger(discard), WithAlgorithms(algorithms.Register))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil); !errors.Is(err, ErrNilConfig) {
		t.Errorf("err = %v, want ErrNilConfig", err)
	}
}

func TestNew_Wiring(t *testing.T) {
	cfg := config.Default()
	cfg.DataService.CaseSensitive = false
	f := newFramework(t, cfg)

	if f.Archive() != nil {
		t.Error("archive should be off by default")
	}
	if !f.Factory().Exists("Scale", -1) {
		t.Error("stock algorithms should be registered")
	}
	if f.Environment().ADS != f.ADS() || f.Environment().Factory != f.Factory() {
		t.Error("environment should share the framework's services")
	}

	a, err := f.Manager().Create("CreateWorkspace", -1)
	if err != nil {
		t.Fatal(err)
	}
	_ = a.SetPropertyValue("OutputWorkspace", "Flat")
	if ok, err := a.Execute(context.Background()); !ok || err != nil {
		t.Fatalf("Execute = %v, %v", ok, err)
	}
	if !f.ADS().DoesExist("flat") {
		t.Error("case-insensitive lookup should find Flat")
	}
}

func TestNew_RegistrarError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(context.Background(), config.Default(),
		WithLogger(discard),
		WithAlgorithms(func(*algorithm.Factory) error { return boom }))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestNew_ArchiveRecordsHistory(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Backend = archive.BackendSQLite
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive.db")

	f, err := New(context.Background(), cfg, WithLogger(discard), WithAlgorithms(algorithms.Register))
	if err != nil {
		t.Fatal(err)
	}
	store := f.Archive()
	if store == nil {
		t.Fatal("archive should be open")
	}

	a, _ := f.Environment().Create("CreateWorkspace", -1)
	_ = a.SetPropertyValue("OutputWorkspace", "W")
	if ok, err := a.Execute(context.Background()); !ok || err != nil {
		t.Fatalf("Execute = %v, %v", ok, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := archive.OpenSQLite(context.Background(), cfg.Archive.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	e, err := reopened.Load(context.Background(), "W")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.History.Size() != 1 || e.History.Last().Name() != "CreateWorkspace" {
		t.Errorf("archived history = %v", e.History)
	}
}

func TestApply_NameRules(t *testing.T) {
	f := newFramework(t, config.Default())

	next := config.Default()
	next.DataService.IllegalCharacters = "#"
	next.DataService.HiddenPrefix = "."
	next.Algorithms.MaxManaged = 3
	f.Apply(next)

	if f.Config() != next {
		t.Error("Config should return the applied configuration")
	}
	if err := f.ADS().CheckName("a#b"); !errors.Is(err, kernel.ErrInvalidName) {
		t.Errorf("CheckName(a#b) = %v, want ErrInvalidName", err)
	}
	if err := f.ADS().CheckName("a-b"); err != nil {
		t.Errorf("CheckName(a-b) = %v, want nil", err)
	}
	if !f.ADS().IsHidden(".tmp") || f.ADS().IsHidden("__tmp") {
		t.Error("hidden prefix should now be '.'")
	}
}

func TestWatch_ReloadsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reduce.yaml")
	if err := os.WriteFile(path, []byte("dataservice:\n  hidden_prefix: \"__\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	f := newFramework(t, cfg)
	if err := f.Watch(context.Background(), path); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := f.Watch(context.Background(), path); err == nil {
		t.Error("second Watch should fail")
	}

	if err := os.WriteFile(path, []byte("dataservice:\n  hidden_prefix: \"tmp_\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.ADS().IsHidden("tmp_x") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("hidden prefix was not reloaded")
}

func TestClose_CancelsRunning(t *testing.T) {
	f := newFramework(t, config.Default())

	a, err := f.Manager().Create("Pause", -1)
	if err != nil {
		t.Fatal(err)
	}
	_ = a.SetPropertyValue("Duration", "0")
	h, err := a.ExecuteAsync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.TryWait(2 * time.Second) {
		t.Fatal("running algorithm was not cancelled")
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
