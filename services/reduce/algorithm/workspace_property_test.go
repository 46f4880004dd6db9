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
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

func TestWorkspaceProperty_InputResolution(t *testing.T) {
	env := testEnv()
	m := newMatrix(t, 1)
	_ = env.ADS.Add("data", m)

	p, err := NewWorkspaceProperty("InputWorkspace", property.Input, env.ADS)
	if err != nil {
		t.Fatalf("NewWorkspaceProperty: %v", err)
	}
	if msg := p.IsValid(); msg == "" {
		t.Error("empty mandatory input should be invalid")
	}
	if err := p.SetValue("data"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if p.Workspace() != m || p.IsValid() != "" || p.IsDefault() {
		t.Error("input should resolve to the stored workspace")
	}

	if err := p.SetValue("missing"); !errors.Is(err, kernel.ErrInvalidValue) {
		t.Errorf("SetValue(missing) err = %v, want ErrInvalidValue", err)
	}
	if p.Value() != "missing" || !strings.Contains(p.IsValid(), "not found") {
		t.Errorf("Value=%q IsValid=%q", p.Value(), p.IsValid())
	}

	_ = p.SetValue("data")
	_ = env.ADS.Remove("data")
	if p.IsValid() == "" {
		t.Error("validation should re-check the data service")
	}
}

func TestWorkspaceProperty_Kinds(t *testing.T) {
	env := testEnv()
	table, _ := workspace.NewTable("a")
	_ = env.ADS.Add("table", table)
	_ = env.ADS.Add("matrix", newMatrix(t, 1))

	p, _ := NewWorkspaceProperty("In", property.Input, env.ADS, WithKinds("Matrix"))
	if err := p.SetValue("table"); err == nil {
		t.Error("a Table should be rejected")
	}
	if got := p.AllowedValues(); len(got) != 1 || got[0] != "matrix" {
		t.Errorf("AllowedValues = %v, want [matrix]", got)
	}
	var terr *kernel.TypeError
	if err := p.SetWorkspace(table); !errors.As(err, &terr) {
		t.Errorf("SetWorkspace(table) err = %v, want *kernel.TypeError", err)
	}
}

func TestWorkspaceProperty_OptionalAndOutput(t *testing.T) {
	env := testEnv()
	opt, _ := NewWorkspaceProperty("Mask", property.Input, env.ADS, Optional())
	if opt.IsValid() != "" || !opt.IsOptional() {
		t.Error("empty optional input should be valid")
	}

	out, _ := NewWorkspaceProperty("Out", property.Output, env.ADS)
	if err := out.SetValue("not yet there"); err != nil {
		t.Errorf("outputs do not resolve at set time: %v", err)
	}
	if out.IsValid() == "" {
		t.Error("an output name with illegal characters should be invalid")
	}
	_ = out.SetValue("fine")
	if out.IsValid() != "" {
		t.Errorf("IsValid = %q", out.IsValid())
	}

	if _, err := NewWorkspaceProperty("X", property.None, env.ADS); !errors.Is(err, kernel.ErrInvalidName) {
		t.Errorf("None direction err = %v", err)
	}
	if _, err := NewWorkspaceProperty("", property.Input, env.ADS); !errors.Is(err, kernel.ErrInvalidName) {
		t.Errorf("blank name err = %v", err)
	}
}

func TestWorkspaceProperty_DirectAssignmentAndClone(t *testing.T) {
	m := newMatrix(t, 2)
	p, _ := NewWorkspaceProperty("In", property.Input, nil)
	if err := p.SetValueAny(m); err != nil {
		t.Fatalf("SetValueAny: %v", err)
	}
	if p.IsValid() != "" || p.ValueAny() != m {
		t.Error("directly assigned workspace should be valid without a data service")
	}

	q, _ := NewWorkspaceProperty("In", property.Input, nil)
	if err := q.SetValueFromProperty(p); err != nil {
		t.Fatalf("SetValueFromProperty: %v", err)
	}
	if q.Workspace() != m {
		t.Error("direct assignment should carry over")
	}

	c := p.Clone().(*WorkspaceProperty)
	if c.Workspace() != m || c.Name() != "In" {
		t.Error("clone mismatch")
	}
	var terr *kernel.TypeError
	if err := p.SetValueAny(42); !errors.As(err, &terr) {
		t.Errorf("SetValueAny(42) err = %v", err)
	}
	if err := p.SetValueAny(nil); err != nil || p.Workspace() != nil || !p.IsDefault() {
		t.Errorf("SetValueAny(nil) should reset: err=%v", err)
	}
}

func TestGetWorkspace_Errors(t *testing.T) {
	a := New(createFlat(), testEnv())
	_ = a.Initialize()
	if _, err := GetWorkspace[*workspace.Matrix](a, "OutputWorkspace"); !errors.Is(err, kernel.ErrNotFound) {
		t.Errorf("empty err = %v, want ErrNotFound", err)
	}
	if _, err := GetWorkspace[*workspace.Matrix](a, "Value"); !errors.Is(err, kernel.ErrType) {
		t.Errorf("non-workspace err = %v, want ErrType", err)
	}
	table, _ := workspace.NewTable("c")
	_ = SetWorkspace(a, "OutputWorkspace", table)
	if _, err := GetWorkspace[*workspace.Matrix](a, "OutputWorkspace"); !errors.Is(err, kernel.ErrType) {
		t.Errorf("wrong kind err = %v, want ErrType", err)
	}
	if err := SetWorkspace(a, "Value", table); !errors.Is(err, kernel.ErrType) {
		t.Errorf("SetWorkspace on value err = %v", err)
	}
}
