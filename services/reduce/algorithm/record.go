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
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// complete records history and publishes outputs after a successful exec.
//
// Children nest their record under the parent and leave outputs in their
// properties, unless AlwaysStoreInADS is set.
func (a *Algorithm) complete(start time.Time, duration time.Duration) error {
	a.mu.Lock()
	children := a.childHistories
	a.childHistories = nil
	execCount := a.execCount
	publish := !a.isChild || a.alwaysStoreInADS
	a.mu.Unlock()

	rec := history.NewAlgorithmHistory(history.Record{
		ID:         uuid.New(),
		Name:       a.Name(),
		Version:    a.Version(),
		ExecCount:  execCount,
		Start:      start,
		Duration:   duration,
		Properties: a.props.History(),
		Children:   children,
	})
	a.mu.Lock()
	a.lastHistory = rec
	a.mu.Unlock()

	if a.isChild && a.parent != nil {
		a.parent.addChildHistory(rec)
	}
	if !publish {
		return nil
	}
	// A run whose outputs could not be stored leaves no history behind.
	if err := a.storeOutputs(); err != nil {
		return err
	}
	if a.env.RecordHistory {
		a.stampHistory(rec)
	}
	return nil
}

func (a *Algorithm) addChildHistory(rec *history.AlgorithmHistory) {
	a.mu.Lock()
	a.childHistories = append(a.childHistories, rec)
	a.mu.Unlock()
}

// stampHistory appends rec to every output workspace.
//
// A new output first inherits the histories of the distinct inputs; an
// in-place output already carries them and Merge deduplicates.
func (a *Algorithm) stampHistory(rec *history.AlgorithmHistory) {
	var inputs, outputs []workspace.Workspace
	for _, wp := range a.workspaceProperties() {
		ws := wp.Workspace()
		if ws == nil {
			continue
		}
		if wp.Direction().IsInput() && !slices.Contains(inputs, ws) {
			inputs = append(inputs, ws)
		}
		if wp.Direction().IsOutput() && !slices.Contains(outputs, ws) {
			outputs = append(outputs, ws)
		}
	}

	for _, out := range outputs {
		h := out.History()
		for _, in := range inputs {
			if in != out {
				h.Merge(in.History())
			}
		}
		h.Add(rec)
	}
}

// storeOutputs adds or replaces every named output workspace in the data service.
func (a *Algorithm) storeOutputs() error {
	for _, wp := range a.workspaceProperties() {
		if !wp.Direction().IsOutput() {
			continue
		}
		ws, name := wp.Workspace(), wp.Value()
		if ws == nil || name == "" {
			continue
		}
		if a.env.ADS == nil {
			return fmt.Errorf("store %s: %w", name, ErrNoDataService)
		}
		if err := a.env.ADS.AddOrReplace(name, ws); err != nil {
			return fmt.Errorf("store output %s: %w", wp.Name(), err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Workspace locking
// -----------------------------------------------------------------------------

type heldLock struct {
	name  string
	ws    workspace.Workspace
	write bool
}

// acquireLocks takes write locks on output workspaces and read locks on
// inputs, in name order, when lock mode is on. Children never lock.
//
// Workspace locks are not reentrant: exec must not lock a workspace the
// runtime already holds.
func (a *Algorithm) acquireLocks() (release func()) {
	a.mu.RLock()
	enabled := a.lockMode && !a.isChild
	a.mu.RUnlock()
	if !enabled {
		return func() {}
	}

	var held []heldLock
	for _, wp := range a.workspaceProperties() {
		ws := wp.Workspace()
		if ws == nil && wp.Direction() == property.Output && a.env.ADS != nil && wp.Value() != "" {
			ws, _ = a.env.ADS.Retrieve(wp.Value())
		}
		if ws == nil {
			continue
		}
		write := wp.Direction().IsOutput()
		if i := slices.IndexFunc(held, func(h heldLock) bool { return h.ws == ws }); i >= 0 {
			held[i].write = held[i].write || write
			continue
		}
		held = append(held, heldLock{name: wp.Value(), ws: ws, write: write})
	}

	slices.SortFunc(held, func(x, y heldLock) int {
		return cmp.Or(strings.Compare(x.name, y.name), strings.Compare(x.ws.ID().String(), y.ws.ID().String()))
	})
	for _, h := range held {
		if h.write {
			h.ws.Lock()
		} else {
			h.ws.RLock()
		}
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			if held[i].write {
				held[i].ws.Unlock()
			} else {
				held[i].ws.RUnlock()
			}
		}
	}
}
