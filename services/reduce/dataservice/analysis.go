// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataservice

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// WorkspaceNotification is a notification from the analysis data service.
type WorkspaceNotification = Notification[workspace.Workspace]

// AnalysisDataService is the workspace registry.
//
// On top of DataService it keeps group membership consistent: removing or
// renaming an entry updates every group listing it, and a group may never
// contain itself directly or transitively.
//
// Thread Safety: Safe for concurrent use.
type AnalysisDataService struct {
	*DataService[workspace.Workspace]
}

// NewAnalysisDataService creates an empty workspace registry.
func NewAnalysisDataService(opts Options) *AnalysisDataService {
	if opts.Name == "" {
		opts.Name = "AnalysisDataService"
	}
	ads := &AnalysisDataService{DataService: New[workspace.Workspace](opts)}
	ads.validateHook = ads.validateGroup
	ads.removedHook = ads.scrubMember
	ads.renamedHook = ads.renameMember
	return ads
}

// Retrieve returns the workspace stored under name as a W.
//
// Outputs:
//   - error: ErrNotFound if absent, *kernel.TypeError if not a W.
func Retrieve[W workspace.Workspace](ads *AnalysisDataService, name string) (W, error) {
	var zero W
	ws, err := ads.DataService.Retrieve(name)
	if err != nil {
		return zero, err
	}
	w, ok := ws.(W)
	if !ok {
		return zero, &kernel.TypeError{Name: name, Want: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", ws)}
	}
	return w, nil
}

// -----------------------------------------------------------------------------
// Groups
// -----------------------------------------------------------------------------

// AddToGroup appends member to the group stored as groupName.
//
// Outputs:
//   - error: ErrNotFound if either is absent, ErrType if groupName is not a
//     group, ErrInvalidName if the addition would create a cycle.
func (a *AnalysisDataService) AddToGroup(groupName, member string) (err error) {
	defer func() { recordOp(a.name, "add_to_group", err) }()

	a.opMu.Lock()
	defer a.opMu.Unlock()

	g, err := Retrieve[*workspace.Group](a, groupName)
	if err != nil {
		return err
	}
	if !a.DoesExist(member) {
		return kernel.NotFound("workspace", member)
	}
	if a.reaches(member, groupName) {
		return kernel.InvalidName("group", member, fmt.Sprintf("adding to %q would create a cycle", groupName))
	}
	if g.Add(a.canonical(member)) {
		a.post(Notification[workspace.Workspace]{Type: KindGroupUpdated, Name: groupName, Object: g})
	}
	return nil
}

// RemoveFromGroup drops member from the group; the member entry itself stays.
func (a *AnalysisDataService) RemoveFromGroup(groupName, member string) (err error) {
	defer func() { recordOp(a.name, "remove_from_group", err) }()

	a.opMu.Lock()
	defer a.opMu.Unlock()

	g, err := Retrieve[*workspace.Group](a, groupName)
	if err != nil {
		return err
	}
	if !g.Remove(a.canonical(member)) {
		return kernel.NotFound("group member", member)
	}
	a.post(Notification[workspace.Workspace]{Type: KindGroupUpdated, Name: groupName, Object: g})
	return nil
}

// DeepRemoveGroup removes a group and every member, recursing into member groups.
//
// Description:
//
//	Members are removed first, one at a time; a failing member is logged and
//	the rest still proceed. A member shared by several nested groups is
//	removed once. Removal is not rolled back. The group itself is removed
//	last.
//
// Outputs:
//   - error: The joined member failures, or the group's own removal error.
func (a *AnalysisDataService) DeepRemoveGroup(name string) error {
	return a.deepRemove(name, make(map[string]struct{}))
}

// deepRemove tracks the canonical names already removed by this call.
func (a *AnalysisDataService) deepRemove(name string, removed map[string]struct{}) error {
	g, err := Retrieve[*workspace.Group](a, name)
	if err != nil {
		return err
	}

	var errs []error
	for _, member := range g.Members() {
		key := a.canonical(member)
		if _, done := removed[key]; done {
			continue
		}
		var merr error
		if _, isGroup := a.lookup(member).(*workspace.Group); isGroup {
			merr = a.deepRemove(member, removed)
		} else {
			merr = a.Remove(member)
		}
		if merr != nil {
			a.logger.Warn("deep remove: member removal failed",
				slog.String("group", name),
				slog.String("member", member),
				slog.String("error", merr.Error()),
			)
			errs = append(errs, merr)
			continue
		}
		removed[key] = struct{}{}
	}
	key := a.canonical(name)
	if err := a.Remove(name); err != nil {
		errs = append(errs, err)
	} else {
		removed[key] = struct{}{}
	}
	return errors.Join(errs...)
}

// TopLevelItems returns visible entries that belong to no group, keyed by name.
func (a *AnalysisDataService) TopLevelItems() map[string]workspace.Workspace {
	es := a.sortedEntries(false)
	grouped := make(map[string]struct{})
	for _, e := range es {
		if g, ok := e.obj.(*workspace.Group); ok {
			for _, m := range g.Members() {
				grouped[a.key(m)] = struct{}{}
			}
		}
	}
	out := make(map[string]workspace.Workspace, len(es))
	for _, e := range es {
		if _, inGroup := grouped[a.key(e.name)]; !inGroup {
			out[e.name] = e.obj
		}
	}
	return out
}

// Groups returns the names of every group listing member.
func (a *AnalysisDataService) Groups(member string) []string {
	var out []string
	k := a.key(member)
	for _, name := range a.Names(true) {
		if g, ok := a.lookup(name).(*workspace.Group); ok {
			if slices.ContainsFunc(g.Members(), func(m string) bool { return a.key(m) == k }) {
				out = append(out, name)
			}
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Hooks (run under opMu)
// -----------------------------------------------------------------------------

func (a *AnalysisDataService) validateGroup(name string, obj workspace.Workspace) error {
	g, ok := obj.(*workspace.Group)
	if !ok {
		return nil
	}
	for _, m := range g.Members() {
		if a.key(m) == a.key(name) || a.reaches(m, name) {
			return kernel.InvalidName("group", name, fmt.Sprintf("member %q would create a cycle", m))
		}
	}
	return nil
}

func (a *AnalysisDataService) scrubMember(name string) {
	for _, g := range a.groupsListing(name) {
		for _, m := range g.Members() {
			if a.key(m) == a.key(name) {
				g.Remove(m)
			}
		}
	}
}

func (a *AnalysisDataService) renameMember(oldName, newName string) {
	for _, g := range a.groupsListing(oldName) {
		for _, m := range g.Members() {
			if a.key(m) == a.key(oldName) {
				g.Rename(m, newName)
			}
		}
	}
}

func (a *AnalysisDataService) groupsListing(member string) []*workspace.Group {
	k := a.key(member)
	var out []*workspace.Group
	for _, obj := range a.Objects(true) {
		g, ok := obj.(*workspace.Group)
		if !ok {
			continue
		}
		if slices.ContainsFunc(g.Members(), func(m string) bool { return a.key(m) == k }) {
			out = append(out, g)
		}
	}
	return out
}

// reaches reports whether target is from, or a transitive member of from.
func (a *AnalysisDataService) reaches(from, target string) bool {
	seen := make(map[string]bool)
	var walk func(name string) bool
	walk = func(name string) bool {
		k := a.key(name)
		if k == a.key(target) {
			return true
		}
		if seen[k] {
			return false
		}
		seen[k] = true
		g, ok := a.lookup(name).(*workspace.Group)
		if !ok {
			return false
		}
		return slices.ContainsFunc(g.Members(), walk)
	}
	return walk(from)
}

func (a *AnalysisDataService) lookup(name string) workspace.Workspace {
	ws, _ := a.DataService.Retrieve(name)
	return ws
}

// canonical returns the stored spelling of name.
func (a *AnalysisDataService) canonical(name string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if e, ok := a.entries[a.key(name)]; ok {
		return e.name
	}
	return name
}
