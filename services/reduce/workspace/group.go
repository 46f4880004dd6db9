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
	"slices"
	"sync"
)

// Group is a workspace whose payload is an ordered set of member names.
//
// Membership is maintained by the analysis data service, which keeps member
// names in step with renames and removals and rejects cycles. Mutating a
// group directly bypasses those checks.
//
// Thread Safety: Safe for concurrent use.
type Group struct {
	Base
	mu      sync.RWMutex
	members []string
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	g := &Group{}
	g.InitBase()
	return g
}

// Kind implements Workspace.
func (g *Group) Kind() string { return "Group" }

// Members returns the member names in insertion order.
func (g *Group) Members() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.members)
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Contains reports whether name is a member.
func (g *Group) Contains(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.members, name)
}

// Add appends name if absent. Reports whether it was added.
func (g *Group) Add(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if slices.Contains(g.members, name) {
		return false
	}
	g.members = append(g.members, name)
	return true
}

// Remove deletes name. Reports whether it was present.
func (g *Group) Remove(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.Index(g.members, name)
	if i < 0 {
		return false
	}
	g.members = slices.Delete(g.members, i, i+1)
	return true
}

// Rename replaces oldName with newName in place. Reports whether oldName was present.
func (g *Group) Rename(oldName, newName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.Index(g.members, oldName)
	if i < 0 {
		return false
	}
	if slices.Contains(g.members, newName) {
		g.members = slices.Delete(g.members, i, i+1)
		return true
	}
	g.members[i] = newName
	return true
}

// MemorySize implements Workspace.
func (g *Group) MemorySize() int64 {
	var n int64
	for _, m := range g.Members() {
		n += int64(len(m))
	}
	return n
}

// Clone implements Workspace. The clone lists the same member names.
func (g *Group) Clone() Workspace {
	c := &Group{members: g.Members()}
	c.initCloneOf(&g.Base)
	return c
}
