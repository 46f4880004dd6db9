// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace defines the data payloads exchanged through the
// analysis data service.
//
// The runtime treats workspaces as opaque: it needs an identity, a
// provenance history, and a reader/writer lock. Matrix and Table are
// minimal concrete payloads; Group aggregates other workspaces by name.
//
// Workspaces are shared by pointer. Whoever holds one may read it; writers
// should hold Lock for the duration of a mutation when other goroutines may
// read concurrently. Algorithms do this automatically when created with
// lock mode enabled.
package workspace

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// Workspace is the contract every payload satisfies.
type Workspace interface {
	ID() uuid.UUID
	Kind() string
	Title() string
	SetTitle(title string)
	Comment() string
	SetComment(comment string)
	History() *history.WorkspaceHistory

	// MemorySize estimates the payload size in bytes.
	MemorySize() int64

	// Clone returns a deep copy with a new ID and a copy of the history.
	Clone() Workspace

	// Locking hooks. Not used by the data service itself.
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// Base carries the identity, metadata and history shared by every payload.
//
// Embed it by value and call InitBase before use.
type Base struct {
	data sync.RWMutex

	metaMu  sync.RWMutex
	id      uuid.UUID
	title   string
	comment string
	hist    *history.WorkspaceHistory
}

// InitBase assigns a fresh ID and an empty history.
func (b *Base) InitBase() {
	b.id = uuid.New()
	b.hist = history.NewWorkspaceHistory(history.CurrentEnvironment(kernel.FrameworkName, kernel.Version))
}

// initCloneOf gives b a fresh ID and copies src's metadata and history.
func (b *Base) initCloneOf(src *Base) {
	src.metaMu.RLock()
	defer src.metaMu.RUnlock()
	b.id = uuid.New()
	b.title = src.title
	b.comment = src.comment
	b.hist = src.hist.Clone()
}

// ID returns the workspace's unique ID.
func (b *Base) ID() uuid.UUID {
	return b.id
}

// Title returns the title.
func (b *Base) Title() string {
	b.metaMu.RLock()
	defer b.metaMu.RUnlock()
	return b.title
}

// SetTitle sets the title.
func (b *Base) SetTitle(title string) {
	b.metaMu.Lock()
	defer b.metaMu.Unlock()
	b.title = title
}

// Comment returns the free-form comment.
func (b *Base) Comment() string {
	b.metaMu.RLock()
	defer b.metaMu.RUnlock()
	return b.comment
}

// SetComment sets the free-form comment.
func (b *Base) SetComment(comment string) {
	b.metaMu.Lock()
	defer b.metaMu.Unlock()
	b.comment = comment
}

// History returns the provenance history. Never nil.
func (b *Base) History() *history.WorkspaceHistory {
	return b.hist
}

// Lock acquires the payload write lock.
func (b *Base) Lock() { b.data.Lock() }

// Unlock releases the payload write lock.
func (b *Base) Unlock() { b.data.Unlock() }

// RLock acquires the payload read lock.
func (b *Base) RLock() { b.data.RLock() }

// RUnlock releases the payload read lock.
func (b *Base) RUnlock() { b.data.RUnlock() }
