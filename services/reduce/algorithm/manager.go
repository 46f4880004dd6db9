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
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// DefaultMaxManaged is the number of managed instances kept when unset.
const DefaultMaxManaged = 100

// Manager creates and tracks managed top-level algorithms.
//
// Description:
//
//	Manager keeps the most recent instances it created, up to max. When the
//	limit is exceeded the oldest idle instance is dropped; running ones are
//	never dropped, so the count may temporarily exceed max. Children are
//	never managed.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	env    *Environment
	logger *slog.Logger

	mu      sync.Mutex
	max     int
	managed []*Algorithm
}

// NewManager creates a manager over env.
//
// Inputs:
//   - env: Collaborators. Must not be nil.
//   - maxManaged: Retention limit. Non-positive means DefaultMaxManaged.
func NewManager(env *Environment, maxManaged int) *Manager {
	if maxManaged <= 0 {
		maxManaged = DefaultMaxManaged
	}
	return &Manager{
		env:    env,
		logger: env.Logger.With(slog.String("component", "algorithm_manager")),
		max:    maxManaged,
	}
}

// Create builds, initializes and tracks an algorithm.
//
// Inputs:
//   - version: A registered version, or -1 for the highest.
func (m *Manager) Create(name string, version int) (*Algorithm, error) {
	a, err := m.env.Create(name, version)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.managed = append(m.managed, a)
	m.evictLocked()
	return a, nil
}

func (m *Manager) evictLocked() {
	for len(m.managed) > m.max {
		i := slices.IndexFunc(m.managed, func(a *Algorithm) bool { return !a.IsRunning() })
		if i < 0 {
			m.logger.Warn("managed algorithm limit exceeded; all instances running",
				slog.Int("max", m.max),
				slog.Int("managed", len(m.managed)),
			)
			return
		}
		m.managed = slices.Delete(m.managed, i, i+1)
	}
}

// SetMaxManaged changes the retention limit.
func (m *Manager) SetMaxManaged(n int) {
	if n <= 0 {
		n = DefaultMaxManaged
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.max = n
	m.evictLocked()
}

// Get returns a managed instance by ID.
func (m *Manager) Get(id uuid.UUID) (*Algorithm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.managed {
		if a.ID() == id {
			return a, nil
		}
	}
	return nil, kernel.NotFound("managed algorithm", id.String())
}

// Size returns the number of managed instances.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.managed)
}

// Instances returns every managed instance, oldest first.
func (m *Manager) Instances() []*Algorithm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.managed)
}

// RunningInstances returns the managed instances currently running.
func (m *Manager) RunningInstances() []*Algorithm {
	return m.filter(func(a *Algorithm) bool { return a.IsRunning() })
}

// RunningInstancesOf returns the running managed instances named name.
func (m *Manager) RunningInstancesOf(name string) []*Algorithm {
	return m.filter(func(a *Algorithm) bool { return a.IsRunning() && a.Name() == name })
}

func (m *Manager) filter(keep func(*Algorithm) bool) []*Algorithm {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Algorithm
	for _, a := range m.managed {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// CancelAll requests cancellation of every running managed instance.
//
// Outputs:
//   - int: Number of executions signalled.
func (m *Manager) CancelAll() int {
	n := 0
	for _, a := range m.RunningInstances() {
		if a.CancelWithReason(cancel.CancelReason{Type: cancel.CancelShutdown, Message: "cancel all", Component: "algorithm_manager"}) {
			n++
		}
	}
	return n
}

// Clear drops every idle instance.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.managed = slices.DeleteFunc(m.managed, func(a *Algorithm) bool { return !a.IsRunning() })
}
