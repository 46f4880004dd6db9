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
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// Descriptor describes a registered algorithm.
type Descriptor struct {
	Name     string `json:"name"`
	Versions []int  `json:"versions"`
	Category string `json:"category"`
	Summary  string `json:"summary,omitempty"`
}

// Factory creates implementations by name and version.
//
// Thread Safety: Safe for concurrent use.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]map[int]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]map[int]Constructor)}
}

// Register adds ctor under the name and version of the implementation it builds.
//
// Outputs:
//   - error: InvalidName for a blank name, DuplicateName if the name and
//     version are already registered.
func (f *Factory) Register(ctor Constructor) error {
	impl := ctor()
	name, version := impl.Name(), impl.Version()
	if strings.TrimSpace(name) == "" {
		return kernel.InvalidName("algorithm", name, "name must not be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	versions, ok := f.ctors[name]
	if !ok {
		versions = make(map[int]Constructor)
		f.ctors[name] = versions
	}
	if _, exists := versions[version]; exists {
		return kernel.DuplicateName("algorithm", versionedName(name, version))
	}
	versions[version] = ctor
	return nil
}

// MustRegister is Register that panics; for package-level registration tables.
func (f *Factory) MustRegister(ctors ...Constructor) {
	for _, c := range ctors {
		if err := f.Register(c); err != nil {
			panic(err)
		}
	}
}

// Unregister removes one version.
func (f *Factory) Unregister(name string, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions, ok := f.ctors[name]
	if !ok {
		return kernel.NotFound("algorithm", name)
	}
	if _, ok := versions[version]; !ok {
		return kernel.NotFound("algorithm", versionedName(name, version))
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(f.ctors, name)
	}
	return nil
}

// Create builds a fresh implementation.
//
// Inputs:
//   - version: A registered version, or -1 for the highest.
//
// Outputs:
//   - error: NotFound for an unknown name or version.
func (f *Factory) Create(name string, version int) (Implementation, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	versions, ok := f.ctors[name]
	if !ok {
		return nil, kernel.NotFound("algorithm", name)
	}
	if version < 0 {
		version = slices.Max(slices.Collect(maps.Keys(versions)))
	}
	ctor, ok := versions[version]
	if !ok {
		return nil, kernel.NotFound("algorithm", versionedName(name, version))
	}
	return ctor(), nil
}

// Exists reports whether name is registered at version (-1: any version).
func (f *Factory) Exists(name string, version int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	versions, ok := f.ctors[name]
	if !ok {
		return false
	}
	if version < 0 {
		return true
	}
	_, ok = versions[version]
	return ok
}

// HighestVersion returns the highest registered version of name.
func (f *Factory) HighestVersion(name string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	versions, ok := f.ctors[name]
	if !ok {
		return 0, kernel.NotFound("algorithm", name)
	}
	return slices.Max(slices.Collect(maps.Keys(versions))), nil
}

// Names returns registered names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.ctors))
}

// Descriptors describes every registered name, sorted by category then name.
//
// Category and summary come from the highest version.
func (f *Factory) Descriptors() []Descriptor {
	f.mu.RLock()
	out := make([]Descriptor, 0, len(f.ctors))
	for name, versions := range f.ctors {
		vs := slices.Sorted(maps.Keys(versions))
		impl := versions[vs[len(vs)-1]]()
		d := Descriptor{Name: name, Versions: vs, Category: impl.Category()}
		if s, ok := impl.(Summarizer); ok {
			d.Summary = s.Summary()
		}
		out = append(out, d)
	}
	f.mu.RUnlock()

	slices.SortFunc(out, func(x, y Descriptor) int {
		if c := strings.Compare(x.Category, y.Category); c != 0 {
			return c
		}
		return strings.Compare(x.Name, y.Name)
	})
	return out
}

func versionedName(name string, version int) string {
	return fmt.Sprintf("%s v%d", name, version)
}
