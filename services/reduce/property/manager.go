// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package property implements typed, validated configuration slots and the
// ordered collection an algorithm declares them in.
//
// # Usage
//
//	m := property.NewManager()
//	h, _ := property.Declare(m, "Height", 1.0,
//	    property.WithValidator[float64](property.LowerBound(0.0)))
//	_ = m.SetPropertyValue("height", "2.5") // names are case-insensitive
//	v, _ := property.Get[float64](m, "Height")
//
// Thread Safety: Manager and Value are safe for concurrent use.
package property

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// Manager owns an ordered set of properties addressed case-insensitively.
type Manager struct {
	mu    sync.RWMutex
	props []Property
	index map[string]int
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{index: make(map[string]int)}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Declare adds p in declaration order.
//
// Outputs:
//   - error: *kernel.NameError (ErrDuplicateName) if the name is taken.
func (m *Manager) Declare(p Property) error {
	k := key(p.Name())
	if k == "" {
		return kernel.InvalidName("property", p.Name(), "name must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.index[k]; exists {
		return kernel.DuplicateName("property", p.Name())
	}
	m.index[k] = len(m.props)
	m.props = append(m.props, p)
	return nil
}

// Remove drops a declared property.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[key(name)]
	if !ok {
		return kernel.NotFound("property", name)
	}
	m.props = slices.Delete(m.props, i, i+1)
	m.reindex()
	return nil
}

// Clear drops every property.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props = nil
	m.index = make(map[string]int)
}

func (m *Manager) reindex() {
	m.index = make(map[string]int, len(m.props))
	for i, p := range m.props {
		m.index[key(p.Name())] = i
	}
}

// Has reports whether name is declared.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[key(name)]
	return ok
}

// Property returns the property declared as name.
func (m *Manager) Property(name string) (Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[key(name)]
	if !ok {
		return nil, kernel.NotFound("property", name)
	}
	return m.props[i], nil
}

// Properties returns the properties in declaration order.
func (m *Manager) Properties() []Property {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.props)
}

// Len returns the number of declared properties.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.props)
}

// SetPropertyValue parses and sets a value from its string form.
func (m *Manager) SetPropertyValue(name, value string) error {
	p, err := m.Property(name)
	if err != nil {
		return err
	}
	return p.SetValue(value)
}

// SetProperty sets a native value; see Property.SetValueAny.
func (m *Manager) SetProperty(name string, value any) error {
	p, err := m.Property(name)
	if err != nil {
		return err
	}
	return p.SetValueAny(value)
}

// PropertyValue returns the string form of a property's value.
func (m *Manager) PropertyValue(name string) (string, error) {
	p, err := m.Property(name)
	if err != nil {
		return "", err
	}
	return p.Value(), nil
}

// SetProperties applies name→value pairs in declaration order.
//
// Description:
//
//	Every pair is attempted. The first failure is returned after the
//	remaining pairs have been applied; unknown names fail with NotFound.
func (m *Manager) SetProperties(values map[string]string) error {
	pending := make(map[string]string, len(values))
	for k, v := range values {
		pending[key(k)] = v
	}

	var firstErr error
	for _, p := range m.Properties() {
		k := key(p.Name())
		v, ok := pending[k]
		if !ok {
			continue
		}
		delete(pending, k)
		if err := p.SetValue(v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil && len(pending) > 0 {
		unknown := slices.Sorted(maps.Keys(pending))
		firstErr = kernel.NotFound("property", unknown[0])
	}
	return firstErr
}

// SetPropertiesString applies "Name=Value;Name=Value".
func (m *Manager) SetPropertiesString(s string) error {
	values := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return &kernel.ValueError{Name: "properties", Value: pair, Reason: "expected Name=Value"}
		}
		values[strings.TrimSpace(name)] = value
	}
	return m.SetProperties(values)
}

// AsString renders "Name=Value;..." in declaration order.
//
// Inputs:
//   - withDefaults: Include properties still at their default.
func (m *Manager) AsString(withDefaults bool) string {
	var parts []string
	for _, p := range m.Properties() {
		if !withDefaults && p.IsDefault() {
			continue
		}
		parts = append(parts, p.Name()+"="+p.Value())
	}
	return strings.Join(parts, ";")
}

// ValidateProperties returns name→message for every invalid property.
//
// The result is empty, never nil, when everything is valid.
func (m *Manager) ValidateProperties() map[string]string {
	errs := make(map[string]string)
	for _, p := range m.Properties() {
		if msg := p.IsValid(); msg != "" {
			errs[p.Name()] = msg
		}
	}
	return errs
}

// History snapshots every property in declaration order.
func (m *Manager) History() []history.PropertyHistory {
	props := m.Properties()
	out := make([]history.PropertyHistory, len(props))
	for i, p := range props {
		out[i] = Snapshot(p)
	}
	return out
}

// Snapshot converts one property to its history record.
func Snapshot(p Property) history.PropertyHistory {
	return history.PropertyHistory{
		Name:      p.Name(),
		Value:     p.Value(),
		Type:      p.TypeName(),
		IsDefault: p.IsDefault(),
		Direction: p.Direction().String(),
	}
}

// -----------------------------------------------------------------------------
// Typed helpers
// -----------------------------------------------------------------------------

// Declare creates a Value[T] and adds it to m.
func Declare[T any](m *Manager, name string, def T, opts ...Option[T]) (*Value[T], error) {
	p, err := NewValue(name, def, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Declare(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the typed value of a declared property.
//
// Outputs:
//   - error: NotFound if undeclared, *kernel.TypeError if not a T.
func Get[T any](m *Manager, name string) (T, error) {
	var zero T
	p, err := m.Property(name)
	if err != nil {
		return zero, err
	}
	v, ok := p.ValueAny().(T)
	if !ok {
		return zero, &kernel.TypeError{Name: p.Name(), Want: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", p.ValueAny())}
	}
	return v, nil
}

// Set sets the typed value of a declared property.
func Set[T any](m *Manager, name string, v T) error {
	p, err := m.Property(name)
	if err != nil {
		return err
	}
	if tp, ok := p.(*Value[T]); ok {
		return tp.Set(v)
	}
	return p.SetValueAny(v)
}
