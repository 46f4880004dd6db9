// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package property

import (
	"fmt"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// Property is a named, typed, validated configuration slot.
//
// Values cross the interface either as strings (the form used by scripts,
// the CLI and history) or as native Go values through ValueAny/SetValueAny.
//
// Setting a value the validator rejects stores it, returns a
// *kernel.ValueError, and leaves IsDefault unchanged. IsValid then reports
// the rejection until a valid value is set. A value that cannot be parsed
// is never stored.
type Property interface {
	Name() string
	Direction() Direction
	Documentation() string
	TypeName() string

	Value() string
	DefaultValue() string
	SetValue(s string) error
	SetValueFromProperty(other Property) error

	ValueAny() any
	SetValueAny(v any) error

	IsDefault() bool
	IsValid() string
	AllowedValues() []string

	Clone() Property
}

// Option configures a Value at declaration.
type Option[T any] func(*Value[T])

// WithValidator attaches a validator.
func WithValidator[T any](v Validator[T]) Option[T] {
	return func(p *Value[T]) { p.validator = v }
}

// WithDirection sets the direction. The default is Input.
func WithDirection[T any](d Direction) Option[T] {
	return func(p *Value[T]) { p.direction = d }
}

// WithDoc sets the documentation string.
func WithDoc[T any](doc string) Option[T] {
	return func(p *Value[T]) { p.doc = doc }
}

// WithCodec overrides the string codec. Required for types DefaultCodec does not know.
func WithCodec[T any](c Codec[T]) Option[T] {
	return func(p *Value[T]) { p.codec = c }
}

// Value is the generic Property implementation.
//
// Thread Safety: Safe for concurrent use.
type Value[T any] struct {
	mu        sync.RWMutex
	name      string
	doc       string
	direction Direction
	value     T
	def       T
	isDefault bool
	validator Validator[T]
	codec     Codec[T]

	// validity cache; gen increments on every set so a stale computation
	// never overwrites a fresher one.
	cached *string
	gen    uint64
}

// NewValue creates a property holding def.
//
// Outputs:
//   - *Value[T]: The property.
//   - error: *kernel.NameError if name is blank, or an error when T has no codec.
func NewValue[T any](name string, def T, opts ...Option[T]) (*Value[T], error) {
	if strings.TrimSpace(name) == "" {
		return nil, kernel.InvalidName("property", name, "name must not be empty")
	}
	p := &Value[T]{
		name:      name,
		direction: Input,
		value:     def,
		def:       def,
		isDefault: true,
	}
	if c, ok := DefaultCodec[T](); ok {
		p.codec = c
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.codec.Parse == nil || p.codec.Format == nil {
		return nil, fmt.Errorf("property %q: no codec for %T", name, def)
	}
	return p, nil
}

// Name implements Property.
func (p *Value[T]) Name() string { return p.name }

// Direction implements Property.
func (p *Value[T]) Direction() Direction { return p.direction }

// Documentation implements Property.
func (p *Value[T]) Documentation() string { return p.doc }

// TypeName implements Property.
func (p *Value[T]) TypeName() string {
	if p.codec.TypeName != "" {
		return p.codec.TypeName
	}
	return fmt.Sprintf("%T", p.def)
}

// Get returns the typed value.
func (p *Value[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Default returns the typed default.
func (p *Value[T]) Default() T {
	return p.def
}

// Set stores v.
//
// Outputs:
//   - error: *kernel.ValueError if the validator rejects v. v is stored
//     regardless so IsValid reflects it; IsDefault is cleared only on success.
func (p *Value[T]) Set(v T) error {
	msg := ""
	if p.validator != nil {
		msg = p.validator.Check(v)
	}

	p.mu.Lock()
	p.value = v
	p.gen++
	p.cached = nil
	if msg == "" {
		p.isDefault = false
	}
	p.mu.Unlock()

	if msg != "" {
		return &kernel.ValueError{Name: p.name, Value: p.codec.Format(v), Reason: msg}
	}
	return nil
}

// Value implements Property.
func (p *Value[T]) Value() string {
	return p.codec.Format(p.Get())
}

// DefaultValue implements Property.
func (p *Value[T]) DefaultValue() string {
	return p.codec.Format(p.def)
}

// SetValue implements Property.
func (p *Value[T]) SetValue(s string) error {
	v, err := p.codec.Parse(s)
	if err != nil {
		return &kernel.ValueError{
			Name:   p.name,
			Value:  s,
			Reason: fmt.Sprintf("cannot convert to %s: %v", p.TypeName(), err),
		}
	}
	return p.Set(v)
}

// SetValueFromProperty implements Property.
func (p *Value[T]) SetValueFromProperty(other Property) error {
	if o, ok := other.(*Value[T]); ok {
		return p.Set(o.Get())
	}
	return p.SetValue(other.Value())
}

// ValueAny implements Property.
func (p *Value[T]) ValueAny() any {
	return p.Get()
}

// SetValueAny implements Property.
//
// Accepts a T, or a string which is parsed with the codec.
func (p *Value[T]) SetValueAny(v any) error {
	switch tv := v.(type) {
	case T:
		return p.Set(tv)
	case string:
		return p.SetValue(tv)
	default:
		return &kernel.TypeError{Name: p.name, Want: fmt.Sprintf("%T", p.def), Got: fmt.Sprintf("%T", v)}
	}
}

// IsDefault implements Property.
func (p *Value[T]) IsDefault() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isDefault
}

// IsValid implements Property.
func (p *Value[T]) IsValid() string {
	p.mu.RLock()
	if p.cached != nil {
		msg := *p.cached
		p.mu.RUnlock()
		return msg
	}
	v, gen := p.value, p.gen
	p.mu.RUnlock()

	msg := ""
	if p.validator != nil {
		msg = p.validator.Check(v)
	}

	p.mu.Lock()
	if p.gen == gen {
		p.cached = &msg
	}
	p.mu.Unlock()
	return msg
}

// AllowedValues implements Property.
func (p *Value[T]) AllowedValues() []string {
	if l, ok := p.validator.(Lister); ok {
		return l.AllowedValues()
	}
	return nil
}

// Clone implements Property.
func (p *Value[T]) Clone() Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &Value[T]{
		name:      p.name,
		doc:       p.doc,
		direction: p.direction,
		value:     p.value,
		def:       p.def,
		isDefault: p.isDefault,
		validator: p.validator,
		codec:     p.codec,
	}
}

// String returns "Name=Value".
func (p *Value[T]) String() string {
	return p.name + "=" + p.Value()
}
