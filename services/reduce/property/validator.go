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
	"cmp"
	"fmt"
	"slices"
)

// Validator checks a candidate value.
//
// Check returns an empty string when v is acceptable, otherwise a message
// suitable for showing to a user.
type Validator[T any] interface {
	Check(v T) string
}

// Lister is implemented by validators that accept only an enumerated set.
type Lister interface {
	AllowedValues() []string
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc[T any] func(v T) string

// Check implements Validator.
func (f ValidatorFunc[T]) Check(v T) string {
	return f(v)
}

// -----------------------------------------------------------------------------
// Bounded
// -----------------------------------------------------------------------------

// Bounded accepts values inside an optional lower and upper bound.
type Bounded[T cmp.Ordered] struct {
	lower, upper       T
	hasLower, hasUpper bool
	exclusive          bool
}

// NewBounded accepts lower <= v <= upper.
func NewBounded[T cmp.Ordered](lower, upper T) *Bounded[T] {
	return &Bounded[T]{lower: lower, upper: upper, hasLower: true, hasUpper: true}
}

// LowerBound accepts v >= lower.
func LowerBound[T cmp.Ordered](lower T) *Bounded[T] {
	return &Bounded[T]{lower: lower, hasLower: true}
}

// UpperBound accepts v <= upper.
func UpperBound[T cmp.Ordered](upper T) *Bounded[T] {
	return &Bounded[T]{upper: upper, hasUpper: true}
}

// Exclusive returns a copy that rejects values equal to a bound.
func (b *Bounded[T]) Exclusive() *Bounded[T] {
	c := *b
	c.exclusive = true
	return &c
}

// Check implements Validator.
func (b *Bounded[T]) Check(v T) string {
	if b.hasLower {
		if v < b.lower || (b.exclusive && v == b.lower) {
			return fmt.Sprintf("Selected value %v is %s the lower bound (%v)", v, b.cmpWord("<"), b.lower)
		}
	}
	if b.hasUpper {
		if v > b.upper || (b.exclusive && v == b.upper) {
			return fmt.Sprintf("Selected value %v is %s the upper bound (%v)", v, b.cmpWord(">"), b.upper)
		}
	}
	return ""
}

func (b *Bounded[T]) cmpWord(op string) string {
	if b.exclusive {
		return op + "="
	}
	return op
}

// -----------------------------------------------------------------------------
// Mandatory
// -----------------------------------------------------------------------------

// Mandatory rejects the zero value of T.
//
// Use it for strings and identifiers. Numeric properties where zero is
// meaningful should use Bounded instead.
type Mandatory[T comparable] struct{}

// Check implements Validator.
func (Mandatory[T]) Check(v T) string {
	var zero T
	if v == zero {
		return "A value must be entered for this parameter"
	}
	return ""
}

// MandatoryList rejects empty slices.
type MandatoryList[E any] struct{}

// Check implements Validator.
func (MandatoryList[E]) Check(v []E) string {
	if len(v) == 0 {
		return "A value must be entered for this parameter"
	}
	return ""
}

// -----------------------------------------------------------------------------
// List
// -----------------------------------------------------------------------------

// List accepts only the enumerated values.
type List[T comparable] struct {
	allowed []T
}

// NewList creates a List validator.
func NewList[T comparable](allowed ...T) *List[T] {
	return &List[T]{allowed: slices.Clone(allowed)}
}

// Check implements Validator.
func (l *List[T]) Check(v T) string {
	if slices.Contains(l.allowed, v) {
		return ""
	}
	return fmt.Sprintf("The value %q is not in the list of allowed values", fmt.Sprint(v))
}

// AllowedValues implements Lister.
func (l *List[T]) AllowedValues() []string {
	out := make([]string, len(l.allowed))
	for i, a := range l.allowed {
		out[i] = fmt.Sprint(a)
	}
	return out
}

// -----------------------------------------------------------------------------
// ArrayLength
// -----------------------------------------------------------------------------

// ArrayLength bounds the number of elements. A negative max means unbounded.
type ArrayLength[E any] struct {
	Min, Max int
}

// Check implements Validator.
func (a ArrayLength[E]) Check(v []E) string {
	if len(v) < a.Min {
		return fmt.Sprintf("Array has %d elements, at least %d required", len(v), a.Min)
	}
	if a.Max >= 0 && len(v) > a.Max {
		return fmt.Sprintf("Array has %d elements, at most %d allowed", len(v), a.Max)
	}
	return ""
}

// -----------------------------------------------------------------------------
// Composite
// -----------------------------------------------------------------------------

// Composite requires every member validator to pass.
type Composite[T any] struct {
	members []Validator[T]
}

// All creates a Composite. The first failing member's message is reported.
func All[T any](vs ...Validator[T]) *Composite[T] {
	return &Composite[T]{members: slices.Clone(vs)}
}

// Check implements Validator.
func (c *Composite[T]) Check(v T) string {
	for _, m := range c.members {
		if msg := m.Check(v); msg != "" {
			return msg
		}
	}
	return ""
}

// AllowedValues returns the allowed values of the first Lister member.
func (c *Composite[T]) AllowedValues() []string {
	for _, m := range c.members {
		if l, ok := m.(Lister); ok {
			return l.AllowedValues()
		}
	}
	return nil
}
