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
	"strconv"
	"strings"
)

// maxRangeExpansion caps "a-b" ranges in integer lists.
const maxRangeExpansion = 1_000_000

// Codec converts a property value to and from its string form.
type Codec[T any] struct {
	TypeName string
	Format   func(v T) string
	Parse    func(s string) (T, error)
}

// DefaultCodec returns the built-in codec for T.
//
// Supported: string, bool, int, int64, float64, []int, []float64, []string.
// Lists are comma separated; integer lists also accept inclusive ranges
// such as "1,4-6".
func DefaultCodec[T any]() (Codec[T], bool) {
	var zero T
	var c any
	switch any(zero).(type) {
	case string:
		c = Codec[string]{
			TypeName: "string",
			Format:   func(v string) string { return v },
			Parse:    func(s string) (string, error) { return s, nil },
		}
	case bool:
		c = Codec[bool]{
			TypeName: "boolean",
			Format:   strconv.FormatBool,
			Parse:    strconv.ParseBool,
		}
	case int:
		c = Codec[int]{
			TypeName: "number",
			Format:   strconv.Itoa,
			Parse:    func(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) },
		}
	case int64:
		c = Codec[int64]{
			TypeName: "number",
			Format:   func(v int64) string { return strconv.FormatInt(v, 10) },
			Parse: func(s string) (int64, error) {
				return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			},
		}
	case float64:
		c = Codec[float64]{
			TypeName: "number",
			Format:   formatFloat,
			Parse: func(s string) (float64, error) {
				return strconv.ParseFloat(strings.TrimSpace(s), 64)
			},
		}
	case []int:
		c = Codec[[]int]{
			TypeName: "int list",
			Format:   func(v []int) string { return joinList(v, strconv.Itoa) },
			Parse:    parseIntList,
		}
	case []float64:
		c = Codec[[]float64]{
			TypeName: "dbl list",
			Format:   func(v []float64) string { return joinList(v, formatFloat) },
			Parse: func(s string) ([]float64, error) {
				return splitList(s, func(p string) (float64, error) { return strconv.ParseFloat(p, 64) })
			},
		}
	case []string:
		c = Codec[[]string]{
			TypeName: "str list",
			Format:   func(v []string) string { return strings.Join(v, ",") },
			Parse: func(s string) ([]string, error) {
				return splitList(s, func(p string) (string, error) { return p, nil })
			},
		}
	default:
		return Codec[T]{}, false
	}
	return c.(Codec[T]), true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinList[E any](v []E, format func(E) string) string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = format(e)
	}
	return strings.Join(parts, ",")
}

func splitList[E any](s string, parse func(string) (E, error)) ([]E, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]E, 0, len(parts))
	for _, p := range parts {
		e, err := parse(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		lo, hi, isRange := strings.Cut(p[min(1, len(p)):], "-")
		if isRange {
			lo = p[:min(1, len(p))] + lo
			a, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, err
			}
			b, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, err
			}
			if b < a {
				return nil, fmt.Errorf("range %q is descending", p)
			}
			if b-a >= maxRangeExpansion {
				return nil, fmt.Errorf("range %q is too large", p)
			}
			for i := a; i <= b; i++ {
				out = append(out, i)
			}
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
