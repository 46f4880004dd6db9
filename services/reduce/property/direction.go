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

import "strings"

// Direction says whether a property is read, written, or both by an algorithm.
type Direction int

const (
	// Input properties are read by the algorithm.
	Input Direction = iota

	// Output properties are written by the algorithm.
	Output

	// InOut properties are read and then overwritten.
	InOut

	// None marks properties that take no part in data flow.
	None
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Input:
		return "Input"
	case Output:
		return "Output"
	case InOut:
		return "InOut"
	case None:
		return "None"
	default:
		return "Unknown"
	}
}

// IsInput reports whether the algorithm reads the property.
func (d Direction) IsInput() bool {
	return d == Input || d == InOut
}

// IsOutput reports whether the algorithm writes the property.
func (d Direction) IsOutput() bool {
	return d == Output || d == InOut
}

// ParseDirection converts a direction name, case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "input":
		return Input, true
	case "output":
		return Output, true
	case "inout":
		return InOut, true
	case "none":
		return None, true
	default:
		return None, false
	}
}
