// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"strings"
)

// ScriptLine renders one record as Name(Prop='value', ...).
//
// Only non-default properties with a data-flow direction are listed.
// Single quotes and backslashes in values are escaped with a backslash.
func ScriptLine(h *AlgorithmHistory) string {
	var sb strings.Builder
	sb.WriteString(h.Name())
	sb.WriteByte('(')
	first := true
	for _, p := range h.Properties() {
		if p.IsDefault || p.Direction == "None" {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(p.Name)
		sb.WriteString("='")
		sb.WriteString(escapeScriptValue(p.Value))
		sb.WriteByte('\'')
	}
	sb.WriteByte(')')
	return sb.String()
}

// Script renders every top-level record of wh, one per line.
func Script(wh *WorkspaceHistory) string {
	var lines []string
	for _, h := range wh.AlgorithmHistories() {
		lines = append(lines, ScriptLine(h))
	}
	return strings.Join(lines, "\n")
}

func escapeScriptValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
