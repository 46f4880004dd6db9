// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
)

var (
	algorithmsJSON    bool
	algorithmsVersion int

	algorithmsCmd = &cobra.Command{
		Use:     "algorithms [NAME]",
		Aliases: []string{"algs"},
		Short:   "List registered algorithms, or describe one",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runAlgorithms,
	}
)

func init() {
	algorithmsCmd.Flags().BoolVar(&algorithmsJSON, "json", false, "Print JSON")
	algorithmsCmd.Flags().IntVar(&algorithmsVersion, "version", -1, "Algorithm version to describe (-1 for highest)")
}

func runAlgorithms(cmd *cobra.Command, args []string) error {
	fw, err := openFramework(cmd.Context())
	if err != nil {
		return err
	}
	defer fw.Close()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		descs := fw.Factory().Descriptors()
		if algorithmsJSON {
			return json.NewEncoder(out).Encode(descs)
		}
		rows := make([][]string, 0, len(descs))
		for _, d := range descs {
			rows = append(rows, []string{d.Name, joinInts(d.Versions), d.Category, d.Summary})
		}
		printTable(out, []string{"NAME", "VERSIONS", "CATEGORY", "SUMMARY"}, rows)
		return nil
	}

	alg, err := fw.Manager().Create(args[0], algorithmsVersion)
	if err != nil {
		return err
	}
	props := describeProperties(alg)
	if algorithmsJSON {
		return json.NewEncoder(out).Encode(map[string]any{
			"name":       alg.Name(),
			"version":    alg.Version(),
			"category":   alg.Category(),
			"summary":    alg.Summary(),
			"properties": props,
		})
	}

	title(out, fmt.Sprintf("%s v%d", alg.Name(), alg.Version()))
	if s := alg.Summary(); s != "" {
		fmt.Fprintln(out, s)
	}
	rows := make([][]string, 0, len(props))
	for _, p := range props {
		def := p.Default
		if len(p.Allowed) > 0 {
			def += " [" + strings.Join(p.Allowed, "|") + "]"
		}
		rows = append(rows, []string{p.Name, p.Direction, p.Type, def, p.Doc})
	}
	printTable(out, []string{"PROPERTY", "DIRECTION", "TYPE", "DEFAULT", "DESCRIPTION"}, rows)
	return nil
}

type propertyInfo struct {
	Name      string   `json:"name"`
	Direction string   `json:"direction"`
	Type      string   `json:"type"`
	Default   string   `json:"default"`
	Allowed   []string `json:"allowed,omitempty"`
	Doc       string   `json:"doc,omitempty"`
}

func describeProperties(alg *algorithm.Algorithm) []propertyInfo {
	props := alg.Properties().Properties()
	out := make([]propertyInfo, 0, len(props))
	for _, p := range props {
		out = append(out, propertyInfo{
			Name:      p.Name(),
			Direction: p.Direction().String(),
			Type:      p.TypeName(),
			Default:   p.DefaultValue(),
			Allowed:   p.AllowedValues(),
			Doc:       p.Documentation(),
		})
	}
	return out
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
