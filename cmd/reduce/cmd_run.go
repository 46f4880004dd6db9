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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/framework"
	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// ErrBadAssignment is returned for a run argument not of the form KEY=VALUE.
var ErrBadAssignment = errors.New("expected KEY=VALUE")

var (
	runVersion  int
	runProgress bool
	runTimeout  time.Duration

	runCmd = &cobra.Command{
		Use:   "run NAME [KEY=VALUE...]",
		Short: "Execute one algorithm and print its output workspaces",
		Long: `Execute one algorithm against a fresh workspace registry.

Property values are given as KEY=VALUE pairs, exactly as they appear in
history scripts. Output workspaces are printed with their history. When an
archive is configured the histories are saved there and can be replayed
later with "reduce replay".

Interrupt (Ctrl-C) cancels the algorithm cooperatively.`,
		Example: `  reduce run CreateWorkspace OutputWorkspace=ws NSpec=2 NBins=5 Value=3
  reduce run Pause Duration=2 --progress`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().IntVar(&runVersion, "version", -1, "Algorithm version (-1 for highest)")
	runCmd.Flags().BoolVarP(&runProgress, "progress", "p", false, "Show progress on stderr")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Cancel the algorithm after this long (0 for none)")
}

// parseAssignments turns KEY=VALUE arguments into a property map.
func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadAssignment, arg)
		}
		values[k] = v
	}
	return values, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	values, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, runTimeout)
		defer cancelTimeout()
	}

	fw, err := openFramework(ctx)
	if err != nil {
		return err
	}
	defer fw.Close()

	alg, err := fw.Manager().Create(args[0], runVersion)
	if err != nil {
		return err
	}
	if err := alg.SetProperties(values); err != nil {
		return err
	}
	alg.SetRethrows(true)

	if runProgress {
		pp := newProgressPrinter(cmd.ErrOrStderr())
		alg.Subscribe(func(n algorithm.Notification) {
			if n.IsChild {
				return
			}
			switch n.Type {
			case algorithm.KindProgress:
				pp.update(n.Algorithm, n.Progress, n.Message)
			case algorithm.KindFinished:
				pp.done()
			}
		}, algorithm.KindProgress, algorithm.KindFinished)
	}

	start := time.Now()
	if _, err := alg.Execute(ctx); err != nil {
		if cancel.IsCancel(err) {
			return fmt.Errorf("%s cancelled: %w", alg.Name(), err)
		}
		return err
	}
	logger.Debug("algorithm finished", "algorithm", alg.Name(), "duration", time.Since(start))

	return printOutputs(cmd.OutOrStdout(), fw, alg)
}

// printOutputs prints every output workspace alg produced.
func printOutputs(w io.Writer, fw *framework.Framework, alg *algorithm.Algorithm) error {
	for _, p := range alg.Properties().Properties() {
		wp, ok := p.(*algorithm.WorkspaceProperty)
		if !ok || !wp.Direction().IsOutput() || wp.Value() == "" {
			continue
		}
		name := wp.Value()
		ws, err := fw.ADS().Retrieve(name)
		if err != nil {
			if errors.Is(err, kernel.ErrNotFound) {
				continue
			}
			return err
		}
		printWorkspace(w, name, ws)
	}
	return nil
}

func printWorkspace(w io.Writer, name string, ws workspace.Workspace) {
	heading := fmt.Sprintf("%s (%s)", name, ws.Kind())
	if t := ws.Title(); t != "" {
		heading += " " + t
	}
	title(w, heading)

	switch v := ws.(type) {
	case *workspace.Matrix:
		fmt.Fprintf(w, "  spectra=%d bins=%d\n", v.NumSpectra(), v.NumBins())
		if v.NumSpectra() > 0 {
			fmt.Fprintf(w, "  y[0]=%v\n", v.Y(0))
			fmt.Fprintf(w, "  e[0]=%v\n", v.E(0))
		}
	case *workspace.Group:
		fmt.Fprintf(w, "  members=%s\n", strings.Join(v.Members(), ","))
	case *workspace.Table:
		fmt.Fprintf(w, "  columns=%s rows=%d\n", strings.Join(v.Columns(), ","), v.RowCount())
	}

	if wh := ws.History(); wh != nil && !wh.Empty() {
		for _, line := range strings.Split(history.Script(wh), "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}
}
