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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
)

// ErrNoArchive is returned by archive commands when archive.backend is none.
var ErrNoArchive = errors.New("no archive configured (set archive.backend and archive.path)")

var (
	historyJSON bool

	historyCmd = &cobra.Command{
		Use:   "history [NAME]",
		Short: "List archived workspace histories, or print one as a script",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}

	replayCmd = &cobra.Command{
		Use:   "replay NAME",
		Short: "Rebuild a workspace by re-running its archived history",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
)

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	fw, err := openFramework(cmd.Context())
	if err != nil {
		return err
	}
	defer fw.Close()
	store := fw.Archive()
	if store == nil {
		return ErrNoArchive
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if historyJSON {
			return json.NewEncoder(out).Encode(list)
		}
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			state := "live"
			if s.Deleted {
				state = "deleted"
			}
			rows = append(rows, []string{
				s.Name, s.Kind, strconv.Itoa(s.Records), state,
				s.UpdatedAt.Local().Format(time.DateTime),
			})
		}
		printTable(out, []string{"NAME", "KIND", "RECORDS", "STATE", "UPDATED"}, rows)
		return nil
	}

	e, err := store.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if historyJSON {
		return json.NewEncoder(out).Encode(e)
	}
	title(out, e.Name)
	fmt.Fprintln(out, styles.Muted.Render(e.History.Environment().String()))
	fmt.Fprintln(out, history.Script(e.History))
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fw, err := openFramework(ctx)
	if err != nil {
		return err
	}
	defer fw.Close()
	store := fw.Archive()
	if store == nil {
		return ErrNoArchive
	}

	e, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}
	n, err := algorithm.Replay(ctx, fw.Environment(), e.History)
	if err != nil {
		return fmt.Errorf("replay %s: %d of %d records applied: %w", e.Name, n, e.History.Size(), err)
	}
	logger.Info("replayed history", "workspace", e.Name, "records", n)

	out := cmd.OutOrStdout()
	ws, err := fw.ADS().Retrieve(e.Name)
	if err != nil {
		// The history may end in a rename or delete.
		fmt.Fprintln(out, styles.Warning.Render(fmt.Sprintf("%s not present after replay", e.Name)))
		return nil
	}
	printWorkspace(out, e.Name, ws)
	return nil
}
