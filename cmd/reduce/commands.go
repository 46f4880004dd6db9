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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithms"
	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
	"github.com/AleutianAI/AleutianReduce/services/reduce/framework"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// Set by PersistentPreRunE.
	cfg               *config.Config
	logger            *slog.Logger
	telemetryShutdown func(context.Context) error

	rootCmd = &cobra.Command{
		Use:           "reduce",
		Short:         "Run reduction algorithms and manage their workspaces",
		Version:       kernel.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if telemetryShutdown == nil {
				return nil
			}
			return telemetryShutdown(context.Background())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override logging.format (auto, text, json)")

	rootCmd.AddCommand(algorithmsCmd, runCmd, historyCmd, replayCmd, serveCmd)
}

func setup(ctx context.Context, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loaded, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}
	if err := config.Validate(loaded); err != nil {
		return err
	}
	cfg = loaded

	logger = newLogger(stderr, cfg.Logging)
	slog.SetDefault(logger)

	cfg.Telemetry.ServiceVersion = kernel.Version
	telemetryShutdown, err = telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	return nil
}

// newLogger builds the process logger. Format "auto" picks text on a
// terminal and JSON otherwise.
func newLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	format := lc.Format
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openFramework builds a framework with the stock algorithms registered.
func openFramework(ctx context.Context) (*framework.Framework, error) {
	return framework.New(ctx, cfg,
		framework.WithLogger(logger),
		framework.WithAlgorithms(algorithms.Register))
}
