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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
	"github.com/AleutianAI/AleutianReduce/services/reduce/server"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace registry and algorithm runs over HTTP",
		Long: `Start the HTTP API. The config file, if any, is watched and name
rules and max_managed are applied on change without a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fw, err := openFramework(ctx)
	if err != nil {
		return err
	}
	defer fw.Close()

	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	if path != "" {
		if err := fw.Watch(ctx, path); err != nil {
			logger.Warn("config watch disabled", "path", path, "error", err)
		}
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(fw, server.Options{
		Logger:          logger,
		ServiceName:     cfg.Telemetry.ServiceName,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	defer srv.Close()

	logger.Info("starting reduce server", "addr", addr, "archive", cfg.Archive.Backend)
	return srv.Run(ctx, addr)
}
