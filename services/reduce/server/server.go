// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a Framework over HTTP.
//
// # Description
//
// A thin gin wrapper: list and inspect workspaces and their histories,
// list algorithms, start and cancel runs, and stream algorithm and
// workspace notifications over a WebSocket. Every request is traced with
// otelgin and /metrics serves the Prometheus registry.
//
// # Routes
//
//	GET    /health
//	GET    /metrics
//	GET    /v1/reduce/workspaces
//	GET    /v1/reduce/workspaces/:name/history
//	DELETE /v1/reduce/workspaces/:name
//	GET    /v1/reduce/algorithms
//	GET    /v1/reduce/runs
//	POST   /v1/reduce/runs
//	GET    /v1/reduce/runs/:id
//	DELETE /v1/reduce/runs/:id
//	GET    /v1/reduce/archive
//	GET    /v1/reduce/archive/:name
//	GET    /v1/reduce/events   (WebSocket)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/framework"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

// DefaultShutdownTimeout bounds graceful shutdown in Run.
const DefaultShutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Logger *slog.Logger

	// ServiceName labels otelgin spans. Defaults to "reduce".
	ServiceName string

	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

// Server serves one Framework.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	fw       *framework.Framework
	logger   *slog.Logger
	engine   *gin.Engine
	hub      *hub
	shutdown time.Duration

	adsSub string

	mu   sync.Mutex
	runs map[uuid.UUID]*run
}

// run tracks one execution started through the API.
type run struct {
	alg         *algorithm.Algorithm
	handle      *algorithm.Handle
	interactive bool
	started     time.Time
}

// New builds the router and subscribes to fw's data service.
func New(fw *framework.Framework, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "reduce"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	logger := opts.Logger.With(slog.String("component", "server"))

	s := &Server{
		fw:       fw,
		logger:   logger,
		hub:      newHub(logger),
		shutdown: opts.ShutdownTimeout,
		runs:     make(map[uuid.UUID]*run),
	}
	s.adsSub = fw.ADS().Subscribe(s.publishWorkspaceEvent)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(opts.ServiceName))
	engine.Use(requestLogger(logger))
	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := s.engine.Group("/v1/reduce")
	{
		v1.GET("/workspaces", s.handleListWorkspaces)
		v1.GET("/workspaces/:name/history", s.handleWorkspaceHistory)
		v1.DELETE("/workspaces/:name", s.handleDeleteWorkspace)

		v1.GET("/algorithms", s.handleListAlgorithms)

		v1.GET("/runs", s.handleListRuns)
		v1.POST("/runs", s.handleStartRun)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.DELETE("/runs/:id", s.handleCancelRun)

		v1.GET("/archive", s.handleListArchive)
		v1.GET("/archive/:name", s.handleGetArchive)

		v1.GET("/events", s.handleEvents)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.hub.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close detaches from the framework and disconnects event clients.
func (s *Server) Close() {
	s.fw.ADS().Unsubscribe(s.adsSub)
	s.hub.closeAll()
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// statusFor maps runtime errors to HTTP status codes.
func statusFor(err error) int {
	var verr *algorithm.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kernel.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kernel.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, kernel.ErrInvalidName),
		errors.Is(err, kernel.ErrInvalidValue),
		errors.Is(err, kernel.ErrType):
		return http.StatusBadRequest
	case errors.Is(err, algorithm.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var verr *algorithm.ValidationError
	if errors.As(err, &verr) {
		body["properties"] = verr.Errors
	}
	c.JSON(statusFor(err), body)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": kernel.Version})
}
