// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithm

import (
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
)

// DefaultProgressInterval is the minimum spacing between Progress helper notifications.
const DefaultProgressInterval = 100 * time.Millisecond

// Environment is the set of collaborators every Algorithm runs against.
//
// It replaces process-wide singletons: a framework builds one and passes it
// to every algorithm it creates; tests build their own.
type Environment struct {
	// ADS resolves input workspace names and receives outputs.
	ADS *dataservice.AnalysisDataService

	// Factory creates implementations by name and version.
	Factory *Factory

	// Logger is the parent of every algorithm logger.
	Logger *slog.Logger

	// ProgressInterval throttles the Progress helper.
	ProgressInterval time.Duration

	// RecordHistory disables workspace history stamping when false.
	RecordHistory bool
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithADS sets the data service.
func WithADS(ads *dataservice.AnalysisDataService) EnvOption {
	return func(e *Environment) { e.ADS = ads }
}

// WithFactory sets the factory.
func WithFactory(f *Factory) EnvOption {
	return func(e *Environment) { e.Factory = f }
}

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) EnvOption {
	return func(e *Environment) { e.Logger = l }
}

// WithProgressInterval sets the progress throttle interval.
func WithProgressInterval(d time.Duration) EnvOption {
	return func(e *Environment) { e.ProgressInterval = d }
}

// WithHistory enables or disables history stamping.
func WithHistory(enabled bool) EnvOption {
	return func(e *Environment) { e.RecordHistory = enabled }
}

// NewEnvironment creates an environment; unset collaborators get fresh defaults.
func NewEnvironment(opts ...EnvOption) *Environment {
	e := &Environment{
		ProgressInterval: DefaultProgressInterval,
		RecordHistory:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.ADS == nil {
		e.ADS = dataservice.NewAnalysisDataService(dataservice.Options{Logger: e.Logger})
	}
	if e.Factory == nil {
		e.Factory = NewFactory()
	}
	return e
}

// Create builds an unmanaged, initialized top-level algorithm.
//
// Inputs:
//   - name: Registered algorithm name.
//   - version: Registered version, or -1 for the highest.
//
// Outputs:
//   - *Algorithm: Initialized instance.
//   - error: NotFound if unregistered, or the Init error.
func (e *Environment) Create(name string, version int) (*Algorithm, error) {
	impl, err := e.Factory.Create(name, version)
	if err != nil {
		return nil, err
	}
	a := New(impl, e)
	if err := a.Initialize(); err != nil {
		return nil, err
	}
	return a, nil
}
