// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package framework assembles the process-wide runtime: configuration,
// the analysis data service, the algorithm factory and manager, the
// interactive runner and the optional provenance archive.
//
// There is no global instance. The CLI and the server each build one with
// New and release it with Close.
package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/archive"
	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/runner"
)

// ErrNilConfig is returned by New without a configuration.
var ErrNilConfig = errors.New("config must not be nil")

// Registrar adds implementations to a factory.
type Registrar func(f *algorithm.Factory) error

type options struct {
	logger     *slog.Logger
	registrars []Registrar
}

// Option configures New.
type Option func(*options)

// WithLogger sets the root logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAlgorithms registers implementations at startup.
func WithAlgorithms(r ...Registrar) Option {
	return func(o *options) { o.registrars = append(o.registrars, r...) }
}

// Framework owns the runtime services for one process.
//
// Thread Safety: Safe for concurrent use. Accessors return long-lived
// objects that are themselves safe for concurrent use.
type Framework struct {
	logger  *slog.Logger
	ads     *dataservice.AnalysisDataService
	factory *algorithm.Factory
	env     *algorithm.Environment
	manager *algorithm.Manager
	runner  *runner.Runner

	store    archive.Store
	recorder *archive.Recorder

	mu      sync.RWMutex
	cfg     *config.Config
	watcher *config.Watcher
	cancel  context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// New builds a Framework from cfg.
//
// Description:
//
//	Creates the data service with cfg's name rules, registers algorithms,
//	opens the archive backend (if any) and subscribes its recorder.
//
// Outputs:
//   - *Framework: Ready to use. Caller must Close it.
//   - error: Registration or archive errors.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Framework, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With(slog.String("component", "framework"))

	illegal := cfg.DataService.IllegalCharacters
	hidden := cfg.DataService.HiddenPrefix
	ads := dataservice.NewAnalysisDataService(dataservice.Options{
		IllegalCharacters: &illegal,
		CaseSensitive:     cfg.DataService.CaseSensitive,
		HiddenPrefix:      &hidden,
		Logger:            o.logger,
	})

	factory := algorithm.NewFactory()
	for _, reg := range o.registrars {
		if err := reg(factory); err != nil {
			return nil, fmt.Errorf("register algorithms: %w", err)
		}
	}

	env := algorithm.NewEnvironment(
		algorithm.WithADS(ads),
		algorithm.WithFactory(factory),
		algorithm.WithLogger(o.logger),
		algorithm.WithProgressInterval(cfg.Algorithms.ProgressInterval),
		algorithm.WithHistory(cfg.Algorithms.History),
	)

	f := &Framework{
		logger:  logger,
		ads:     ads,
		factory: factory,
		env:     env,
		manager: algorithm.NewManager(env, cfg.Algorithms.MaxManaged),
		runner:  runner.New(runner.Config{CancelTimeout: cfg.Algorithms.CancelTimeout, Logger: o.logger}),
		cfg:     cfg,
	}

	store, err := archive.Open(ctx, cfg.Archive.Backend, cfg.Archive.Path, o.logger)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if store != nil {
		f.store = store
		f.recorder = archive.NewRecorder(store, ads, archive.RecorderOptions{Logger: o.logger})
	}

	logger.Info("framework started",
		slog.String("version", kernel.Version),
		slog.Int("algorithms", len(factory.Names())),
		slog.String("archive", cfg.Archive.Backend),
	)
	return f, nil
}

// Config returns the active configuration.
func (f *Framework) Config() *config.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Logger returns the root logger.
func (f *Framework) Logger() *slog.Logger { return f.logger }

// ADS returns the analysis data service.
func (f *Framework) ADS() *dataservice.AnalysisDataService { return f.ads }

// Factory returns the algorithm factory.
func (f *Framework) Factory() *algorithm.Factory { return f.factory }

// Environment returns the environment shared by every algorithm.
func (f *Framework) Environment() *algorithm.Environment { return f.env }

// Manager returns the managed-instance registry.
func (f *Framework) Manager() *algorithm.Manager { return f.manager }

// Runner returns the interactive runner.
func (f *Framework) Runner() *runner.Runner { return f.runner }

// Archive returns the provenance store, or nil when archiving is off.
func (f *Framework) Archive() archive.Store { return f.store }

// Apply installs settings that may change at runtime: the data-service
// name rules and the managed-instance limit. Case sensitivity, archive
// and timing settings need a restart and are only logged if they differ.
func (f *Framework) Apply(cfg *config.Config) {
	f.mu.Lock()
	prev := f.cfg
	f.cfg = cfg
	f.mu.Unlock()

	f.ads.SetIllegalCharacters(cfg.DataService.IllegalCharacters)
	f.ads.SetHiddenPrefix(cfg.DataService.HiddenPrefix)
	f.manager.SetMaxManaged(cfg.Algorithms.MaxManaged)

	if prev.DataService.CaseSensitive != cfg.DataService.CaseSensitive ||
		prev.Archive != cfg.Archive ||
		prev.Algorithms.CancelTimeout != cfg.Algorithms.CancelTimeout {
		f.logger.Warn("some configuration changes take effect only after restart")
	}
	f.logger.Info("configuration applied")
}

// Watch reloads path on change and applies each valid result. It returns
// once the watcher is running; Close stops it.
func (f *Framework) Watch(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, f.Config(), f.logger)
	if err != nil {
		return err
	}
	w.Subscribe(f.Apply)

	wctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	if f.watcher != nil {
		f.mu.Unlock()
		cancel()
		_ = w.Close()
		return errors.New("already watching")
	}
	f.watcher = w
	f.cancel = cancel
	f.mu.Unlock()

	go func() {
		if err := w.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Warn("config watcher stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Close cancels running algorithms, stops the watcher and flushes the
// archive. Safe to call more than once.
func (f *Framework) Close() error {
	f.closeOnce.Do(func() {
		var errs []error

		if n := f.manager.CancelAll(); n > 0 {
			f.logger.Info("cancelled running algorithms", slog.Int("count", n))
		}
		f.runner.CancelRunningAlgorithm()

		f.mu.Lock()
		if f.cancel != nil {
			f.cancel()
		}
		if f.watcher != nil {
			errs = append(errs, f.watcher.Close())
		}
		f.mu.Unlock()

		if f.recorder != nil {
			f.recorder.Close()
		}
		if f.store != nil {
			errs = append(errs, f.store.Close())
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}
