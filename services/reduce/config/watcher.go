// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
//
// Description:
//
//	The parent directory is watched so that editors which replace the file
//	by rename are handled. Events for the file are debounced, the file is
//	reloaded with Load, and subscribers receive the new configuration. A
//	reload that fails to parse or validate is logged and the previous
//	configuration stays current.
//
// Thread Safety: Safe for concurrent use.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current *Config
	subs    []func(*Config)

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher starts watching path. initial is the configuration already
// loaded from path.
func NewWatcher(path string, initial *Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		logger:   logger.With(slog.String("component", "config_watcher"), slog.String("path", abs)),
		debounce: DefaultDebounce,
		current:  initial,
		done:     make(chan struct{}),
	}, nil
}

// Current returns the most recent valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers fn to receive each successfully reloaded config.
// fn runs on the watcher goroutine.
func (w *Watcher) Subscribe(fn func(*Config)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}

// Run processes file events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := Load(ctx, w.path)
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		w.logger.Warn("config reload rejected, keeping previous", slog.String("error", err.Error()))
		return
	}
	reloadsTotal.WithLabelValues("success").Inc()

	w.mu.Lock()
	w.current = cfg
	subs := make([]func(*Config), len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	for _, fn := range subs {
		fn(cfg)
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
