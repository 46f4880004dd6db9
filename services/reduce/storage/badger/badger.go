// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the embedded BadgerDB used by the
// provenance archive.
//
// Store wraps *badger.DB with context-checked transactions, prefix scans,
// a background value-log GC loop and an slog adapter for badger's own
// logging.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrKeyNotFound is returned by Get for a missing key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoDir is returned when a persistent store has no directory.
	ErrNoDir = errors.New("directory is required for a persistent store")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Options configures a Store.
type Options struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is the value-log GC period. Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage fraction that triggers a rewrite.
	GCDiscardRatio float64

	// Logger receives badger's internal messages at Warn and above.
	// Nil silences them.
	Logger *slog.Logger
}

// DefaultOptions returns durable settings rooted at dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryOptions returns settings for an ephemeral store.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// slogAdapter satisfies badger.Logger. Info and Debug are dropped to
// Debug since badger is chatty at startup.
type slogAdapter struct {
	logger *slog.Logger
}

func (l slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is an open BadgerDB with lifecycle management.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db       *badger.DB
	dir      string
	inMemory bool
	logger   *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) a store.
//
// Description:
//
//	Persistent stores create Dir with mode 0750. When GCInterval is
//	positive and the store is on disk, a goroutine runs value-log GC
//	until Close.
//
// Outputs:
//   - *Store: The opened store. Caller must Close it.
//   - error: ErrNoDir, or an open failure from badger.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, ErrNoDir
		}
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)

	logger := opts.Logger
	if logger != nil {
		bopts = bopts.WithLogger(slogAdapter{logger: logger.With(slog.String("component", "badger"))})
	} else {
		bopts = bopts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, dir: opts.Dir, inMemory: opts.InMemory, logger: logger}
	if opts.GCInterval > 0 && !opts.InMemory {
		ratio := opts.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop(opts.GCInterval, ratio)
	}
	return s, nil
}

func (s *Store) gcLoop(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// Rewrite until badger reports nothing left to collect.
			for {
				err := s.db.RunValueLogGC(ratio)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
					s.logger.Warn("value log GC failed", slog.String("error", err.Error()))
				}
				break
			}
		}
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *badger.DB { return s.db }

// Dir returns the data directory; empty for in-memory stores.
func (s *Store) Dir() string { return s.dir }

// InMemory reports whether the store is ephemeral.
func (s *Store) InMemory() bool { return s.inMemory }

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.gcStop != nil {
			close(s.gcStop)
			<-s.gcDone
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Update runs fn in a read-write transaction, committing if fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(fn)
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.View(fn)
}

// Get returns a copy of the value at key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := s.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Put stores value at key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	return s.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	return s.Update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan calls fn for each key with prefix, in key order. fn receives
// copies and may retain them. A non-nil error from fn stops the scan.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return s.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", item.Key(), err)
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}
