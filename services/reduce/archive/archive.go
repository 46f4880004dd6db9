// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive persists workspace provenance outside the process.
//
// A Store keeps one Entry per workspace name: the workspace's identity and
// a snapshot of its WorkspaceHistory. Two backends exist, BadgerDB for an
// embedded key/value log and SQLite for a queryable single file. A Recorder
// keeps a Store in step with an AnalysisDataService by listening to its
// notifications.
//
//	store, err := archive.Open(ctx, "sqlite", "/var/lib/reduce/archive.db", logger)
//	if err != nil {
//	    return err
//	}
//	rec := archive.NewRecorder(store, ads, archive.RecorderOptions{Logger: logger})
//	defer rec.Close()
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

var (
	// ErrUnknownBackend is returned by Open for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown archive backend")

	// ErrEmptyName is returned when saving an entry without a name.
	ErrEmptyName = errors.New("entry name must not be empty")
)

var opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reduce_archive_operations_total",
	Help: "Archive store operations by backend, operation and result",
}, []string{"backend", "op", "result"})

func recordOp(backend, op string, err error) {
	result := "success"
	switch {
	case errors.Is(err, kernel.ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	opsTotal.WithLabelValues(backend, op, result).Inc()
}

// Entry is the archived state of one workspace name.
type Entry struct {
	Name        string                    `json:"name"`
	WorkspaceID uuid.UUID                 `json:"workspace_id"`
	Kind        string                    `json:"kind"`
	Title       string                    `json:"title,omitempty"`
	Deleted     bool                      `json:"deleted"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	History     *history.WorkspaceHistory `json:"history"`
}

// Summary is an Entry without its history payload.
type Summary struct {
	Name        string    `json:"name"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Kind        string    `json:"kind"`
	Deleted     bool      `json:"deleted"`
	UpdatedAt   time.Time `json:"updated_at"`
	Records     int       `json:"records"`
}

// Summary drops the history payload, keeping its record count.
func (e Entry) Summary() Summary {
	n := 0
	if e.History != nil {
		n = e.History.Size()
	}
	return Summary{
		Name:        e.Name,
		WorkspaceID: e.WorkspaceID,
		Kind:        e.Kind,
		Deleted:     e.Deleted,
		UpdatedAt:   e.UpdatedAt,
		Records:     n,
	}
}

// EntryFor snapshots ws under name. The history is cloned so later
// mutation of ws does not affect the entry.
func EntryFor(name string, ws workspace.Workspace, now time.Time) Entry {
	e := Entry{Name: name, UpdatedAt: now.UTC()}
	if ws == nil {
		return e
	}
	e.WorkspaceID = ws.ID()
	e.Kind = ws.Kind()
	e.Title = ws.Title()
	if h := ws.History(); h != nil {
		e.History = h.Clone()
	}
	return e
}

// Store persists entries keyed by workspace name.
//
// Thread Safety: Implementations are safe for concurrent use.
type Store interface {
	// Save inserts or replaces the entry for e.Name.
	Save(ctx context.Context, e Entry) error

	// Load returns the entry for name, or a kernel.ErrNotFound error.
	Load(ctx context.Context, name string) (Entry, error)

	// List returns summaries sorted by name.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes the entry for name, or returns a kernel.ErrNotFound error.
	Delete(ctx context.Context, name string) error

	// Close releases the backend.
	Close() error
}

// Open creates the store selected by backend. BackendNone returns a nil
// Store and nil error.
func Open(ctx context.Context, backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendBadger:
		s, err := OpenBadger(path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func encodeEntry(e Entry) ([]byte, error) {
	if e.Name == "" {
		return nil, ErrEmptyName
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry %q: %w", e.Name, err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if e.History == nil {
		e.History = history.NewWorkspaceHistory(history.EnvironmentHistory{})
	}
	return e, nil
}

func notFound(name string) error {
	return kernel.NotFound("archive entry", name)
}
