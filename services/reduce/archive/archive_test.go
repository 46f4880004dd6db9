// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/storage/badger"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

var discard = slog.New(slog.DiscardHandler)

func newMatrix(t *testing.T, records ...string) *workspace.Matrix {
	t.Helper()
	m, err := workspace.NewMatrix(1, 3)
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range records {
		m.History().Add(history.NewAlgorithmHistory(history.Record{
			Name:      name,
			Version:   1,
			ExecCount: 1,
			Start:     start.Add(time.Duration(i) * time.Second),
			Properties: []history.PropertyHistory{
				{Name: "Factor", Value: "2", Type: "float64", Direction: "Input"},
			},
		}))
	}
	return m
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"badger": func(t *testing.T) Store {
			kv, err := badger.Open(badger.InMemoryOptions())
			require.NoError(t, err)
			s := NewBadgerStore(kv)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			m := newMatrix(t, "CreateWorkspace", "Scale")
			now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
			require.NoError(t, s.Save(ctx, EntryFor("beta", m, now)))
			require.NoError(t, s.Save(ctx, EntryFor("alpha", newMatrix(t), now)))

			got, err := s.Load(ctx, "beta")
			require.NoError(t, err)
			assert.Equal(t, "beta", got.Name)
			assert.Equal(t, m.ID(), got.WorkspaceID)
			assert.Equal(t, "Matrix", got.Kind)
			assert.True(t, now.Equal(got.UpdatedAt))
			require.Equal(t, 2, got.History.Size())
			assert.Equal(t, "Scale", got.History.Last().Name())
			assert.Equal(t, m.History().Last().ID(), got.History.Last().ID())

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "alpha", list[0].Name)
			assert.Equal(t, "beta", list[1].Name)
			assert.Equal(t, 2, list[1].Records)
			assert.Equal(t, m.ID(), list[1].WorkspaceID)

			// upsert replaces
			e := EntryFor("beta", m, now)
			e.Deleted = true
			require.NoError(t, s.Save(ctx, e))
			got, err = s.Load(ctx, "beta")
			require.NoError(t, err)
			assert.True(t, got.Deleted)

			require.NoError(t, s.Delete(ctx, "beta"))
			_, err = s.Load(ctx, "beta")
			assert.True(t, errors.Is(err, kernel.ErrNotFound), "err = %v", err)
			assert.True(t, errors.Is(s.Delete(ctx, "beta"), kernel.ErrNotFound))

			assert.ErrorIs(t, s.Save(ctx, Entry{}), ErrEmptyName)
		})
	}
}

func TestEntryFor_SnapshotIsolated(t *testing.T) {
	m := newMatrix(t, "A")
	e := EntryFor("w", m, time.Now())
	m.History().Add(history.NewAlgorithmHistory(history.Record{Name: "B"}))

	assert.Equal(t, 1, e.History.Size())
	assert.Equal(t, 1, e.Summary().Records)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, BackendNone, "", discard)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(ctx, "tape", "", discard)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	s, err = Open(ctx, BackendBadger, filepath.Join(t.TempDir(), "kv"), discard)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, BackendSQLite, filepath.Join(t.TempDir(), "nested", "a.db"), discard)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, BackendBadger, "", discard)
	assert.ErrorIs(t, err, badger.ErrNoDir)
}

func TestSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, EntryFor("w", newMatrix(t, "A"), time.Now())))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, "A", got.History.Last().Name())
}

// -----------------------------------------------------------------------------
// Recorder
// -----------------------------------------------------------------------------

func newADS() *dataservice.AnalysisDataService {
	return dataservice.NewAnalysisDataService(dataservice.Options{Logger: discard, CaseSensitive: true})
}

func TestRecorder_MirrorsDataService(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			ads := newADS()
			rec := NewRecorder(store, ads, RecorderOptions{Logger: discard})

			m := newMatrix(t, "Create")
			require.NoError(t, ads.Add("a", m))
			require.NoError(t, ads.AddOrReplace("a", newMatrix(t, "Create", "Scale")))
			require.NoError(t, ads.Add("b", newMatrix(t, "Other")))
			require.NoError(t, ads.Rename("b", "c"))
			require.NoError(t, ads.Remove("a"))
			require.NoError(t, ads.Add("__tmp", newMatrix(t)))

			rec.Close()
			rec.Close()

			list, err := store.List(ctx)
			require.NoError(t, err)
			names := make([]string, len(list))
			for i, s := range list {
				names[i] = s.Name
			}
			assert.Equal(t, []string{"a", "c"}, names)

			a, err := store.Load(ctx, "a")
			require.NoError(t, err)
			assert.True(t, a.Deleted)
			assert.Equal(t, 2, a.History.Size())

			c, err := store.Load(ctx, "c")
			require.NoError(t, err)
			assert.False(t, c.Deleted)
			assert.Equal(t, "Other", c.History.Last().Name())

			// no writes after Close
			require.NoError(t, ads.Add("late", newMatrix(t)))
			_, err = store.Load(ctx, "late")
			assert.True(t, errors.Is(err, kernel.ErrNotFound))
		})
	}
}

func TestRecorder_DropDeletedAndHidden(t *testing.T) {
	ctx := context.Background()
	store := backends()["badger"](t)
	ads := newADS()
	rec := NewRecorder(store, ads, RecorderOptions{Logger: discard, DropDeleted: true, IncludeHidden: true})

	require.NoError(t, ads.Add("__hidden", newMatrix(t)))
	require.NoError(t, ads.Add("gone", newMatrix(t)))
	require.NoError(t, ads.Remove("gone"))
	rec.Close()

	_, err := store.Load(ctx, "__hidden")
	assert.NoError(t, err)
	_, err = store.Load(ctx, "gone")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
}

func TestRecorder_Snapshot(t *testing.T) {
	ctx := context.Background()
	store := backends()["sqlite"](t)
	ads := newADS()
	require.NoError(t, ads.Add("x", newMatrix(t, "A")))
	require.NoError(t, ads.Add("y", newMatrix(t, "B")))

	rec := NewRecorder(store, ads, RecorderOptions{Logger: discard})
	defer rec.Close()
	require.NoError(t, rec.Snapshot(ctx))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
