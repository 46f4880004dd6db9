// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataservice

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

func newMatrix(t *testing.T) *workspace.Matrix {
	t.Helper()
	m, err := workspace.NewMatrix(1, 2)
	require.NoError(t, err)
	return m
}

type recorder struct {
	mu    sync.Mutex
	kinds []Kind
	names []string
}

func (r *recorder) handle(n WorkspaceNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Type)
	r.names = append(r.names, n.Name)
}

func (r *recorder) count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.kinds {
		if got == k {
			n++
		}
	}
	return n
}

func TestAdd_DuplicateAndInvalid(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	ws, ws2 := newMatrix(t), newMatrix(t)

	require.NoError(t, ads.Add("X", ws))

	err := ads.Add("X", ws2)
	assert.True(t, errors.Is(err, kernel.ErrDuplicateName), "got %v", err)

	err = ads.Add("x", ws2)
	assert.True(t, errors.Is(err, kernel.ErrDuplicateName), "names are case-insensitive by default")

	for _, bad := range []string{"", "  ", "a b", "a+b", "a.b"} {
		err := ads.Add(bad, ws2)
		assert.True(t, errors.Is(err, kernel.ErrInvalidName), "name %q: got %v", bad, err)
	}

	err = ads.Add("nil", nil)
	assert.True(t, errors.Is(err, ErrNilObject))
}

func TestAddOrReplace_FiresOnePair(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	ws, ws2 := newMatrix(t), newMatrix(t)
	require.NoError(t, ads.Add("X", ws))

	rec := &recorder{}
	var sawOld bool
	ads.Subscribe(func(n WorkspaceNotification) {
		rec.handle(n)
		if n.Type == KindBeforeReplace {
			current, err := ads.Retrieve("X")
			sawOld = err == nil && current == workspace.Workspace(ws) && n.Replacement == workspace.Workspace(ws2)
		}
	})

	require.NoError(t, ads.AddOrReplace("X", ws2))

	assert.Equal(t, []Kind{KindBeforeReplace, KindAfterReplace}, rec.kinds)
	assert.True(t, sawOld, "old object must be retrievable during BeforeReplace")

	got, err := ads.Retrieve("X")
	require.NoError(t, err)
	assert.Same(t, ws2, got)
}

func TestRemove_PrePostAndNotFound(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	ws := newMatrix(t)
	require.NoError(t, ads.Add("X", ws))

	rec := &recorder{}
	var reachable bool
	ads.Subscribe(func(n WorkspaceNotification) {
		rec.handle(n)
		if n.Type == KindPreDelete {
			reachable = ads.DoesExist("X")
		}
	})

	require.NoError(t, ads.Remove("X"))
	assert.Equal(t, []Kind{KindPreDelete, KindPostDelete}, rec.kinds)
	assert.True(t, reachable, "object must be reachable during PreDelete")

	_, err := ads.Retrieve("X")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))

	err = ads.Remove("X")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
}

func TestRename(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	a, b := newMatrix(t), newMatrix(t)
	require.NoError(t, ads.Add("a", a))
	require.NoError(t, ads.Add("b", b))

	err := ads.Rename("a", "b")
	assert.True(t, errors.Is(err, kernel.ErrDuplicateName))

	err = ads.Rename("missing", "c")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))

	rec := &recorder{}
	ads.Subscribe(rec.handle, KindRename)
	require.NoError(t, ads.Rename("a", "c"))
	assert.Equal(t, 1, rec.count(KindRename))

	assert.False(t, ads.DoesExist("a"))
	got, err := ads.Retrieve("c")
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, ads.Rename("c", "C"), "case-only rename onto itself is allowed")
	assert.Equal(t, []string{"C", "b"}, ads.Names(false))
}

func TestCaseSensitive(t *testing.T) {
	ads := NewAnalysisDataService(Options{CaseSensitive: true})
	require.NoError(t, ads.Add("X", newMatrix(t)))
	require.NoError(t, ads.Add("x", newMatrix(t)))
	assert.Equal(t, 2, ads.Size())
}

func TestRetrieveTyped(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("m", newMatrix(t)))

	m, err := Retrieve[*workspace.Matrix](ads, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumBins())

	_, err = Retrieve[*workspace.Table](ads, "m")
	assert.True(t, errors.Is(err, kernel.ErrType))

	_, err = Retrieve[*workspace.Matrix](ads, "none")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
}

func TestHiddenNames(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("__tmp", newMatrix(t)))
	require.NoError(t, ads.Add("visible", newMatrix(t)))

	assert.Equal(t, []string{"visible"}, ads.Names(false))
	assert.Equal(t, []string{"__tmp", "visible"}, ads.Names(true))
	assert.Len(t, ads.TopLevelItems(), 1)

	ads.SetHiddenPrefix("")
	assert.Len(t, ads.Names(false), 2)
}

func TestIllegalCharactersConfigurable(t *testing.T) {
	none := ""
	ads := NewAnalysisDataService(Options{IllegalCharacters: &none})
	require.NoError(t, ads.Add("a b", newMatrix(t)))

	ads.SetIllegalCharacters("#")
	err := ads.Add("a#b", newMatrix(t))
	assert.True(t, errors.Is(err, kernel.ErrInvalidName))
}

func TestClear_FiresDeletePairs(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("a", newMatrix(t)))
	require.NoError(t, ads.Add("b", newMatrix(t)))

	rec := &recorder{}
	ads.Subscribe(rec.handle)
	ads.Clear()

	assert.Equal(t, 0, ads.Size())
	assert.Equal(t, 2, rec.count(KindPreDelete))
	assert.Equal(t, 2, rec.count(KindPostDelete))
	assert.Equal(t, KindClear, rec.kinds[len(rec.kinds)-1])
}

func TestGroups(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("a", newMatrix(t)))
	require.NoError(t, ads.Add("b", newMatrix(t)))
	require.NoError(t, ads.Add("g", workspace.NewGroup()))

	require.NoError(t, ads.AddToGroup("g", "a"))
	require.NoError(t, ads.AddToGroup("g", "B"))

	g, err := Retrieve[*workspace.Group](ads, "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.Members(), "stored spelling is used")

	top := ads.TopLevelItems()
	assert.Len(t, top, 1)
	assert.Contains(t, top, "g")

	err = ads.AddToGroup("g", "missing")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
	err = ads.AddToGroup("a", "b")
	assert.True(t, errors.Is(err, kernel.ErrType))

	require.NoError(t, ads.Rename("a", "a2"))
	assert.Equal(t, []string{"a2", "b"}, g.Members())

	require.NoError(t, ads.Remove("b"))
	assert.Equal(t, []string{"a2"}, g.Members())

	require.NoError(t, ads.RemoveFromGroup("g", "a2"))
	assert.True(t, ads.DoesExist("a2"))
	err = ads.RemoveFromGroup("g", "a2")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
	assert.Equal(t, []string(nil), ads.Groups("a2"))
}

func TestGroups_RejectCycles(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("outer", workspace.NewGroup()))
	require.NoError(t, ads.Add("inner", workspace.NewGroup()))
	require.NoError(t, ads.AddToGroup("outer", "inner"))

	err := ads.AddToGroup("inner", "outer")
	assert.True(t, errors.Is(err, kernel.ErrInvalidName), "got %v", err)

	err = ads.AddToGroup("outer", "outer")
	assert.True(t, errors.Is(err, kernel.ErrInvalidName))

	self := workspace.NewGroup()
	self.Add("self")
	err = ads.Add("self", self)
	assert.True(t, errors.Is(err, kernel.ErrInvalidName))
}

func TestDeepRemoveGroup(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, ads.Add(n, newMatrix(t)))
	}
	require.NoError(t, ads.Add("inner", workspace.NewGroup()))
	require.NoError(t, ads.AddToGroup("inner", "c"))
	require.NoError(t, ads.Add("g", workspace.NewGroup()))
	require.NoError(t, ads.AddToGroup("g", "a"))
	require.NoError(t, ads.AddToGroup("g", "inner"))
	require.NoError(t, ads.AddToGroup("g", "b"))

	require.NoError(t, ads.DeepRemoveGroup("g"))
	assert.Equal(t, 0, ads.Size())
}

func TestDeepRemoveGroup_SharedMember(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("A", newMatrix(t)))
	require.NoError(t, ads.Add("G2", workspace.NewGroup()))
	require.NoError(t, ads.AddToGroup("G2", "A"))
	require.NoError(t, ads.Add("G1", workspace.NewGroup()))
	require.NoError(t, ads.AddToGroup("G1", "G2"))
	require.NoError(t, ads.AddToGroup("G1", "A"))

	require.NoError(t, ads.DeepRemoveGroup("G1"))
	assert.Equal(t, 0, ads.Size())
}

func TestDeepRemoveGroup_PartialFailureContinues(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	require.NoError(t, ads.Add("a", newMatrix(t)))
	g := workspace.NewGroup()
	g.Add("ghost")
	g.Add("a")
	require.NoError(t, ads.Add("g", g))

	err := ads.DeepRemoveGroup("g")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
	assert.False(t, ads.DoesExist("a"), "remaining members still removed")
	assert.False(t, ads.DoesExist("g"))
}

func TestConcurrentMutations_OnePairEach(t *testing.T) {
	ads := NewAnalysisDataService(Options{})
	rec := &recorder{}
	ads.Subscribe(rec.handle)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("ws%d", i%4)
			_ = ads.AddOrReplace(name, newMatrix(t))
		}(i)
	}
	wg.Wait()

	adds := rec.count(KindAdd)
	before := rec.count(KindBeforeReplace)
	after := rec.count(KindAfterReplace)
	assert.Equal(t, 4, adds)
	assert.Equal(t, n-4, before)
	assert.Equal(t, before, after)

	// every BeforeReplace is immediately followed by its AfterReplace
	for i, k := range rec.kinds {
		if k == KindBeforeReplace {
			require.Less(t, i+1, len(rec.kinds))
			assert.Equal(t, KindAfterReplace, rec.kinds[i+1])
			assert.Equal(t, rec.names[i], rec.names[i+1])
		}
	}
}

func TestGenericDataService(t *testing.T) {
	ds := New[string](Options{Name: "strings"})
	require.NoError(t, ds.Add("k", "v"))
	v, err := ds.Retrieve("K")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, []string{"v"}, ds.Objects(false))
}
