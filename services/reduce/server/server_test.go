// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithms"
	"github.com/AleutianAI/AleutianReduce/services/reduce/archive"
	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
	"github.com/AleutianAI/AleutianReduce/services/reduce/framework"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var discard = slog.New(slog.DiscardHandler)

func newServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	fw, err := framework.New(context.Background(), cfg,
		framework.WithLogger(discard),
		framework.WithAlgorithms(algorithms.Register))
	require.NoError(t, err)
	s := New(fw, Options{Logger: discard})
	t.Cleanup(func() {
		s.Close()
		_ = fw.Close()
	})
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createRun(name string) RunRequest {
	return RunRequest{
		Algorithm:  "CreateWorkspace",
		Properties: map[string]string{"OutputWorkspace": name, "Value": "2"},
		Wait:       true,
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestMetrics(t *testing.T) {
	s := newServer(t, nil)
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAlgorithms(t *testing.T) {
	s := newServer(t, nil)
	rec := do(t, s, http.MethodGet, "/v1/reduce/algorithms", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Algorithms []struct {
			Name     string `json:"name"`
			Category string `json:"category"`
		} `json:"algorithms"`
	}](t, rec)
	var names []string
	for _, d := range body.Algorithms {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "Scale")
	assert.Contains(t, names, "CreateWorkspace")
}

func TestStartRun_WaitAndWorkspaces(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/reduce/runs", createRun("A"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[RunStatus](t, rec)
	assert.True(t, st.Done)
	require.NotNil(t, st.Success)
	assert.True(t, *st.Success)
	assert.Equal(t, "finished", st.State)
	assert.Equal(t, "CreateWorkspace", st.Algorithm)

	rec = do(t, s, http.MethodGet, "/v1/reduce/workspaces", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Workspaces []WorkspaceInfo `json:"workspaces"`
	}](t, rec)
	require.Len(t, list.Workspaces, 1)
	assert.Equal(t, "A", list.Workspaces[0].Name)
	assert.Equal(t, "Matrix", list.Workspaces[0].Kind)
	assert.Equal(t, 1, list.Workspaces[0].Records)

	rec = do(t, s, http.MethodGet, "/v1/reduce/workspaces/A/history?format=script", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CreateWorkspace")

	rec = do(t, s, http.MethodGet, "/v1/reduce/workspaces/A/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"history"`)

	rec = do(t, s, http.MethodDelete, "/v1/reduce/workspaces/A", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, "/v1/reduce/workspaces/A", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodGet, "/v1/reduce/workspaces/A/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRun_Errors(t *testing.T) {
	s := newServer(t, nil)

	t.Run("unknown algorithm", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/reduce/runs", RunRequest{Algorithm: "NoSuchThing"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing algorithm field", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/reduce/runs", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejected value", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/reduce/runs", RunRequest{
			Algorithm:  "CreateWorkspace",
			Properties: map[string]string{"NSpec": "0", "OutputWorkspace": "X"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/reduce/runs", RunRequest{Algorithm: "CreateWorkspace", Wait: true})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		st := decode[RunStatus](t, rec)
		require.NotNil(t, st.Success)
		assert.False(t, *st.Success)
		assert.Contains(t, st.Error, "OutputWorkspace")
	})
}

func TestRuns_CancelAsync(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/reduce/runs", RunRequest{
		Algorithm:  "Pause",
		Properties: map[string]string{"Duration": "0"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	st := decode[RunStatus](t, rec)
	assert.False(t, st.Done)

	rec = do(t, s, http.MethodGet, "/v1/reduce/runs/"+st.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/reduce/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[struct {
		Runs []RunStatus `json:"runs"`
	}](t, rec)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, st.ID, runs.Runs[0].ID)

	rec = do(t, s, http.MethodDelete, "/v1/reduce/runs/"+st.ID+"?wait=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["cancel_requested"])
	assert.Equal(t, true, body["stopped"])

	rec = do(t, s, http.MethodGet, "/v1/reduce/runs/"+st.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = decode[RunStatus](t, rec)
	assert.True(t, st.Done)
	require.NotNil(t, st.Success)
	assert.False(t, *st.Success)
}

func TestRuns_Lookup(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/reduce/runs/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/reduce/runs/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/v1/reduce/runs/"+uuid.NewString(), nil).Code)
}

func TestArchive_Disabled(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/reduce/archive", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/reduce/archive/A", nil).Code)
}

func TestArchive_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Backend = archive.BackendSQLite
	cfg.Archive.Path = filepath.Join(t.TempDir(), "history.db")
	s := newServer(t, cfg)

	rec := do(t, s, http.MethodPost, "/v1/reduce/runs", createRun("A"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return do(t, s, http.MethodGet, "/v1/reduce/archive/A", nil).Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/v1/reduce/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"A"`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/reduce/archive/missing", nil).Code)
}

func TestEvents_WebSocket(t *testing.T) {
	s := newServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/reduce/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.hub.size() == 1 }, 2*time.Second, 5*time.Millisecond)

	rec := do(t, s, http.MethodPost, "/v1/reduce/runs", createRun("A"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sawAdd, sawFinished bool
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !(sawAdd && sawFinished) {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		switch {
		case ev.Source == "workspace" && ev.Kind == "add":
			assert.Equal(t, "A", ev.Workspace)
			sawAdd = true
		case ev.Source == "algorithm" && ev.Kind == "finished":
			assert.Equal(t, "CreateWorkspace", ev.Algorithm)
			require.NotNil(t, ev.Success)
			assert.True(t, *ev.Success)
			sawFinished = true
		}
	}
}

func TestEvents_SourceFilter(t *testing.T) {
	s := newServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/reduce/events?source=workspace"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return s.hub.size() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/reduce/runs", createRun("A")).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "workspace", ev.Source)
}

func TestHub_CloseAllRefusesClients(t *testing.T) {
	h := newHub(discard)
	c, ok := h.register()
	require.True(t, ok)
	h.publish(Event{Source: "workspace", Kind: "add"})
	h.closeAll()

	ev, open := <-c.send
	assert.True(t, open)
	assert.Equal(t, "add", ev.Kind)
	_, open = <-c.send
	assert.False(t, open)

	_, ok = h.register()
	assert.False(t, ok)
	h.unregister(c)
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := newHub(discard)
	c, _ := h.register()
	for range clientBuffer + 10 {
		h.publish(Event{Kind: "progress"})
	}
	assert.Len(t, c.send, clientBuffer)
	assert.Equal(t, 10, c.dropped)
}
