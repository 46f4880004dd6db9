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
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/workspace"
)

// =============================================================================
// Workspaces
// =============================================================================

// WorkspaceInfo describes one data-service entry.
type WorkspaceInfo struct {
	Name        string   `json:"name"`
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Title       string   `json:"title,omitempty"`
	MemoryBytes int64    `json:"memory_bytes"`
	Records     int      `json:"history_records"`
	Members     []string `json:"members,omitempty"`
}

func infoFor(name string, ws workspace.Workspace) WorkspaceInfo {
	info := WorkspaceInfo{
		Name:        name,
		ID:          ws.ID().String(),
		Kind:        ws.Kind(),
		Title:       ws.Title(),
		MemoryBytes: ws.MemorySize(),
	}
	if h := ws.History(); h != nil {
		info.Records = h.Size()
	}
	if g, ok := ws.(*workspace.Group); ok {
		info.Members = g.Members()
	}
	return info
}

// handleListWorkspaces lists entries. ?hidden=true includes hidden names.
func (s *Server) handleListWorkspaces(c *gin.Context) {
	hidden, _ := strconv.ParseBool(c.Query("hidden"))
	ads := s.fw.ADS()

	out := make([]WorkspaceInfo, 0)
	for _, name := range ads.Names(hidden) {
		ws, err := ads.Retrieve(name)
		if err != nil {
			continue
		}
		out = append(out, infoFor(name, ws))
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": out})
}

// handleWorkspaceHistory returns the history as JSON, or as a replay
// script with ?format=script.
func (s *Server) handleWorkspaceHistory(c *gin.Context) {
	ws, err := s.fw.ADS().Retrieve(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	wh := ws.History()
	if c.Query("format") == "script" {
		c.String(http.StatusOK, history.Script(wh))
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "history": wh})
}

func (s *Server) handleDeleteWorkspace(c *gin.Context) {
	name := c.Param("name")
	ads := s.fw.ADS()
	ws, err := ads.Retrieve(name)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, isGroup := ws.(*workspace.Group); isGroup && c.Query("deep") == "true" {
		err = ads.DeepRemoveGroup(name)
	} else {
		err = ads.Remove(name)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Algorithms
// =============================================================================

func (s *Server) handleListAlgorithms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"algorithms": s.fw.Factory().Descriptors()})
}

// =============================================================================
// Runs
// =============================================================================

// RunRequest is the POST /runs body.
type RunRequest struct {
	Algorithm  string            `json:"algorithm" binding:"required"`
	Version    *int              `json:"version,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`

	// Interactive runs through the framework's Runner, which cancels the
	// previous interactive run.
	Interactive bool `json:"interactive,omitempty"`

	// Wait blocks the request until the run finishes.
	Wait bool `json:"wait,omitempty"`
}

// RunStatus describes a run.
type RunStatus struct {
	ID          string    `json:"id"`
	Algorithm   string    `json:"algorithm"`
	Version     int       `json:"version"`
	State       string    `json:"state"`
	Progress    float64   `json:"progress"`
	Interactive bool      `json:"interactive,omitempty"`
	Started     time.Time `json:"started"`
	Done        bool      `json:"done"`
	Success     *bool     `json:"success,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func statusOf(r *run) RunStatus {
	st := RunStatus{
		ID:          r.alg.ID().String(),
		Algorithm:   r.alg.Name(),
		Version:     r.alg.Version(),
		State:       r.alg.State().String(),
		Progress:    r.alg.LastProgress(),
		Interactive: r.interactive,
		Started:     r.started,
	}
	if r.handle.Available() {
		ok, err := r.handle.Result()
		st.Done = true
		st.Success = &ok
		if err == nil {
			err = r.alg.LastError()
		}
		if err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

func (s *Server) handleStartRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	version := -1
	if req.Version != nil {
		version = *req.Version
	}

	alg, err := s.fw.Manager().Create(req.Algorithm, version)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := alg.SetProperties(req.Properties); err != nil {
		respondError(c, err)
		return
	}
	alg.Subscribe(s.publishAlgorithmEvent)

	// Runs outlive the request; only Wait ties them to it.
	var h *algorithm.Handle
	if req.Interactive {
		h, err = s.fw.Runner().StartAlgorithm(context.Background(), alg)
	} else {
		h, err = alg.ExecuteAsync(context.Background())
	}
	if err != nil {
		respondError(c, err)
		return
	}

	r := &run{alg: alg, handle: h, interactive: req.Interactive, started: time.Now()}
	s.track(r)

	if !req.Wait {
		c.JSON(http.StatusAccepted, statusOf(r))
		return
	}
	ok, err := h.WaitContext(c.Request.Context())
	if c.Request.Context().Err() != nil {
		return
	}
	st := statusOf(r)
	code := http.StatusOK
	if !ok {
		code = http.StatusUnprocessableEntity
		if err == nil {
			err = alg.LastError()
		}
		if err != nil && statusFor(err) != http.StatusInternalServerError {
			code = statusFor(err)
		}
	}
	c.JSON(code, st)
}

// track records r and forgets runs the manager has evicted.
func (s *Server) track(r *run) {
	live := make(map[uuid.UUID]bool)
	for _, a := range s.fw.Manager().Instances() {
		live[a.ID()] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.runs {
		if !live[id] {
			delete(s.runs, id)
		}
	}
	s.runs[r.alg.ID()] = r
}

func (s *Server) lookup(c *gin.Context) (*run, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return nil, false
	}
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		respondError(c, kernel.NotFound("run", id.String()))
		return nil, false
	}
	return r, true
}

func (s *Server) handleListRuns(c *gin.Context) {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	out := make([]RunStatus, 0, len(runs))
	for _, r := range runs {
		out = append(out, statusOf(r))
	}
	sortRuns(out)
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleGetRun(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statusOf(r))
}

// handleCancelRun requests cancellation. ?wait=true blocks up to the
// configured cancel timeout.
func (s *Server) handleCancelRun(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	requested := r.alg.Cancel()
	stopped := r.handle.Available()
	if c.Query("wait") == "true" {
		stopped = r.handle.TryWait(s.fw.Config().Algorithms.CancelTimeout)
	}
	c.JSON(http.StatusAccepted, gin.H{"id": r.alg.ID().String(), "cancel_requested": requested, "stopped": stopped})
}

// =============================================================================
// Archive
// =============================================================================

func (s *Server) handleListArchive(c *gin.Context) {
	store := s.fw.Archive()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive disabled"})
		return
	}
	list, err := store.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": list})
}

func (s *Server) handleGetArchive(c *gin.Context) {
	store := s.fw.Archive()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive disabled"})
		return
	}
	e, err := store.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func sortRuns(runs []RunStatus) {
	slices.SortFunc(runs, func(a, b RunStatus) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
