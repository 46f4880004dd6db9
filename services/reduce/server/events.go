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
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
)

const (
	// clientBuffer is the per-client queue. Events beyond it are dropped.
	clientBuffer = 256

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Event is one message on /v1/reduce/events.
type Event struct {
	Source string    `json:"source"` // "algorithm" or "workspace"
	Kind   string    `json:"kind"`
	Time   time.Time `json:"time"`

	Algorithm string  `json:"algorithm,omitempty"`
	RunID     string  `json:"run_id,omitempty"`
	ExecID    string  `json:"exec_id,omitempty"`
	IsChild   bool    `json:"is_child,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
	Success   *bool   `json:"success,omitempty"`

	Workspace string `json:"workspace,omitempty"`
	NewName   string `json:"new_name,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// -----------------------------------------------------------------------------
// Hub
// -----------------------------------------------------------------------------

type client struct {
	send    chan Event
	dropped int
}

// hub fans events out to connected clients.
//
// Thread Safety: Safe for concurrent use. publish never blocks.
type hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, clients: make(map[*client]struct{})}
}

func (h *hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan Event, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			c.dropped++
			if c.dropped == 1 || c.dropped%100 == 0 {
				h.logger.Warn("event client slow, dropping events", slog.Int("dropped", c.dropped))
			}
		}
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll disconnects every client and refuses new ones.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// -----------------------------------------------------------------------------
// Sources
// -----------------------------------------------------------------------------

func (s *Server) publishWorkspaceEvent(n dataservice.WorkspaceNotification) {
	if n.Type == dataservice.KindBeforeReplace || n.Type == dataservice.KindPreDelete {
		return
	}
	s.hub.publish(Event{
		Source:    "workspace",
		Kind:      n.Type.String(),
		Time:      time.Now(),
		Workspace: n.Name,
		NewName:   n.NewName,
	})
}

func (s *Server) publishAlgorithmEvent(n algorithm.Notification) {
	ev := Event{
		Source:    "algorithm",
		Kind:      n.Type.String(),
		Time:      n.Time,
		Algorithm: n.Algorithm,
		RunID:     n.AlgorithmID.String(),
		IsChild:   n.IsChild,
		Progress:  n.Progress,
		Message:   n.Message,
	}
	if n.ExecID != uuid.Nil {
		ev.ExecID = n.ExecID.String()
	}
	if n.Err != nil {
		ev.Error = n.Err.Error()
	}
	if n.Type == algorithm.KindFinished {
		ok := n.Success
		ev.Success = &ok
	}
	s.hub.publish(ev)
}

// -----------------------------------------------------------------------------
// Handler
// -----------------------------------------------------------------------------

// handleEvents streams events until the client disconnects.
//
// ?source=algorithm or ?source=workspace narrows the stream.
func (s *Server) handleEvents(c *gin.Context) {
	var sources []string
	if q := c.Query("source"); q != "" {
		sources = strings.Split(q, ",")
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	cl, ok := s.hub.register()
	if !ok {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		return
	}
	defer s.hub.unregister(cl)
	s.logger.Debug("event client connected", slog.String("remote", c.Request.RemoteAddr))

	// The reader only detects disconnects; clients never send data.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			s.logger.Debug("event client disconnected")
			return
		case ev, open := <-cl.send:
			if !open {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeTimeout))
				return
			}
			if len(sources) > 0 && !slices.Contains(sources, ev.Source) {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Warn("failed to write event", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
