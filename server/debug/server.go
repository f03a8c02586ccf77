//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package debug provides a read-only HTTP surface over a hub for debugging:
// the coordinator status, paused session snapshots and an SSE bridge onto
// the execution event stream. It never mutates hub state.
package debug

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Open-Harness/open-harness-sub005/channel"
	"github.com/Open-Harness/open-harness-sub005/event"
	"github.com/Open-Harness/open-harness-sub005/hub"
	"github.com/Open-Harness/open-harness-sub005/log"
)

// sseBufferSize bounds the per-client event queue; a slow client drops
// events rather than blocking delivery.
const sseBufferSize = 64

// Server exposes HTTP endpoints over a hub.
type Server struct {
	hub    *hub.Hub
	router *mux.Router
	// patterns selects which events the SSE bridge forwards.
	patterns []string
}

// Option configures the Server.
type Option func(*Server)

// WithEventPatterns overrides the glob patterns the SSE bridge subscribes
// with. Default is every flow and node event.
func WithEventPatterns(patterns ...string) Option {
	return func(s *Server) { s.patterns = patterns }
}

// New creates a debug server for the hub.
func New(h *hub.Hub, opts ...Option) *Server {
	s := &Server{
		hub:      h,
		router:   mux.NewRouter(),
		patterns: []string{"flow:*", "node:*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{sessionId}", s.handleSession).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": string(s.hub.Status())})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	state, ok := s.hub.PausedSession(sessionID)
	if !ok {
		http.Error(w, fmt.Sprintf("no paused session %s", sessionID), http.StatusNotFound)
		return
	}
	s.writeJSON(w, state)
}

// handleEvents streams matched execution events as server-sent events until
// the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan *event.Event, sseBufferSize)
	patterns := make(map[string]channel.Handler, len(s.patterns))
	for _, pattern := range s.patterns {
		patterns[pattern] = func(e *event.Event) {
			select {
			case events <- e:
			default:
				log.Debugf("debug: dropping event %s for slow SSE client", e.Name)
			}
		}
	}
	unregister, err := s.hub.RegisterChannel("debug-sse-"+uuid.New().String(), patterns)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				log.Warnf("debug: marshal event %s: %v", e.Name, err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("debug: write response: %v", err)
	}
}
