// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package share serves read-only chat transcripts over HTTP.
//
// A share link is just a durable chat id. Reads are public by id: no
// authentication, no ownership check. Anyone holding the id can view the
// chat's title and flattened messages. This is a deliberate sharing model,
// not an oversight.
package share

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeranaias/splain/internal/model"
	"github.com/jeranaias/splain/internal/remotestore"
)

// requestTimeout bounds a single share lookup.
const requestTimeout = 10 * time.Second

// ShareURL builds the public link for a chat id against baseURL.
func ShareURL(baseURL, chatID string) string {
	return strings.TrimRight(baseURL, "/") + "/share/" + url.PathEscape(chatID)
}

// ChatGetter reads a chat by id alone.
type ChatGetter interface {
	Get(ctx context.Context, id string) (model.ChatRecord, error)
}

// =============================================================================
// SERVER
// =============================================================================

// Server exposes the share endpoints.
type Server struct {
	store ChatGetter
	http  *http.Server
}

// New creates a share server listening on addr.
func New(addr string, store ChatGetter) *Server {
	s := &Server{store: store}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)
	r.Get("/share/{chatID}", s.handleShare)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the server until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	log.Printf("share server listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// securityHeaders sets the standard response hardening headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HANDLERS
// =============================================================================

// sharedMessage is one message in the public transcript.
type sharedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sharedChat is the public view of a chat: title and messages only, no
// owner information.
type sharedChat struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Messages []sharedMessage `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	rec, err := s.store.Get(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, remotestore.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
			return
		}
		log.Printf("WARNING: share lookup for %s failed: %v", chatID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	out := sharedChat{
		ID:       rec.ID,
		Title:    rec.Title,
		Messages: make([]sharedMessage, 0, len(rec.Messages)),
	}
	for _, m := range rec.Messages {
		out.Messages = append(out.Messages, sharedMessage{Role: m.Role, Content: m.Content})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARNING: failed to encode response: %v", err)
	}
}
