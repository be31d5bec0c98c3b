// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jeranaias/splain/internal/app"
	"github.com/jeranaias/splain/internal/identity"
	"github.com/jeranaias/splain/internal/provider"
)

// apiServer exposes the app's operations over local HTTP. It is a thin
// translation layer: every decision lives in the app and engine.
type apiServer struct {
	app     *app.App
	watcher *identity.Watcher
}

func newAPIServer(addr string, application *app.App, watcher *identity.Watcher) *http.Server {
	s := &apiServer{app: application, watcher: watcher}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/surprise", s.handleSurprise)
		r.Post("/edit", s.handleEdit)
		r.Post("/quiz", s.handleQuiz)
		r.Post("/cancel", s.handleCancel)
		r.Get("/reveal", s.handleReveal)
		r.Post("/options", s.handleOptions)

		r.Get("/chats", s.handleListChats)
		r.Post("/chats/new", s.handleNewChat)
		r.Post("/chats/select", s.handleSelectChat)
		r.Delete("/chats/{chatID}", s.handleDeleteChat)
		r.Post("/chats/{chatID}/rename", s.handleRenameChat)

		r.Post("/identity", s.handleIdentity)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// =============================================================================
// GENERATION
// =============================================================================

func (s *apiServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	if err := s.app.Ask(r.Context(), req.Question); err != nil {
		respondAppError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"chatId": s.app.Engine().ActiveID()})
}

func (s *apiServer) handleSurprise(w http.ResponseWriter, r *http.Request) {
	topic, err := s.app.SurpriseMe(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{
		"topic":  topic,
		"chatId": s.app.Engine().ActiveID(),
	})
}

func (s *apiServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index   int    `json:"index"`
		Content string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := s.app.EditMessage(r.Context(), req.Index, req.Content); err != nil {
		respondAppError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"chatId": s.app.Engine().ActiveID()})
}

func (s *apiServer) handleQuiz(w http.ResponseWriter, r *http.Request) {
	if err := s.app.GenerateQuiz(r.Context()); err != nil {
		respondAppError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.app.Cancel()
	s.app.CancelQuiz()
	respond(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *apiServer) handleReveal(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"state": s.app.RevealState().String(),
		"text":  s.app.Revealed(),
	})
}

func (s *apiServer) handleOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Complexity int    `json:"complexity"`
		Length     string `json:"length"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Complexity < 0 || req.Complexity > 100 {
		respondError(w, http.StatusBadRequest, "complexity must be in [0,100]")
		return
	}
	s.app.SetOptions(provider.Options{
		Complexity: req.Complexity,
		Length:     provider.Length(req.Length),
	})
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CHAT LIST
// =============================================================================

func (s *apiServer) handleListChats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"chats":    s.app.Engine().Chats(),
		"activeId": s.app.Engine().ActiveID(),
	})
}

func (s *apiServer) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := s.app.Engine().CreateNewChat(req.Title, "")
	respond(w, http.StatusOK, map[string]string{"chatId": id})
}

func (s *apiServer) handleSelectChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	// Switching away mid-generation abandons the in-flight work.
	s.app.Cancel()
	s.app.Engine().SelectChat(req.ID)
	respond(w, http.StatusOK, map[string]string{"activeId": s.app.Engine().ActiveID()})
}

func (s *apiServer) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	s.app.Engine().DeleteChat(chi.URLParam(r, "chatID"))
	respond(w, http.StatusOK, map[string]string{"activeId": s.app.Engine().ActiveID()})
}

func (s *apiServer) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.app.Engine().RenameChat(chi.URLParam(r, "chatID"), req.Title)
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// IDENTITY
// =============================================================================

func (s *apiServer) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		s.watcher.Set(identity.AnonymousState())
	} else {
		s.watcher.Set(identity.SignedInState(req.UserID))
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARNING: failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// respondAppError maps app errors to HTTP statuses. Cancellation is not an
// error condition for the caller.
func respondAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrBusy):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrNoActiveChat),
		errors.Is(err, app.ErrNoExplanation),
		errors.Is(err, app.ErrNotUserMessage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusBadGateway, "generation failed")
	}
}
