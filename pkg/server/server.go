// Package server exposes the chat and admin surface over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/xavigate/chatcore/pkg/lifecycle"
	"github.com/xavigate/chatcore/pkg/orchestrator"
	"github.com/xavigate/chatcore/pkg/retrieval"
	"github.com/xavigate/chatcore/pkg/runtimeconfig"
	"github.com/xavigate/chatcore/pkg/summary"
)

type Server struct {
	logger       *log.Logger
	orchestrator *orchestrator.Orchestrator
	config       *runtimeconfig.Store
	summaries    *summary.Store
	lifecycle    *lifecycle.Manager
}

func New(
	logger *log.Logger,
	orch *orchestrator.Orchestrator,
	config *runtimeconfig.Store,
	summaries *summary.Store,
	lifecycleManager *lifecycle.Manager,
) *Server {
	return &Server{
		logger:       logger,
		orchestrator: orch,
		config:       config,
		summaries:    summaries,
		lifecycle:    lifecycleManager,
	}
}

func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()

	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		Debug:            false,
	}).Handler)

	router.Get("/health", s.healthHandler)
	router.Post("/chat", s.chatHandler)
	router.Post("/sessions/{sessionID}/expire", s.expireHandler)

	router.Get("/admin/config", s.getConfigHandler)
	router.Put("/admin/config", s.putConfigHandler)
	router.Get("/admin/memory/events/{userID}", s.memoryEventsHandler)

	return router
}

type chatRequest struct {
	UserID      string             `json:"userId"`
	Username    string             `json:"username"`
	FullName    string             `json:"fullName"`
	SessionID   string             `json:"sessionId"`
	Message     string             `json:"message"`
	TraitScores map[string]float64 `json:"traitScores"`
}

type chatResponse struct {
	Answer   string            `json:"answer"`
	Sources  []retrieval.Chunk `json:"sources"`
	Plan     map[string]any    `json:"plan"`
	Critique string            `json:"critique"`
	Followup string            `json:"followup"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("Failed to decode chat request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orchestrator.Turn(r.Context(), orchestrator.TurnRequest{
		UserID:      req.UserID,
		Username:    req.Username,
		FullName:    req.FullName,
		SessionID:   req.SessionID,
		Message:     req.Message,
		TraitScores: req.TraitScores,
	})
	if err != nil {
		var modelErr *orchestrator.ModelCallError
		if errors.As(err, &modelErr) {
			s.logger.Error("Model call failed", "error", err)
			writeError(w, http.StatusBadGateway, "model call failed")
			return
		}
		var validationErr *orchestrator.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		s.logger.Error("Chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []retrieval.Chunk{}
	}
	plan := result.Plan
	if plan == nil {
		plan = map[string]any{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:   result.Answer,
		Sources:  sources,
		Plan:     plan,
		Critique: result.Critique,
		Followup: result.Followup,
	})
}

func (s *Server) expireHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	if err := s.lifecycle.Expire(r.Context(), sessionID); err != nil {
		var summErr *lifecycle.SummarizationError
		if errors.As(err, &summErr) {
			s.logger.Error("Expire summarization failed", "sessionID", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "summarization failed, session memory kept")
			return
		}
		s.logger.Error("Expire failed", "sessionID", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": sessionID,
		"status":    "expired",
	})
}

func (s *Server) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Snapshot())
}

func (s *Server) putConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg runtimeconfig.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := s.config.Replace(r.Context(), cfg)
	if err != nil {
		s.logger.Error("Failed to replace runtime config", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("Runtime config replaced", "version", stored.Version)
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) memoryEventsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}

	events, err := s.summaries.Events(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to load summarization events", "userID", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []summary.SummarizationEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"events": events,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
