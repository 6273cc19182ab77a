// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tastemate/internal/common/config"
	stderrors "tastemate/internal/common/errors"
	"tastemate/internal/common/logger"
	"tastemate/internal/common/validation"
	"tastemate/internal/pipeline"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	checks   map[string]HealthChecker
	logger   logger.Logger
	http     *http.Server
}

func NewServer(cfg config.ServerConfig, p *pipeline.Pipeline, checks map[string]HealthChecker, log logger.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: p,
		checks:   checks,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/chat", s.handleChat)
	r.Get("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Millisecond,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting", map[string]interface{}{"addr": s.http.Addr})
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, stderrors.NewValidationError("unreadable request body"))
		return
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, stderrors.NewValidationError("request body is not valid JSON"))
		return
	}

	violations, err := validation.ValidateChatRequest(body)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, stderrors.NewInternalError(err))
		return
	}
	if violations != "" {
		s.writeError(w, http.StatusBadRequest, stderrors.NewValidationError(violations))
		return
	}

	var req pipeline.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, stderrors.NewValidationError(err.Error()))
		return
	}

	resp := s.pipeline.Process(r.Context(), req)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	details := map[string]string{}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			details[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			details[name] = "ok"
		}
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": details,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err *stderrors.StandardError) {
	explanation := stderrors.Explain(err)
	s.writeJSON(w, status, map[string]interface{}{
		"error":       err,
		"explanation": explanation,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}
