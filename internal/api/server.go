// SPDX-License-Identifier: MIT

// Package api exposes the corsgate HTTP surface: the fetch gateway
// endpoint that drives one CORS loader per call, the origin access list
// admin endpoints, audit queries, health and metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/audit"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/config"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/loader"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// AuditQuerier reads back stored audit events.
type AuditQuerier interface {
	Query(eventType audit.EventType, limit int) ([]audit.Event, error)
}

// Config wires the server to the pipeline.
type Config struct {
	Factory    *loader.Factory
	AccessList *config.AccessListHolder

	// Audit may be nil; the audit endpoint then reports the store as
	// disabled.
	Audit AuditQuerier

	// FetchRateLimit caps fetch calls per client IP per minute. Zero
	// disables the limit.
	FetchRateLimit int

	// FetchTimeout bounds one gateway fetch end to end.
	FetchTimeout time.Duration
}

// Server is the corsgate HTTP server.
type Server struct {
	cfg    Config
	router *chi.Mux
	logger zerolog.Logger
}

// New builds the server and its route tree.
func New(cfg Config) (*Server, error) {
	if cfg.Factory == nil {
		return nil, errors.New("api: loader factory is required")
	}
	if cfg.AccessList == nil {
		return nil, errors.New("api: access list holder is required")
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.FetchRateLimit > 0 {
				r.Use(httprate.Limit(
					cfg.FetchRateLimit,
					time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
				))
			}
			r.Post("/fetch", s.handleFetch)
		})
		r.Get("/accesslist", s.handleGetAccessList)
		r.Put("/accesslist", s.handlePutAccessList)
		r.Get("/audit/events", s.handleAuditEvents)
	})

	s.router = r
	return s, nil
}

// Router returns the http.Handler for the server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestIDMiddleware assigns each request an ID, honoring one supplied
// by the caller, and threads it through the logging context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
