// Package api exposes the Kestrel HTTP surface: rule resolution, diagnostic
// scoring, decisions, rule management and cache control.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bookwell/kestrel/internal/decision"
	"github.com/bookwell/kestrel/internal/domain"
	"github.com/bookwell/kestrel/internal/engine"
	"github.com/go-chi/chi/v5"
)

// Server is the Kestrel HTTP server.
type Server struct {
	router    chi.Router
	resolver  *engine.Resolver
	decisions *decision.Engine
	store     domain.RuleStore
	cache     domain.RuleCache
	bus       domain.EventBus
	cfg       domain.ServerConfig

	httpServer *http.Server
}

// NewServer creates the HTTP server and mounts all routes.
func NewServer(cfg domain.ServerConfig, resolver *engine.Resolver, decisions *decision.Engine, store domain.RuleStore, cache domain.RuleCache, bus domain.EventBus) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		resolver:  resolver,
		decisions: decisions,
		store:     store,
		cache:     cache,
		bus:       bus,
		cfg:       cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(CORSMiddleware)
	s.router.Use(RecoverMiddleware)
	s.router.Use(TracingMiddleware)
	s.router.Use(LoggingMiddleware)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(OrgMiddleware)

		r.Post("/resolve", s.handleResolve)
		r.Post("/score", s.handleScore)
		r.Post("/decide", s.handleDecide)

		r.Post("/rules", s.handleUpsertRule)
		r.Get("/rules", s.handleListRules)
		r.Get("/rules/{ruleID}", s.handleGetRule)

		r.Post("/cache/invalidate", s.handleInvalidateCache)

		r.Get("/decisions/{recordID}", s.handleGetDecision)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	slog.Info("HTTP server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports dependency health. The store being down is not fatal
// for decisions, so it degrades the response rather than failing it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	if err := s.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["cache"] = "ok"
	}
	if err := s.bus.Ping(ctx); err != nil {
		checks["bus"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["bus"] = "ok"
	}

	writeJSON(w, status, checks)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
