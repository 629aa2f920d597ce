// Package api exposes the HTTP interface for the imagepack service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"imagepack/internal/artifact"
	"imagepack/internal/batch"
	"imagepack/internal/config"
	"imagepack/internal/metrics"
	"imagepack/internal/publisher"
)

// TokenSource mints opaque artifact identifiers.
type TokenSource interface {
	NewToken() (string, error)
}

// Server wires HTTP handlers to the processing pipeline and artifact store.
type Server struct {
	router    chi.Router
	resolver  batch.Resolver
	fetcher   batch.Fetcher
	store     artifact.Store
	publisher publisher.Publisher
	tokens    TokenSource
	clock     batch.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	cfg config.Config,
	resolver batch.Resolver,
	fetcher batch.Fetcher,
	store artifact.Store,
	pub publisher.Publisher,
	tokens TokenSource,
	clock batch.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		resolver:  resolver,
		fetcher:   fetcher,
		store:     store,
		publisher: pub,
		tokens:    tokens,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// No timeout middleware here: /api/process holds the response open for
	// the whole batch.
	r.Route("/api", func(r chi.Router) {
		r.Post("/process", s.processBatch)
		r.Get("/download", s.downloadArchive)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
