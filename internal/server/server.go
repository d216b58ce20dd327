// Package server provides the HTTP API for Kioku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/ingest"
	"github.com/lucidmem/kioku/internal/orchestrator"
	"github.com/lucidmem/kioku/internal/store"
)

// Server is the HTTP server for the Kioku API.
type Server struct {
	orch     *orchestrator.Orchestrator
	ingestor *ingest.Ingestor
	store    *store.SQLite
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	orch *orchestrator.Orchestrator,
	ingestor *ingest.Ingestor,
	st *store.SQLite,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		orch:     orch,
		ingestor: ingestor,
		store:    st,
		config:   cfg,
		logger:   logger,
	}
}

// routes builds the HTTP router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/retrieve", s.handleRetrieve)
	r.Post("/api/v1/memories", s.handleRemember)
	r.Get("/api/v1/memories/{layer}/{id}", s.handleGetMemory)
	r.Delete("/api/v1/memories/{layer}/{id}", s.handleForget)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := s.routes()
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
