package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/audience-sync/internal/config"
)

// Server hosts the pipeline's HTTP surface: submission hand-off, the
// inbound webhook endpoint, and the reporting/configuration API.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates an API server around the given handlers.
func NewServer(cfg config.ServerConfig, h *Handlers, webhook http.Handler) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, webhook),
	}
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
