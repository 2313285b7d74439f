// Package httpapi exposes the upload/status/events/result/retry/health
// surface over internal/job, internal/eventbus, and internal/orchestrator,
// using plain net/http.ServeMux "METHOD /path" registration rather than a
// route-to-CLI-command abstraction, since this binary has no CLI commands
// that call the running server.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hasangilak/vision-pdf-to-epub/internal/eventbus"
	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
	"github.com/hasangilak/vision-pdf-to-epub/internal/orchestrator"
)

// Config holds everything the server needs to wire its routes.
type Config struct {
	Host string
	Port int

	Registry     job.Registry
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	// SSERingBufferSize sizes each job's event bus (default 200).
	SSERingBufferSize int

	// AllowedLanguages restricts the upload endpoint's language field.
	AllowedLanguages []string
}

// Server is the pipeline's HTTP facade.
type Server struct {
	httpServer *http.Server

	registry     job.Registry
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger

	ringBufferSize   int
	allowedLanguages map[string]bool

	busMu sync.Mutex
	buses map[string]*eventbus.Bus
}

// New builds a Server and registers its routes. It does not start
// listening; call Start for that.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SSERingBufferSize <= 0 {
		cfg.SSERingBufferSize = 200
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if len(cfg.AllowedLanguages) == 0 {
		cfg.AllowedLanguages = []string{"fa", "ar", "en"}
	}

	allowed := make(map[string]bool, len(cfg.AllowedLanguages))
	for _, l := range cfg.AllowedLanguages {
		allowed[l] = true
	}

	s := &Server{
		registry:         cfg.Registry,
		orchestrator:     cfg.Orchestrator,
		logger:           cfg.Logger,
		ringBufferSize:   cfg.SSERingBufferSize,
		allowedLanguages: allowed,
		buses:            make(map[string]*eventbus.Bus),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/jobs", s.handleUpload)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/jobs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/jobs/{id}/result", s.handleDownload)
	mux.HandleFunc("POST /api/jobs/{id}/retry", s.handleRetry)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams and large epub downloads must not be cut off
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start runs the HTTP server until ctx is cancelled, then gracefully
// shuts it down. Grounded on internal/server/server.go's Start/shutdown
// split, minus the DefraDB lifecycle this pipeline has no equivalent of.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// busFor returns the current event bus for a job, if any is registered.
func (s *Server) busFor(jobID string) (*eventbus.Bus, bool) {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	b, ok := s.buses[jobID]
	return b, ok
}

// newBus opens a fresh bus for jobID, replacing any prior one (retry's
// "old bus is discarded" rule from §4.6).
func (s *Server) newBus(jobID string) *eventbus.Bus {
	b := eventbus.New(s.ringBufferSize)
	s.busMu.Lock()
	s.buses[jobID] = b
	s.busMu.Unlock()
	return b
}
