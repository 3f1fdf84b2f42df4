// Package control exposes the host's local diagnostics and command surface
// over HTTP: health, bridge status, one-shot command dispatch, and a live
// event stream consumed by the watch TUI.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/loomhost/internal/bridge"
	"github.com/mattjoyce/loomhost/internal/events"
	"github.com/mattjoyce/loomhost/internal/journal"
	"github.com/mattjoyce/loomhost/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_commander.go -package=mocks github.com/mattjoyce/loomhost/internal/control Commander

// Commander is the slice of the bridge the control surface needs.
type Commander interface {
	Send(command string, payload map[string]any) (*protocol.ResponseEnvelope, error)
	State() bridge.State
	Stats() bridge.Stats
}

// JournalReader serves the recent-events query. May be nil when journaling
// is disabled.
type JournalReader interface {
	RecentEvents(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config holds control server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token protecting everything except /healthz.
	// Empty disables auth; the server should then bind loopback only.
	APIKey string
	// ConfigHash identifies the loaded configuration in /status.
	ConfigHash string
}

// Server is the HTTP control server.
type Server struct {
	config    Config
	bridge    Commander
	journal   JournalReader
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a control server. hub feeds the SSE stream; journal may be nil.
func New(config Config, b Commander, hub *events.Hub, journal JournalReader, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		bridge:    b,
		journal:   journal,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("control server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("control server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Post("/commands", s.handleCommand)
		r.Get("/events", s.handleEvents)
		r.Get("/events/recent", s.handleRecentEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
