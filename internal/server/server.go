// Package server assembles the HTTP surface of the reconciliation service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/handlers"
	"github.com/iudanet/fieldsync/internal/server/middleware"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	ShutdownTimeout   time.Duration
	SubmitRate        int           // submissions per SubmitWindow per device
	SubmitWindow      time.Duration // zero disables the submit rate limit
	AdminRate         int           // dispatch and cleanup calls per AdminWindow per admin
	AdminWindow       time.Duration // zero disables the admin rate limit
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		SubmitRate:        60,
		SubmitWindow:      time.Minute,
		AdminRate:         6,
		AdminWindow:       time.Minute,
	}
}

// Deps are the components the router dispatches to.
type Deps struct {
	Engine interface {
		handlers.Submitter
		handlers.AdminEngine
	}
	Tokens  middleware.TokenValidator
	Events  http.Handler // websocket feed; nil disables the route
	Store   handlers.Pinger
	Version string
}

const (
	healthPath   = "/api/v1/health"
	submitPath   = "/api/v1/sync/submit"
	dispatchPath = "/api/v1/admin/dispatch"
	cleanupPath  = "/api/v1/admin/cleanup"
)

// NewRouter builds the route table. The returned stop function releases
// the rate limiters' background goroutines.
func NewRouter(logger *slog.Logger, cfg Config, deps Deps) (http.Handler, func()) {
	syncHandler := handlers.NewSyncHandler(logger, deps.Engine)
	adminHandler := handlers.NewAdminHandler(logger, deps.Engine)
	healthHandler := handlers.NewHealthHandler(logger, deps.Store, deps.Version)

	auth := middleware.AuthMiddleware(logger, deps.Tokens)
	adminOnly := middleware.RequirePermission(logger, models.PermAdmin)

	// Submissions are limited per device, the expensive admin passes per admin.
	limits := middleware.NewPathLimits([]middleware.PathRateLimit{
		{Path: submitPath, Rate: cfg.SubmitRate, Window: cfg.SubmitWindow},
		{Path: dispatchPath, Rate: cfg.AdminRate, Window: cfg.AdminWindow},
		{Path: cleanupPath, Rate: cfg.AdminRate, Window: cfg.AdminWindow},
	}, logger)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(limits.Middleware(h)))
	}

	mux.HandleFunc("GET "+healthPath, healthHandler.Health)
	route("POST "+submitPath, syncHandler.Submit)

	route("GET /api/v1/admin/queue", adminHandler.Queue)
	route("POST /api/v1/admin/queue/retry", adminHandler.Retry)
	route("POST /api/v1/admin/queue/clear-completed", adminHandler.ClearCompleted)
	route("POST "+dispatchPath, adminHandler.Dispatch)
	route("GET /api/v1/admin/conflicts", adminHandler.Conflicts)
	route("GET /api/v1/admin/conflicts/{id}", adminHandler.Conflict)
	route("POST /api/v1/admin/conflicts/resolve", adminHandler.Resolve)
	route("POST "+cleanupPath, adminHandler.Cleanup)
	route("GET /api/v1/admin/retention", adminHandler.Retention)
	route("PUT /api/v1/admin/retention", adminHandler.UpdateRetention)
	route("GET /api/v1/admin/sessions", adminHandler.Sessions)
	route("GET /api/v1/admin/sessions/{id}", adminHandler.Session)

	if deps.Events != nil {
		mux.Handle("GET /api/v1/admin/events", auth(adminOnly(deps.Events)))
	}

	var h http.Handler = mux
	h = middleware.LoggingWithSkip(logger, []string{healthPath})(h)
	h = middleware.RecoveryMiddleware(logger)(h)
	return h, limits.Stop
}

// Server owns the http.Server lifecycle.
type Server struct {
	logger   *slog.Logger
	http     *http.Server
	listener net.Listener
	shutdown time.Duration
}

// New creates a server for handler. It does not listen yet.
func New(logger *slog.Logger, cfg Config, handler http.Handler) *Server {
	return &Server{
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		shutdown: cfg.ShutdownTimeout,
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server started", "addr", s.Addr())
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdown)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
