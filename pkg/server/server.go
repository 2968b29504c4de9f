package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/telemetry/health"

	"github.com/go-chi/chi/v5"
)

// FlagSource exposes the current flag properties.
type FlagSource interface {
	Snapshot() map[string]string
}

// BuildInfo is reported on /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Options wires the admin server to the rest of the process.
type Options struct {
	// Health serves /health and /ready. Required.
	Health *health.Checker

	// Metrics is mounted at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string

	// Usage backs /v1/network-usage. Defaults to networkusage.NoOp.
	Usage networkusage.Repository

	// Flags backs /v1/flags. Required.
	Flags FlagSource

	Build BuildInfo
}

// Server is the admin HTTP server.
type Server struct {
	config     *config.AdminConfig
	health     *health.Checker
	metrics    http.Handler
	metricsAt  string
	usage      networkusage.Repository
	flags      FlagSource
	build      BuildInfo
	logger     *slog.Logger
	httpServer *http.Server

	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
	shutdownOnce sync.Once
}

// NewServer creates an admin server.
func NewServer(cfg *config.AdminConfig, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("admin config cannot be nil")
	}
	if opts.Health == nil {
		return nil, errors.New("health checker cannot be nil")
	}
	if opts.Flags == nil {
		return nil, errors.New("flag source cannot be nil")
	}
	if opts.Usage == nil {
		opts.Usage = networkusage.NoOp{}
	}
	return &Server{
		config:    cfg,
		health:    opts.Health,
		metrics:   opts.Metrics,
		metricsAt: opts.MetricsPath,
		usage:     opts.Usage,
		flags:     opts.Flags,
		build:     opts.Build,
		logger:    slog.Default().With("component", "admin"),
	}, nil
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down admin server")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during admin server shutdown", "error", err)
			shutdownErr = fmt.Errorf("admin server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))

	s.health.Mount(r, s.build.Version, s.build.Commit, s.build.BuildTime)
	if s.metrics != nil && s.metricsAt != "" {
		r.Method(http.MethodGet, s.metricsAt, s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/network-usage", s.listUsage)
		r.Delete("/network-usage", s.purgeUsage)
		r.Get("/flags", s.listFlags)
	})
	return r
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound address once Start is serving.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
