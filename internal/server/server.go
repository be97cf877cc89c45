package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler registers a group of related routes on a router.
type Handler interface {
	Routes(r chi.Router)
}

// Server serves the HTTP API for one engine, provider registry and resolver.
type Server struct {
	config    shared.ServerConfig
	engine    tasks.Migrator
	providers services.Registry
	resolver  *mapping.Resolver
	logger    *log.Logger
}

// New creates a Server. The resolver backs the mapping route and should be the one the engine uses.
func New(cfg shared.ServerConfig, engine tasks.Migrator, providers services.Registry, resolver *mapping.Resolver, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		config:    cfg,
		engine:    engine,
		providers: providers,
		resolver:  resolver,
		logger:    shared.WithLogger(logger, "component", "server"),
	}
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Handler builds the routed, rate limited [http.Handler].
func (s *Server) Handler() http.Handler {
	return NewRouter(s.logger, s.config.RateLimit,
		&MigrationHandler{engine: s.engine, logger: s.logger},
		&ProviderHandler{providers: s.providers, resolver: s.resolver, logger: s.logger},
	)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
