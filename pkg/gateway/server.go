package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polygate-dev/polygate/pkg/auth"
	"github.com/polygate-dev/polygate/pkg/config"
	"github.com/polygate-dev/polygate/pkg/observability"
	"github.com/polygate-dev/polygate/pkg/usage"
)

// shutdownTimeout bounds the graceful drain on shutdown.
const shutdownTimeout = 10 * time.Second

// Server owns the HTTP listener and the middleware-assembled handler.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer assembles the full gateway handler from the configuration:
// routes, metrics endpoint, and the middleware chain. authn may be nil
// when authentication is disabled.
func NewServer(cfg *config.Config, store usage.Store, authn auth.Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gw := New(cfg, store, logger)
	mux := gw.Routes()

	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	handler := Chain(
		Recovery(logger),
		RequestID(),
		Logging(logger),
		observability.MetricsMiddleware,
		CORS(DefaultPreflightPaths),
		auth.Middleware(authn, auth.DefaultBypassPaths),
	)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:        NormalizeAddr(cfg.Server.Addr),
			Handler:     handler,
			ReadTimeout: cfg.Server.ReadTimeout,
			// No WriteTimeout: streaming responses stay open for as long
			// as the upstream produces tokens.
		},
		logger: logger,
	}
}

// Addr returns the normalized listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run listens on the configured address and serves until ctx is
// cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.ServeOn(ctx, ln)
}

// ServeOn serves on an existing listener; tests use it with a :0 listener.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
