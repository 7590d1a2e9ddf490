package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/mmk-reports/config"
	httpx "github.com/target/mmk-reports/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	HTTP     config.HTTPConfig
	Reports  config.ReportsConfig
	Service  httpx.ReportService
	Checks   []httpx.ReadinessCheck
	Logger   *slog.Logger
	Listener net.Listener // Optional: tests pass a pre-bound listener
}

// BuildHTTPHandler assembles the router for the report API.
func BuildHTTPHandler(cfg *HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.HTTP.SubmitRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.SubmitRateLimit), cfg.HTTP.SubmitBurst)
	}

	return httpx.NewRouter(httpx.RouterServices{
		Reports:       cfg.Service,
		ArtifactDir:   cfg.Reports.Dir,
		ArtifactPath:  cfg.Reports.URLPrefix,
		SubmitLimiter: limiter,
		Readiness:     cfg.Checks,
		Logger:        logger,
	})
}

// ServeHTTP runs the API server until ctx is canceled, then shuts it down within
// HTTP.ShutdownTimeout. It returns nil on a clean shutdown.
func ServeHTTP(ctx context.Context, cfg *HTTPServerConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":3000"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Listener != nil {
			logger.Info("starting HTTP server", "addr", cfg.Listener.Addr().String())
			err = server.Serve(cfg.Listener)
		} else {
			logger.Info("starting HTTP server", "addr", server.Addr)
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
