// Package monitor provides the adapter that runs the stale report monitor as a service.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-reports/config"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/observability/statsd"
	"github.com/target/mmk-reports/internal/service"
)

// Runner runs the stale report monitor loop.
type Runner struct {
	monitor *service.StaleReportMonitor
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Repo    core.StaleReportRepository
	Config  config.MonitorConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewRunner creates a new monitor runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Repo == nil {
		return nil, errors.New("stale report repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m, err := service.NewStaleReportMonitor(service.StaleReportMonitorOptions{
		Repo:    opts.Repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire stale report monitor: %w", err)
	}

	return &Runner{monitor: m, logger: opts.Logger}, nil
}

// Run starts the monitor loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting stale report monitor runner")
	return r.monitor.Run(ctx)
}
