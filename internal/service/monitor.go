package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-reports/config"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
	"github.com/target/mmk-reports/internal/observability/metrics"
	"github.com/target/mmk-reports/internal/observability/statsd"
)

// StaleReportMonitorOptions groups dependencies for StaleReportMonitor.
type StaleReportMonitorOptions struct {
	Repo         core.StaleReportRepository // Required: stale report counts
	Config       config.MonitorConfig       // Required: monitor configuration
	TimeProvider data.TimeProvider          // Optional: clock used to compute thresholds
	Logger       *slog.Logger               // Optional: structured logger
	Metrics      statsd.Sink                // Optional: metrics sink (StatsD-compatible)
}

// StaleReportMonitor periodically counts reports stuck in pending or processing.
//
// It only observes. Reports that were never published or whose consumer crashed
// stay where they are until an operator acts on them.
type StaleReportMonitor struct {
	repo    core.StaleReportRepository
	config  config.MonitorConfig
	clock   data.TimeProvider
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewStaleReportMonitor constructs a new StaleReportMonitor.
func NewStaleReportMonitor(opts StaleReportMonitorOptions) (*StaleReportMonitor, error) {
	if opts.Repo == nil {
		return nil, errors.New("StaleReportRepository is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("monitor interval must be positive")
	}

	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "stale_report_monitor")
		logger.Debug("StaleReportMonitor initialized",
			"interval", opts.Config.Interval,
			"pending_max_age", opts.Config.PendingMaxAge,
			"processing_max_age", opts.Config.ProcessingMaxAge,
		)
	}

	return &StaleReportMonitor{
		repo:    opts.Repo,
		config:  opts.Config,
		clock:   clock,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// MustNewStaleReportMonitor constructs a new StaleReportMonitor and panics on error.
func MustNewStaleReportMonitor(opts StaleReportMonitorOptions) *StaleReportMonitor {
	m, err := NewStaleReportMonitor(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create StaleReportMonitor: %v", err))
	}
	return m
}

// Run sweeps once after a short jitter and then on every interval until ctx is canceled.
// Returns nil on graceful shutdown.
func (m *StaleReportMonitor) Run(ctx context.Context) error {
	if m.logger != nil {
		m.logger.InfoContext(ctx, "starting stale report monitor", "interval", m.config.Interval)
	}

	m.waitWithJitter(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	if _, err := m.Sweep(ctx); err != nil {
		m.logSweepError(err)
	}

	for {
		select {
		case <-ctx.Done():
			if m.logger != nil {
				m.logger.InfoContext(ctx, "stale report monitor stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logSweepError(err)
			}
		}
	}
}

// Sweep counts stale reports once, logging and emitting a gauge per status.
func (m *StaleReportMonitor) Sweep(ctx context.Context) (*model.StaleReportCounts, error) {
	now := m.clock.Now()
	counts, err := m.repo.CountStale(ctx, core.StaleReportParams{
		PendingOlderThan:    now.Add(-m.config.PendingMaxAge),
		ProcessingOlderThan: now.Add(-m.config.ProcessingMaxAge),
	})
	if err != nil {
		return nil, fmt.Errorf("count stale reports: %w", err)
	}

	metrics.EmitStaleReports(m.metrics, string(model.ReportStatusPending), counts.Pending)
	metrics.EmitStaleReports(m.metrics, string(model.ReportStatusProcessing), counts.Processing)

	if m.logger != nil && (counts.Pending > 0 || counts.Processing > 0) {
		m.logger.WarnContext(ctx, "stale reports need operator attention",
			"pending", counts.Pending,
			"pending_max_age", m.config.PendingMaxAge,
			"processing", counts.Processing,
			"processing_max_age", m.config.ProcessingMaxAge,
		)
	}
	return counts, nil
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (m *StaleReportMonitor) waitWithJitter(ctx context.Context) {
	maxJitter := int64(m.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (m *StaleReportMonitor) logSweepError(err error) {
	if m.logger == nil {
		return
	}
	if isContextCancellation(err) {
		m.logger.Debug("stale report sweep cancelled by context", "error", err)
		return
	}
	m.logger.Error("stale report sweep failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
