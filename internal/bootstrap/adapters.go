package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-reports/config"
	"github.com/target/mmk-reports/internal/adapters/broker"
	"github.com/target/mmk-reports/internal/adapters/jobrunner"
	"github.com/target/mmk-reports/internal/adapters/monitor"
	"github.com/target/mmk-reports/internal/adapters/rabbitmq"
	redisbroker "github.com/target/mmk-reports/internal/adapters/redis"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
	"github.com/target/mmk-reports/internal/service"
)

// NewBrokerDialer picks the queue transport named by cfg.Backend.
//
//nolint:ireturn // the transport is chosen at runtime.
func NewBrokerDialer(cfg config.BrokerConfig, infra *Infra, logger *slog.Logger) (core.Dialer, error) {
	switch cfg.Backend {
	case config.BrokerBackendRedis:
		if infra == nil || infra.Redis == nil {
			return nil, errors.New("redis broker backend requires a redis connection")
		}
		d, err := redisbroker.NewStreamDialer(redisbroker.StreamDialerOptions{
			Client:   infra.Redis,
			Stream:   cfg.Queue,
			Group:    cfg.StreamGroup,
			Consumer: cfg.StreamConsumer,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.BrokerBackendAMQP:
		d, err := rabbitmq.NewDialer(rabbitmq.DialerOptions{
			URL:       cfg.URL,
			Queue:     cfg.Queue,
			Heartbeat: cfg.Heartbeat,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.Backend)
	}
}

// NewBrokerManager builds the connection manager for the configured transport.
func NewBrokerManager(cfg config.BrokerConfig, infra *Infra, logger *slog.Logger) (*broker.Manager, error) {
	dialer, err := NewBrokerDialer(cfg, infra, logger)
	if err != nil {
		return nil, fmt.Errorf("create broker dialer: %w", err)
	}
	opts := broker.ManagerOptions{
		Dialer:         dialer,
		MaxRetries:     cfg.MaxRetries,
		RetryInterval:  cfg.RetryInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	}
	if infra != nil {
		opts.Metrics = infra.MetricsSink()
	}
	return broker.NewManager(opts)
}

// ProcessorDelays returns the simulated generation latency per report type, or nil when disabled.
func ProcessorDelays(cfg config.ReportsConfig) map[model.ReportType]time.Duration {
	if !cfg.SimulateLatency {
		return nil
	}
	return map[model.ReportType]time.Duration{
		model.ReportTypeSales:     cfg.SalesDelay,
		model.ReportTypeUsers:     cfg.UsersDelay,
		model.ReportTypeProducts:  cfg.ProductsDelay,
		model.ReportTypeFinancial: cfg.FinancialDelay,
	}
}

// WorkerConfig contains the dependencies for the queue consumer.
type WorkerConfig struct {
	Config   *config.AppConfig
	Infra    *Infra
	Sessions core.SessionProvider
	Logger   *slog.Logger
}

// RunWorker consumes report requests until ctx is canceled.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	artifacts, err := data.NewFileArtifactStore(data.FileArtifactStoreOptions{
		Dir:       cfg.Config.Reports.Dir,
		URLPrefix: cfg.Config.Reports.URLPrefix,
	})
	if err != nil {
		return err
	}

	processor, err := service.NewReportProcessor(service.ReportProcessorOptions{
		Artifacts: artifacts,
		Delays:    ProcessorDelays(cfg.Config.Reports),
		Logger:    cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("wire report processor: %w", err)
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Repo:      cfg.Infra.Store,
		Sessions:  cfg.Sessions,
		Processor: processor,
		Logger:    cfg.Logger,
		Metrics:   cfg.Infra.MetricsSink(),
	})
	if err != nil {
		return fmt.Errorf("wire report runner: %w", err)
	}

	cfg.Logger.Info("report worker started", "artifact_dir", artifacts.Dir())
	return runner.Run(ctx)
}

// MonitorConfig contains the dependencies for the stale report monitor.
type MonitorConfig struct {
	Config *config.AppConfig
	Infra  *Infra
	Logger *slog.Logger
}

// RunMonitor runs the stale report monitor until ctx is canceled.
func RunMonitor(ctx context.Context, cfg MonitorConfig) error {
	runner, err := monitor.NewRunner(monitor.RunnerOptions{
		Repo:    cfg.Infra.Store,
		Config:  cfg.Config.Monitor,
		Logger:  cfg.Logger,
		Metrics: cfg.Infra.MetricsSink(),
	})
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
