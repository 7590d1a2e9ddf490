package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-reports/config"
	"github.com/target/mmk-reports/internal/adapters/broker"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	httpx "github.com/target/mmk-reports/internal/http"
	"github.com/target/mmk-reports/internal/observability/statsd"
	"github.com/target/mmk-reports/internal/service"
)

// ReportStore is the job store used by every service mode.
type ReportStore interface {
	core.ReportRepository
	core.StaleReportRepository
}

// Infra holds the connections shared by the enabled services.
type Infra struct {
	Store   ReportStore
	Cache   core.CacheRepository // nil when Redis is unavailable and not required
	Redis   redis.UniversalClient
	Metrics *statsd.Client

	ping    func(ctx context.Context) error
	closers []func() error
}

// Ping checks the job store connection.
func (i *Infra) Ping(ctx context.Context) error {
	if i.ping == nil {
		return nil
	}
	return i.ping(ctx)
}

// MetricsSink returns the metrics client as a Sink, or nil when metrics are disabled.
//
//nolint:ireturn // callers treat a nil Sink as "metrics off".
func (i *Infra) MetricsSink() statsd.Sink {
	if i.Metrics == nil {
		return nil
	}
	return i.Metrics
}

// Close releases every connection in reverse order of creation.
func (i *Infra) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenInfra connects the store, Redis and the metrics sink needed by the enabled services.
func OpenInfra(ctx context.Context, cfg *config.AppConfig, enabled map[config.ServiceMode]bool, logger *slog.Logger) (*Infra, error) {
	infra := &Infra{}
	dbCfg := DatabaseConfig{
		DBConfig:    cfg.Postgres,
		MongoConfig: cfg.Mongo,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}

	if err := infra.openStore(ctx, cfg, dbCfg, logger); err != nil {
		return nil, errors.Join(err, infra.Close())
	}

	needRedis := cfg.Broker.Backend == config.BrokerBackendRedis
	if needRedis || enabled[config.ServiceModeHTTP] {
		client, err := ConnectRedis(dbCfg)
		switch {
		case err != nil && needRedis:
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		case err != nil:
			logger.Warn("redis unavailable, serving reads without cache", "error", err)
		default:
			infra.Redis = client
			infra.Cache = data.NewRedisCacheRepoWithOptions(client, data.RedisCacheOptions{
				OpTimeout: cfg.Redis.CacheOpTimeout,
			})
			infra.closers = append(infra.closers, client.Close)
		}
	}

	infra.Metrics = newMetricsClient(cfg.Observability.Metrics, logger)
	if infra.Metrics != nil {
		infra.closers = append(infra.closers, infra.Metrics.Close)
	}

	return infra, nil
}

func (i *Infra) openStore(ctx context.Context, cfg *config.AppConfig, dbCfg DatabaseConfig, logger *slog.Logger) error {
	repoCfg := data.RepoConfig{Logger: logger}

	if cfg.Store.Backend == config.StoreBackendMongo {
		client, db, err := ConnectMongo(dbCfg)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, func() error { return client.Disconnect(context.Background()) })

		repo := data.NewMongoReportRepo(db, data.MongoRepoConfig{RepoConfig: repoCfg, Collection: cfg.Mongo.Collection})
		if err := repo.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure mongo indexes: %w", err)
		}
		i.Store = repo
		i.ping = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return nil
	}

	db, err := ConnectDB(dbCfg)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, db.Close)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}
	i.Store = data.NewReportRepo(db, repoCfg)
	i.ping = db.PingContext
	return nil
}

func newMetricsClient(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// ServiceOrchestrationConfig contains everything needed to run the enabled services.
type ServiceOrchestrationConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// RunServicesWithShutdown opens the shared connections, starts every enabled service and
// blocks until SIGINT/SIGTERM or the first service failure.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := OpenInfra(ctx, cfg.Config, enabled, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := infra.Close(); closeErr != nil {
			logger.Error("failed to close connections", "error", closeErr)
		}
	}()

	return runServices(ctx, cfg.Config, enabled, infra, logger)
}

func runServices(
	ctx context.Context,
	cfg *config.AppConfig,
	enabled map[config.ServiceMode]bool,
	infra *Infra,
	logger *slog.Logger,
) error {
	g, gctx := errgroup.WithContext(ctx)

	var mgr *broker.Manager
	if enabled[config.ServiceModeHTTP] || enabled[config.ServiceModeWorker] {
		var err error
		mgr, err = NewBrokerManager(cfg.Broker, infra, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := mgr.Close(); closeErr != nil {
				logger.Error("failed to close broker session", "error", closeErr)
			}
		}()
	}

	if enabled[config.ServiceModeWorker] {
		g.Go(func() error {
			return connectThenRun(gctx, mgr.Connect, func(ctx context.Context) error {
				return RunWorker(ctx, WorkerConfig{Config: cfg, Infra: infra, Sessions: mgr, Logger: logger})
			})
		})
	} else if mgr != nil {
		g.Go(func() error {
			if _, err := mgr.Connect(gctx); err != nil && gctx.Err() == nil {
				logger.Error("broker unavailable, submissions will not be queued", "error", err)
			}
			return nil
		})
	}

	if enabled[config.ServiceModeHTTP] {
		svc, err := service.NewReportService(service.ReportServiceOptions{
			Repo:         infra.Store,
			Sessions:     mgr,
			Cache:        reportCache(infra, cfg.Reports),
			DefaultOwner: cfg.Reports.DefaultOwner,
			Logger:       logger,
			Metrics:      infra.MetricsSink(),
		})
		if err != nil {
			return fmt.Errorf("wire report service: %w", err)
		}
		g.Go(func() error {
			return ServeHTTP(gctx, &HTTPServerConfig{
				HTTP:    cfg.HTTP,
				Reports: cfg.Reports,
				Service: svc,
				Checks:  readinessChecks(infra, mgr),
				Logger:  logger,
			})
		})
	}

	if enabled[config.ServiceModeMonitor] {
		g.Go(func() error { return RunMonitor(gctx, MonitorConfig{Config: cfg, Infra: infra, Logger: logger}) })
	}

	logger.Info("services started", "services", GetEnabledServices(cfg))
	err := g.Wait()
	if err != nil {
		logger.Error("service error", "error", err)
		return err
	}
	logger.Info("services stopped")
	return nil
}

// connectThenRun runs the first broker connect sequence and then run. A worker without a
// queue cannot do anything, so exhausting the retries is fatal; a connect cut short by
// shutdown is not.
func connectThenRun(
	ctx context.Context,
	connect func(context.Context) (core.Session, error),
	run func(context.Context) error,
) error {
	if _, err := connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect broker: %w", err)
	}
	return run(ctx)
}

func reportCache(infra *Infra, cfg config.ReportsConfig) *core.ReportCache {
	if infra.Cache == nil {
		return nil
	}
	return core.NewReportCache(core.ReportCacheOptions{Cache: infra.Cache, TTL: cfg.CacheTTL})
}

func readinessChecks(infra *Infra, mgr *broker.Manager) []httpx.ReadinessCheck {
	checks := []httpx.ReadinessCheck{{Name: "store", Check: infra.Ping, Critical: true}}
	if infra.Cache != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "cache", Check: infra.Cache.Health})
	}
	if mgr != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "broker", Check: func(context.Context) error {
			if !mgr.Connected() {
				return broker.ErrSessionUnavailable
			}
			return nil
		}})
	}
	return checks
}
