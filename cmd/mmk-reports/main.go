package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/mmk-reports/config"
	"github.com/target/mmk-reports/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config: &cfg,
		Logger: logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting mmk-reports",
		"store", cfg.Store.Backend,
		"broker", cfg.Broker.Backend,
		"queue", cfg.Broker.Queue,
		"http_addr", cfg.HTTP.Addr,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
