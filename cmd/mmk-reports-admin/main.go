package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-reports/config"
	"github.com/target/mmk-reports/internal/bootstrap"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
	"github.com/target/mmk-reports/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run PostgreSQL migrations",
			run:         runMigrations,
		},
		"stats": {
			name:        "stats",
			description: "Print report counts by status",
			run:         runStats,
		},
		"stale": {
			name:        "stale",
			description: "Count reports stuck in pending or processing",
			run:         runStale,
		},
		"cache-evict": {
			name:        "cache-evict",
			description: "Remove cached report snapshots from Redis",
			run:         runCacheEvict,
		},
	}
}

func printUsage(w io.Writer) error {
	if _, err := fmt.Fprint(w, "Usage: mmk-reports-admin <command> [flags]\n\nAvailable commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func parseTimeoutFlag(name string, args []string, def time.Duration) (time.Duration, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	timeout := fs.Duration("timeout", def, "overall command timeout")
	if err := fs.Parse(args); err != nil {
		return 0, nil, err
	}
	if *timeout <= 0 {
		return 0, nil, errors.New("timeout must be positive")
	}
	return *timeout, fs.Args(), nil
}

func (c *commandContext) withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(c.Ctx, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

// withStore opens only the job store and closes it when fn returns.
func (c *commandContext) withStore(ctx context.Context, fn func(store bootstrap.ReportStore) error) error {
	cfg := c.Config
	cfg.Postgres.RunMigrationsOnStart = false
	cfg.Observability.Metrics.Enabled = false
	// Monitor mode needs nothing beyond the store.
	infra, err := bootstrap.OpenInfra(ctx, &cfg, map[config.ServiceMode]bool{config.ServiceModeMonitor: true}, c.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := infra.Close(); closeErr != nil {
			c.Logger.Warn("close connections failed", "error", closeErr)
		}
	}()
	return fn(infra.Store)
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "overall command timeout")
	statusOnly := fs.Bool("status", false, "list applied and pending migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmdCtx.Config.Store.Backend != config.StoreBackendPostgres {
		return fmt.Errorf("migrations only apply to the postgres store (configured: %s)", cmdCtx.Config.Store.Backend)
	}

	ctx, cancel := cmdCtx.withTimeout(*timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if *statusOnly {
		st, statusErr := migrate.CurrentStatus(ctx, db)
		if statusErr != nil {
			return statusErr
		}
		return printMigrationStatus(cmdCtx.Out, st)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func printMigrationStatus(w io.Writer, st migrate.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "VERSION\tSTATE\n"); err != nil {
		return err
	}
	for _, v := range st.Applied {
		if err := writef(tw, "%s\tapplied\n", v); err != nil {
			return err
		}
	}
	for _, v := range st.Pending {
		if err := writef(tw, "%s\tpending\n", v); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runStats(cmdCtx *commandContext, args []string) error {
	timeout, _, err := parseTimeoutFlag("stats", args, defaultCommandTimeout)
	if err != nil {
		return err
	}
	ctx, cancel := cmdCtx.withTimeout(timeout)
	defer cancel()

	return cmdCtx.withStore(ctx, func(store bootstrap.ReportStore) error {
		stats, err := store.CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count reports: %w", err)
		}
		return printStats(cmdCtx.Out, stats)
	})
}

func printStats(w io.Writer, stats *model.ReportStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "STATUS\tCOUNT\n"); err != nil {
		return err
	}
	for _, s := range model.ReportStatuses() {
		if err := writef(tw, "%s\t%d\n", s, stats.ByStatus[s]); err != nil {
			return err
		}
	}
	if err := writef(tw, "total\t%d\n", stats.Total); err != nil {
		return err
	}
	return tw.Flush()
}

func runStale(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stale", flag.ContinueOnError)
	pendingAge := fs.Duration("pending-max-age", cmdCtx.Config.Monitor.PendingMaxAge, "age after which a pending report is stale")
	processingAge := fs.Duration("processing-max-age", cmdCtx.Config.Monitor.ProcessingMaxAge, "age after which a processing report is stale")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := cmdCtx.withTimeout(defaultCommandTimeout)
	defer cancel()

	return cmdCtx.withStore(ctx, func(store bootstrap.ReportStore) error {
		now := (&data.RealTimeProvider{}).Now()
		counts, err := store.CountStale(ctx, core.StaleReportParams{
			PendingOlderThan:    now.Add(-*pendingAge),
			ProcessingOlderThan: now.Add(-*processingAge),
		})
		if err != nil {
			return fmt.Errorf("count stale reports: %w", err)
		}
		return writef(cmdCtx.Out, "pending older than %s: %d\nprocessing older than %s: %d\n",
			*pendingAge, counts.Pending, *processingAge, counts.Processing)
	})
}

func runCacheEvict(cmdCtx *commandContext, args []string) error {
	ids, err := parseReportIDs(args)
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.withTimeout(defaultCommandTimeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cmdCtx.Config.Redis, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	cache := data.NewRedisCacheRepoWithOptions(client, data.RedisCacheOptions{OpTimeout: cmdCtx.Config.Redis.CacheOpTimeout})
	for _, id := range ids {
		deleted, delErr := cache.Delete(ctx, core.ReportCacheKey(id))
		if delErr != nil {
			return fmt.Errorf("evict %s: %w", id, delErr)
		}
		state := "not cached"
		if deleted {
			state = "evicted"
		}
		if err := writef(cmdCtx.Out, "%s\t%s\n", id, state); err != nil {
			return err
		}
	}
	return nil
}

func parseReportIDs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one report id is required")
	}
	ids := make([]string, 0, len(args))
	for _, a := range args {
		if _, err := uuid.Parse(a); err != nil {
			return nil, fmt.Errorf("invalid report id %q", a)
		}
		ids = append(ids, a)
	}
	return ids, nil
}
