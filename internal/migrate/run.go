// Package migrate applies the embedded PostgreSQL schema for the report store.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey is the pg_advisory_lock key held while migrations run, so that several
// instances starting together apply each file once.
const lockKey int64 = 0x6d6d6b5f72707473 // "mmk_rpts"

// Status describes which embedded migrations have been applied.
type Status struct {
	Applied []string
	Pending []string
}

// Run applies all pending migrations in version order. It is safe to call multiple times
// and from several processes at once.
func Run(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockKey); unlockErr != nil {
			slog.Default().Warn("release migration lock", "error", unlockErr)
		}
	}()

	st, err := status(ctx, conn)
	if err != nil {
		return err
	}

	logger := slog.Default().With("component", "migrations")
	for _, version := range st.Pending {
		logger.InfoContext(ctx, "applying migration", "version", version)
		if err := apply(ctx, conn, version); err != nil {
			return err
		}
	}
	return nil
}

// CurrentStatus reports applied and pending migrations without changing anything.
func CurrentStatus(ctx context.Context, db *sql.DB) (Status, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()
	return status(ctx, conn)
}

func versions() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	slices.Sort(out)
	return out, nil
}

func status(ctx context.Context, conn *sql.Conn) (Status, error) {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return Status{}, fmt.Errorf("create schema_migrations table: %w", err)
	}

	all, err := versions()
	if err != nil {
		return Status{}, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return Status{}, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return Status{}, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return Status{}, fmt.Errorf("list applied migrations: %w", err)
	}

	var st Status
	for _, v := range all {
		if applied[v] {
			st.Applied = append(st.Applied, v)
		} else {
			st.Pending = append(st.Pending, v)
		}
	}
	return st, nil
}

func apply(ctx context.Context, conn *sql.Conn, version string) (err error) {
	body, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback migration %s: %w", version, rbErr))
		}
	}()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
