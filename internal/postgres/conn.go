// Package postgres implements the Postgres-backed schema initialiser and
// durable metadata store for controllerd's leader-election subsystem.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Default pool tuning applied when the caller does not override them.
// DB_MAX_CONN_LIFETIME, DB_MAX_CONN_IDLE_TIME and DB_HEALTH_CHECK_PERIOD are
// not part of the core configuration surface (internal/config.Config) — they
// are read directly here, matching how connection-pool internals are
// usually tuned independently of application-level config.
const (
	defaultMaxConnLifetime   = 1 * time.Hour
	defaultMaxConnIdleTime   = 30 * time.Minute
	defaultHealthCheckPeriod = 1 * time.Minute
)

// PoolOptions bounds the pgxpool.Pool's connection limits.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// NewPool creates a pgxpool.Pool from a DATABASE_URL connection string,
// applies the given connection bounds, and verifies connectivity with a
// ping before returning.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pgxCfg.MaxConns = opts.MaxConns
	pgxCfg.MinConns = opts.MinConns
	pgxCfg.MaxConnLifetime = envDuration("DB_MAX_CONN_LIFETIME", defaultMaxConnLifetime)
	pgxCfg.MaxConnIdleTime = envDuration("DB_MAX_CONN_IDLE_TIME", defaultMaxConnIdleTime)
	pgxCfg.HealthCheckPeriod = envDuration("DB_HEALTH_CHECK_PERIOD", defaultHealthCheckPeriod)

	slog.Info("pgxpool configured",
		"max_conns", pgxCfg.MaxConns,
		"min_conns", pgxCfg.MinConns,
		"max_conn_lifetime", pgxCfg.MaxConnLifetime,
		"max_conn_idle_time", pgxCfg.MaxConnIdleTime,
		"health_check_period", pgxCfg.HealthCheckPeriod,
	)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// envDuration reads a Go duration from an environment variable, returning defaultVal if unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return d
}
