package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dspu-systems/controllerd/internal/errs"
	"github.com/jackc/pgx/v5/pgxpool"
)

// metaTableDDL creates the shared metadata table used by the leader-election
// subsystem: a string-to-string mapping keyed by k, with the three
// recognised keys (leader_epoch, leader_id, updated_ms) as rows.
const metaTableDDL = `
CREATE TABLE IF NOT EXISTS dspu_meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
)`

// seedEpochSQL inserts the leader_epoch row at 0 if it is not already
// present. ON CONFLICT DO NOTHING makes this safe to run from every peer
// without a prior existence check.
const seedEpochSQL = `
INSERT INTO dspu_meta (k, v) VALUES ('leader_epoch', '0')
ON CONFLICT (k) DO NOTHING`

// EnsureSchema idempotently creates the shared metadata table and seeds the
// leader_epoch row. It is safe to call concurrently from multiple peer
// processes on first boot: the transaction-scoped SCHEMA_LOCK advisory lock
// serialises the catalog mutation, so exactly one peer creates the table
// while the rest wait and then observe it already exists.
//
// It retries on any failure (connection refusal, catalog race, transient
// error) at the given interval until the deadline elapses, at which point
// it returns an error wrapping errs.ErrSchemaInitTimeout with the last
// underlying cause.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schemaLockID int64, totalDeadline, interval time.Duration) error {
	deadline := time.Now().Add(totalDeadline)
	var lastErr error

	for {
		// Bound each attempt by the overall deadline so an attempt blocked on
		// SCHEMA_LOCK cannot outlive it.
		attemptCtx, cancel := context.WithDeadline(ctx, deadline)
		err := ensureSchemaOnce(attemptCtx, pool, schemaLockID)
		cancel()
		if err != nil {
			lastErr = err
			if time.Now().After(deadline) {
				return fmt.Errorf("%w: schema init failed after %s: %v", errs.ErrSchemaInitTimeout, totalDeadline, lastErr)
			}
			slog.Warn("schema init attempt failed, retrying", "error", err, "interval", interval)

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", errs.ErrSchemaInitTimeout, ctx.Err())
			case <-time.After(interval):
			}
			continue
		}
		return nil
	}
}

// ensureSchemaOnce runs a single schema-initialisation attempt: open a
// connection, open a transaction, take the SCHEMA_LOCK (transaction-scoped,
// releases automatically on commit/rollback), create the table if absent,
// seed leader_epoch if missing, commit.
func ensureSchemaOnce(ctx context.Context, pool *pgxpool.Pool, schemaLockID int64) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	if _, err := tx.Exec(ctx, metaTableDDL); err != nil {
		return fmt.Errorf("create dspu_meta table: %w", err)
	}

	if _, err := tx.Exec(ctx, seedEpochSQL); err != nil {
		return fmt.Errorf("seed leader_epoch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
