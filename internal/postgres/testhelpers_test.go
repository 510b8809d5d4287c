package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dspu-systems/controllerd/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testSchemaLockID int64 = 915707099

// testPool returns a pgxpool.Pool connected to the test database. It skips
// the test if DATABASE_URL is not set, ensures the dspu_meta schema exists,
// and resets it to a clean leader_epoch=0 state before returning.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, url, postgres.PoolOptions{MaxConns: 5, MinConns: 1})
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.EnsureSchema(ctx, pool, testSchemaLockID, 10*time.Second, 100*time.Millisecond); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	resetMeta(t, pool)

	return pool
}

// resetMeta clears dspu_meta and reseeds leader_epoch at 0, giving each test
// a deterministic starting point regardless of what earlier tests left
// behind.
func resetMeta(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	if _, err := pool.Exec(ctx, "TRUNCATE dspu_meta"); err != nil {
		t.Fatalf("truncate dspu_meta: %v", err)
	}
	if _, err := pool.Exec(ctx, "INSERT INTO dspu_meta (k, v) VALUES ('leader_epoch', '0')"); err != nil {
		t.Fatalf("seed leader_epoch: %v", err)
	}
}
