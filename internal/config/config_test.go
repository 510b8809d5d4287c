package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "NODE_ID", "LEADER_LOCK_KEY", "LEADER_POLL_S",
		"PG_SCHEMA_RETRY_S", "PG_SCHEMA_RETRY_INTERVAL_S", "LEADER_URL", "PORT",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "SHUTDOWN_TIMEOUT_S",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingDatabaseURL_Fails(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/dspu")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "node-unknown", cfg.NodeID)
	assert.Equal(t, int64(915707001), cfg.LeaderLockKey)
	assert.Equal(t, 500*time.Millisecond, cfg.LeaderPoll)
	assert.Equal(t, 15*time.Second, cfg.SchemaRetry)
	assert.Equal(t, 500*time.Millisecond, cfg.SchemaInterval)
	assert.Empty(t, cfg.LeaderURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/dspu")
	t.Setenv("NODE_ID", "node-a")
	t.Setenv("LEADER_LOCK_KEY", "42")
	t.Setenv("LEADER_POLL_S", "1.5")
	t.Setenv("LEADER_URL", "http://node-a:8080")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, int64(42), cfg.LeaderLockKey)
	assert.Equal(t, 1500*time.Millisecond, cfg.LeaderPoll)
	assert.Equal(t, "http://node-a:8080", cfg.LeaderURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 0.0, cfg.RateLimitRPS)
}

func TestLoad_InvalidLeaderLockKey_Fails(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/dspu")
	t.Setenv("LEADER_LOCK_KEY", "not-an-int")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEADER_LOCK_KEY")
}

func TestLoad_InvalidDuration_Fails(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/dspu")
	t.Setenv("LEADER_POLL_S", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEADER_POLL_S")
}

func TestLoad_CollectsMultipleErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEADER_POLL_S", "bad")
	t.Setenv("PG_SCHEMA_RETRY_S", "bad")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "LEADER_POLL_S")
	assert.Contains(t, err.Error(), "PG_SCHEMA_RETRY_S")
}

func TestSchemaLockID_DistinctFromDefaultLeaderLockKey(t *testing.T) {
	assert.NotEqual(t, defaultLeaderLockKey, SchemaLockID())
}
