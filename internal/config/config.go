// Package config loads and validates controllerd's environment-driven
// configuration in one place. Every variable the process reads is listed
// here, except the pool-tuning variables DB_MAX_CONN_LIFETIME,
// DB_MAX_CONN_IDLE_TIME and DB_HEALTH_CHECK_PERIOD, which internal/postgres
// reads itself.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-sourced setting controllerd needs at
// startup. It is immutable once loaded.
type Config struct {
	DatabaseURL string // DATABASE_URL. Required.
	NodeID      string // NODE_ID. Default "node-unknown".

	LeaderLockKey  int64         // LEADER_LOCK_KEY. Default 915707001.
	LeaderPoll     time.Duration // LEADER_POLL_S. Default 500ms.
	SchemaRetry    time.Duration // PG_SCHEMA_RETRY_S. Default 15s.
	SchemaInterval time.Duration // PG_SCHEMA_RETRY_INTERVAL_S. Default 500ms.

	LeaderURL string // LEADER_URL. Optional, surfaced verbatim in NOT_LEADER bodies.
	Port      string // PORT. HTTP listen port.

	CORSOrigins     []string      // CORS_ORIGINS. Default ["http://localhost:3000"].
	RateLimitRPS    float64       // RATE_LIMIT_RPS. Default 50. 0 disables rate limiting.
	RateLimitBurst  int           // RATE_LIMIT_BURST. Default 100.
	DBMaxConns      int           // DB_MAX_CONNS. Default 25.
	DBMinConns      int           // DB_MIN_CONNS. Default 5.
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT_S. Default 5s.
}

// schemaLockID is the fixed advisory lock key guarding schema init, distinct
// from any configurable LEADER_LOCK_KEY value.
const schemaLockID int64 = 915707002

const (
	defaultLeaderLockKey   int64 = 915707001
	defaultLeaderPoll            = 500 * time.Millisecond
	defaultSchemaRetry           = 15 * time.Second
	defaultSchemaInterval        = 500 * time.Millisecond
	defaultNodeID                = "node-unknown"
	defaultCORSOrigin            = "http://localhost:3000"
	defaultRateLimitRPS          = 50.0
	defaultRateLimitBurst        = 100
	defaultDBMaxConns            = 25
	defaultDBMinConns            = 5
	defaultShutdownTimeout       = 5 * time.Second
)

// SchemaLockID returns the fixed advisory lock key used to serialise schema
// initialisation across peers.
func SchemaLockID() int64 { return schemaLockID }

// Load reads and validates configuration from the environment. It collects
// every validation error it finds rather than stopping at the first one, so
// an operator sees the whole picture from a single failed startup.
func Load() (*Config, error) {
	var errs []string

	cfg := &Config{
		NodeID:          envOr("NODE_ID", defaultNodeID),
		LeaderURL:       os.Getenv("LEADER_URL"),
		Port:            os.Getenv("PORT"),
		LeaderLockKey:   defaultLeaderLockKey,
		LeaderPoll:      defaultLeaderPoll,
		SchemaRetry:     defaultSchemaRetry,
		SchemaInterval:  defaultSchemaInterval,
		RateLimitRPS:    defaultRateLimitRPS,
		RateLimitBurst:  defaultRateLimitBurst,
		DBMaxConns:      defaultDBMaxConns,
		DBMinConns:      defaultDBMinConns,
		ShutdownTimeout: defaultShutdownTimeout,
		CORSOrigins:     []string{defaultCORSOrigin},
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	} else if _, err := url.Parse(cfg.DatabaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("DATABASE_URL: invalid URL (%v)", err))
	}

	if v := os.Getenv("LEADER_LOCK_KEY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LEADER_LOCK_KEY=%q: must be an integer (%v)", v, err))
		} else {
			cfg.LeaderLockKey = n
		}
	}

	if d, err := envDuration("LEADER_POLL_S", defaultLeaderPoll); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.LeaderPoll = d
	}

	if d, err := envDuration("PG_SCHEMA_RETRY_S", defaultSchemaRetry); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.SchemaRetry = d
	}

	if d, err := envDuration("PG_SCHEMA_RETRY_INTERVAL_S", defaultSchemaInterval); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.SchemaInterval = d
	}

	if d, err := envDuration("SHUTDOWN_TIMEOUT_S", defaultShutdownTimeout); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.ShutdownTimeout = d
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("RATE_LIMIT_RPS=%q: must be a non-negative number", v))
		} else {
			cfg.RateLimitRPS = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("RATE_LIMIT_BURST=%q: must be a non-negative integer", v))
		} else {
			cfg.RateLimitBurst = n
		}
	}

	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS=%q: must be a positive integer", v))
		} else {
			cfg.DBMaxConns = n
		}
	}

	if v := os.Getenv("DB_MIN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("DB_MIN_CONNS=%q: must be a non-negative integer", v))
		} else {
			cfg.DBMinConns = n
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads a float-seconds env var (per spec §6, e.g. LEADER_POLL_S)
// and converts it to a time.Duration.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("%s=%q: must be a positive number of seconds", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
