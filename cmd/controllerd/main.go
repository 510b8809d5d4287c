// controllerd is the leader-election and fencing controller. It holds a
// Postgres advisory lock against its peers, publishes its role over HTTP,
// and gates the mutating surface to whichever replica currently holds it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dspu-systems/controllerd/internal/api"
	"github.com/dspu-systems/controllerd/internal/config"
	"github.com/dspu-systems/controllerd/internal/election"
	"github.com/dspu-systems/controllerd/internal/postgres"
)

func main() {
	// Built-in healthcheck for scratch containers (no wget/curl available).
	// Usage: /controllerd healthcheck
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		runHealthcheckProbe()
		return
	}

	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(api.NewContextHandler(baseHandler)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool, config.SchemaLockID(), cfg.SchemaRetry, cfg.SchemaInterval); err != nil {
		slog.Error("schema initialization failed", "error", err)
		os.Exit(1)
	}
	slog.Info("schema ready")

	meta := postgres.NewMetaStore(pool, cfg.LeaderLockKey)
	elector := election.New(cfg.NodeID, cfg.LeaderPoll, meta, meta)

	srv := &api.Server{
		Roles:     elector,
		NodeID:    cfg.NodeID,
		LeaderURL: cfg.LeaderURL,
		DBHealth:  postgres.NewHealthChecker(pool),
	}
	if len(cfg.CORSOrigins) > 0 {
		srv.CORSOrigins = cfg.CORSOrigins
	}
	if cfg.RateLimitRPS > 0 {
		srv.RateLimit = &api.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			CleanupInterval:   5 * time.Minute,
		}
	}

	router := api.NewRouter(srv)

	addr := "127.0.0.1:8080"
	if cfg.Port != "" {
		if _, err := net.LookupPort("tcp", cfg.Port); err != nil {
			slog.Error("invalid PORT", "port", cfg.Port, "error", err)
			os.Exit(1)
		}
		addr = ":" + cfg.Port
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		elector.Start(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("starting controllerd", "addr", addr, "node_id", cfg.NodeID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("controllerd exited with error", "error", err)
		elector.Stop()
		if srv.RateLimiterStop != nil {
			srv.RateLimiterStop()
		}
		os.Exit(1)
	}

	elector.Stop()
	if srv.RateLimiterStop != nil {
		srv.RateLimiterStop()
	}
	slog.Info("controllerd shutdown complete")
}

func runHealthcheckProbe() {
	resp, err := http.Get("http://localhost:8080/healthz")
	if err != nil {
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
