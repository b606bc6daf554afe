// ABOUTME: Entry point for the driftsync delta-sync server
// ABOUTME: Wires config, stores, Redis, the hub and graceful shutdown

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tidemark/driftsync/internal/api"
	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/bus"
	"github.com/tidemark/driftsync/internal/config"
	"github.com/tidemark/driftsync/internal/engine"
	"github.com/tidemark/driftsync/internal/oracle"
	"github.com/tidemark/driftsync/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// .env is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	sdb, err := auth.OpenSystemDB(filepath.Join(cfg.DataDir, "system.db"), logger)
	if err != nil {
		return err
	}
	defer sdb.Close()

	rdb, err := newRedisClient(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()
	if err := waitForRedis(ctx, rdb, logger); err != nil {
		return err
	}

	stores := store.NewManager(cfg.DataDir, cfg.TenantCacheSize, logger)
	defer stores.CloseAll()

	hub := bus.NewHub(rdb, logger)
	defer hub.Close()
	go hub.Run(ctx)

	eng := engine.New(stores, oracle.NewRedisOracle(rdb), hub, logger)
	tokens := auth.NewTokens([]byte(cfg.JWTSecret))
	server := api.NewServer(eng, sdb, tokens, hub, cfg.StaticDir, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.Handler(),
		ReadTimeout: 5 * time.Second,
		// WriteTimeout stays zero: event streams live for hours.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("driftsync listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown deadline exceeded", "error", err)
	}
	logger.Info("goodbye")
	return nil
}

// newRedisClient accepts either host:port or a full redis:// URL.
func newRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_ADDR URL: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

// waitForRedis pings with bounded retries so the server comes up cleanly
// when Redis is still starting alongside it.
func waitForRedis(ctx context.Context, rdb *redis.Client, logger *slog.Logger) error {
	const maxAttempts = 5
	for attempt := 1; ; attempt++ {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			logger.Info("connected to redis")
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("connecting to redis after %d attempts: %w", maxAttempts, err)
		}
		logger.Warn("redis not ready, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
