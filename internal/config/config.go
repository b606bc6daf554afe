// ABOUTME: Environment-driven configuration for the driftsync server
// ABOUTME: Reads PORT, DATA_DIR, REDIS_ADDR, JWT_SECRET and friends with defaults

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds every runtime knob the server reads. All values come from
// environment variables; every one has a working default so a bare
// `driftsyncd` starts on a laptop.
type Config struct {
	// Port is the HTTP listen port (PORT).
	Port string
	// DataDir holds the system database and one store file per tenant (DATA_DIR).
	DataDir string
	// RedisAddr is the coordination-service endpoint. Accepts host:port or a
	// redis:// / rediss:// URL (REDIS_ADDR).
	RedisAddr string
	// JWTSecret signs and verifies bearer tokens (JWT_SECRET).
	JWTSecret string
	// StaticDir optionally serves a built SPA (STATIC_DIR). Empty disables it.
	StaticDir string
	// TenantCacheSize caps the number of simultaneously open tenant stores
	// (TENANT_CACHE_SIZE).
	TenantCacheSize int
	// LogLevel controls slog verbosity (LOG_LEVEL: debug|info|warn|error).
	LogLevel slog.Level
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:      envOr("PORT", "9090"),
		DataDir:   envOr("DATA_DIR", "./data"),
		RedisAddr: envOr("REDIS_ADDR", "localhost:6379"),
		JWTSecret: envOr("JWT_SECRET", "driftsync-dev-secret-change-in-prod"),
		StaticDir: os.Getenv("STATIC_DIR"),
	}

	size := envOr("TENANT_CACHE_SIZE", "64")
	n, err := strconv.Atoi(size)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("parsing TENANT_CACHE_SIZE %q: must be a positive integer", size)
	}
	cfg.TenantCacheSize = n

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT %q is not a number", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must not be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("parsing LOG_LEVEL %q: want debug, info, warn or error", s)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
