package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration. Layering order, lowest to
// highest priority:
//  1. Default values (in code)
//  2. Base configuration file (base.yaml)
//  3. Environment-specific file (e.g. production.yaml)
//  4. Environment variables
func Load(basePath string) (*Config, error) {
	if basePath == "" {
		basePath = "config"
	}

	cfg := Default()
	cfg.LoadedFrom = append(cfg.LoadedFrom, "defaults")

	if err := loadFile(filepath.Join(basePath, "base.yaml"), cfg); err != nil {
		return nil, err
	}

	env := Environment(getEnv("APP_ENV", string(cfg.Environment)))
	cfg.Environment = env
	if err := loadFile(filepath.Join(basePath, string(env)+".yaml"), cfg); err != nil {
		return nil, err
	}

	applyEnvironment(cfg)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays one YAML file onto cfg. A missing file is not an error.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	return nil
}

// applyEnvironment overlays environment variables, the highest-priority
// source.
func applyEnvironment(cfg *Config) {
	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Supabase.URL = getEnv("SUPABASE_URL", cfg.Supabase.URL)
	cfg.Supabase.Key = getEnv("SUPABASE_SERVICE_ROLE_KEY", cfg.Supabase.Key)

	cfg.Pool.MinConnections = getEnvInt("POOL_MIN_CONNECTIONS", cfg.Pool.MinConnections)
	cfg.Pool.MaxConnections = getEnvInt("POOL_MAX_CONNECTIONS", cfg.Pool.MaxConnections)
	cfg.Pool.AcquireTimeout = getEnvDuration("POOL_ACQUIRE_TIMEOUT", cfg.Pool.AcquireTimeout)

	cfg.Batcher.BatchSize = getEnvInt("BATCH_SIZE", cfg.Batcher.BatchSize)
	cfg.Batcher.BatchTimeout = getEnvDuration("BATCH_TIMEOUT", cfg.Batcher.BatchTimeout)

	cfg.Cache.Capacity = getEnvInt("CACHE_CAPACITY", cfg.Cache.Capacity)

	cfg.RateLimits.General.MaxRequests = getEnvInt("RATE_LIMIT_GENERAL_MAX", cfg.RateLimits.General.MaxRequests)
	cfg.RateLimits.General.Window = getEnvDuration("RATE_LIMIT_GENERAL_WINDOW", cfg.RateLimits.General.Window)
	cfg.RateLimits.Strict.MaxRequests = getEnvInt("RATE_LIMIT_STRICT_MAX", cfg.RateLimits.Strict.MaxRequests)
	cfg.RateLimits.Strict.Window = getEnvDuration("RATE_LIMIT_STRICT_WINDOW", cfg.RateLimits.Strict.Window)
	cfg.RateLimits.Form.MaxRequests = getEnvInt("RATE_LIMIT_FORM_MAX", cfg.RateLimits.Form.MaxRequests)
	cfg.RateLimits.Form.Window = getEnvDuration("RATE_LIMIT_FORM_WINDOW", cfg.RateLimits.Form.Window)
	cfg.RateLimits.Auth.MaxRequests = getEnvInt("RATE_LIMIT_AUTH_MAX", cfg.RateLimits.Auth.MaxRequests)
	cfg.RateLimits.Auth.Window = getEnvDuration("RATE_LIMIT_AUTH_WINDOW", cfg.RateLimits.Auth.Window)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
