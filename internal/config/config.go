// Package config provides layered configuration loading for the job board
// backend: defaults overlaid by an optional YAML file, overlaid by
// environment variables. Every pool, batcher, cache, and rate-limit number
// lives here so nothing is hardcoded at call sites.
package config

import (
	"fmt"
	"time"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the root configuration.
type Config struct {
	Environment Environment     `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Supabase    SupabaseConfig  `yaml:"supabase"`
	Pool        PoolConfig      `yaml:"pool"`
	Batcher     BatcherConfig   `yaml:"batcher"`
	Cache       CacheConfig     `yaml:"cache"`
	RateLimits  RateLimitConfig `yaml:"rateLimits"`

	// LoadedFrom records which sources contributed, for startup logging.
	LoadedFrom []string `yaml:"-"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// SupabaseConfig locates the hosted backend.
type SupabaseConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// PoolConfig configures the connection pool.
type PoolConfig struct {
	MinConnections int           `yaml:"minConnections"`
	MaxConnections int           `yaml:"maxConnections"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

// BatcherConfig configures query batching.
type BatcherConfig struct {
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	YieldDelay   time.Duration `yaml:"yieldDelay"`
}

// CacheConfig configures the LRU query cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
	// TTL tiers by data volatility. Counts are the most volatile, public
	// read-mostly listings the least.
	CountTTL  time.Duration `yaml:"countTTL"`
	ListTTL   time.Duration `yaml:"listTTL"`
	PublicTTL time.Duration `yaml:"publicTTL"`
	// DuplicateTTL bounds the duplicate-submission memo.
	DuplicateTTL time.Duration `yaml:"duplicateTTL"`
}

// RateLimitConfig carries the per-class policies.
type RateLimitConfig struct {
	Capacity int          `yaml:"capacity"`
	General  PolicyConfig `yaml:"general"`
	Strict   PolicyConfig `yaml:"strict"`
	Form     PolicyConfig `yaml:"form"`
	Auth     PolicyConfig `yaml:"auth"`
}

// PolicyConfig is one rate-limit policy's tunables.
type PolicyConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"maxRequests"`
}

// Default returns the built-in configuration, the lowest-priority layer.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Pool: PoolConfig{
			MinConnections: 2,
			MaxConnections: 10,
			AcquireTimeout: 10 * time.Second,
		},
		Batcher: BatcherConfig{
			BatchSize:    10,
			BatchTimeout: 100 * time.Millisecond,
			YieldDelay:   10 * time.Millisecond,
		},
		Cache: CacheConfig{
			Capacity:     500,
			CountTTL:     30 * time.Second,
			ListTTL:      2 * time.Minute,
			PublicTTL:    5 * time.Minute,
			DuplicateTTL: 30 * time.Second,
		},
		RateLimits: RateLimitConfig{
			Capacity: 10000,
			General:  PolicyConfig{Window: time.Minute, MaxRequests: 100},
			Strict:   PolicyConfig{Window: time.Minute, MaxRequests: 20},
			Form:     PolicyConfig{Window: 10 * time.Minute, MaxRequests: 5},
			Auth:     PolicyConfig{Window: 15 * time.Minute, MaxRequests: 10},
		},
	}
}

// Validate checks cross-field consistency before the config is used.
func (c *Config) Validate() error {
	if c.Pool.MaxConnections <= 0 {
		return fmt.Errorf("pool.maxConnections must be positive, got %d", c.Pool.MaxConnections)
	}
	if c.Pool.MinConnections < 0 || c.Pool.MinConnections > c.Pool.MaxConnections {
		return fmt.Errorf("pool.minConnections %d out of range [0, %d]", c.Pool.MinConnections, c.Pool.MaxConnections)
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquireTimeout must be positive")
	}
	if c.Batcher.BatchSize <= 0 {
		return fmt.Errorf("batcher.batchSize must be positive, got %d", c.Batcher.BatchSize)
	}
	if c.Batcher.BatchTimeout <= 0 {
		return fmt.Errorf("batcher.batchTimeout must be positive")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	for name, p := range map[string]PolicyConfig{
		"general": c.RateLimits.General,
		"strict":  c.RateLimits.Strict,
		"form":    c.RateLimits.Form,
		"auth":    c.RateLimits.Auth,
	} {
		if p.Window <= 0 || p.MaxRequests <= 0 {
			return fmt.Errorf("rateLimits.%s requires positive window and maxRequests", name)
		}
	}
	if c.Environment == Production && c.Supabase.URL == "" {
		return fmt.Errorf("supabase.url is required in production")
	}
	return nil
}
