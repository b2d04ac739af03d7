// Package config loads the cache proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/payload-cache/pkg/cache"
	"github.com/Sternrassler/payload-cache/pkg/logging"
	"github.com/Sternrassler/payload-cache/pkg/payload"
)

type Redis struct {
	URL string `env:"REDIS_URL" env-default:"redis://localhost:6379/0" env-description:"Redis connection URL"`
}

type Upstream struct {
	Endpoint   string        `env:"PAYLOAD_API_ENDPOINT" env-required:"true" env-description:"Payload REST API base URL"`
	UserAgent  string        `env:"PAYLOAD_USER_AGENT" env-default:"payload-cache/0.1.0"`
	Timeout    time.Duration `env:"UPSTREAM_TIMEOUT" env-default:"5s" env-description:"Timeout per upstream attempt"`
	MaxRetries int           `env:"UPSTREAM_MAX_RETRIES" env-default:"3" env-description:"Attempts per upstream request"`
}

type Cache struct {
	Prefix            string        `env:"CACHE_PREFIX" env-default:"payload:"`
	TTL               time.Duration `env:"CACHE_TTL" env-default:"1h"`
	StaleThreshold    time.Duration `env:"CACHE_STALE_THRESHOLD" env-default:"5m"`
	WarmupConcurrency int           `env:"CACHE_WARMUP_CONCURRENCY" env-default:"5"`
	RefreshTimeout    time.Duration `env:"CACHE_REFRESH_TIMEOUT" env-default:"30s"`
}

type Warming struct {
	Enabled         bool          `env:"WARMING_ENABLED" env-default:"false"`
	Pattern         string        `env:"WARMING_PATTERN" env-default:"*"`
	Interval        time.Duration `env:"WARMING_INTERVAL" env-default:"5m"`
	ExpiryThreshold time.Duration `env:"WARMING_EXPIRY_THRESHOLD" env-default:"10m"`
}

type Server struct {
	Port int `env:"PORT" env-default:"8080"`
}

type Log struct {
	Level   string `env:"LOG_LEVEL" env-default:"info"`
	Pretty  bool   `env:"LOG_PRETTY" env-default:"false"`
	Service string `env:"LOG_SERVICE" env-default:"payload-cache"`
}

type Config struct {
	Redis    Redis
	Upstream Upstream
	Cache    Cache
	Warming  Warming
	Server   Server
	Log      Log
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values cleanenv cannot.
func (c Config) Validate() error {
	var errs []error

	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		errs = append(errs, fmt.Errorf("REDIS_URL: %w", err))
	}
	if u, err := url.Parse(c.Upstream.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("PAYLOAD_API_ENDPOINT: must be an absolute http(s) URL, got %q", c.Upstream.Endpoint))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT: must be positive"))
	}
	if c.Upstream.MaxRetries < 1 {
		errs = append(errs, errors.New("UPSTREAM_MAX_RETRIES: must be at least 1"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL: must be positive"))
	}
	if c.Cache.StaleThreshold <= 0 || c.Cache.StaleThreshold >= c.Cache.TTL {
		errs = append(errs, errors.New("CACHE_STALE_THRESHOLD: must be positive and below CACHE_TTL"))
	}
	if c.Cache.WarmupConcurrency < 1 {
		errs = append(errs, errors.New("CACHE_WARMUP_CONCURRENCY: must be at least 1"))
	}
	if c.Warming.Enabled && (c.Warming.Interval <= 0 || c.Warming.ExpiryThreshold <= 0) {
		errs = append(errs, errors.New("WARMING_INTERVAL and WARMING_EXPIRY_THRESHOLD: must be positive"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// RedisOptions parses REDIS_URL.
func (c Config) RedisOptions() (*redis.Options, error) {
	return redis.ParseURL(c.Redis.URL)
}

// PayloadConfig builds the upstream client configuration.
func (c Config) PayloadConfig() payload.Config {
	cfg := payload.DefaultConfig(c.Upstream.Endpoint)
	cfg.UserAgent = c.Upstream.UserAgent
	cfg.Timeout = c.Upstream.Timeout
	cfg.Retry.MaxAttempts = c.Upstream.MaxRetries
	return cfg
}

// CacheConfig builds the cache manager configuration.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		Prefix:            c.Cache.Prefix,
		DefaultTTL:        c.Cache.TTL,
		StaleThreshold:    c.Cache.StaleThreshold,
		WarmupConcurrency: c.Cache.WarmupConcurrency,
		RefreshTimeout:    c.Cache.RefreshTimeout,
	}
}

// WarmingConfig builds the warming service configuration.
func (c Config) WarmingConfig() cache.WarmingConfig {
	return cache.WarmingConfig{
		Pattern:         c.Warming.Pattern,
		CheckInterval:   c.Warming.Interval,
		ExpiryThreshold: c.Warming.ExpiryThreshold,
	}
}

// LoggingConfig builds the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	if c.Log.Service != "" {
		cfg.Service = c.Log.Service
	}
	return cfg
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
