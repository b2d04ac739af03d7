package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// NoExpiration stores an entry without a TTL.
const NoExpiration time.Duration = -1

// Fetcher retrieves documents from the Payload API.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params query.Params) (payload.Document, error)
}

// Config holds cache manager configuration.
type Config struct {
	// Prefix is prepended to every key
	Prefix string
	// DefaultTTL applies when Set is called with ttl 0. Age is measured against it.
	DefaultTTL time.Duration
	// StaleThreshold is the age after which a hit is revalidated
	StaleThreshold time.Duration
	// WarmupConcurrency is the default warming chunk size
	WarmupConcurrency int
	// RefreshTimeout bounds each detached refresh
	RefreshTimeout time.Duration
	// Detacher runs background refreshes; defaults to a GoroutineDetacher
	Detacher Detacher
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:            "payload:",
		DefaultTTL:        time.Hour,
		StaleThreshold:    5 * time.Minute,
		WarmupConcurrency: 5,
		RefreshTimeout:    30 * time.Second,
	}
}

// Manager is a read-through cache in front of the Payload API.
type Manager struct {
	redis    redis.UniversalClient
	upstream Fetcher
	config   Config
	detacher Detacher
	logger   zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewManager creates a cache manager. Zero config fields take their defaults.
func NewManager(redisClient redis.UniversalClient, upstream Fetcher, cfg Config, logger zerolog.Logger) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if upstream == nil {
		panic("upstream fetcher cannot be nil")
	}

	defaults := DefaultConfig()
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaults.DefaultTTL
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = defaults.StaleThreshold
	}
	if cfg.WarmupConcurrency <= 0 {
		cfg.WarmupConcurrency = defaults.WarmupConcurrency
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaults.RefreshTimeout
	}
	if cfg.Detacher == nil {
		cfg.Detacher = NewGoroutineDetacher(cfg.RefreshTimeout, logger)
	}

	return &Manager{
		redis:    redisClient,
		upstream: upstream,
		config:   cfg,
		detacher: cfg.Detacher,
		logger:   logger,
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// CreateKey derives the key for endpoint and params under the configured prefix.
func (m *Manager) CreateKey(endpoint string, params query.Params) string {
	return MakeKey(m.config.Prefix, endpoint, params)
}

// Exists reports whether key is present. It does not touch the hit counters.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.redis.Exists(ctx, key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Get returns the entry stored under key. Store failures and undecodable
// entries are logged and reported as a miss.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, bool) {
	entry, err := m.load(ctx, key)
	switch {
	case err == nil:
		m.hits.Add(1)
		CacheHits.WithLabelValues("redis").Inc()
		m.logger.Debug().Str("key", key).Msg("Cache hit")
		return entry, true

	case errors.Is(err, ErrCacheMiss):
		m.misses.Add(1)
		CacheMisses.Inc()
		m.logger.Debug().Str("key", key).Msg("Cache miss")
		return nil, false

	case errors.Is(err, ErrInvalidEntry):
		m.misses.Add(1)
		CacheMisses.Inc()
		CacheErrors.WithLabelValues("decode").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return nil, false

	default:
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to upstream")
		return nil, false
	}
}

func (m *Manager) load(ctx context.Context, key string) (*Entry, error) {
	data, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return entry, nil
}

// Set stores entry under key. A ttl of 0 applies DefaultTTL and NoExpiration
// stores the entry without expiry. Any other negative ttl is logged and
// replaced by DefaultTTL. SET and EXPIRE run in one MULTI/EXEC.
// Failures are logged and swallowed.
func (m *Manager) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	if entry == nil {
		m.logger.Warn().Str("key", key).Msg("Refusing to cache nil entry")
		return
	}
	switch {
	case ttl == NoExpiration:
	case ttl < 0:
		m.logger.Warn().Str("key", key).Dur("ttl", ttl).Msg("Negative TTL, using default")
		ttl = m.config.DefaultTTL
	case ttl == 0:
		ttl = m.config.DefaultTTL
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		if ttl != NoExpiration {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		return
	}

	CacheEntryBytes.Observe(float64(len(data)))
	m.logger.Debug().Str("key", key).Dur("ttl", ttl).Int("bytes", len(data)).Msg("Cached document")
}

// Delete removes key.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.redis.Del(ctx, key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Age returns how long ago key was written, computed as DefaultTTL minus the
// remaining TTL. It is only exact for entries written with DefaultTTL; an
// entry written with a shorter TTL looks older than it is. The second result
// is false when the key is absent, has no expiry, or the store failed.
func (m *Manager) Age(ctx context.Context, key string) (time.Duration, bool) {
	remaining, err := m.redis.TTL(ctx, key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("ttl").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache TTL lookup failed")
		return 0, false
	}
	// -1: no expiry, -2: absent
	if remaining < 0 {
		return 0, false
	}
	return m.config.DefaultTTL - remaining, true
}

// IsStale reports whether key is older than threshold. An entry of unknown
// age is stale. A threshold <= 0 uses the configured StaleThreshold, so a
// zero threshold cannot mean "stale at any age"; use IsOlderThan for that.
func (m *Manager) IsStale(ctx context.Context, key string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = m.config.StaleThreshold
	}
	return m.IsOlderThan(ctx, key, threshold)
}

// IsOlderThan is IsStale without the threshold default: a zero threshold
// marks every entry with a measurable age as stale.
func (m *Manager) IsOlderThan(ctx context.Context, key string, threshold time.Duration) bool {
	age, ok := m.Age(ctx, key)
	if !ok {
		return true
	}
	return age > threshold
}

// Shutdown waits for background refreshes to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.detacher.Wait(ctx)
}
