package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WarmingConfig configures the periodic warming service.
type WarmingConfig struct {
	// Pattern selects keys below the prefix, e.g. "posts*"
	Pattern string
	// CheckInterval is the time between passes
	CheckInterval time.Duration
	// ExpiryThreshold selects keys whose remaining TTL is below it
	ExpiryThreshold time.Duration
}

// DefaultWarmingConfig returns the default warming service configuration.
func DefaultWarmingConfig() WarmingConfig {
	return WarmingConfig{
		Pattern:         "*",
		CheckInterval:   5 * time.Minute,
		ExpiryThreshold: 10 * time.Minute,
	}
}

// WarmingService periodically re-warms entries that are about to expire.
type WarmingService struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartWarmingService starts a background loop calling RefreshExpiring every
// CheckInterval until Stop is called or ctx is done.
func (m *Manager) StartWarmingService(ctx context.Context, cfg WarmingConfig) *WarmingService {
	defaults := DefaultWarmingConfig()
	if cfg.Pattern == "" {
		cfg.Pattern = defaults.Pattern
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaults.CheckInterval
	}
	if cfg.ExpiryThreshold <= 0 {
		cfg.ExpiryThreshold = defaults.ExpiryThreshold
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &WarmingService{cancel: cancel, done: make(chan struct{})}

	m.logger.Info().
		Str("pattern", cfg.Pattern).
		Dur("interval", cfg.CheckInterval).
		Dur("expiry_threshold", cfg.ExpiryThreshold).
		Msg("Starting cache warming service")

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(cfg.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info().Msg("Cache warming service stopped")
				return
			case <-ticker.C:
				if _, err := m.RefreshExpiring(ctx, cfg.Pattern, cfg.ExpiryThreshold); err != nil && ctx.Err() == nil {
					m.logger.Error().Err(err).Msg("Cache warming pass failed")
				}
			}
		}
	}()

	return s
}

// Stop halts the service and waits for a running pass to finish.
func (s *WarmingService) Stop() {
	s.cancel()
	<-s.done
}

// RefreshExpiring re-warms keys matching pattern whose remaining TTL is below
// threshold. Keys without expiry are left alone.
func (m *Manager) RefreshExpiring(ctx context.Context, pattern string, threshold time.Duration) (*WarmupResult, error) {
	keys, err := m.scanKeys(ctx, m.config.Prefix+pattern)
	if err != nil {
		return nil, err
	}

	ttls, err := m.ttls(ctx, keys)
	if err != nil {
		return nil, err
	}

	var expiring []string
	for i, key := range keys {
		if ttls[i] >= 0 && ttls[i] < threshold {
			expiring = append(expiring, key)
		}
	}
	if len(expiring) == 0 {
		return newWarmupResult(), nil
	}

	m.logger.Info().Int("keys", len(expiring)).Msg("Refreshing keys close to expiry")
	return m.rewarmKeys(ctx, expiring), nil
}

// ttls returns the remaining TTL of each key in one pipeline. Absent keys
// report -2 and keys without expiry -1.
func (m *Manager) ttls(ctx context.Context, keys []string) ([]time.Duration, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.DurationCmd, len(keys))
	_, err := m.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.TTL(ctx, key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		CacheErrors.WithLabelValues("ttl").Inc()
		return nil, fmt.Errorf("redis ttl: %w", err)
	}

	out := make([]time.Duration, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}
