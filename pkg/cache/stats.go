package cache

import (
	"context"
	"strings"
	"time"
)

const sampleKeyCount = 5

// HitRate summarizes Get outcomes since the manager was created.
type HitRate struct {
	Total  int64   `json:"total"`
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Rate   float64 `json:"rate"`
}

// MemoryStats is the memory section of Redis INFO.
type MemoryStats struct {
	Used          string `json:"used"`
	Peak          string `json:"peak"`
	Fragmentation string `json:"fragmentation"`
}

// KeyTTL pairs a key with its remaining TTL in seconds.
type KeyTTL struct {
	Key string  `json:"key"`
	TTL float64 `json:"ttl"`
}

// CacheStats is an operator view of the cache.
type CacheStats struct {
	TotalKeys    int            `json:"totalKeys"`
	SampleKeys   []string       `json:"sampleKeys"`
	Memory       MemoryStats    `json:"memory"`
	HitRate      HitRate        `json:"hitRate"`
	KeysByPrefix map[string]int `json:"keysByPrefix"`
	// AvgTTL is the mean remaining TTL in seconds over keys that expire
	AvgTTL float64 `json:"avgTTL"`
	// OldestKey is the key closest to expiry
	OldestKey *KeyTTL `json:"oldestKey"`
}

// HitRate returns the hit and miss counters.
func (m *Manager) HitRate() HitRate {
	hits, misses := m.hits.Load(), m.misses.Load()
	rate := HitRate{Total: hits + misses, Hits: hits, Misses: misses}
	if rate.Total > 0 {
		rate.Rate = float64(hits) / float64(rate.Total)
	}
	return rate
}

// GetDetailedStats scans every key under the prefix and reports counts,
// TTLs, memory usage and the hit rate. Memory figures are best effort.
func (m *Manager) GetDetailedStats(ctx context.Context) (*CacheStats, error) {
	keys, err := m.scanKeys(ctx, m.config.Prefix+"*")
	if err != nil {
		return nil, err
	}
	ttls, err := m.ttls(ctx, keys)
	if err != nil {
		return nil, err
	}

	stats := &CacheStats{
		TotalKeys:    len(keys),
		SampleKeys:   keys[:min(sampleKeyCount, len(keys))],
		Memory:       m.memoryStats(ctx),
		HitRate:      m.HitRate(),
		KeysByPrefix: make(map[string]int),
	}

	var (
		sum      time.Duration
		counted  int
		earliest time.Duration
	)
	for i, key := range keys {
		stats.KeysByPrefix[keyPrefix(key)]++

		ttl := ttls[i]
		if ttl < 0 {
			continue
		}
		sum += ttl
		counted++
		if stats.OldestKey == nil || ttl < earliest {
			earliest = ttl
			stats.OldestKey = &KeyTTL{Key: key, TTL: ttl.Seconds()}
		}
	}
	if counted > 0 {
		stats.AvgTTL = (sum / time.Duration(counted)).Seconds()
	}

	return stats, nil
}

func (m *Manager) memoryStats(ctx context.Context) MemoryStats {
	stats := MemoryStats{Used: "0B", Peak: "0B", Fragmentation: "0"}

	raw, err := m.redis.Info(ctx, "memory").Result()
	if err != nil {
		CacheErrors.WithLabelValues("info").Inc()
		m.logger.Warn().Err(err).Msg("Redis memory info unavailable")
		return stats
	}

	info := parseInfo(raw)
	if v, ok := info["used_memory_human"]; ok {
		stats.Used = v
	}
	if v, ok := info["used_memory_peak_human"]; ok {
		stats.Peak = v
	}
	if v, ok := info["mem_fragmentation_ratio"]; ok {
		stats.Fragmentation = v
	}
	return stats
}

// parseInfo reads the field:value lines of an INFO reply.
func parseInfo(raw string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			fields[name] = value
		}
	}
	return fields
}

// keyPrefix returns the leading "name:" segment of key, or "other:".
func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i+1]
	}
	return "other:"
}
