package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/payload-cache/pkg/pagination"
	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 100

// Target names a document to warm.
type Target struct {
	Endpoint string       `json:"endpoint"`
	Params   query.Params `json:"queryParams,omitempty"`
	// Key overrides the derived key
	Key string `json:"key,omitempty"`
}

// WarmFailure records a key that could not be warmed.
type WarmFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// WarmupTiming reports warming durations. It encodes as milliseconds.
type WarmupTiming struct {
	Total   time.Duration
	Average time.Duration
}

func (t WarmupTiming) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total   float64 `json:"total"`
		Average float64 `json:"average"`
	}{
		Total:   float64(t.Total) / float64(time.Millisecond),
		Average: float64(t.Average) / float64(time.Millisecond),
	})
}

// WarmupResult summarizes a warming run.
type WarmupResult struct {
	Successful []string      `json:"successful"`
	Failed     []WarmFailure `json:"failed"`
	Timing     WarmupTiming  `json:"timing"`
}

func newWarmupResult() *WarmupResult {
	return &WarmupResult{Successful: []string{}, Failed: []WarmFailure{}}
}

func (r *WarmupResult) finish(start time.Time, attempted int) {
	r.Timing.Total = time.Since(start)
	if attempted > 0 {
		r.Timing.Average = r.Timing.Total / time.Duration(attempted)
	}
}

// WarmCache fetches every target upstream and stores it, reading nothing
// from the cache. Targets run in chunks of concurrency; a failing target is
// recorded and does not affect the others. A concurrency <= 0 uses
// WarmupConcurrency.
func (m *Manager) WarmCache(ctx context.Context, targets []Target, concurrency int) *WarmupResult {
	if concurrency <= 0 {
		concurrency = m.config.WarmupConcurrency
	}

	start := time.Now()
	result := newWarmupResult()
	var mu sync.Mutex

	for _, batch := range chunk(targets, concurrency) {
		var g errgroup.Group
		for _, target := range batch {
			g.Go(func() error {
				key := target.Key
				if key == "" {
					key = m.CreateKey(target.Endpoint, target.Params)
				}

				_, err := m.fill(ctx, key, target.Endpoint, target.Params, 0)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					WarmedKeys.WithLabelValues("failed").Inc()
					m.logger.Warn().Err(err).Str("key", key).Msg("Failed to warm key")
					result.Failed = append(result.Failed, WarmFailure{Key: key, Error: err.Error()})
					return nil
				}
				WarmedKeys.WithLabelValues("success").Inc()
				result.Successful = append(result.Successful, key)
				return nil
			})
		}
		_ = g.Wait()
	}

	result.finish(start, len(targets))
	m.logger.Info().
		Int("successful", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Timing.Total).
		Msg("Cache warming complete")
	return result
}

// RewarmByPattern re-fetches every cached key matching prefix + pattern.
// Keys whose entries cannot be read are reported as failures.
func (m *Manager) RewarmByPattern(ctx context.Context, pattern string) (*WarmupResult, error) {
	keys, err := m.scanKeys(ctx, m.config.Prefix+pattern)
	if err != nil {
		return nil, err
	}

	m.logger.Info().Str("pattern", pattern).Int("keys", len(keys)).Msg("Rewarming keys by pattern")
	return m.rewarmKeys(ctx, keys), nil
}

func (m *Manager) rewarmKeys(ctx context.Context, keys []string) *WarmupResult {
	targets, failures := m.targetsForKeys(ctx, keys)
	result := m.WarmCache(ctx, targets, 0)
	result.Failed = append(result.Failed, failures...)
	return result
}

// targetsForKeys recovers the endpoint and parameters each key was built from.
func (m *Manager) targetsForKeys(ctx context.Context, keys []string) ([]Target, []WarmFailure) {
	var (
		targets  []Target
		failures []WarmFailure
	)
	for _, key := range keys {
		entry, err := m.load(ctx, key)
		if err == nil && entry.Endpoint == "" {
			err = fmt.Errorf("%w: no endpoint recorded", ErrInvalidEntry)
		}
		var params query.Params
		if err == nil {
			params, err = entry.Params()
		}
		if err != nil {
			failures = append(failures, WarmFailure{Key: key, Error: err.Error()})
			continue
		}
		targets = append(targets, Target{Endpoint: entry.Endpoint, Params: params, Key: key})
	}
	return targets, failures
}

// WarmCollection walks every page of endpoint and caches each page under
// its own key.
func (m *Manager) WarmCollection(ctx context.Context, endpoint string, params query.Params) (*WarmupResult, error) {
	start := time.Now()
	fetcher := pagination.NewBatchFetcher(pageSource{m}, pagination.Config{
		MaxConcurrency: m.config.WarmupConcurrency,
		Timeout:        m.config.RefreshTimeout,
	})

	pages, err := fetcher.FetchAllPages(ctx, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("warm collection %s: %w", endpoint, err)
	}

	result := newWarmupResult()
	for _, page := range pages {
		key := m.CreateKey(endpoint, page.Params)
		if page.Error != nil {
			WarmedKeys.WithLabelValues("failed").Inc()
			result.Failed = append(result.Failed, WarmFailure{Key: key, Error: page.Error.Error()})
			continue
		}
		WarmedKeys.WithLabelValues("success").Inc()
		result.Successful = append(result.Successful, key)
	}
	result.finish(start, len(pages))

	m.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", len(pages)).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Timing.Total).
		Msg("Collection warming complete")
	return result, nil
}

// pageSource fetches collection pages through the cache, storing each one.
type pageSource struct {
	m *Manager
}

func (s pageSource) FetchPage(ctx context.Context, endpoint string, params query.Params, page int) (payload.Document, error) {
	pageParams := pagination.PageParams(params, page)
	return s.m.fill(ctx, s.m.CreateKey(endpoint, pageParams), endpoint, pageParams, 0)
}

// scanKeys returns every key matching match. SCAN may repeat keys, so the
// result is deduplicated.
func (m *Manager) scanKeys(ctx context.Context, match string) ([]string, error) {
	seen := make(map[string]struct{})
	keys := []string{}

	iter := m.redis.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("scan").Inc()
		return nil, fmt.Errorf("redis scan %q: %w", match, err)
	}
	return keys, nil
}

func chunk[T any](items []T, size int) [][]T {
	var chunks [][]T
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[:size:size])
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}
