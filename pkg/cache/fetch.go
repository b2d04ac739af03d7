package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// FetchOption customizes FetchWithCache.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	keySuffix string
	skipCache bool
	ttl       time.Duration
}

// WithKeySuffix stores the document under prefix + endpoint + ":" + suffix
// instead of the query-derived key.
func WithKeySuffix(suffix string) FetchOption {
	return func(o *fetchOptions) {
		o.keySuffix = suffix
	}
}

// SkipCache bypasses the read and always fetches upstream. The result is
// still written.
func SkipCache() FetchOption {
	return func(o *fetchOptions) {
		o.skipCache = true
	}
}

// WithTTL overrides DefaultTTL for the write.
func WithTTL(ttl time.Duration) FetchOption {
	return func(o *fetchOptions) {
		o.ttl = ttl
	}
}

// FetchWithCache returns the cached document for endpoint and params, or
// fetches, stamps and stores it on a miss. A list response without docs
// yields payload.ErrNotFound and is not cached.
func (m *Manager) FetchWithCache(ctx context.Context, endpoint string, params query.Params, opts ...FetchOption) (payload.Document, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := m.CreateKey(endpoint, params)
	if o.keySuffix != "" {
		key = MakeSuffixKey(m.config.Prefix, endpoint, o.keySuffix)
	}

	if !o.skipCache {
		if entry, ok := m.Get(ctx, key); ok {
			return entry.Document, nil
		}
	}

	return m.fill(ctx, key, endpoint, params, o.ttl)
}

// ForceRefresh fetches endpoint upstream and overwrites its entry. An empty
// result removes the entry and returns payload.ErrNotFound.
func (m *Manager) ForceRefresh(ctx context.Context, endpoint string, params query.Params) (payload.Document, error) {
	key := m.CreateKey(endpoint, params)
	m.logger.Info().Str("key", key).Str("endpoint", endpoint).Msg("Forcing cache refresh")

	doc, err := m.fill(ctx, key, endpoint, params, 0)
	if errors.Is(err, payload.ErrNotFound) {
		m.drop(ctx, key)
	}
	return doc, err
}

// drop removes the entry of a document that no longer exists upstream.
func (m *Manager) drop(ctx context.Context, key string) {
	if err := m.Delete(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to drop entry for missing document")
	}
}

// fill fetches upstream and stores the result under key.
func (m *Manager) fill(ctx context.Context, key, endpoint string, params query.Params, ttl time.Duration) (payload.Document, error) {
	doc, err := m.upstream.Fetch(ctx, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	if doc.IsEmpty() {
		m.logger.Debug().Str("key", key).Msg("No documents found, not caching")
		return nil, fmt.Errorf("%s: %w", key, payload.ErrNotFound)
	}

	m.store(ctx, key, endpoint, params, doc, ttl)
	return doc, nil
}

// storeIfFound writes doc unless it is an empty list.
func (m *Manager) storeIfFound(ctx context.Context, key, endpoint string, params query.Params, doc payload.Document) bool {
	if doc.IsEmpty() {
		m.logger.Debug().Str("key", key).Msg("No documents found, not caching")
		return false
	}
	m.store(ctx, key, endpoint, params, doc, 0)
	return true
}

func (m *Manager) store(ctx context.Context, key, endpoint string, params query.Params, doc payload.Document, ttl time.Duration) {
	now := time.Now()
	doc.Stamp(now)
	m.Set(ctx, key, &Entry{
		Endpoint: endpoint,
		Query:    params.Encode(),
		Document: doc,
		CachedAt: now,
	}, ttl)
}
