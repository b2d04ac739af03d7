package cache

import (
	"context"
	"fmt"

	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// Status describes how a Resolution was produced.
type Status string

const (
	StatusHit       Status = "HIT"
	StatusMiss      Status = "MISS"
	StatusRefreshed Status = "REFRESHED"
)

// ResolveRequest is a read through the cache as issued by the proxy.
type ResolveRequest struct {
	Endpoint string
	Params   query.Params
	// UseCache enables writes and stale revalidation
	UseCache bool
	// Refresh bypasses the read, fetches upstream and overwrites the entry
	Refresh bool
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Key      string
	Status   Status
	Document payload.Document
	// Stale is set on a hit that scheduled a background refresh
	Stale bool
}

// Resolve serves req from the cache when possible. A stale hit is returned
// immediately while a detached task refreshes the entry. Empty results are
// returned to the caller but never cached; a refresh that comes back empty
// drops the existing entry.
func (m *Manager) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	key := m.CreateKey(req.Endpoint, req.Params)

	if !req.Refresh {
		if entry, ok := m.Get(ctx, key); ok {
			res := &Resolution{Key: key, Status: StatusHit, Document: entry.Document}
			if req.UseCache && m.IsStale(ctx, key, 0) {
				res.Stale = true
				m.revalidate(ctx, key, req.Endpoint, req.Params)
			}
			return res, nil
		}
	}

	doc, err := m.upstream.Fetch(ctx, req.Endpoint, req.Params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Endpoint, err)
	}
	if req.UseCache || req.Refresh {
		if !m.storeIfFound(ctx, key, req.Endpoint, req.Params, doc) && req.Refresh {
			m.drop(ctx, key)
		}
	}

	status := StatusMiss
	if req.Refresh {
		status = StatusRefreshed
	}
	return &Resolution{Key: key, Status: status, Document: doc}, nil
}

// revalidate refreshes key in the background. Concurrent revalidations of
// the same key are not merged.
func (m *Manager) revalidate(ctx context.Context, key, endpoint string, params query.Params) {
	m.logger.Debug().Str("key", key).Msg("Serving stale entry, refreshing in background")

	m.detacher.Detach(ctx, "revalidate "+key, func(ctx context.Context) error {
		doc, err := m.upstream.Fetch(ctx, endpoint, params)
		if err != nil {
			BackgroundRefreshes.WithLabelValues("error").Inc()
			return fmt.Errorf("refresh %s: %w", key, err)
		}
		if !m.storeIfFound(ctx, key, endpoint, params, doc) {
			BackgroundRefreshes.WithLabelValues("empty").Inc()
			return nil
		}
		BackgroundRefreshes.WithLabelValues("success").Inc()
		return nil
	})
}
