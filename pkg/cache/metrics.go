package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payload_cache_hits_total",
			Help: "Total number of Payload cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payload_cache_misses_total",
			Help: "Total number of Payload cache misses",
		},
	)

	// CacheErrors tracks Redis operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payload_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "decode", "ttl", "delete", "scan", "info"
	)

	// CacheEntryBytes tracks the size of written entries
	CacheEntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payload_cache_entry_size_bytes",
			Help:    "Size of cache entries written to Redis in bytes",
			Buckets: prometheus.ExponentialBuckets(512, 4, 8),
		},
	)

	// BackgroundRefreshes tracks stale-while-revalidate refreshes
	BackgroundRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payload_cache_background_refreshes_total",
			Help: "Total number of background refreshes by result",
		},
		[]string{"result"}, // "success", "empty", "error"
	)

	// WarmedKeys tracks keys processed by cache warming
	WarmedKeys = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payload_cache_warmed_keys_total",
			Help: "Total number of warmed cache keys by result",
		},
		[]string{"result"}, // "success", "failed"
	)
)
