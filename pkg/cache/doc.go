// Package cache provides a read-through Redis cache for Payload CMS queries.
//
// The Manager sits between page loaders and the Payload REST API:
//
//   - Deterministic keys derived from the endpoint and its query parameters
//   - Read-through fetch: hit returns the stored document, miss fetches
//     from Payload, stores it with a TTL and returns it
//   - Stale-while-revalidate: a stale hit is served immediately while a
//     detached task refreshes the entry
//   - Fail-open: Redis errors degrade to upstream fetches, never to failures
//   - Empty result sets are reported as payload.ErrNotFound and never cached
//   - Warming by target list, by key pattern, by whole collection, and a
//     periodic service refreshing entries close to expiry
//   - Prometheus metrics and detailed operator statistics
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	upstream, _ := payload.New(payload.DefaultConfig("https://cms.example.com/api"), logger)
//
//	manager := cache.NewManager(redisClient, upstream, cache.DefaultConfig(), logger)
//
//	params := query.Params{}.Add("sort", "-publishedAt").Add("limit", 10)
//	doc, err := manager.FetchWithCache(ctx, "posts", params)
//	if errors.Is(err, payload.ErrNotFound) {
//		// render 404
//	}
//
// # Keys
//
// Keys are prefix + endpoint, followed by "-" and the serialized query when
// there are parameters:
//
//	payload:posts-sort=-publishedAt&limit=10
//
// Parameter order is part of the key. See package query.
//
// # Age and Staleness
//
// Redis only exposes the remaining TTL of a key, so the age of an entry is
// computed as DefaultTTL - remaining. Entries written with a per-call TTL
// report an approximate age.
//
// # Metrics
//
//   - payload_cache_hits_total{layer="redis"} - Cache hits
//   - payload_cache_misses_total - Cache misses
//   - payload_cache_errors_total{operation} - Redis operation errors
//   - payload_cache_entry_size_bytes - Size of written entries
//   - payload_cache_background_refreshes_total{result} - Stale refreshes
//   - payload_cache_warmed_keys_total{result} - Warmed keys
package cache
