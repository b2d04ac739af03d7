// Package proxy exposes the cache over HTTP: a read-through endpoint for
// page loaders plus refresh, warming and stats endpoints for operators.
package proxy

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/payload-cache/pkg/cache"
	"github.com/Sternrassler/payload-cache/pkg/metrics"
)

// Handler serves the cache proxy routes.
type Handler struct {
	cache  *cache.Manager
	redis  redis.UniversalClient
	logger zerolog.Logger
}

// NewHandler creates a proxy handler. redisClient is only used for readiness.
func NewHandler(manager *cache.Manager, redisClient redis.UniversalClient, logger zerolog.Logger) *Handler {
	if manager == nil {
		panic("cache manager cannot be nil")
	}
	return &Handler{
		cache:  manager,
		redis:  redisClient,
		logger: logger,
	}
}

// Routes returns the router with logging and recovery middleware.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(h.logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/cache-proxy", h.proxy)
	r.Get("/cache-proxy/refresh", h.refreshUsage)
	r.Post("/cache-proxy/refresh", h.refresh)
	r.Get("/cache-proxy/stats", h.stats)
	r.Post("/cache-proxy/warm", h.warm)

	return r
}
