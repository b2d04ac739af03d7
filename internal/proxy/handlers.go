package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/payload-cache/pkg/cache"
	"github.com/Sternrassler/payload-cache/pkg/payload"
	"github.com/Sternrassler/payload-cache/pkg/query"
)

// Control parameters of GET /cache-proxy. They are not forwarded upstream
// and are not part of the cache key.
const (
	endpointParam = "endpoint"
	cacheParam    = "cache"
	refreshParam  = "refresh"
)

const readyTimeout = 2 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

type refreshRequest struct {
	Endpoint    string       `json:"endpoint"`
	QueryParams query.Params `json:"queryParams"`
}

type refreshResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	CacheKey  string `json:"cacheKey"`
	Timestamp string `json:"timestamp"`
}

type warmRequest struct {
	Pattern     string       `json:"pattern"`
	Endpoint    string       `json:"endpoint"`
	QueryParams query.Params `json:"queryParams"`
	// Collection walks every page of Endpoint
	Collection bool `json:"collection"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Redis not reachable")
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// proxy serves GET /cache-proxy?endpoint=<name>&cache=<bool>&refresh=<bool>&<params>.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := hlog.FromRequest(r)

	params, err := query.ParseQuery(r.URL.RawQuery)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Invalid query string"})
		return
	}

	endpoint := stringParam(params, endpointParam)
	if endpoint == "" {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Endpoint is required"})
		return
	}

	res, err := h.cache.Resolve(r.Context(), cache.ResolveRequest{
		Endpoint: endpoint,
		Params:   params.Without(endpointParam, cacheParam, refreshParam),
		UseCache: stringParam(params, cacheParam) != "false",
		Refresh:  stringParam(params, refreshParam) == "true",
	})
	if err != nil {
		logger.Error().Err(err).Str("endpoint", endpoint).Msg("Proxy fetch failed")
		writeJSON(w, r, http.StatusBadGateway, errorResponse{Error: "Failed to fetch data from Payload API"})
		return
	}

	logger.Debug().
		Str("endpoint", endpoint).
		Str("key", res.Key).
		Str("cache", string(res.Status)).
		Bool("stale", res.Stale).
		Msg("Proxy response")

	w.Header().Set("X-Cache", string(res.Status))
	w.Header().Set("X-Cache-Key", res.Key)
	w.Header().Set("X-Response-Time", fmt.Sprintf("%dms", time.Since(start).Milliseconds()))
	writeJSON(w, r, http.StatusOK, res.Document)
}

func (h *Handler) refreshUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"message": "Use POST method to refresh cache",
		"example": refreshRequest{
			Endpoint:    "posts",
			QueryParams: query.Params{}.Add("limit", 10),
		},
	})
}

// refresh serves POST /cache-proxy/refresh.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}
	if req.Endpoint == "" {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Endpoint is required"})
		return
	}

	key := h.cache.CreateKey(req.Endpoint, req.QueryParams)
	_, err := h.cache.ForceRefresh(r.Context(), req.Endpoint, req.QueryParams)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, refreshResponse{
			Success:   true,
			Message:   "Cache refreshed successfully",
			CacheKey:  key,
			Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	case errors.Is(err, payload.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "No matching documents"})
	case payload.StatusCode(err) >= http.StatusBadRequest:
		hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("Refresh rejected upstream")
		writeJSON(w, r, payload.StatusCode(err), errorResponse{Error: "Failed to fetch from Payload API"})
	default:
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("Refresh failed")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Failed to refresh cache"})
	}
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.GetDetailedStats(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Stats collection failed")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Failed to get cache stats"})
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// warm serves POST /cache-proxy/warm with either a key pattern or a single
// endpoint.
func (h *Handler) warm(w http.ResponseWriter, r *http.Request) {
	var req warmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	var (
		result *cache.WarmupResult
		err    error
	)
	switch {
	case req.Pattern != "":
		result, err = h.cache.RewarmByPattern(r.Context(), req.Pattern)
	case req.Endpoint != "" && req.Collection:
		result, err = h.cache.WarmCollection(r.Context(), req.Endpoint, req.QueryParams)
	case req.Endpoint != "":
		result = h.cache.WarmCache(r.Context(), []cache.Target{{Endpoint: req.Endpoint, Params: req.QueryParams}}, 1)
	default:
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Pattern or endpoint is required"})
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Warming failed")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Failed to warm cache"})
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func stringParam(params query.Params, key string) string {
	v, ok := params.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to write response")
	}
}
