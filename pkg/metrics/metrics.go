// Package metrics exposes the Prometheus registry shared by the Payload cache.
// Metrics are defined in their respective packages (payload, cache) to keep
// them next to the code that updates them; this package serves them and
// documents what is available.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// BuildInfo is set to 1 and labelled with the running version.
var BuildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "payload_cache_build_info",
		Help: "Build information of the running payload cache",
	},
	[]string{"version"},
)

// SetBuildInfo records version in BuildInfo.
func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - payload_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - payload_cache_misses_total (Counter): Cache misses
//   - payload_cache_errors_total{operation} (Counter): Redis operation errors
//   - payload_cache_entry_size_bytes (Histogram): Size of written entries
//   - payload_cache_background_refreshes_total{result} (Counter): Stale-while-revalidate refreshes
//   - payload_cache_warmed_keys_total{result} (Counter): Keys processed by warming
//
// Upstream Metrics (pkg/payload):
//   - payload_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - payload_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//
// Retry Metrics (pkg/payload):
//   - payload_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - payload_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(payload_cache_hits_total[5m])) /
//	(sum(rate(payload_cache_hits_total[5m])) + sum(rate(payload_cache_misses_total[5m])))
//
//	# Redis Failure Rate (fail-open fallbacks)
//	sum by (operation) (rate(payload_cache_errors_total[5m]))
//
//	# Failed Background Refreshes
//	rate(payload_cache_background_refreshes_total{result="error"}[5m])
//
//	# P95 Upstream Latency
//	histogram_quantile(0.95, rate(payload_upstream_request_duration_seconds_bucket[5m]))
