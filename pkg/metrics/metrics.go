// Package metrics provides the centralized Prometheus registry reference
// for the resilience core. Metrics are defined in their respective
// packages (cache, ratelimit, source) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the resilience core.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - datacore_cache_hits_total{tier} (Counter): Cache hits by tier (memory, durable)
//   - datacore_cache_misses_total{tier} (Counter): Cache misses by tier
//   - datacore_cache_evictions_total{reason} (Counter): Evictions (capacity, expired)
//   - datacore_cache_size_bytes{tier} (Gauge): Current cache size by tier
//   - datacore_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - datacore_rate_limit_denials_total{source} (Counter): Requests denied by the window
//   - datacore_rate_limit_waits_total{source} (Counter): Requests that slept for a slot
//   - datacore_rate_limit_usage_ratio{source} (Gauge): Window usage fraction
//   - datacore_rate_limit_unregistered_total (Counter): Fail-open permits
//
// Connector Metrics (pkg/source):
//   - datacore_fetches_total{source, status} (Counter): Fetches by outcome
//     (cache_hit, fetched, rate_limited, error)
//   - datacore_fetch_duration_seconds{source} (Histogram): Fetch duration
//   - datacore_retries_total{source} (Counter): Retry attempts
//   - datacore_retry_backoff_seconds{source} (Histogram): Backoff durations
//   - datacore_retry_exhausted_total{source} (Counter): Fetches that exhausted retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(datacore_cache_hits_total[5m])) /
//   (sum(rate(datacore_cache_hits_total[5m])) + sum(rate(datacore_cache_misses_total[5m])))
//
//   # Sources approaching their quota
//   datacore_rate_limit_usage_ratio > 0.8
//
//   # Upstream Error Rate
//   rate(datacore_fetches_total{status="error"}[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(datacore_fetch_duration_seconds_bucket[5m]))
