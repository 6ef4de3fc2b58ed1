// Package metrics documents the Prometheus metrics exposed by
// fetchpool. Metrics are defined next to the code that drives them
// (fetcher, retry, ratelimit, cache) and registered via promauto; this
// package only exposes the shared registerer and the reference list.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer used by all fetchpool metrics.
var Registry = prometheus.DefaultRegisterer

// Metrics reference
//
// Orchestrator (pkg/fetcher):
//   - fetch_requests_total{status_class} (Counter): attempts by result
//     class (2xx, 3xx, 4xx, 5xx, network)
//   - fetch_request_duration_seconds (Histogram): single-attempt duration
//   - fetch_inflight_attempts (Gauge): attempts currently holding a slot
//   - fetch_outcomes_total{result} (Counter): work units by final result
//     (success, failure, cancelled)
//
// Rate limiter (pkg/ratelimit):
//   - fetch_ratelimit_wait_seconds (Histogram): time blocked on a token
//   - fetch_ratelimit_grants_total (Counter): tokens granted
//
// Retry policy (pkg/retry):
//   - fetch_retries_total{class} (Counter): retry decisions by class
//   - fetch_retry_backoff_seconds{class} (Histogram): computed delays
//   - fetch_retry_exhausted_total{class} (Counter): abandoned requests
//
// Cache (pkg/cache):
//   - fetch_cache_hits_total (Counter)
//   - fetch_cache_misses_total (Counter)
//   - fetch_cache_size_bytes (Gauge)
//   - fetch_cache_errors_total{operation} (Counter)
//
// Useful queries:
//
//   # Share of attempts answered with 5xx
//   sum(rate(fetch_requests_total{status_class="5xx"}[5m]))
//     / sum(rate(fetch_requests_total[5m]))
//
//   # P95 token wait
//   histogram_quantile(0.95, rate(fetch_ratelimit_wait_seconds_bucket[5m]))
//
//   # Retry exhaustion rate
//   rate(fetch_retry_exhausted_total[5m])
