// Package fetcher drives many concurrent HTTP fetches to completion.
// Each URL gets a work unit that acquires a rate limiter token and a
// concurrency slot, performs one attempt, and consults the retry policy
// on failure. Results come back one per input URL, in input order.
package fetcher

import (
	"fmt"
	"time"

	"github.com/avoren/fetchpool/pkg/cache"
	"github.com/avoren/fetchpool/pkg/ratelimit"
	"github.com/avoren/fetchpool/pkg/retry"
	"github.com/avoren/fetchpool/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_requests_total",
		Help: "Total fetch attempts by result class",
	}, []string{"status_class"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_request_duration_seconds",
		Help:    "Single-attempt duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	inflightAttempts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetch_inflight_attempts",
		Help: "Attempts currently holding a concurrency slot",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_outcomes_total",
		Help: "Work units by final result",
	}, []string{"result"}) // "success", "failure", "cancelled"
)

// Config holds the fetch client configuration.
type Config struct {
	// Rate is the global request pace in tokens (requests) per second.
	Rate float64

	// Burst is the token bucket capacity.
	Burst float64

	// MaxConcurrency is the maximum number of in-flight attempts.
	MaxConcurrency int

	// AttemptTimeout bounds each individual HTTP attempt.
	AttemptTimeout time.Duration

	// Retry configures backoff and the retry budget.
	Retry retry.Config

	// UserAgent is sent with every request.
	UserAgent string

	// Headers are caller-supplied headers passed through verbatim.
	Headers map[string]string

	// Redis enables the response cache when set.
	Redis *redis.Client

	// CacheTTL is the entry lifetime when the server sends no Expires
	// header. Only used when Redis is set.
	CacheTTL time.Duration

	// Transport overrides the HTTP collaborator (testing).
	Transport transport.Doer
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Rate:           5.0,
		Burst:          10.0,
		MaxConcurrency: 3,
		AttemptTimeout: 30 * time.Second,
		Retry:          retry.DefaultConfig(),
		UserAgent:      "fetchpool/0.1.0",
		CacheTTL:       60 * time.Second,
	}
}

// Client fetches batches of URLs under a global rate limit and a
// concurrency cap, retrying transient failures.
type Client struct {
	bucket    *ratelimit.Bucket
	slots     *semaphore.Weighted
	policy    *retry.Policy
	transport transport.Doer
	cache     *cache.Manager
	cfg       Config
	logger    zerolog.Logger
}

// New creates a fetch client. Configuration errors fail here, before
// any work starts.
func New(cfg Config) (*Client, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be > 0 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	bucket, err := ratelimit.NewBucket(cfg.Rate, cfg.Burst)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	policy, err := retry.NewPolicy(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	doer := cfg.Transport
	if doer == nil {
		doer = transport.New(transport.Config{
			UserAgent: cfg.UserAgent,
			Headers:   cfg.Headers,
		})
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager, err = cache.NewManager(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("response cache: %w", err)
		}
	}

	return &Client{
		bucket:    bucket,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		policy:    policy,
		transport: doer,
		cache:     cacheManager,
		cfg:       cfg,
		logger:    log.With().Str("component", "fetcher").Logger(),
	}, nil
}

// statusClass buckets an attempt result for metrics.
func statusClass(status int, err error) string {
	if err != nil {
		return "network"
	}
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
