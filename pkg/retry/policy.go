// Package retry implements the retry policy for failed fetch attempts:
// full-jitter exponential backoff for budgeted retries and unlimited
// server-directed waits for throttled (429 with Retry-After) responses.
package retry

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry decisions.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_retries_total",
		Help: "Total number of retry decisions by failure class",
	}, []string{"class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_retry_backoff_seconds",
		Help:    "Computed retry delay in seconds by failure class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_retry_exhausted_total",
		Help: "Total number of requests abandoned after exhausting the retry budget",
	}, []string{"class"})
)

// Class categorizes a failed attempt for metrics and logging.
type Class string

const (
	// ClassClient covers non-retryable 4xx statuses (other than 429).
	ClassClient Class = "client"

	// ClassServer covers retryable 5xx statuses.
	ClassServer Class = "server"

	// ClassThrottle covers 429 responses.
	ClassThrottle Class = "throttle"

	// ClassNetwork covers transport and timeout errors.
	ClassNetwork Class = "network"
)

// Config holds the retry policy parameters.
type Config struct {
	// BaseBackoff is the backoff for attempt zero; it doubles each attempt.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential term before jitter is drawn.
	MaxBackoff time.Duration

	// MaxRetries is the number of budgeted retries per request.
	// Server-directed 429 waits do not count against it.
	MaxRetries int
}

// DefaultConfig returns the default retry parameters.
func DefaultConfig() Config {
	return Config{
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  60 * time.Second,
		MaxRetries:  6,
	}
}

// State tracks the budgeted retry count of one logical request.
// Each work unit owns exactly one State; it is not safe for sharing.
type State struct {
	// Attempt is the number of budgeted retries consumed so far.
	Attempt int
}

// Decision is the outcome of classifying a failed attempt.
type Decision struct {
	// Retry reports whether the request should be reissued after Delay.
	Retry bool

	// Delay is how long to wait before the next attempt.
	Delay time.Duration

	// Reason carries the terminal failure cause when Retry is false.
	Reason error
}

// Policy classifies failed attempts into retry-after-delay or terminal
// failure. A single Policy is shared by all work units; its random
// source is serialized internally.
type Policy struct {
	cfg    Config
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Policy.
type Option func(*Policy)

// WithRand sets the random source used for jitter. Intended for tests
// that need deterministic delays.
func WithRand(rng *rand.Rand) Option {
	return func(p *Policy) { p.rng = rng }
}

// NewPolicy creates a retry policy from cfg.
func NewPolicy(cfg Config, opts ...Option) (*Policy, error) {
	if cfg.BaseBackoff <= 0 {
		return nil, fmt.Errorf("base backoff must be > 0 (got %v)", cfg.BaseBackoff)
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		return nil, fmt.Errorf("max backoff %v must be >= base backoff %v", cfg.MaxBackoff, cfg.BaseBackoff)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	p := &Policy{
		cfg:    cfg,
		logger: log.With().Str("component", "retry").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Classify decides what to do after a failed attempt. status and
// retryAfter describe the HTTP response when one was received; err is
// the transport error otherwise. Successful (2xx) responses must not
// reach Classify.
func (p *Policy) Classify(st *State, status int, retryAfter string, err error) Decision {
	if err != nil {
		return p.budgeted(st, ClassNetwork, 0, err)
	}

	if status == http.StatusTooManyRequests {
		if secs, ok := parseRetryAfterSeconds(retryAfter); ok {
			// The server knows when capacity frees up; honor the hint
			// verbatim plus a small jitter, outside the retry budget.
			delay := time.Duration((secs + p.random()) * float64(time.Second))
			retriesTotal.WithLabelValues(string(ClassThrottle)).Inc()
			retryBackoffSeconds.WithLabelValues(string(ClassThrottle)).Observe(delay.Seconds())

			p.logger.Debug().
				Float64("retry_after_seconds", secs).
				Dur("delay", delay).
				Msg("Server-directed throttle wait")

			return Decision{Retry: true, Delay: delay}
		}
		// No usable hint: fall through to budgeted backoff.
		return p.budgeted(st, ClassThrottle, status, nil)
	}

	if status >= 500 && status <= 599 {
		return p.budgeted(st, ClassServer, status, nil)
	}

	// 3xx and non-429 4xx are terminal immediately.
	return Decision{Reason: &StatusError{Status: status}}
}

// budgeted applies full-jitter exponential backoff within the retry
// budget, or returns a terminal decision once the budget is spent.
func (p *Policy) budgeted(st *State, class Class, status int, cause error) Decision {
	if st.Attempt >= p.cfg.MaxRetries {
		retryExhaustedTotal.WithLabelValues(string(class)).Inc()

		p.logger.Warn().
			Str("class", string(class)).
			Int("attempts", st.Attempt).
			Int("status", status).
			Msg("Retry budget exhausted")

		return Decision{Reason: exhausted(st.Attempt, status, cause)}
	}

	delay := p.BackoffDelay(st.Attempt)
	st.Attempt++

	retriesTotal.WithLabelValues(string(class)).Inc()
	retryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

	p.logger.Debug().
		Str("class", string(class)).
		Int("attempt", st.Attempt).
		Int("status", status).
		Dur("delay", delay).
		Msg("Scheduling retry")

	return Decision{Retry: true, Delay: delay}
}

// BackoffDelay draws a full-jitter delay for the given attempt number:
// uniform in [0, min(MaxBackoff, BaseBackoff*2^attempt)).
func (p *Policy) BackoffDelay(attempt int) time.Duration {
	exp := float64(p.cfg.BaseBackoff) * math.Pow(2, float64(attempt))
	if exp > float64(p.cfg.MaxBackoff) {
		exp = float64(p.cfg.MaxBackoff)
	}
	return time.Duration(p.random() * exp)
}

// random returns a uniform value in [0, 1) from the policy's source.
func (p *Policy) random() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// parseRetryAfterSeconds parses a numeric Retry-After value. HTTP-date
// values are rejected; those fall back to the budgeted backoff path.
func parseRetryAfterSeconds(val string) (float64, bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(val, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}
