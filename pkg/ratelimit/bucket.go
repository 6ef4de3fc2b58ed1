// Package ratelimit implements a token bucket rate limiter that paces
// outgoing requests across all concurrent work units. Tokens accumulate
// over time up to a fixed capacity; each request consumes one token and
// blocks until it is granted.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limiter behavior.
var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limiter token",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	rateLimitGrantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_ratelimit_grants_total",
		Help: "Total number of token grants",
	})
)

// waitFloor is the minimum sleep between availability checks. A waiter
// woken early simply recomputes the remaining wait, so undersleeping is
// harmless; the floor only prevents busy-spinning.
const waitFloor = 10 * time.Millisecond

// Bucket is a token bucket. Tokens refill continuously at a fixed rate
// up to capacity. All state is guarded by a mutex; the mutex is never
// held while a caller sleeps.
type Bucket struct {
	rate     float64 // tokens per second
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewBucket creates a bucket that refills at rate tokens/second and
// holds at most capacity tokens. The bucket starts full.
func NewBucket(rate, capacity float64) (*Bucket, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("rate must be > 0 (got %g)", rate)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be > 0 (got %g)", capacity)
	}

	return &Bucket{
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
		last:     time.Now(),
	}, nil
}

// Rate returns the refill rate in tokens per second.
func (b *Bucket) Rate() float64 {
	return b.rate
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (b *Bucket) Capacity() float64 {
	return b.capacity
}

// Tokens returns the current token level after applying refill.
// The value is a snapshot and may change immediately under concurrency.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// Wait blocks until n tokens are available, then consumes them.
// It returns early with the context error if ctx is cancelled while
// waiting. Requesting more tokens than the bucket can ever hold is a
// configuration error and fails immediately.
func (b *Bucket) Wait(ctx context.Context, n float64) error {
	if n <= 0 {
		return fmt.Errorf("token count must be > 0 (got %g)", n)
	}
	if n > b.capacity {
		return fmt.Errorf("requested %g tokens exceeds bucket capacity %g", n, b.capacity)
	}

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		b.refill()
		if b.tokens >= n {
			b.tokens -= n
			b.mu.Unlock()
			rateLimitGrantsTotal.Inc()
			rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
			return nil
		}
		need := n - b.tokens
		b.mu.Unlock()

		wait := time.Duration(need / b.rate * float64(time.Second))
		if wait < waitFloor {
			wait = waitFloor
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill credits tokens for the time elapsed since the last refill.
// MUST be called with b.mu held; a concurrent double-credit would
// overfill the bucket.
func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}
