package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avoren/fetchpool/pkg/cache"
	"github.com/avoren/fetchpool/pkg/retry"
	"github.com/avoren/fetchpool/pkg/transport"
	"github.com/rs/zerolog"
)

// FetchAll fetches every URL concurrently and returns one Outcome per
// input, indexed by input position. It returns only once every work
// unit has finished; a terminal failure on one URL never aborts the
// others. The returned error is non-nil only when the whole batch was
// cancelled through ctx.
func (c *Client) FetchAll(ctx context.Context, urls []string) ([]Outcome, error) {
	start := time.Now()
	results := make([]Outcome, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			// Each slot in results is written by exactly one unit.
			results[idx] = c.fetchOne(ctx, u)
		}(i, url)
	}
	wg.Wait()

	failures := 0
	for _, r := range results {
		if !r.Success() {
			failures++
		}
	}

	c.logger.Info().
		Int("urls", len(urls)).
		Int("failures", failures).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}

// fetchOne runs a single work unit to completion: token, slot, attempt,
// classify, backoff, repeat. The concurrency slot is released as soon
// as the attempt completes and is never held across a retry wait.
func (c *Client) fetchOne(ctx context.Context, url string) Outcome {
	logger := c.logger.With().Str("url", url).Logger()

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, url)
		switch {
		case err == nil:
			logger.Debug().Msg("Cache hit")
			return c.outcomeFromCache(url, entry)
		case err != cache.ErrCacheMiss:
			logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	st := &retry.State{}
	for {
		if err := c.bucket.Wait(ctx, 1); err != nil {
			return cancelled(url, err)
		}
		if err := c.slots.Acquire(ctx, 1); err != nil {
			return cancelled(url, err)
		}

		res, err := c.attempt(ctx, url)

		if err == nil && res.StatusCode >= 200 && res.StatusCode < 300 {
			return c.succeed(ctx, logger, url, res, st)
		}

		// A timed-out attempt is retryable; a cancelled batch is not.
		if ctx.Err() != nil {
			return cancelled(url, ctx.Err())
		}

		var status int
		var retryAfter string
		if res != nil {
			status = res.StatusCode
			retryAfter = res.RetryAfter()
		}

		decision := c.policy.Classify(st, status, retryAfter, err)
		if !decision.Retry {
			outcomesTotal.WithLabelValues("failure").Inc()
			logger.Warn().
				Int("status", status).
				Int("attempts", st.Attempt).
				Err(decision.Reason).
				Msg("Fetch failed terminally")
			return Outcome{URL: url, Status: status, Err: decision.Reason}
		}

		// The token spent on the failed attempt is not refunded; the
		// loop re-acquires a fresh one after the delay.
		timer := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelled(url, ctx.Err())
		case <-timer.C:
		}
	}
}

// attempt performs one HTTP GET inside a held concurrency slot. The
// slot is released when the attempt completes, success or failure.
func (c *Client) attempt(ctx context.Context, url string) (*transport.Result, error) {
	defer c.slots.Release(1)

	inflightAttempts.Inc()
	defer inflightAttempts.Dec()

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	res, err := c.transport.Get(attemptCtx, url)
	requestDuration.Observe(time.Since(start).Seconds())

	var status int
	if res != nil {
		status = res.StatusCode
	}
	requestsTotal.WithLabelValues(statusClass(status, err)).Inc()

	return res, err
}

// succeed finalizes a successful attempt: cache the response, decode
// JSON bodies, and build the outcome.
func (c *Client) succeed(ctx context.Context, logger zerolog.Logger, url string, res *transport.Result, st *retry.State) Outcome {
	if c.cache != nil {
		entry := cache.NewEntry(res.StatusCode, res.Header, res.Body, c.cfg.CacheTTL)
		if err := c.cache.Set(ctx, url, entry); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	value, err := res.JSON()
	if err != nil {
		outcomesTotal.WithLabelValues("failure").Inc()
		logger.Warn().Int("status", res.StatusCode).Err(err).Msg("Malformed response body")
		return Outcome{URL: url, Status: res.StatusCode, Err: err}
	}

	outcomesTotal.WithLabelValues("success").Inc()
	logger.Debug().
		Int("status", res.StatusCode).
		Int("attempts", st.Attempt).
		Msg("Fetch succeeded")

	return Outcome{
		URL:    url,
		Status: res.StatusCode,
		Body:   res.Body,
		Value:  value,
	}
}

// outcomeFromCache builds a successful outcome from a fresh cache entry.
func (c *Client) outcomeFromCache(url string, entry *cache.Entry) Outcome {
	res := &transport.Result{
		StatusCode: entry.StatusCode,
		Header:     entry.Header(),
		Body:       entry.Body,
	}

	value, err := res.JSON()
	if err != nil {
		return Outcome{URL: url, Status: entry.StatusCode, Err: err}
	}

	outcomesTotal.WithLabelValues("success").Inc()
	return Outcome{
		URL:    url,
		Status: entry.StatusCode,
		Body:   entry.Body,
		Value:  value,
	}
}
