// Package transport provides the HTTP collaborator consumed by the
// fetch orchestrator: a single-attempt GET that surfaces the status
// code, headers, and body, and reports connection or timeout failures
// as a distinguishable transport error.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxBodySize caps response bodies at 10 MiB unless configured.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Result is the outcome of one completed HTTP attempt. An attempt that
// never produced a response (connection failure, timeout) yields an
// *Error instead.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RetryAfter returns the server's Retry-After hint, if any.
// http.Header lookups are case-insensitive.
func (r *Result) RetryAfter() string {
	return r.Header.Get("Retry-After")
}

// IsJSON reports whether the response content type indicates JSON.
func (r *Result) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// DecodeJSON unmarshals the body into v.
func (r *Result) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// JSON decodes the body into a generic value when the content type
// indicates JSON. It returns nil for non-JSON responses.
func (r *Result) JSON() (any, error) {
	if !r.IsJSON() {
		return nil, nil
	}
	var v any
	if err := r.DecodeJSON(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Error is a transport-level failure: the attempt produced no HTTP
// response. It is the only error shape returned by Doer implementations.
type Error struct {
	URL     string
	Timeout bool
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport timeout for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Doer issues a single HTTP GET attempt. Implementations must respect
// ctx cancellation and deadlines.
type Doer interface {
	Get(ctx context.Context, url string) (*Result, error)
}

// Config holds HTTP transport configuration.
type Config struct {
	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Headers are caller-supplied headers passed through on every request.
	Headers map[string]string

	// MaxBodySize caps the bytes read from a response body.
	MaxBodySize int64

	// HTTPClient overrides the underlying client (testing, custom
	// transports). Per-attempt timeouts come from the caller's context.
	HTTPClient *http.Client
}

// HTTP is the net/http-backed Doer.
type HTTP struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	maxBodySize int64
	logger      zerolog.Logger
}

// Compile-time interface check.
var _ Doer = (*HTTP)(nil)

// New creates an HTTP transport from cfg.
func New(cfg Config) *HTTP {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	return &HTTP{
		client:      hc,
		userAgent:   cfg.UserAgent,
		headers:     cfg.Headers,
		maxBodySize: maxBody,
		logger:      log.With().Str("component", "transport").Logger(),
	}
}

// Get performs one GET attempt. It never retries; retry policy lives in
// the caller.
func (t *HTTP) Get(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		terr := &Error{URL: url, Timeout: isTimeout(err), Err: err}
		t.logger.Debug().
			Str("url", url).
			Bool("timeout", terr.Timeout).
			Err(err).
			Msg("Attempt failed before response")
		return nil, terr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize))
	if err != nil {
		return nil, &Error{URL: url, Timeout: isTimeout(err), Err: fmt.Errorf("read response body: %w", err)}
	}

	t.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("body_bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Attempt completed")

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// isTimeout reports whether err stems from a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
