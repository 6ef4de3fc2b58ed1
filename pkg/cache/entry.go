// Package cache provides an optional Redis-backed response cache for
// fetched URLs. A fresh entry satisfies a URL without spending a rate
// token or a concurrency slot.
package cache

import (
	"net/http"
	"time"
)

// Entry is a cached successful response for one URL.
type Entry struct {
	// Body is the response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status of the cached response.
	StatusCode int `json:"status_code"`

	// ContentType is the response Content-Type header.
	ContentType string `json:"content_type"`

	// FetchedAt is when the response was fetched.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// NewEntry builds a cache entry from a completed response. The expiry
// comes from the server's Expires header when parseable, otherwise
// FetchedAt + fallbackTTL.
func NewEntry(statusCode int, header http.Header, body []byte, fallbackTTL time.Duration) *Entry {
	now := time.Now()
	expires := now.Add(fallbackTTL)
	if v := header.Get("Expires"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			expires = t
		}
	}

	return &Entry{
		Body:        body,
		StatusCode:  statusCode,
		ContentType: header.Get("Content-Type"),
		FetchedAt:   now,
		Expires:     expires,
	}
}

// IsExpired returns true if the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiry, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Header reconstructs the headers preserved in the entry.
func (e *Entry) Header() http.Header {
	h := http.Header{}
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	return h
}
