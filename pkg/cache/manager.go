package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the URL was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// keyPrefix namespaces cache keys in Redis.
const keyPrefix = "fetch:cache:"

// Key returns the Redis key for a URL.
func Key(url string) string {
	return keyPrefix + url
}

// Manager handles response caching against a Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a cache manager backed by redisClient.
func NewManager(redisClient *redis.Client) (*Manager, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Manager{redis: redisClient}, nil
}

// Get retrieves the cached entry for url. Returns ErrCacheMiss when no
// fresh entry exists.
func (m *Manager) Get(ctx context.Context, url string) (*Entry, error) {
	data, err := m.redis.Get(ctx, Key(url)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis TTL should evict stale entries, but clock skew between the
	// server's Expires and our write can leave an expired entry behind.
	if entry.IsExpired() {
		_ = m.Delete(ctx, url)
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	cacheHits.Inc()
	return &entry, nil
}

// Set stores an entry for url with a Redis TTL derived from the entry's
// expiry. Already-expired entries are not stored.
func (m *Manager) Set(ctx context.Context, url string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, Key(url), data, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	cacheSizeBytes.Add(float64(len(data)))
	return nil
}

// Delete removes the cached entry for url.
func (m *Manager) Delete(ctx context.Context, url string) error {
	if err := m.redis.Del(ctx, Key(url)).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
