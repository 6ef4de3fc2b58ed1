// fetchctl fetches a batch of URLs under a global rate limit with
// bounded concurrency and retries, printing one JSON outcome per line.
//
// URLs come from the command line or, when no arguments are given, one
// per line on stdin. Configuration is environment-driven:
//
//	FETCH_RATE         requests per second (default 5)
//	FETCH_BURST        token bucket capacity (default 10)
//	FETCH_CONCURRENCY  max in-flight requests (default 3)
//	FETCH_RETRIES      retry budget per URL (default 6)
//	FETCH_TIMEOUT      per-attempt timeout in seconds (default 30)
//	FETCH_USER_AGENT   User-Agent header
//	REDIS_URL          enables the response cache when set
//	METRICS_ADDR       serves Prometheus metrics when set (e.g. :9090)
//	LOG_LEVEL          debug, info, warn, error (default info)
//	LOG_PRETTY         human-readable log output when "true"
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avoren/fetchpool/pkg/fetcher"
	"github.com/avoren/fetchpool/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// outcomeLine is the JSON shape printed per URL.
type outcomeLine struct {
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	logger := logging.Setup(logging.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
	})

	urls, err := gatherURLs(os.Args[1:], os.Stdin)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read URLs")
	}
	if len(urls) == 0 {
		logger.Fatal().Msg("No URLs given (pass as arguments or one per line on stdin)")
	}

	cfg := fetcher.DefaultConfig()
	cfg.Rate = floatEnv("FETCH_RATE", cfg.Rate)
	cfg.Burst = floatEnv("FETCH_BURST", cfg.Burst)
	cfg.MaxConcurrency = intEnv("FETCH_CONCURRENCY", cfg.MaxConcurrency)
	cfg.Retry.MaxRetries = intEnv("FETCH_RETRIES", cfg.Retry.MaxRetries)
	cfg.AttemptTimeout = time.Duration(floatEnv("FETCH_TIMEOUT", cfg.AttemptTimeout.Seconds()) * float64(time.Second))
	if ua := getEnv("FETCH_USER_AGENT", ""); ua != "" {
		cfg.UserAgent = ua
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		cfg.Redis = redisClient
		logger.Info().Str("redis_url", redisURL).Msg("Response cache enabled")
	}

	if addr := getEnv("METRICS_ADDR", ""); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	}

	client, err := fetcher.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Info().
		Int("urls", len(urls)).
		Float64("rate", cfg.Rate).
		Int("concurrency", cfg.MaxConcurrency).
		Msg("Starting batch")

	outcomes, batchErr := client.FetchAll(ctx, urls)

	enc := json.NewEncoder(os.Stdout)
	failures := 0
	for _, o := range outcomes {
		line := outcomeLine{URL: o.URL, OK: o.Success(), Status: o.Status}
		if o.Err != nil {
			failures++
			line.Error = o.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			logger.Error().Err(err).Msg("Failed to write outcome")
		}
	}

	if batchErr != nil {
		logger.Error().Err(batchErr).Msg("Batch cancelled")
		os.Exit(1)
	}
	if failures > 0 {
		logger.Warn().Int("failures", failures).Msg("Batch finished with failures")
		os.Exit(1)
	}
}

// gatherURLs takes URLs from args, or from reader (one per line) when
// no args are given. Blank lines and #-comments are skipped.
func gatherURLs(args []string, reader io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var urls []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func floatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
