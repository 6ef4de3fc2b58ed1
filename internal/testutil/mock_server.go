// Package testutil provides a scriptable mock HTTP server for fetch
// tests: per-path response sequences, request counting, and in-flight
// concurrency tracking.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response defines one scripted response.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Server is a mock HTTP server. Each path can be scripted with a
// sequence of responses; the sequence is consumed in order and its last
// element repeats once exhausted. Unscripted paths get a 200 JSON body.
type Server struct {
	server *httptest.Server

	mu            sync.Mutex
	scripts       map[string][]Response
	requests      map[string]int
	totalRequests int
	inFlight      int
	maxInFlight   int
}

// NewServer starts a mock server.
func NewServer() *Server {
	s := &Server{
		scripts:  make(map[string][]Response),
		requests: make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// Script sets the response sequence for a path.
func (s *Server) Script(path string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[path] = responses
}

// Requests returns how many requests hit the given path.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// TotalRequests returns how many requests hit the server overall.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests
}

// MaxInFlight returns the highest number of simultaneously active
// requests observed.
func (s *Server) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.totalRequests++
	s.requests[r.URL.Path]++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}

	resp := Response{StatusCode: http.StatusOK, Body: `{"status": "ok"}`}
	if script, ok := s.scripts[r.URL.Path]; ok && len(script) > 0 {
		resp = script[0]
		if len(script) > 1 {
			s.scripts[r.URL.Path] = script[1:]
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	if _, ok := resp.Headers["Content-Type"]; !ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// OK returns a 200 response with a JSON body.
func OK(body string) Response {
	return Response{StatusCode: http.StatusOK, Body: body}
}

// Throttled returns a 429 response carrying a Retry-After hint.
func Throttled(retryAfter string) Response {
	return Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers:    map[string]string{"Retry-After": retryAfter},
	}
}

// ServerError returns a 503 response.
func ServerError() Response {
	return Response{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "service unavailable"}`,
	}
}

// NotFound returns a 404 response.
func NotFound() Response {
	return Response{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "not found"}`,
	}
}
