package retry

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func newTestPolicy(t *testing.T, cfg Config, seed int64) *Policy {
	t.Helper()
	p, err := NewPolicy(cfg, WithRand(rand.New(rand.NewSource(seed))))
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseBackoff != 1*time.Second {
		t.Errorf("BaseBackoff = %v, want 1s", cfg.BaseBackoff)
	}
	if cfg.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", cfg.MaxBackoff)
	}
	if cfg.MaxRetries != 6 {
		t.Errorf("MaxRetries = %d, want 6", cfg.MaxRetries)
	}
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name:    "zero base backoff",
			cfg:     Config{BaseBackoff: 0, MaxBackoff: 60 * time.Second, MaxRetries: 6},
			wantErr: true,
		},
		{
			name:    "cap below base",
			cfg:     Config{BaseBackoff: 2 * time.Second, MaxBackoff: 1 * time.Second, MaxRetries: 6},
			wantErr: true,
		},
		{
			name:    "negative retries",
			cfg:     Config{BaseBackoff: 1 * time.Second, MaxBackoff: 60 * time.Second, MaxRetries: -1},
			wantErr: true,
		},
		{
			name:    "zero retries is allowed",
			cfg:     Config{BaseBackoff: 1 * time.Second, MaxBackoff: 60 * time.Second, MaxRetries: 0},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackoffDelay_FullJitterBounds(t *testing.T) {
	cfg := DefaultConfig()
	p := newTestPolicy(t, cfg, 42)

	for attempt := 0; attempt < 10; attempt++ {
		upper := float64(cfg.BaseBackoff) * math.Pow(2, float64(attempt))
		if upper > float64(cfg.MaxBackoff) {
			upper = float64(cfg.MaxBackoff)
		}

		for i := 0; i < 50; i++ {
			d := p.BackoffDelay(attempt)
			if d < 0 || float64(d) >= upper {
				t.Fatalf("BackoffDelay(%d) = %v, want in [0, %v)", attempt, d, time.Duration(upper))
			}
		}
	}
}

func TestClassify_ThrottleWithNumericHint(t *testing.T) {
	// MaxRetries=0 so any budgeted path would be terminal immediately;
	// a hinted 429 must still retry.
	p := newTestPolicy(t, Config{BaseBackoff: time.Second, MaxBackoff: 60 * time.Second, MaxRetries: 0}, 1)
	st := &State{}

	d := p.Classify(st, 429, "120", nil)

	if !d.Retry {
		t.Fatalf("hinted 429 must retry, got terminal: %v", d.Reason)
	}
	if d.Delay < 120*time.Second || d.Delay >= 121*time.Second {
		t.Errorf("Delay = %v, want in [120s, 121s)", d.Delay)
	}
	if st.Attempt != 0 {
		t.Errorf("Attempt = %d, hinted 429 must not consume the budget", st.Attempt)
	}
}

func TestClassify_ThrottleHintFractionalSeconds(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig(), 7)
	st := &State{}

	d := p.Classify(st, 429, "0.5", nil)

	if !d.Retry {
		t.Fatalf("hinted 429 must retry, got terminal: %v", d.Reason)
	}
	if d.Delay < 500*time.Millisecond || d.Delay >= 1500*time.Millisecond {
		t.Errorf("Delay = %v, want in [0.5s, 1.5s)", d.Delay)
	}
}

func TestClassify_ThrottleWithoutUsableHint(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
	}{
		{name: "missing hint", retryAfter: ""},
		{name: "http date hint", retryAfter: "Fri, 31 Dec 1999 23:59:59 GMT"},
		{name: "garbage hint", retryAfter: "soon"},
		{name: "negative hint", retryAfter: "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPolicy(t, Config{BaseBackoff: time.Second, MaxBackoff: 60 * time.Second, MaxRetries: 2}, 1)
			st := &State{}

			d := p.Classify(st, 429, tt.retryAfter, nil)

			if !d.Retry {
				t.Fatalf("429 without usable hint should use budgeted backoff, got terminal: %v", d.Reason)
			}
			if st.Attempt != 1 {
				t.Errorf("Attempt = %d, budgeted path must increment to 1", st.Attempt)
			}
		})
	}
}

func TestClassify_ServerErrorExhaustsBudget(t *testing.T) {
	const maxRetries = 3
	p := newTestPolicy(t, Config{BaseBackoff: time.Millisecond, MaxBackoff: time.Second, MaxRetries: maxRetries}, 1)
	st := &State{}

	// maxRetries retryable decisions, then terminal.
	for i := 0; i < maxRetries; i++ {
		d := p.Classify(st, 500, "", nil)
		if !d.Retry {
			t.Fatalf("decision %d: expected retry, got terminal: %v", i, d.Reason)
		}
	}

	d := p.Classify(st, 500, "", nil)
	if d.Retry {
		t.Fatal("expected terminal failure after budget spent, got retry")
	}
	if !errors.Is(d.Reason, ErrRetryExhausted) {
		t.Errorf("Reason = %v, want ErrRetryExhausted", d.Reason)
	}
	if got := d.Reason.Error(); !contains(got, "500") {
		t.Errorf("terminal reason %q should carry the last status 500", got)
	}
}

func TestClassify_TransportErrorBudgeted(t *testing.T) {
	p := newTestPolicy(t, Config{BaseBackoff: time.Millisecond, MaxBackoff: time.Second, MaxRetries: 1}, 1)
	st := &State{}
	cause := errors.New("dial tcp: connection refused")

	d := p.Classify(st, 0, "", cause)
	if !d.Retry {
		t.Fatalf("transport error should be retryable, got terminal: %v", d.Reason)
	}

	d = p.Classify(st, 0, "", cause)
	if d.Retry {
		t.Fatal("expected terminal failure after budget spent")
	}
	if !errors.Is(d.Reason, ErrRetryExhausted) {
		t.Errorf("Reason = %v, want ErrRetryExhausted", d.Reason)
	}
	if !contains(d.Reason.Error(), "connection refused") {
		t.Errorf("terminal reason %q should carry the transport cause", d.Reason.Error())
	}
}

func TestClassify_NonRetryableStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "not found", status: 404},
		{name: "forbidden", status: 403},
		{name: "bad request", status: 400},
		{name: "redirect", status: 301},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPolicy(t, DefaultConfig(), 1)
			st := &State{}

			d := p.Classify(st, tt.status, "", nil)

			if d.Retry {
				t.Fatalf("status %d must be terminal, got retry", tt.status)
			}
			var se *StatusError
			if !errors.As(d.Reason, &se) {
				t.Fatalf("Reason = %v, want *StatusError", d.Reason)
			}
			if se.Status != tt.status {
				t.Errorf("StatusError.Status = %d, want %d", se.Status, tt.status)
			}
			if st.Attempt != 0 {
				t.Errorf("Attempt = %d, terminal statuses must not consume budget", st.Attempt)
			}
		})
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want float64
		ok   bool
	}{
		{name: "integer seconds", val: "120", want: 120, ok: true},
		{name: "fractional seconds", val: "1.5", want: 1.5, ok: true},
		{name: "zero", val: "0", want: 0, ok: true},
		{name: "padded", val: " 30 ", want: 30, ok: true},
		{name: "empty", val: "", ok: false},
		{name: "negative", val: "-1", ok: false},
		{name: "http date", val: "Wed, 21 Oct 2015 07:28:00 GMT", ok: false},
		{name: "garbage", val: "abc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfterSeconds(tt.val)
			if ok != tt.ok {
				t.Fatalf("parseRetryAfterSeconds(%q) ok = %v, want %v", tt.val, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("parseRetryAfterSeconds(%q) = %g, want %g", tt.val, got, tt.want)
			}
		})
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
