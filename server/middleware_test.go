package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/officer-sync/config"
)

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestTokenAuth(t *testing.T) {
	tests := []struct {
		name           string
		token          string
		header         string
		value          string
		expectedStatus int
	}{
		{"no token configured - allows request", "", "", "", http.StatusOK},
		{"valid header token", "abc123", "X-API-Token", "abc123", http.StatusOK},
		{"valid bearer token", "abc123", "Authorization", "Bearer abc123", http.StatusOK},
		{"bearer is case-insensitive", "abc123", "Authorization", "bearer abc123", http.StatusOK},
		{"invalid header token", "abc123", "X-API-Token", "wrong", http.StatusUnauthorized},
		{"basic auth is not accepted", "abc123", "Authorization", "Basic YWJjMTIz", http.StatusUnauthorized},
		{"missing token", "abc123", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tokenAuth(tt.token)(okHandler)
			req := newRequest(http.MethodPost, "/api/discord/sync-stream")
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401 response")
			}
		})
	}
}

func testLimiter(t *testing.T, enabled bool, burst int) *ipRateLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:         enabled,
		rate:            rate.Limit(1.0 / 60.0),
		burst:           burst,
		cleanupInterval: time.Minute,
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := testLimiter(t, true, 3)
	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request 4 should be denied (rate limit exceeded)")
	}
	if !limiter.allow("192.168.1.2") {
		t.Error("a different IP has its own bucket")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := testLimiter(t, false, 1)
	for i := 0; i < 100; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Fatalf("request %d should be allowed when rate limiter is disabled", i+1)
		}
	}
	if limiter.size() != 0 {
		t.Error("disabled limiter should not track visitors")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := testLimiter(t, true, 1)
	limiter.allow("10.0.0.1")
	limiter.allow("10.0.0.2")
	limiter.cleanup(time.Now())
	if limiter.size() != 2 {
		t.Fatalf("fresh visitors removed: size = %d", limiter.size())
	}
	limiter.cleanup(time.Now().Add(3 * time.Minute))
	if limiter.size() != 0 {
		t.Errorf("stale visitors kept: size = %d", limiter.size())
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	rc := newRateLimiterConfig(&config.Config{RateLimitEnabled: true, RateLimitPerMinute: 12, RateLimitBurst: 0})
	if !rc.enabled || rc.burst != 1 {
		t.Errorf("config = %+v", rc)
	}
	if rc.rate != rate.Limit(0.2) {
		t.Errorf("rate = %v, want 0.2/s", rc.rate)
	}
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	if rc := newRateLimiterConfig(&config.Config{TrustedProxies: proxies}); len(rc.trustedProxies) != 1 || rc.trustedProxies[0] != proxies[0] {
		t.Errorf("trustedProxies = %v, want %v", rc.trustedProxies, proxies)
	}
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trusted    []netip.Prefix
		want       string
	}{
		{"ipv4 with port", "192.0.2.1:1234", "", nil, "192.0.2.1"},
		{"ipv6 with port", "[2001:db8::1]:8080", "", nil, "2001:db8::1"},
		{"no port", "192.0.2.7", "", nil, "192.0.2.7"},
		{"forwarded ignored without trusted proxies", "192.0.2.1:1234", "203.0.113.1", nil, "192.0.2.1"},
		{"forwarded ignored from untrusted peer", "192.0.2.1:1234", "203.0.113.1", proxies, "192.0.2.1"},
		{"trusted proxy", "10.0.0.1:80", "203.0.113.1", proxies, "203.0.113.1"},
		{"spoofed left entry skipped", "10.0.0.1:80", "198.51.100.7, 203.0.113.1, 10.0.0.2", proxies, "203.0.113.1"},
		{"forwarded ipv6", "10.0.0.1:80", "2001:db8::42", proxies, "2001:db8::42"},
		{"malformed hop", "10.0.0.1:80", "203.0.113.1, garbage", proxies, "10.0.0.1"},
		{"only proxies", "10.0.0.1:80", "10.0.0.3, 10.0.0.2", proxies, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "/")
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req, tt.trusted); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitIgnoresRotatedForwardedFor(t *testing.T) {
	h := rateLimit(testLimiter(t, true, 1))(okHandler)
	for i, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := newRequest(http.MethodPost, "/")
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Errorf("request %d with X-Forwarded-For %s: status = %d, want %d", i+1, xff, rr.Code, want)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Run("permissive", func(t *testing.T) {
		h := withCORS(&corsConfig{permissive: true})(okHandler)
		req := newRequest(http.MethodGet, "/")
		req.Header.Set("Origin", "https://anything.test")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})
	t.Run("restricted", func(t *testing.T) {
		h := withCORS(&corsConfig{allowedOrigins: []string{"https://app.example.com", "*.police.test"}})(okHandler)
		for origin, allowed := range map[string]bool{
			"https://app.example.com":  true,
			"https://hq.police.test":   true,
			"https://evil.example.com": false,
		} {
			req := newRequest(http.MethodGet, "/")
			req.Header.Set("Origin", origin)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			got := rr.Header().Get("Access-Control-Allow-Origin")
			if allowed && got != origin {
				t.Errorf("%s: Allow-Origin = %q", origin, got)
			}
			if !allowed && got != "" {
				t.Errorf("%s should be blocked, got %q", origin, got)
			}
		}
	})
	t.Run("preflight", func(t *testing.T) {
		h := withCORS(&corsConfig{permissive: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight reached the handler")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, newRequest(http.MethodOptions, "/api/discord/sync-stream"))
		if rr.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d", rr.Code)
		}
		if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-API-Token") {
			t.Error("X-API-Token must be an allowed header")
		}
	})
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newRequest(http.MethodGet, "/"))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestWithCorrelation(t *testing.T) {
	var seen string
	h := withCorrelation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Correlation-ID")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := newRequest(http.MethodGet, "/")
	req.Header.Set("X-Correlation-ID", "corr-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want reuse of incoming id", got)
	}
	if rr.Code != http.StatusTeapot || seen != "corr-123" {
		t.Errorf("code = %d seen = %q", rr.Code, seen)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newRequest(http.MethodGet, "/"))
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id")
	}
}

func TestStatusRecorderFlush(t *testing.T) {
	inner := newFlushableRecorder()
	rec := &statusRecorder{ResponseWriter: inner, statusCode: http.StatusOK}
	_, _ = rec.Write([]byte("data: {}\n\n"))
	rec.Flush()
	if inner.FlushCount() != 1 {
		t.Errorf("flushes = %d", inner.FlushCount())
	}
	rec.WriteHeader(http.StatusInternalServerError)
	if rec.statusCode != http.StatusOK {
		t.Errorf("status after body = %d, want first status kept", rec.statusCode)
	}
}
