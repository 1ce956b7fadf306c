package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/onnwee/officer-sync/config"
	"github.com/onnwee/officer-sync/telemetry"
)

// statusRecorder wraps ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.written {
		r.statusCode = statusCode
		r.written = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// withCorrelation reuses or generates X-Correlation-ID, opens a server span and
// logs one access line per request.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		// chi fills the route pattern while routing.
		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetAttributes(telemetry.HTTPRouteAttr(pattern))
			}
		}
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)

		level := slog.LevelInfo
		switch {
		case rec.statusCode >= 500:
			level = slog.LevelError
		case rec.statusCode >= 400:
			level = slog.LevelWarn
		}
		telemetry.LoggerWithCorr(ctx).Log(ctx, level, "http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("component", "http"))
	})
}

// recoverer turns a handler panic into a 500. Once a stream has started the
// status cannot change; the connection is closed instead.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				telemetry.LoggerWithCorr(r.Context()).Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsConfig holds CORS configuration
type corsConfig struct {
	allowedOrigins []string
	permissive     bool // dev mode: allow all
}

func newCORSConfig(cfg *config.Config) *corsConfig {
	c := &corsConfig{permissive: cfg.CORSPermissive, allowedOrigins: cfg.CORSAllowedOrigins}
	if !c.permissive && len(c.allowedOrigins) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return c
}

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-API-Token, X-Correlation-ID"
)

// withCORS sets CORS headers and answers preflight requests.
func withCORS(cfg *corsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if cfg.permissive {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", corsMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			} else if origin != "" && isOriginAllowed(origin, cfg.allowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", corsMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed checks if an origin is in the allowed list.
// Entries like "*.example.com" match any subdomain.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			domain := allowed[2:]
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain || origin == "http://"+domain {
				return true
			}
		}
	}
	return false
}

// tokenAuth guards a route with a shared token sent as X-API-Token or a Bearer
// Authorization header. An empty token disables the check.
func tokenAuth(token string) func(http.Handler) http.Handler {
	if token == "" {
		slog.Warn("SYNC_API_TOKEN not set - sync endpoint is UNPROTECTED")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get("X-API-Token")
			if got == "" {
				if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
					got = strings.TrimSpace(h[7:])
				}
			}
			if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			telemetry.IncCounter(telemetry.JobsRejected)
			w.Header().Set("WWW-Authenticate", `Bearer realm="officer-sync"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			telemetry.LoggerWithCorr(r.Context()).Warn("sync auth failed",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))
		})
	}
}

// rateLimiterConfig holds rate limiting configuration
type rateLimiterConfig struct {
	enabled         bool
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration
	trustedProxies  []netip.Prefix
}

func newRateLimiterConfig(cfg *config.Config) *rateLimiterConfig {
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiterConfig{
		enabled:         cfg.RateLimitEnabled,
		rate:            rate.Limit(float64(perMinute) / 60.0),
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		trustedProxies:  cfg.TrustedProxies,
	}
}

type visitor struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      *rateLimiterConfig
}

// newIPRateLimiter starts a cleanup goroutine that lives as long as ctx.
func newIPRateLimiter(ctx context.Context, cfg *rateLimiterConfig) *ipRateLimiter {
	rl := &ipRateLimiter{visitors: make(map[string]*visitor), cfg: cfg}
	go rl.cleanupLoop(ctx)
	return rl
}

func (rl *ipRateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// cleanup drops visitors idle for more than two cleanup intervals.
func (rl *ipRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastAccess) > rl.cfg.cleanupInterval*2 {
			delete(rl.visitors, ip)
		}
	}
}

// allow reports whether a request from ip may proceed.
func (rl *ipRateLimiter) allow(ip string) bool {
	if !rl.cfg.enabled {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.cfg.rate, rl.cfg.burst)}
		rl.visitors[ip] = v
	}
	v.lastAccess = time.Now()
	return v.limiter.Allow()
}

func (rl *ipRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// rateLimit rejects clients that exceed their bucket with 429 and Retry-After.
func rateLimit(limiter *ipRateLimiter) func(http.Handler) http.Handler {
	retryAfter := 60
	if limiter.cfg.rate > 0 {
		retryAfter = int(math.Ceil(1.0 / float64(limiter.cfg.rate)))
	}
	if retryAfter < 1 {
		retryAfter = 1
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, limiter.cfg.trustedProxies)
			if !limiter.allow(ip) {
				telemetry.IncCounter(telemetry.JobsRejected)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too Many Requests - rate limit exceeded", http.StatusTooManyRequests)
				telemetry.LoggerWithCorr(r.Context()).Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address the rate limiter keys on. X-Forwarded-For is read
// only when the peer is a trusted proxy; the result is then the right-most entry
// that is not itself a trusted proxy.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := hostOnly(r.RemoteAddr)
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil || !isTrusted(peerAddr, trusted) {
		return peer
	}
	forwarded := r.Header.Values("X-Forwarded-For")
	if len(forwarded) == 0 {
		return peer
	}
	hops := strings.Split(strings.Join(forwarded, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := hostOnly(strings.TrimSpace(hops[i]))
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			// Anything left of a malformed hop is unverifiable.
			return peer
		}
		if !isTrusted(addr, trusted) {
			return addr.Unmap().String()
		}
	}
	return peer
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
