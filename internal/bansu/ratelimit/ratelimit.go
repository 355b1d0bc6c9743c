// Package ratelimit implements a per-IP request throttle, configured via
// burst/period/disable knobs. It is deliberately a thin net/http
// middleware, not a core component: the core never sees rejected requests.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
)

// Config holds the rate-limit knobs.
type Config struct {
	Burst    int
	Period   time.Duration // refill interval per token
	Disabled bool
}

// Limiter hands out a golang.org/x/time/rate.Limiter per client IP,
// evicting entries that have been idle long enough to refill to full burst
// (so the map doesn't grow unbounded under churn from many distinct IPs).
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// Middleware wraps next, rejecting with 429 once an IP's bucket is empty.
// When cfg.Disabled it is a pure passthrough.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l.cfg.Disabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			applog.Warn("rate limit exceeded for %s", ip)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error_message":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		every := rate.Every(l.cfg.Period)
		b = &bucket{limiter: rate.NewLimiter(every, l.cfg.Burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Sweep evicts buckets idle for longer than ttl; callers run it on a
// periodic timer (it is not wired into the request path).
func (l *Limiter) Sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
