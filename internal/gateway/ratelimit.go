package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitWindow and RateLimitRequests implement the spec's "100
// requests / 15 min per source IP" bound on the /api/* surface.
const (
	RateLimitWindow   = 15 * time.Minute
	RateLimitRequests = 100
)

// IPRateLimiter tracks one token-bucket limiter per source IP, refilled
// so that a sustained caller is allowed RateLimitRequests per
// RateLimitWindow. Idle entries are evicted periodically to bound memory.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter constructs a limiter enforcing the spec's default
// bound.
func NewIPRateLimiter() *IPRateLimiter {
	return &IPRateLimiter{limiters: make(map[string]*limiterEntry)}
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[ip]
	if !ok {
		// A burst of RateLimitRequests replenished at the average rate
		// needed to sustain that many requests over the window.
		r := rate.Every(RateLimitWindow / RateLimitRequests)
		e = &limiterEntry{limiter: rate.NewLimiter(r, RateLimitRequests)}
		l.limiters[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Allow reports whether a request from ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.get(ip).Allow()
}

// EvictIdle drops limiter state for IPs that haven't been seen within the
// rate-limit window, preventing unbounded growth under churn. It is
// intended to piggyback on the session-GC timer.
func (l *IPRateLimiter) EvictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.limiters {
		if now.Sub(e.lastSeen) > RateLimitWindow {
			delete(l.limiters, ip)
		}
	}
}

// Middleware enforces the rate limit on every request, returning 429 on
// rejection. Requests are identified by the client's source IP, the
// standard forwarded header is not trusted by default since it can be
// spoofed by a direct client.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := sourceIP(r)
		if !l.Allow(ip) {
			http.Error(w, `{"error":"rate_limited","details":"too many requests"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
