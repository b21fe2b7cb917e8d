// Throttling for the admin control plane. Shock injection mutates shared
// simulation state, so each caller gets a per-IP allowance per window.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter grants each IP a fixed allowance of requests per window.
type RateLimiter struct {
	mu     sync.Mutex
	seen   map[string]*visitor
	limit  int
	window time.Duration
}

type visitor struct {
	used  int
	since time.Time
}

// NewRateLimiter allows limit requests per window for each caller.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		seen:   make(map[string]*visitor),
		limit:  limit,
		window: window,
	}
	go rl.prune()
	return rl
}

// Take consumes one slot for the caller. When the allowance is spent it
// returns false and the time left until the window rolls over.
func (rl *RateLimiter) Take(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.seen[ip]
	if !ok || now.Sub(v.since) >= rl.window {
		rl.seen[ip] = &visitor{used: 1, since: now}
		return true, 0
	}
	if v.used < rl.limit {
		v.used++
		return true, 0
	}
	return false, rl.window - now.Sub(v.since)
}

// prune drops idle visitors so one-off callers do not accumulate forever.
func (rl *RateLimiter) prune() {
	for range time.Tick(time.Hour) {
		rl.mu.Lock()
		now := time.Now()
		for ip, v := range rl.seen {
			if now.Sub(v.since) > 2*rl.window {
				delete(rl.seen, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// clientIP extracts the caller's IP, honoring X-Forwarded-For from proxies.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP if comma-separated.
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware rejects callers over their allowance with a 429 and a
// Retry-After hint.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Take(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
