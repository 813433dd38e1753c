// Per-IP token bucket for the read API.
package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter tracks one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	perSec   rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSec requests per second per IP with the given burst.
// A non-positive perSec disables limiting.
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Limit(perSec)
	if perSec <= 0 {
		lim = rate.Inf
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		perSec:   lim,
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.limiters[ip]
	if !ok {
		rl.sweepLocked(now)
		v = &visitor{limiter: rate.NewLimiter(rl.perSec, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweepLocked drops visitors idle longer than rl.idle. It runs on insert so
// the map stays bounded without a background goroutine.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for ip, v := range rl.limiters {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.limiters, ip)
		}
	}
}

// retryAfter is the whole number of seconds until one token is available.
func (rl *RateLimiter) retryAfter() int {
	if rl.perSec == rate.Inf || rl.perSec <= 0 {
		return 1
	}
	return int(1/float64(rl.perSec)) + 1
}

// clientIP keys visitors on the connection's peer address. Forwarding
// headers are client-controlled and are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware returns 429 with Retry-After once a client exceeds its bucket.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
