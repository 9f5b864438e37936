package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/michaelbrown/crucible/internal/metrics"
)

// RateLimiter throttles execution requests on three axes: a global
// token bucket, a per-client bucket, and a concurrency ceiling.
type RateLimiter struct {
	global        *rate.Limiter
	perIP         sync.Map
	ipRate        rate.Limit
	ipBurst       int
	maxConcurrent int64
	currentConc   int64
	mu            sync.Mutex
}

func NewRateLimiter(globalRPS, perIPRPS float64, perIPBurst, maxConcurrent int) *RateLimiter {
	return &RateLimiter{
		global:        rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS)*2),
		ipRate:        rate.Limit(perIPRPS),
		ipBurst:       perIPBurst,
		maxConcurrent: int64(maxConcurrent),
	}
}

func (rl *RateLimiter) ipLimiter(ip string) *rate.Limiter {
	if l, ok := rl.perIP.Load(ip); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.ipRate, rl.ipBurst)
	actual, _ := rl.perIP.LoadOrStore(ip, l)
	return actual.(*rate.Limiter)
}

// Allow reports whether a request from ip may proceed, reserving a
// concurrency slot on success. Callers must pair it with Done.
func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.global.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}

	if !rl.ipLimiter(ip).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}

	rl.mu.Lock()
	if rl.currentConc >= rl.maxConcurrent {
		rl.mu.Unlock()
		metrics.RateLimitHits.Inc()
		return false
	}
	rl.currentConc++
	rl.mu.Unlock()

	return true
}

func (rl *RateLimiter) Done() {
	rl.mu.Lock()
	if rl.currentConc > 0 {
		rl.currentConc--
	}
	rl.mu.Unlock()
}

// Middleware gates a handler behind the limiter.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !rl.Allow(ip) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		defer rl.Done()

		next.ServeHTTP(w, r)
	})
}

// clientIP keys rate limiting on the connection's address. Forwarding
// headers are client-controlled and would let a caller mint a fresh bucket
// per request, so they are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
