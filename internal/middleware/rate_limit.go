package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles the admin API per client IP. Trusted IPs bypass the
// throttle entirely so the cron driving the tick and monitor endpoints is
// never turned away.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex

	perSec  rate.Limit
	burst   int
	trusted map[string]bool
}

func NewRateLimiter(perSec float64, burst int, trustedIPs []string) *RateLimiter {
	trusted := make(map[string]bool, len(trustedIPs))
	for _, ip := range trustedIPs {
		trusted[ip] = true
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSec),
		burst:    burst,
		trusted:  trusted,
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[ip]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(rl.perSec, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, _ := net.SplitHostPort(r.RemoteAddr)
		if rl.trusted[ip] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.limiterFor(ip).Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
