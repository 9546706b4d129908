package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterIdleTTL is how long an IP's limiter survives without a
// request before Cleanup reclaims it, the same idle-eviction idiom
// BandwidthLimiter would use if it tracked last access per peer.
const rateLimiterIdleTTL = 10 * time.Minute

// limiterEntry pairs a per-IP limiter with when it was last consulted, so
// Cleanup can evict idle IPs instead of wiping every IP's budget.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter provides per-IP rate limiting for the node's HTTP surface.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	rps      int
	burst    int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      requestsPerSecond,
		burst:    burst,
	}
}

// getLimiter returns the rate limiter for a given IP
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[ip]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		entry.lastUsed = time.Now()
		rl.mu.Unlock()
		return entry.limiter
	}

	// Create new limiter for this IP
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	entry, exists = rl.limiters[ip]
	if exists {
		entry.lastUsed = time.Now()
		return entry.limiter
	}

	entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst), lastUsed: time.Now()}
	rl.limiters[ip] = entry

	return entry.limiter
}

// Cleanup evicts limiters for IPs that haven't made a request within
// rateLimiterIdleTTL, so a long-running node doesn't accumulate one
// limiter per IP it has ever seen.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rateLimiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware returns an HTTP middleware function for rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get client IP
		ip := getClientIP(r)

		// Get limiter for this IP
		limiter := rl.getLimiter(ip)

		// Check rate limit
		if !limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		// Continue to next handler
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// Take the first IP if multiple
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
