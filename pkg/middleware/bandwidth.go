package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

// BandwidthLimiter caps the byte rate a session may send, reusing
// golang.org/x/time/rate the same way RateLimiter does for per-IP HTTP
// requests, generalized here to a per-peer byte budget instead of a
// per-IP request count.
type BandwidthLimiter struct {
	limiters map[identity.NodeID]*rate.Limiter
	mu       sync.RWMutex
	bytesPerSecond int
	burst          int
}

// NewBandwidthLimiter constructs a limiter allowing bytesPerSecond
// sustained, bursting up to burst bytes.
func NewBandwidthLimiter(bytesPerSecond, burst int) *BandwidthLimiter {
	return &BandwidthLimiter{
		limiters:       make(map[identity.NodeID]*rate.Limiter),
		bytesPerSecond: bytesPerSecond,
		burst:          burst,
	}
}

func (bl *BandwidthLimiter) getLimiter(peer identity.NodeID) *rate.Limiter {
	bl.mu.RLock()
	limiter, exists := bl.limiters[peer]
	bl.mu.RUnlock()
	if exists {
		return limiter
	}

	bl.mu.Lock()
	defer bl.mu.Unlock()
	limiter, exists = bl.limiters[peer]
	if exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(bl.bytesPerSecond), bl.burst)
	bl.limiters[peer] = limiter
	return limiter
}

// Allow reports whether peer may send n bytes right now without
// exceeding its budget, consuming the allowance if so.
func (bl *BandwidthLimiter) Allow(peer identity.NodeID, n int) bool {
	return bl.getLimiter(peer).AllowN(time.Now(), n)
}

// Cleanup drops every tracked peer's limiter at once, so each peer starts
// again with a full budget. Unlike RateLimiter.Cleanup, which evicts only
// entries idle past rateLimiterIdleTTL, it keeps no last-access time per peer.
func (bl *BandwidthLimiter) Cleanup() {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bl.limiters = make(map[identity.NodeID]*rate.Limiter)
}
