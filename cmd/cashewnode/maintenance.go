package main

import (
	"log"
	"time"
)

// epochDuration is how often the contribution Engine closes an epoch and
// issues capability keys to qualifying nodes.
const epochDuration = 1 * time.Hour

// activeWindow bounds how far back ProcessEpoch looks when deciding which
// nodes were active enough to be scored this epoch.
const activeWindow = 5 * time.Minute

// maintenanceLoop runs every periodic sweep this node needs that isn't
// already owned by another package's own ticker goroutine (sessions,
// gossip's seen cache, the routing table, revocations, rate limiters, and
// epoch processing).
func (n *Node) maintenanceLoop() {
	sessionTicker := time.NewTicker(5 * time.Minute)
	gossipTicker := time.NewTicker(1 * time.Minute)
	tableTicker := time.NewTicker(10 * time.Minute)
	revocationTicker := time.NewTicker(1 * time.Hour)
	limiterTicker := time.NewTicker(10 * time.Minute)
	epochTicker := time.NewTicker(epochDuration)
	defer sessionTicker.Stop()
	defer gossipTicker.Stop()
	defer tableTicker.Stop()
	defer revocationTicker.Stop()
	defer limiterTicker.Stop()
	defer epochTicker.Stop()

	var epoch uint64

	for {
		select {
		case <-n.stop:
			return
		case <-sessionTicker.C:
			if closed := n.sessions.CleanupTimedOut(); closed > 0 {
				log.Printf("maintenance: closed %d idle sessions", closed)
			}
		case <-gossipTicker.C:
			n.gossipProto.CleanupOldSeenMessages()
		case <-tableTicker.C:
			n.routerTable.CleanupStale()
			// RequestContent enforces its own RequestTimeout independently
			// via its select statement; this sweep only reclaims entries
			// for callers that gave up without ever reading the result.
			for _, id := range n.pending.TimedOut() {
				n.pending.RetryOrExpire(id)
			}
		case <-revocationTicker.C:
			n.revocations.CleanupExpired()
		case <-limiterTicker.C:
			if n.rateLimit != nil {
				n.rateLimit.Cleanup()
			}
			n.bandwidth.Cleanup()
		case <-epochTicker.C:
			rewards, err := n.contribEngine.ProcessEpoch(epoch, activeWindow)
			if err != nil {
				log.Printf("maintenance: epoch %d processing failed: %v", epoch, err)
			} else {
				log.Printf("maintenance: epoch %d issued %d key rewards", epoch, len(rewards))
			}
			epoch++
		}
	}
}
