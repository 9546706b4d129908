// Package contribution implements the proof-of-stake-style contribution
// engine: tracking each node's uptime, bandwidth, storage and routing
// reliability, scoring it every epoch, and issuing KeyRewards.
//
// Grounded on original_source/src/core/postake/postake.hpp (the cashew
// predecessor's PoStake engine) — the five weighted dimensions, the
// KeyEarningRate table and process_epoch/calculate_epoch_rewards are
// carried over in meaning — expressed in the idiom the teacher uses
// throughout (a struct with one sync.RWMutex and a map, exported methods
// take the lock), since nothing in the teacher repo itself implements a
// reward engine.
package contribution

import (
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

// Metrics accumulates one node's raw contribution counters.
type Metrics struct {
	TotalUptime time.Duration
	LastSeen    time.Time
	FirstSeen   time.Time

	BytesRouted   uint64
	BytesSent     uint64
	BytesReceived uint64

	ThingsHosted       int
	StorageBytesProvided uint64

	SuccessfulRoutes int
	FailedRoutes     int

	EpochsWitnessed int
	EpochsMissed    int

	online        bool
	onlineSince   time.Time
}

// RoutingReliability is successful / (successful + failed), defaulting to
// 1.0 when the node has not routed anything yet (optimistic default).
func (m Metrics) RoutingReliability() float64 {
	total := m.SuccessfulRoutes + m.FailedRoutes
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulRoutes) / float64(total)
}

// Tracker owns every node's Metrics behind a single RWMutex, following the
// teacher's directory.Service shape.
type Tracker struct {
	mu      sync.RWMutex
	metrics map[identity.NodeID]*Metrics
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{metrics: make(map[identity.NodeID]*Metrics)}
}

func (t *Tracker) entry(id identity.NodeID) *Metrics {
	m, ok := t.metrics[id]
	if !ok {
		m = &Metrics{FirstSeen: time.Now()}
		t.metrics[id] = m
	}
	return m
}

// RecordOnline marks a node as having come online now.
func (t *Tracker) RecordOnline(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.entry(id)
	m.online = true
	m.onlineSince = time.Now()
	m.LastSeen = time.Now()
}

// RecordOffline marks a node as having gone offline, folding the elapsed
// online interval into TotalUptime.
func (t *Tracker) RecordOffline(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.entry(id)
	if m.online {
		m.TotalUptime += time.Since(m.onlineSince)
		m.online = false
	}
	m.LastSeen = time.Now()
}

// updateUptimeLocked folds any elapsed online interval into TotalUptime without
// changing online state, so GetMetrics can report live uptime.
func (t *Tracker) updateUptimeLocked(m *Metrics) {
	if m.online {
		m.TotalUptime += time.Since(m.onlineSince)
		m.onlineSince = time.Now()
	}
}

// RecordBytesRouted adds to a node's routed-byte counter.
func (t *Tracker) RecordBytesRouted(id identity.NodeID, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(id).BytesRouted += n
}

// RecordTraffic adds to a node's sent/received byte counters.
func (t *Tracker) RecordTraffic(id identity.NodeID, sent, received uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.entry(id)
	m.BytesSent += sent
	m.BytesReceived += received
}

// RecordThingHosted adjusts the count of Things a node advertises hosting.
func (t *Tracker) RecordThingHosted(id identity.NodeID, delta int, storageBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.entry(id)
	m.ThingsHosted += delta
	if storageBytes >= 0 {
		m.StorageBytesProvided += uint64(storageBytes)
	} else if uint64(-storageBytes) <= m.StorageBytesProvided {
		m.StorageBytesProvided -= uint64(-storageBytes)
	}
}

// RecordSuccessfulRoute increments a node's successful-route counter.
func (t *Tracker) RecordSuccessfulRoute(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(id).SuccessfulRoutes++
}

// RecordFailedRoute increments a node's failed-route counter.
func (t *Tracker) RecordFailedRoute(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(id).FailedRoutes++
}

// RecordEpochWitness marks that a node actively participated in an epoch.
func (t *Tracker) RecordEpochWitness(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(id).EpochsWitnessed++
}

// RecordEpochMissed marks that a node failed to participate in an epoch.
func (t *Tracker) RecordEpochMissed(id identity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(id).EpochsMissed++
}

// GetMetrics returns a snapshot of a node's metrics, folding in any live
// partial uptime if the node is currently online.
func (t *Tracker) GetMetrics(id identity.NodeID) (Metrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.metrics[id]
	if !ok {
		return Metrics{}, false
	}
	t.updateUptimeLocked(m)
	return *m, true
}

// ActiveContributors returns nodes last seen within the given window.
func (t *Tracker) ActiveContributors(window time.Duration) []identity.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var active []identity.NodeID
	for id, m := range t.metrics {
		if m.online || m.LastSeen.After(cutoff) {
			active = append(active, id)
		}
	}
	return active
}

// CleanupInactiveNodes removes any node not seen within threshold,
// defaulting to 24 hours when threshold is zero.
func (t *Tracker) CleanupInactiveNodes(threshold time.Duration) int {
	if threshold == 0 {
		threshold = 86400 * time.Second
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	removed := 0
	for id, m := range t.metrics {
		if !m.online && m.LastSeen.Before(cutoff) {
			delete(t.metrics, id)
			removed++
		}
	}
	return removed
}
