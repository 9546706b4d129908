// Package peermanager tracks the peer population a node knows about and
// decides which of them to keep sessions open with.
//
// Grounded on the teacher's pkg/directory/service.go: a single RWMutex
// guarding a map of peers plus a periodic HealthCheck sweep. Here the
// directory's single "all registered nodes" map is split into the three
// sets the spec's Peer Manager names (bootstrap/discovered/active), and
// "healthy" becomes "active" (has a live session and has been seen inside
// the idle timeout) rather than directory's 5-minute last-seen cutoff.
// The teacher's ConsistentHashRing/GetSwarmNodes swarm-assignment logic is
// deliberately not carried here — content routing is handled by
// pkg/router.Table's flat index instead of swarm replica placement.
package peermanager

import (
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

// Policy mirrors config.ConnectionPolicy with defaults already applied.
type Policy struct {
	MinConnections    int
	MaxConnections    int
	TargetConnections int
	IdleTimeout       time.Duration
	MaintenanceEvery  time.Duration
}

// DefaultPolicy matches pkg/config's applyDefaults values.
func DefaultPolicy() Policy {
	return Policy{
		MinConnections:    4,
		MaxConnections:    64,
		TargetConnections: 16,
		IdleTimeout:       1800 * time.Second,
		MaintenanceEvery:  10 * time.Second,
	}
}

// PeerInfo is what the manager knows about one peer.
type PeerInfo struct {
	ID         identity.NodeID
	Address    string
	Bootstrap  bool
	Active     bool
	LastSeen   time.Time
	Discovered time.Time
}

// Dialer opens an outbound connection to a peer; supplied by the
// transport layer so the Manager stays transport-agnostic, the same
// separation the teacher keeps between pkg/directory and pkg/swarm.
type Dialer func(id identity.NodeID, address string) error

// Manager tracks bootstrap, discovered, and active peers under one lock,
// the same coarse-locking shape as directory.Service.
type Manager struct {
	mu     sync.RWMutex
	peers  map[identity.NodeID]*PeerInfo
	policy Policy
	dial   Dialer
}

// NewManager constructs a Manager. dial may be nil if the caller only
// wants bookkeeping (e.g. in tests).
func NewManager(policy Policy, dial Dialer) *Manager {
	return &Manager{peers: make(map[identity.NodeID]*PeerInfo), policy: policy, dial: dial}
}

// AddBootstrap registers a bootstrap peer, present from node startup.
func (m *Manager) AddBootstrap(id identity.NodeID, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[id] = &PeerInfo{ID: id, Address: address, Bootstrap: true, Discovered: time.Now()}
}

// AddDiscovered registers a peer learned via gossip peer announcements.
func (m *Manager) AddDiscovered(id identity.NodeID, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.peers[id]; exists {
		return
	}
	m.peers[id] = &PeerInfo{ID: id, Address: address, Discovered: time.Now()}
}

// MarkActive records that a session with id is now established.
func (m *Manager) MarkActive(id identity.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		p.Active = true
		p.LastSeen = time.Now()
	}
}

// MarkSeen refreshes a peer's last-seen time without changing its active state.
func (m *Manager) MarkSeen(id identity.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		p.LastSeen = time.Now()
	}
}

// MarkInactive records that a session with id has closed.
func (m *Manager) MarkInactive(id identity.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		p.Active = false
	}
}

// Remove drops a peer entirely.
func (m *Manager) Remove(id identity.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
}

// Get returns a copy of one peer's info.
func (m *Manager) Get(id identity.NodeID) (PeerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return *p, true
}

// ActivePeers returns every peer currently marked active.
func (m *Manager) ActivePeers() []PeerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PeerInfo
	for _, p := range m.peers {
		if p.Active {
			out = append(out, *p)
		}
	}
	return out
}

// ActiveCount returns the number of active peers.
func (m *Manager) ActiveCount() int {
	return len(m.ActivePeers())
}

// DiscoveredPeers returns every non-bootstrap, non-active peer the
// manager knows about but has not yet connected to.
func (m *Manager) DiscoveredPeers() []PeerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PeerInfo
	for _, p := range m.peers {
		if !p.Active && !p.Bootstrap {
			out = append(out, *p)
		}
	}
	return out
}

// BelowTarget reports whether the active peer count is under the policy's
// target, meaning the manager should dial more peers.
func (m *Manager) BelowTarget() bool {
	return m.ActiveCount() < m.policy.TargetConnections
}

// AboveMax reports whether the active peer count exceeds the policy's
// maximum, meaning some active peers should be dropped.
func (m *Manager) AboveMax() bool {
	return m.ActiveCount() > m.policy.MaxConnections
}

// EnsureTarget dials discovered (and bootstrap) peers until the active
// count reaches the policy's target, or there is nobody left to try.
func (m *Manager) EnsureTarget() {
	if m.dial == nil {
		return
	}
	for m.BelowTarget() {
		candidate, ok := m.nextDialCandidate()
		if !ok {
			return
		}
		if err := m.dial(candidate.ID, candidate.Address); err == nil {
			m.MarkActive(candidate.ID)
		}
	}
}

func (m *Manager) nextDialCandidate() (PeerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.peers {
		if !p.Active {
			return *p, true
		}
	}
	return PeerInfo{}, false
}

// PruneIdle marks inactive every active peer that has not been seen within
// the policy's idle timeout and returns their ids; the peers stay known to
// the manager. It mirrors directory.Service.HealthCheck's cutoff sweep but
// acts on "idle too long" rather than "unhealthy".
func (m *Manager) PruneIdle() []identity.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.policy.IdleTimeout)
	var pruned []identity.NodeID
	for id, p := range m.peers {
		if p.Active && p.LastSeen.Before(cutoff) {
			p.Active = false
			pruned = append(pruned, id)
		}
	}
	return pruned
}

// MaintenanceLoop runs EnsureTarget and PruneIdle on the policy's
// maintenance interval until stop is closed.
func (m *Manager) MaintenanceLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.policy.MaintenanceEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.PruneIdle()
			m.EnsureTarget()
		}
	}
}
