package session

import (
	"fmt"
	"sync"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// Manager owns every Session a node currently holds, indexed by remote
// NodeID. One manager, one lock, per the node's concurrency model.
type Manager struct {
	mu       sync.RWMutex
	self     *identity.Identity
	sessions map[identity.NodeID]*Session
}

// NewManager constructs an empty Manager for the given local identity.
func NewManager(self *identity.Identity) *Manager {
	return &Manager{
		self:     self,
		sessions: make(map[identity.NodeID]*Session),
	}
}

// CreateOutbound starts a new outbound handshake to remote. It fails if a
// session to that peer already exists.
func (m *Manager) CreateOutbound(remote identity.NodeID) (*Session, HandshakeMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[remote]; exists {
		return nil, HandshakeMessage{}, fmt.Errorf("%w: session to %s already exists", cashewerr.ErrPolicy, remote)
	}

	s, msg, err := NewOutbound(m.self, remote)
	if err != nil {
		return nil, HandshakeMessage{}, err
	}
	m.sessions[remote] = s
	return s, msg, nil
}

// HandleInboundHandshake accepts an inbound handshake init, replacing any
// existing session for that peer (a fresh handshake always wins — it means
// the peer restarted or rekeyed).
func (m *Manager) HandleInboundHandshake(remotePub []byte, init HandshakeMessage) (*Session, HandshakeMessage, error) {
	s, resp, err := AcceptInbound(m.self, remotePub, init)
	if err != nil {
		return nil, HandshakeMessage{}, err
	}

	m.mu.Lock()
	if old, exists := m.sessions[s.RemoteNodeID]; exists {
		old.Close()
	}
	m.sessions[s.RemoteNodeID] = s
	m.mu.Unlock()

	return s, resp, nil
}

// CompleteOutbound finishes the outbound handshake for remote.
func (m *Manager) CompleteOutbound(remote identity.NodeID, remotePub []byte, resp HandshakeMessage) error {
	m.mu.RLock()
	s, exists := m.sessions[remote]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: no pending outbound session to %s", cashewerr.ErrNotFound, remote)
	}
	return s.CompleteOutbound(remotePub, resp)
}

// Get returns the session for a peer, if one exists.
func (m *Manager) Get(remote identity.NodeID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[remote]
	return s, ok
}

// Has reports whether a session exists for a peer.
func (m *Manager) Has(remote identity.NodeID) bool {
	_, ok := m.Get(remote)
	return ok
}

// Close closes and removes the session for a peer, if any.
func (m *Manager) Close(remote identity.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[remote]; ok {
		s.Close()
		delete(m.sessions, remote)
	}
}

// CloseAll closes and removes every session, zeroing all key material.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}

// CleanupTimedOut closes any session that has been idle past the timeout.
func (m *Manager) CleanupTimedOut() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	for id, s := range m.sessions {
		if s.HasTimedOut() {
			s.Close()
			delete(m.sessions, id)
			closed++
		}
	}
	return closed
}

// RekeyDue returns the peers whose sessions are due for a fresh handshake.
func (m *Manager) RekeyDue() []identity.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []identity.NodeID
	for id, s := range m.sessions {
		if s.ShouldRekey() {
			due = append(due, id)
		}
	}
	return due
}

// ActiveCount returns the number of sessions in the Established state.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.State() == Established {
			n++
		}
	}
	return n
}

// ConnectedPeers returns the NodeIDs of every peer with an Established session.
func (m *Manager) ConnectedPeers() []identity.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]identity.NodeID, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s.State() == Established {
			peers = append(peers, id)
		}
	}
	return peers
}
