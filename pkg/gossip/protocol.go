package gossip

import (
	"math/rand"
	"sync"

	"github.com/cashew-network/cashew-node/pkg/identity"
)

// DefaultFanout is how many peers a freshly-propagated message is sent to.
const DefaultFanout = 3

// Sender delivers an encoded GossipMessage to one peer. Implemented by the
// transport layer; gossip itself never dials a connection.
type Sender func(peer identity.NodeID, encoded []byte) error

// Handler processes a GossipMessage's payload for one MessageType.
type Handler func(from identity.NodeID, msg GossipMessage)

// Protocol runs the receive/dedup/forward epidemic broadcast loop described
// by spec §4.2, grounded on the teacher onion router's replay-cache +
// forward-decision shape, generalized from a single HMAC check to the full
// gossip acceptance rule (unseen, fresh, under the hop limit).
type Protocol struct {
	mu       sync.RWMutex
	self     identity.NodeID
	seen     *SeenCache
	fanout   int
	peers    map[identity.NodeID]struct{}
	handlers map[MessageType]Handler
	send     Sender
}

// NewProtocol constructs a Protocol for the local node.
func NewProtocol(self identity.NodeID, send Sender, maxSeen int) *Protocol {
	return &Protocol{
		self:     self,
		seen:     NewSeenCache(maxSeen),
		fanout:   DefaultFanout,
		peers:    make(map[identity.NodeID]struct{}),
		handlers: make(map[MessageType]Handler),
		send:     send,
	}
}

// SetFanout overrides the default fanout.
func (p *Protocol) SetFanout(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fanout = n
}

// RegisterHandler installs the callback invoked for a given MessageType
// after a message has been accepted for local delivery.
func (p *Protocol) RegisterHandler(t MessageType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = h
}

// UnregisterHandler removes a previously registered handler.
func (p *Protocol) UnregisterHandler(t MessageType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, t)
}

// AddPeer makes a peer eligible to be selected as a fanout target.
func (p *Protocol) AddPeer(id identity.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[id] = struct{}{}
}

// RemovePeer makes a peer ineligible for fanout selection.
func (p *Protocol) RemovePeer(id identity.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, id)
}

// PeerCount returns how many peers are currently eligible for fanout.
func (p *Protocol) PeerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers)
}

// SeenMessageCount returns how many distinct message ids are recorded.
func (p *Protocol) SeenMessageCount() int {
	return p.seen.Len()
}

// CleanupOldSeenMessages ages out stale seen-cache entries; intended for a
// periodic ticker goroutine, mirroring the teacher router's
// cleanupReplayCache loop.
func (p *Protocol) CleanupOldSeenMessages() int {
	return p.seen.Cleanup()
}

// getRandomPeers returns up to n distinct peers other than exclude, in a
// random order, without replacement.
func (p *Protocol) getRandomPeers(n int, exclude identity.NodeID) []identity.NodeID {
	p.mu.RLock()
	candidates := make([]identity.NodeID, 0, len(p.peers))
	for id := range p.peers {
		if id != exclude {
			candidates = append(candidates, id)
		}
	}
	p.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// BroadcastMessage originates and propagates a new message authored
// locally: builds the envelope, marks it seen, dispatches to the local
// handler if any, and fans out to peers.
func (p *Protocol) BroadcastMessage(t MessageType, payload []byte) error {
	msg := NewMessage(p.self, t, payload)
	p.seen.Record(msg.ID)
	p.dispatchLocal(p.self, msg)
	return p.forward(msg)
}

// ReceiveMessage implements the full acceptance rule from a remote peer:
// accept and propagate iff the message is unseen, not too old, and has not
// exceeded the hop limit. Returns true if the message was newly accepted.
func (p *Protocol) ReceiveMessage(from identity.NodeID, msg GossipMessage) (bool, error) {
	if msg.IsTooOld() || msg.HasExceededHops() {
		return false, nil
	}
	if !p.seen.Record(msg.ID) {
		return false, nil
	}

	p.dispatchLocal(from, msg)

	msg.HopCount++
	if msg.HasExceededHops() {
		return true, nil
	}
	return true, p.forward(msg)
}

func (p *Protocol) dispatchLocal(from identity.NodeID, msg GossipMessage) {
	p.mu.RLock()
	h, ok := p.handlers[msg.Type]
	p.mu.RUnlock()
	if ok {
		h(from, msg)
	}
}

func (p *Protocol) forward(msg GossipMessage) error {
	targets := p.getRandomPeers(p.fanout, p.self)
	encoded := Encode(msg)

	var firstErr error
	for _, peer := range targets {
		if err := p.send(peer, encoded); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
