package main

import (
	"fmt"
	"log"
	"time"

	"github.com/cashew-network/cashew-node/pkg/gossip"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// sendGossip implements gossip.Sender: it looks up a peer's current
// address and delivers an already-encoded GossipMessage to it.
func (n *Node) sendGossip(peer identity.NodeID, encoded []byte) error {
	info, ok := n.peers.Get(peer)
	if !ok || info.Address == "" {
		return fmt.Errorf("gossip send: no address known for peer %s", peer)
	}
	if n.client == nil {
		return fmt.Errorf("gossip send: transport client unavailable")
	}
	return n.client.SendGossip(info.Address, encoded)
}

// buildPeerAnnouncement is the gossip.Scheduler's payload builder for this
// node's own periodic PeerAnnouncement.
func (n *Node) buildPeerAnnouncement() []byte {
	ann := PeerAnnouncement{
		NodeID:    n.selfID,
		PublicKey: n.self.PublicKey,
		OnionKey:  n.onionKey.pub,
		Address:   n.cfg.PublicAddress,
		Capabilities: NodeCapabilities{
			Host:            n.cfg.Storage.Backend != "",
			Route:           true,
			Storage:         n.cfg.Storage.Backend != "",
			StorageCapacity: uint64(n.cfg.Storage.MaxSizeGB) << 30,
			BandwidthMbps:   uint64(n.cfg.ConnectionPolicy.MaxConnections),
		},
		Timestamp: time.Now(),
	}
	ann.Sign(n.self)

	data, err := EncodePeerAnnouncement(ann)
	if err != nil {
		log.Printf("gossip: failed to encode peer announcement: %v", err)
		return nil
	}
	return data
}

// buildNetworkStateUpdate is the gossip.Scheduler's payload builder for
// this node's own periodic NetworkStateUpdate.
func (n *Node) buildNetworkStateUpdate() []byte {
	update := NetworkStateUpdate{
		NodeID:          n.selfID,
		ActivePeers:     uint32(n.peers.ActiveCount()),
		KnownContent:    uint32(n.routerTable.ContentIndexSize()),
		RevocationCount: uint32(n.revocations.RevocationCount()),
		Timestamp:       time.Now(),
	}
	update.Sign(n.self)

	data, err := EncodeNetworkStateUpdate(update)
	if err != nil {
		log.Printf("gossip: failed to encode network state update: %v", err)
		return nil
	}
	return data
}

func (n *Node) handleNetworkStateUpdate(from identity.NodeID, msg gossip.GossipMessage) {
	update, err := DecodeNetworkStateUpdate(msg.Payload)
	if err != nil {
		log.Printf("gossip: malformed network state update: %v", err)
		return
	}
	originatorPub, ok := n.lookupIdentityKey(update.NodeID)
	if !ok || !update.Verify(originatorPub) {
		log.Printf("gossip: network state update from %s failed verification", update.NodeID)
		return
	}
	n.peers.MarkSeen(update.NodeID)
}
