package main

import (
	"fmt"

	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/session"
)

// dialPeer implements peermanager.Dialer: it opens an outbound session to
// id at address, completing the full Session Layer handshake before
// reporting success back to the peer manager.
func (n *Node) dialPeer(id identity.NodeID, address string) error {
	if n.client == nil {
		return fmt.Errorf("dial %s: transport client unavailable", id)
	}

	_, init, err := n.sessions.CreateOutbound(id)
	if err != nil {
		return fmt.Errorf("dial %s: %w", id, err)
	}

	respFrame, err := n.client.SendHandshake(address, session.EncodeHandshake(init))
	if err != nil {
		n.sessions.Close(id)
		return fmt.Errorf("dial %s: handshake request failed: %w", id, err)
	}

	resp, err := session.DecodeHandshake(respFrame)
	if err != nil {
		n.sessions.Close(id)
		return fmt.Errorf("dial %s: malformed handshake response: %w", id, err)
	}

	remotePub, ok := n.lookupIdentityKey(id)
	if !ok {
		n.sessions.Close(id)
		return fmt.Errorf("dial %s: no known identity key to verify handshake response", id)
	}

	if err := n.sessions.CompleteOutbound(id, remotePub, resp); err != nil {
		n.sessions.Close(id)
		return fmt.Errorf("dial %s: %w", id, err)
	}

	n.gossipProto.AddPeer(id)
	n.activityMon.OnSessionEstablished(id)
	return nil
}
