package main

import (
	"fmt"

	"github.com/cashew-network/cashew-node/pkg/gossip"
	"github.com/cashew-network/cashew-node/pkg/revocation"
)

// BroadcastRevocation accepts a locally authored Revocation, stores it,
// and originates its gossip dissemination. The caller is responsible for
// having already called revocation.SignRevocation.
func (n *Node) BroadcastRevocation(rev revocation.Revocation) error {
	if !revocation.VerifyRevocation(rev) {
		return fmt.Errorf("broadcast revocation: signature does not verify")
	}
	if err := n.revocations.ProcessRevocation(rev); err != nil {
		return fmt.Errorf("broadcast revocation: %w", err)
	}
	if err := n.contentStore.PersistRevocation(rev); err != nil {
		return fmt.Errorf("broadcast revocation: %w", err)
	}

	payload, err := EncodeRevocation(rev)
	if err != nil {
		return fmt.Errorf("broadcast revocation: %w", err)
	}
	return n.gossipProto.BroadcastMessage(gossip.KeyRevocationMsg, payload)
}
