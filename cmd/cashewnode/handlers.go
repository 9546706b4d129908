package main

import (
	"fmt"
	"log"

	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/gossip"
	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/onion"
	"github.com/cashew-network/cashew-node/pkg/router"
	"github.com/cashew-network/cashew-node/pkg/session"
)

// sessionHandler answers inbound Session Layer handshakes.
type sessionHandler struct{ n *Node }

func (h sessionHandler) HandleHandshake(frame []byte) ([]byte, error) {
	return h.n.handleHandshake(frame)
}

func (n *Node) handleHandshake(frame []byte) ([]byte, error) {
	init, err := session.DecodeHandshake(frame)
	if err != nil {
		return nil, err
	}
	remotePub, ok := n.lookupIdentityKey(init.NodeID)
	if !ok {
		return nil, fmt.Errorf("handshake from unannounced node %s", init.NodeID)
	}

	_, resp, err := n.sessions.HandleInboundHandshake(remotePub, init)
	if err != nil {
		return nil, err
	}

	n.peers.AddDiscovered(init.NodeID, "")
	n.peers.MarkActive(init.NodeID)
	n.gossipProto.AddPeer(init.NodeID)
	n.activityMon.OnSessionEstablished(init.NodeID)

	return session.EncodeHandshake(resp), nil
}

// gossipHandler processes inbound Gossip Layer messages.
type gossipHandler struct{ n *Node }

func (h gossipHandler) HandleGossip(frame []byte) error {
	msg, err := gossip.Decode(frame)
	if err != nil {
		return err
	}
	// The HTTP transport does not surface which peer dialed us, so the
	// immediate sender is unknown here; passing the zero NodeID only
	// costs an extra fanout attempt back at that peer, which the seen
	// cache already absorbs.
	_, err = h.n.gossipProto.ReceiveMessage(identity.NodeID{}, msg)
	return err
}

func (n *Node) handlePeerAnnouncement(from identity.NodeID, msg gossip.GossipMessage) {
	ann, err := DecodePeerAnnouncement(msg.Payload)
	if err != nil {
		log.Printf("gossip: malformed peer announcement: %v", err)
		return
	}
	if !ann.Verify() {
		log.Printf("gossip: peer announcement from %s failed verification", ann.NodeID)
		return
	}

	n.rememberIdentityKey(ann.NodeID, ann.PublicKey)
	n.rememberOnionKey(ann.NodeID, ann.OnionKey)

	if ann.NodeID != n.selfID {
		n.peers.AddDiscovered(ann.NodeID, ann.Address)
	}
}

func (n *Node) handleContentAnnouncement(from identity.NodeID, msg gossip.GossipMessage) {
	ann, err := DecodeContentAnnouncement(msg.Payload)
	if err != nil {
		log.Printf("gossip: malformed content announcement: %v", err)
		return
	}

	hostPub, ok := n.lookupIdentityKey(ann.HostingNode)
	if !ok || !ann.Verify(hostPub) {
		log.Printf("gossip: content announcement from %s failed verification", ann.HostingNode)
		return
	}

	n.routerTable.AdvertiseContent(ann.HostingNode, ann.ContentHash)
	if err := n.contentStore.PersistAdvertisement(ann.HostingNode, ann.ContentHash); err != nil {
		log.Printf("storage: failed to persist advertisement: %v", err)
	}
}

func (n *Node) handleGossipRevocation(from identity.NodeID, msg gossip.GossipMessage) {
	rev, err := DecodeRevocation(msg.Payload)
	if err != nil {
		log.Printf("gossip: malformed revocation: %v", err)
		return
	}
	if err := n.revocations.ProcessRevocation(rev); err != nil {
		log.Printf("revocation: rejected from gossip: %v", err)
		return
	}
	if err := n.contentStore.PersistRevocation(rev); err != nil {
		log.Printf("storage: failed to persist revocation: %v", err)
	}
}

// revocationHandler processes inbound direct (non-gossip) key revocations.
type revocationHandler struct{ n *Node }

func (h revocationHandler) HandleRevocation(frame []byte) error {
	rev, err := DecodeRevocation(frame)
	if err != nil {
		return err
	}
	if err := h.n.revocations.ProcessRevocation(rev); err != nil {
		return err
	}
	return h.n.contentStore.PersistRevocation(rev)
}

// routerRequestHandler processes inbound ContentRequest frames, always
// carried as a single onion layer addressed to this node. Each hop peels
// its own layer, decides forward/serve/drop against its own router.Table,
// and — if forwarding — re-wraps a fresh single-hop layer to the next hop
// rather than relying on a requester-built multi-hop circuit.
type routerRequestHandler struct{ n *Node }

func (h routerRequestHandler) HandleRequest(frame []byte) error {
	return h.n.handleRouterRequest(frame)
}

func (n *Node) handleRouterRequest(frame []byte) error {
	layer, _, err := onion.DecodeLayer(frame)
	if err != nil {
		return err
	}
	peeled, err := onion.PeelLayer(n.onionKey.priv, layer)
	if err != nil {
		return err
	}
	if !peeled.Terminal {
		return fmt.Errorf("router request carried a multi-hop onion layer, want single-hop")
	}

	env, err := DecodeRequestEnvelope(peeled.Payload)
	if err != nil {
		return err
	}

	n.recordReverseRoute(env.Request.ID, env.PrevAddress)

	decision := n.routerEngine.HandleContentRequest(env.Request)
	switch decision.Action {
	case router.ActionServe:
		return n.serveContentRequest(env.Request)
	case router.ActionForward:
		return n.forwardContentRequest(env.Request, decision.NextHop)
	default:
		n.forgetReverseRoute(env.Request.ID)
		return nil
	}
}

func (n *Node) serveContentRequest(req router.ContentRequest) error {
	data, err := n.contentStore.RetrieveContent(req.ContentHash)
	if err != nil {
		return fmt.Errorf("serve content request: %w", err)
	}
	if cryptoprim.BLAKE3(data) != req.ContentHash {
		return fmt.Errorf("serve content request: stored content does not match its own hash")
	}

	resp := router.ContentResponse{RequestID: req.ID, Host: n.selfID, Payload: data}
	resp.Sign(n.self.PrivateKey)

	n.contribTracker.RecordBytesRouted(n.selfID, uint64(len(data)))
	return n.deliverContentResponse(resp)
}

func (n *Node) forwardContentRequest(req router.ContentRequest, nextHop identity.NodeID) error {
	req.HopsUsed++

	env := RequestEnvelope{Request: req, PrevHop: n.selfID, PrevAddress: n.cfg.PublicAddress}
	payload, err := EncodeRequestEnvelope(env)
	if err != nil {
		return err
	}

	onionPub, ok := n.lookupOnionKey(nextHop)
	if !ok {
		return fmt.Errorf("forward content request: no onion key known for next hop %s", nextHop)
	}
	peerInfo, ok := n.peers.Get(nextHop)
	if !ok || peerInfo.Address == "" {
		return fmt.Errorf("forward content request: no address known for next hop %s", nextHop)
	}

	layers, err := onion.BuildLayers([]onion.Hop{{NodeID: nextHop, PublicKey: onionPub}}, payload)
	if err != nil {
		return err
	}

	n.contribTracker.RecordBytesRouted(n.selfID, uint64(len(payload)))
	return n.client.SendRouterRequest(peerInfo.Address, onion.EncodeLayer(layers[0]))
}

// routerResponseHandler processes inbound ContentResponse frames. Unlike
// requests, responses ride back unwrapped: only the already-traversed
// reverse path (one hop at a time, via reverseRoutes) matters, not a fresh
// anonymity property, so the extra onion layer would add cost without a
// corresponding guarantee.
type routerResponseHandler struct{ n *Node }

func (h routerResponseHandler) HandleResponse(frame []byte) error {
	return h.n.handleRouterResponse(frame)
}

func (n *Node) handleRouterResponse(frame []byte) error {
	resp, err := DecodeContentResponse(frame)
	if err != nil {
		return err
	}
	return n.deliverContentResponse(resp)
}

// deliverContentResponse routes a ContentResponse to whoever is waiting
// on it: either this node itself (if it originated the request) or the
// previous hop recorded when the request was forwarded or served.
func (n *Node) deliverContentResponse(resp router.ContentResponse) error {
	if pending, ok := n.pending.Get(resp.RequestID); ok {
		_ = pending
		hostPub, ok := n.lookupIdentityKey(resp.Host)
		if ok && !resp.VerifySignature(hostPub) {
			return fmt.Errorf("content response from %s failed verification", resp.Host)
		}
		n.contribTracker.RecordSuccessfulRoute(resp.Host)
		n.completeDelivery(resp)
		n.pending.Resolve(resp.RequestID)
		return nil
	}

	prevAddress, ok := n.takeReverseRoute(resp.RequestID)
	if !ok {
		return nil // unknown or already-resolved request id: nothing to relay
	}
	return n.client.SendRouterResponse(prevAddress, mustEncodeContentResponse(resp))
}

func mustEncodeContentResponse(resp router.ContentResponse) []byte {
	data, err := EncodeContentResponse(resp)
	if err != nil {
		// ContentResponse always marshals; a failure here means a struct
		// field carries something json.Marshal cannot represent, which
		// would be a programming error, not a runtime condition.
		panic(err)
	}
	return data
}
