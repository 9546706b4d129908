package main

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/revocation"
	"github.com/cashew-network/cashew-node/pkg/router"
)

// NodeCapabilities advertises what a node is willing to do for the
// network, carried inside a PeerAnnouncement.
type NodeCapabilities struct {
	Host            bool
	Route           bool
	Storage         bool
	StorageCapacity uint64
	BandwidthMbps   uint64
}

const (
	capFlagHost    byte = 1 << 0
	capFlagRoute   byte = 1 << 1
	capFlagStorage byte = 1 << 2
)

func (c NodeCapabilities) flags() byte {
	var f byte
	if c.Host {
		f |= capFlagHost
	}
	if c.Route {
		f |= capFlagRoute
	}
	if c.Storage {
		f |= capFlagStorage
	}
	return f
}

// PeerAnnouncement is the gossip payload a node broadcasts about itself:
// its identity public key (so peers can verify the NodeId binding and
// later validate a handshake signed under that key), its reachable
// address, and what it offers the network.
type PeerAnnouncement struct {
	NodeID       identity.NodeID
	PublicKey    ed25519.PublicKey
	OnionKey     [32]byte // X25519 onion-routing public key, distinct from PublicKey
	Address      string
	Capabilities NodeCapabilities
	Timestamp    time.Time
	Signature    []byte
}

type wirePeerAnnouncement struct {
	NodeID        identity.NodeID
	PublicKey     ed25519.PublicKey
	OnionKey      [32]byte
	Address       string
	CapFlags      byte
	StorageCap    uint64
	BandwidthMbps uint64
	Timestamp     int64
	Signature     []byte
}

func (a PeerAnnouncement) toWire() wirePeerAnnouncement {
	return wirePeerAnnouncement{
		NodeID:        a.NodeID,
		PublicKey:     a.PublicKey,
		OnionKey:      a.OnionKey,
		Address:       a.Address,
		CapFlags:      a.Capabilities.flags(),
		StorageCap:    a.Capabilities.StorageCapacity,
		BandwidthMbps: a.Capabilities.BandwidthMbps,
		Timestamp:     a.Timestamp.Unix(),
	}
}

func (a PeerAnnouncement) signedBytes() []byte {
	w := a.toWire()
	w.Signature = nil
	data, _ := json.Marshal(w)
	return data
}

// Sign signs the announcement under the originating node's identity key.
func (a *PeerAnnouncement) Sign(self *identity.Identity) {
	a.Signature = self.Sign(a.signedBytes())
}

// Verify checks the announcement's signature under its own claimed public
// key and that the claimed NodeId is actually derived from it.
func (a PeerAnnouncement) Verify() bool {
	if identity.DeriveNodeID(a.PublicKey) != a.NodeID {
		return false
	}
	return ed25519.Verify(a.PublicKey, a.signedBytes(), a.Signature)
}

// EncodePeerAnnouncement marshals an announcement for the gossip wire.
func EncodePeerAnnouncement(a PeerAnnouncement) ([]byte, error) {
	w := a.toWire()
	w.Signature = a.Signature
	return json.Marshal(w)
}

// DecodePeerAnnouncement parses a gossip-carried PeerAnnouncement.
func DecodePeerAnnouncement(data []byte) (PeerAnnouncement, error) {
	var w wirePeerAnnouncement
	if err := json.Unmarshal(data, &w); err != nil {
		return PeerAnnouncement{}, fmt.Errorf("%w: %v", cashewerr.ErrDecode, err)
	}
	return PeerAnnouncement{
		NodeID:    w.NodeID,
		PublicKey: w.PublicKey,
		OnionKey:  w.OnionKey,
		Address:   w.Address,
		Capabilities: NodeCapabilities{
			Host:            w.CapFlags&capFlagHost != 0,
			Route:           w.CapFlags&capFlagRoute != 0,
			Storage:         w.CapFlags&capFlagStorage != 0,
			StorageCapacity: w.StorageCap,
			BandwidthMbps:   w.BandwidthMbps,
		},
		Timestamp: time.Unix(w.Timestamp, 0),
		Signature: w.Signature,
	}, nil
}

// ContentAnnouncement is the gossip payload announcing that a node hosts
// some content, used to populate every other node's router.Table.
type ContentAnnouncement struct {
	ContentHash router.ContentHash
	Size        uint64
	HostingNode identity.NodeID
	Timestamp   time.Time
	Signature   []byte
}

func (c ContentAnnouncement) signedBytes() []byte {
	buf := make([]byte, 0, 32+8+32+8)
	buf = append(buf, c.ContentHash[:]...)
	var sb [8]byte
	binary.LittleEndian.PutUint64(sb[:], c.Size)
	buf = append(buf, sb[:]...)
	buf = append(buf, c.HostingNode[:]...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(c.Timestamp.Unix()))
	buf = append(buf, ts[:]...)
	return buf
}

// Sign signs the announcement under the hosting node's identity key.
func (c *ContentAnnouncement) Sign(self *identity.Identity) {
	c.Signature = self.Sign(c.signedBytes())
}

// Verify checks the announcement's signature under the hosting node's
// known public key.
func (c ContentAnnouncement) Verify(hostPub ed25519.PublicKey) bool {
	return ed25519.Verify(hostPub, c.signedBytes(), c.Signature)
}

func EncodeContentAnnouncement(c ContentAnnouncement) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeContentAnnouncement(data []byte) (ContentAnnouncement, error) {
	var c ContentAnnouncement
	if err := json.Unmarshal(data, &c); err != nil {
		return ContentAnnouncement{}, fmt.Errorf("%w: %v", cashewerr.ErrDecode, err)
	}
	return c, nil
}

// NetworkStateUpdate is the periodic gossip payload summarizing what this
// node currently sees of the network, so peers can cross-check their own
// routing table and peer population against an independent view.
type NetworkStateUpdate struct {
	NodeID          identity.NodeID
	ActivePeers     uint32
	KnownContent    uint32
	RevocationCount uint32
	Timestamp       time.Time
	Signature       []byte
}

func (s NetworkStateUpdate) signedBytes() []byte {
	buf := make([]byte, 0, 32+4+4+4+8)
	buf = append(buf, s.NodeID[:]...)
	var u [4]byte
	binary.LittleEndian.PutUint32(u[:], s.ActivePeers)
	buf = append(buf, u[:]...)
	binary.LittleEndian.PutUint32(u[:], s.KnownContent)
	buf = append(buf, u[:]...)
	binary.LittleEndian.PutUint32(u[:], s.RevocationCount)
	buf = append(buf, u[:]...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(s.Timestamp.Unix()))
	buf = append(buf, ts[:]...)
	return buf
}

// Sign signs the update under the originating node's identity key.
func (s *NetworkStateUpdate) Sign(self *identity.Identity) {
	s.Signature = self.Sign(s.signedBytes())
}

// Verify checks the update's signature under the claimed originator's key.
func (s NetworkStateUpdate) Verify(originatorPub ed25519.PublicKey) bool {
	return ed25519.Verify(originatorPub, s.signedBytes(), s.Signature)
}

func EncodeNetworkStateUpdate(s NetworkStateUpdate) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeNetworkStateUpdate(data []byte) (NetworkStateUpdate, error) {
	var s NetworkStateUpdate
	if err := json.Unmarshal(data, &s); err != nil {
		return NetworkStateUpdate{}, fmt.Errorf("%w: %v", cashewerr.ErrDecode, err)
	}
	return s, nil
}

// RequestEnvelope is what one hop actually hands the next hop inside an
// onion layer's terminal payload: the ContentRequest itself, plus enough
// of the sending hop's own identity to route a ContentResponse back
// without a pre-built multi-hop circuit. Every hop peels its own layer,
// re-addresses a fresh single-hop layer to whatever router.Decision.NextHop
// its own Table names, and sets PrevHop/PrevAddress to itself before
// forwarding — so a response only ever has to retrace one hop at a time.
type RequestEnvelope struct {
	Request     router.ContentRequest
	PrevHop     identity.NodeID
	PrevAddress string
}

// EncodeRequestEnvelope marshals an envelope for the onion terminal payload.
func EncodeRequestEnvelope(e RequestEnvelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeRequestEnvelope parses a peeled onion layer's terminal payload.
func DecodeRequestEnvelope(data []byte) (RequestEnvelope, error) {
	var e RequestEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return RequestEnvelope{}, fmt.Errorf("%w: %v", cashewerr.ErrDecode, err)
	}
	return e, nil
}

// EncodeContentResponse marshals a ContentResponse for the wire.
func EncodeContentResponse(r router.ContentResponse) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeContentResponse parses a wire ContentResponse.
func DecodeContentResponse(data []byte) (router.ContentResponse, error) {
	var r router.ContentResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return router.ContentResponse{}, fmt.Errorf("%w: %v", cashewerr.ErrDecode, err)
	}
	return r, nil
}

// EncodeRevocation marshals a revocation.Revocation for the wire.
func EncodeRevocation(r revocation.Revocation) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRevocation parses a wire revocation.Revocation.
func DecodeRevocation(data []byte) (revocation.Revocation, error) {
	var r revocation.Revocation
	if err := json.Unmarshal(data, &r); err != nil {
		return revocation.Revocation{}, fmt.Errorf("%w: %v", cashewerr.ErrDecode, err)
	}
	return r, nil
}
