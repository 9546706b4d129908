package onion

import (
	"bytes"
	"testing"

	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

type testNode struct {
	id      identity.NodeID
	pub     [32]byte
	priv    [32]byte
}

func newTestNode(t *testing.T, b byte) testNode {
	t.Helper()
	pub, priv, err := cryptoprim.X25519KeyPair()
	if err != nil {
		t.Fatalf("X25519KeyPair failed: %v", err)
	}
	var n testNode
	n.id[0] = b
	copy(n.pub[:], pub)
	copy(n.priv[:], priv)
	return n
}

func TestBuildAndPeelThreeHopCircuit(t *testing.T) {
	relay1 := newTestNode(t, 1)
	relay2 := newTestNode(t, 2)
	dest := newTestNode(t, 3)

	path := []Hop{
		{NodeID: relay1.id, PublicKey: relay1.pub},
		{NodeID: relay2.id, PublicKey: relay2.pub},
		{NodeID: dest.id, PublicKey: dest.pub},
	}

	payload := []byte("fetch: deadbeef")
	layers, err := BuildLayers(path, payload)
	if err != nil {
		t.Fatalf("BuildLayers failed: %v", err)
	}
	if len(layers) != 3 {
		t.Fatalf("got %d layers, want 3", len(layers))
	}

	// Hop 1 peels the outermost layer, learns hop 2 is next.
	r1, err := PeelLayer(relay1.priv, layers[0])
	if err != nil {
		t.Fatalf("relay1 PeelLayer failed: %v", err)
	}
	if r1.Terminal {
		t.Fatal("relay1 should not be terminal")
	}
	if r1.NextHop != relay2.id {
		t.Errorf("relay1 NextHop = %v, want relay2", r1.NextHop)
	}

	nextLayer, rest, err := DecodeLayer(r1.Remaining)
	if err != nil {
		t.Fatalf("DecodeLayer after relay1 failed: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("unexpected trailing bytes after decoding relay1's remaining layer: %d", len(rest))
	}

	// Hop 2 peels the next layer, learns the destination is next.
	r2, err := PeelLayer(relay2.priv, nextLayer)
	if err != nil {
		t.Fatalf("relay2 PeelLayer failed: %v", err)
	}
	if r2.Terminal {
		t.Fatal("relay2 should not be terminal")
	}
	if r2.NextHop != dest.id {
		t.Errorf("relay2 NextHop = %v, want dest", r2.NextHop)
	}

	finalLayer, rest, err := DecodeLayer(r2.Remaining)
	if err != nil {
		t.Fatalf("DecodeLayer after relay2 failed: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("unexpected trailing bytes after decoding final layer: %d", len(rest))
	}

	// Destination peels the innermost layer, recovers the payload.
	r3, err := PeelLayer(dest.priv, finalLayer)
	if err != nil {
		t.Fatalf("dest PeelLayer failed: %v", err)
	}
	if !r3.Terminal {
		t.Fatal("destination should be terminal")
	}
	if !bytes.Equal(r3.Payload, payload) {
		t.Errorf("recovered payload = %q, want %q", r3.Payload, payload)
	}
}

func TestPeelLayerWrongKeyFails(t *testing.T) {
	relay1 := newTestNode(t, 1)
	dest := newTestNode(t, 2)
	wrong := newTestNode(t, 3)

	path := []Hop{
		{NodeID: relay1.id, PublicKey: relay1.pub},
		{NodeID: dest.id, PublicKey: dest.pub},
	}
	layers, err := BuildLayers(path, []byte("payload"))
	if err != nil {
		t.Fatalf("BuildLayers failed: %v", err)
	}

	if _, err := PeelLayer(wrong.priv, layers[0]); err == nil {
		t.Error("PeelLayer succeeded with the wrong node's private key")
	}
}

func TestSelectPathExcludesSelfAndDestination(t *testing.T) {
	self := identity.NodeID{0xFF}
	dest := identity.NodeID{0x01}
	candidates := []Hop{
		{NodeID: self},
		{NodeID: dest},
		{NodeID: identity.NodeID{0x02}},
		{NodeID: identity.NodeID{0x03}},
		{NodeID: identity.NodeID{0x04}},
	}

	path, err := SelectPath(candidates, self, dest, 3)
	if err != nil {
		t.Fatalf("SelectPath failed: %v", err)
	}
	if len(path) != 4 {
		t.Fatalf("path length = %d, want 4", len(path))
	}
	if path[len(path)-1].NodeID != dest {
		t.Error("last hop should be the destination")
	}
	seen := make(map[identity.NodeID]bool)
	for _, h := range path {
		if h.NodeID == self {
			t.Error("path should never include self")
		}
		if seen[h.NodeID] {
			t.Error("path contains a repeated hop")
		}
		seen[h.NodeID] = true
	}
}

func TestSelectPathInsufficientCandidates(t *testing.T) {
	self := identity.NodeID{0xFF}
	dest := identity.NodeID{0x01}
	candidates := []Hop{{NodeID: dest}, {NodeID: identity.NodeID{0x02}}}

	if _, err := SelectPath(candidates, self, dest, 3); err == nil {
		t.Error("SelectPath succeeded with too few relay candidates")
	}
}
