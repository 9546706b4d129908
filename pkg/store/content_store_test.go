package store

import (
	"testing"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/revocation"
	"github.com/cashew-network/cashew-node/pkg/router"
)

func TestPersistAndLoadAdvertisements(t *testing.T) {
	cs := NewContentStore(NewMemoryStorage())

	var node identity.NodeID
	node[0] = 0x01
	var hash router.ContentHash
	hash[0] = 0xaa

	if err := cs.PersistAdvertisement(node, hash); err != nil {
		t.Fatalf("PersistAdvertisement failed: %v", err)
	}

	loaded, err := cs.LoadAdvertisements()
	if err != nil {
		t.Fatalf("LoadAdvertisements failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d advertisements, want 1", len(loaded))
	}
	if loaded[0].Node != node || loaded[0].Hash != hash {
		t.Errorf("loaded = %+v, want node=%x hash=%x", loaded[0], node, hash)
	}
}

func TestRemoveAdvertisement(t *testing.T) {
	cs := NewContentStore(NewMemoryStorage())

	var node identity.NodeID
	node[0] = 0x02
	var hash router.ContentHash
	hash[0] = 0xbb

	cs.PersistAdvertisement(node, hash)
	if err := cs.RemoveAdvertisement(node, hash); err != nil {
		t.Fatalf("RemoveAdvertisement failed: %v", err)
	}

	loaded, err := cs.LoadAdvertisements()
	if err != nil {
		t.Fatalf("LoadAdvertisements failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d advertisements, want 0 after removal", len(loaded))
	}
}

func TestPersistAndLoadRevocations(t *testing.T) {
	cs := NewContentStore(NewMemoryStorage())

	pub, priv, err := cryptoprim.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519 failed: %v", err)
	}
	r := revocation.Revocation{
		RevokedKey: pub,
		RevokedAt:  time.Now(),
	}
	revocation.SignRevocation(&r, priv)

	if err := cs.PersistRevocation(r); err != nil {
		t.Fatalf("PersistRevocation failed: %v", err)
	}

	loaded, err := cs.LoadRevocations()
	if err != nil {
		t.Fatalf("LoadRevocations failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d revocations, want 1", len(loaded))
	}
	if !revocation.VerifyRevocation(loaded[0]) {
		t.Error("round-tripped revocation failed to verify")
	}
}

func TestMemoryStorageListPrefix(t *testing.T) {
	m := NewMemoryStorage()
	m.Store("a/1", []byte("x"))
	m.Store("a/2", []byte("y"))
	m.Store("b/1", []byte("z"))

	keys, err := m.List("a/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List(\"a/\") returned %d keys, want 2", len(keys))
	}
}
