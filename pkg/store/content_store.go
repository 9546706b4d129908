package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cashew-network/cashew-node/pkg/identity"
	"github.com/cashew-network/cashew-node/pkg/revocation"
	"github.com/cashew-network/cashew-node/pkg/router"
)

const (
	advertisementPrefix = "routing/"
	revocationPrefix    = "revocation/"
	contentPrefix       = "content/"
)

// ContentStore persists router.Table content advertisements and accepted
// revocation.Revocations to a Storage backend, so a node rehydrates both
// on restart instead of rediscovering them purely through gossip replay.
type ContentStore struct {
	storage Storage
}

// NewContentStore wraps a Storage backend.
func NewContentStore(storage Storage) *ContentStore {
	return &ContentStore{storage: storage}
}

func advertisementKey(node identity.NodeID, hash router.ContentHash) string {
	return fmt.Sprintf("%s%s/%s", advertisementPrefix, hex.EncodeToString(node[:]), hex.EncodeToString(hash[:]))
}

// PersistAdvertisement records that node advertises hosting hash.
func (c *ContentStore) PersistAdvertisement(node identity.NodeID, hash router.ContentHash) error {
	return c.storage.Store(advertisementKey(node, hash), nil)
}

// RemoveAdvertisement undoes PersistAdvertisement.
func (c *ContentStore) RemoveAdvertisement(node identity.NodeID, hash router.ContentHash) error {
	return c.storage.Delete(advertisementKey(node, hash))
}

// Advertisement is one (node, content hash) pair read back from storage.
type Advertisement struct {
	Node identity.NodeID
	Hash router.ContentHash
}

// LoadAdvertisements returns every persisted advertisement, so callers can
// rehydrate a router.Table on startup.
func (c *ContentStore) LoadAdvertisements() ([]Advertisement, error) {
	keys, err := c.storage.List(advertisementPrefix)
	if err != nil {
		return nil, fmt.Errorf("list advertisements: %w", err)
	}

	out := make([]Advertisement, 0, len(keys))
	for _, key := range keys {
		rest := strings.TrimPrefix(key, advertisementPrefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			continue
		}
		nodeBytes, err := hex.DecodeString(parts[0])
		if err != nil || len(nodeBytes) != len(identity.NodeID{}) {
			continue
		}
		hashBytes, err := hex.DecodeString(parts[1])
		if err != nil || len(hashBytes) != len(router.ContentHash{}) {
			continue
		}
		var adv Advertisement
		copy(adv.Node[:], nodeBytes)
		copy(adv.Hash[:], hashBytes)
		out = append(out, adv)
	}
	return out, nil
}

func contentKey(hash router.ContentHash) string {
	return contentPrefix + hex.EncodeToString(hash[:])
}

// PersistContent stores a piece of content's bytes under its hash.
func (c *ContentStore) PersistContent(hash router.ContentHash, data []byte) error {
	return c.storage.Store(contentKey(hash), data)
}

// RetrieveContent returns a previously persisted piece of content.
func (c *ContentStore) RetrieveContent(hash router.ContentHash) ([]byte, error) {
	return c.storage.Retrieve(contentKey(hash))
}

// HasContent reports whether hash is hosted locally.
func (c *ContentStore) HasContent(hash router.ContentHash) bool {
	_, err := c.storage.Retrieve(contentKey(hash))
	return err == nil
}

// RemoveContent deletes a locally hosted piece of content.
func (c *ContentStore) RemoveContent(hash router.ContentHash) error {
	return c.storage.Delete(contentKey(hash))
}

func revocationKey(revokedKeyHex string) string {
	return revocationPrefix + revokedKeyHex
}

// PersistRevocation stores a Revocation so it survives a restart.
func (c *ContentStore) PersistRevocation(r revocation.Revocation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal revocation: %w", err)
	}
	return c.storage.Store(revocationKey(hex.EncodeToString(r.RevokedKey)), data)
}

// LoadRevocations returns every persisted revocation, so callers can
// rehydrate a revocation.Broadcaster on startup.
func (c *ContentStore) LoadRevocations() ([]revocation.Revocation, error) {
	keys, err := c.storage.List(revocationPrefix)
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}

	out := make([]revocation.Revocation, 0, len(keys))
	for _, key := range keys {
		data, err := c.storage.Retrieve(key)
		if err != nil {
			continue
		}
		var r revocation.Revocation
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
