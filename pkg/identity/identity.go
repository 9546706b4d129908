// Package identity implements the overlay's long-term node identity: a
// content-addressed NodeId derived from an Ed25519 public key, plus a
// signed chain of RotationCertificates linking successive keys when a node
// rotates its signing key.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
)

// NodeID is the BLAKE3 digest of a node's Ed25519 public key.
type NodeID [32]byte

// DeriveNodeID computes the NodeID for a public key.
func DeriveNodeID(pub ed25519.PublicKey) NodeID {
	return cryptoprim.BLAKE3(pub)
}

// Less gives NodeIDs a total byte-lexicographic order, used to break ties
// when ranking equally-scored routing candidates.
func (n NodeID) Less(other NodeID) bool {
	return bytes.Compare(n[:], other[:]) < 0
}

func (n NodeID) Equal(other NodeID) bool {
	return n == other
}

func (n NodeID) String() string {
	return fmt.Sprintf("%x", n[:8])
}

// RotationCertificate links an old signing key to its replacement. The
// signature is produced by the OLD key over new_public_key || timestamp,
// so a verifier holding only the genesis key can walk the whole chain.
type RotationCertificate struct {
	OldPublicKey    ed25519.PublicKey
	NewPublicKey    ed25519.PublicKey
	RotatedAt       time.Time
	OldKeySignature []byte
	Reason          string
}

func (c RotationCertificate) signedBytes() []byte {
	buf := make([]byte, 0, len(c.NewPublicKey)+8)
	buf = append(buf, c.NewPublicKey...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(c.RotatedAt.Unix()))
	buf = append(buf, ts[:]...)
	return buf
}

// Verify checks that OldKeySignature was produced by OldPublicKey over this
// certificate's (NewPublicKey, RotatedAt) pair.
func (c RotationCertificate) Verify() bool {
	if len(c.OldPublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(c.OldPublicKey, c.signedBytes(), c.OldKeySignature)
}

// Identity is a node's current signing key plus the rotation history that
// led to it.
type Identity struct {
	PublicKey       ed25519.PublicKey
	PrivateKey      ed25519.PrivateKey
	CreatedAt       time.Time
	RotationHistory []RotationCertificate
}

// Generate creates a brand-new identity with no rotation history.
func Generate() (*Identity, error) {
	pub, priv, err := cryptoprim.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	return &Identity{PublicKey: pub, PrivateKey: priv, CreatedAt: time.Now()}, nil
}

// ID returns the NodeID derived from the current public key.
func (id *Identity) ID() NodeID {
	return DeriveNodeID(id.PublicKey)
}

// Sign signs message with the current private key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.PrivateKey, message)
}

// Verify checks a signature against the current public key.
func (id *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(id.PublicKey, message, signature)
}

// Rotate replaces the current key with a freshly generated one, appending a
// RotationCertificate signed by the OLD key to the chain.
func (id *Identity) Rotate(reason string) error {
	newPub, newPriv, err := cryptoprim.GenerateEd25519()
	if err != nil {
		return err
	}

	cert := RotationCertificate{
		OldPublicKey: id.PublicKey,
		NewPublicKey: newPub,
		RotatedAt:    time.Now(),
		Reason:       reason,
	}
	cert.OldKeySignature = ed25519.Sign(id.PrivateKey, cert.signedBytes())

	id.RotationHistory = append(id.RotationHistory, cert)
	id.PublicKey = newPub
	id.PrivateKey = newPriv
	return nil
}

// GenesisKey returns the first public key this identity ever held.
func (id *Identity) GenesisKey() ed25519.PublicKey {
	if len(id.RotationHistory) == 0 {
		return id.PublicKey
	}
	return id.RotationHistory[0].OldPublicKey
}

// VerifyRotationChain checks that every certificate in the history verifies
// and that each certificate's NewPublicKey matches the next certificate's
// OldPublicKey (or the current PublicKey, for the last one).
func (id *Identity) VerifyRotationChain() error {
	for i, cert := range id.RotationHistory {
		if !cert.Verify() {
			return fmt.Errorf("%w: rotation certificate %d failed signature check", cashewerr.ErrAuth, i)
		}
		if i+1 < len(id.RotationHistory) {
			if !bytes.Equal(cert.NewPublicKey, id.RotationHistory[i+1].OldPublicKey) {
				return fmt.Errorf("%w: rotation chain broken at certificate %d", cashewerr.ErrIntegrity, i)
			}
		} else if !bytes.Equal(cert.NewPublicKey, id.PublicKey) {
			return fmt.Errorf("%w: last rotation certificate does not lead to current key", cashewerr.ErrIntegrity)
		}
	}
	return nil
}
