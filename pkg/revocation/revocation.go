// Package revocation implements the key revocation broadcaster: nodes
// announce that a key must no longer be trusted, optionally pointing to a
// replacement key or a RotationCertificate linking the two.
//
// Grounded on original_source/src/security/key_revocation.hpp for the data
// model and acceptance rule, and on the teacher's onion.Router seenHMACs
// (sync.Map + periodic ticker sweep) for the Go idiom of a bounded,
// dedup'd seen-set with background cleanup — generalized the same way
// pkg/gossip.SeenCache is, since revocations ride the Gossip Layer's dedup
// discipline.
package revocation

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// Reason enumerates why a key was revoked.
type Reason byte

const (
	ReasonSuspectedCompromise Reason = iota
	ReasonConfirmedCompromise
	ReasonScheduledRotation
	ReasonDeviceLoss
	ReasonKeyExpiration
	ReasonPolicyViolation
	ReasonAdministrative
	ReasonOwnerRequest
)

// MaxClockSkew bounds how far in the future a revocation's timestamp may
// be and still be accepted.
const MaxClockSkew = 300 * time.Second

// DefaultExpiryDays is how long a revocation stays active before it is
// swept from the store, unless overridden.
const DefaultExpiryDays = 365

// Revocation is a signed announcement that a key must no longer be trusted.
type Revocation struct {
	RevokedKey      ed25519.PublicKey
	Reason          Reason
	RevokedAt       time.Time
	Revoker         identity.NodeID
	ReplacementKey  ed25519.PublicKey // optional
	RotationCert    *identity.RotationCertificate // optional
	Signature       []byte
}

func (r Revocation) signedBytes() []byte {
	buf := make([]byte, 0, len(r.RevokedKey)+1+8+32)
	buf = append(buf, r.RevokedKey...)
	buf = append(buf, byte(r.Reason))
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(r.RevokedAt.Unix()))
	buf = append(buf, ts[:]...)
	buf = append(buf, r.Revoker[:]...)
	buf = append(buf, r.ReplacementKey...)
	return buf
}

// ID derives a stable identifier for dedup purposes.
func (r Revocation) ID() [32]byte {
	return cryptoprim.BLAKE3(r.signedBytes())
}

// SignRevocation signs a Revocation with signerKey: the replacement key if
// present, else the revoked key itself (the revoked key can still
// authorize its own revocation one last time).
func SignRevocation(r *Revocation, signerKey ed25519.PrivateKey) {
	r.Signature = ed25519.Sign(signerKey, r.signedBytes())
}

// VerifyRevocation checks r's signature under whichever public key should
// have produced it (ReplacementKey if present, else RevokedKey).
func VerifyRevocation(r Revocation) bool {
	signer := r.RevokedKey
	if len(r.ReplacementKey) == ed25519.PublicKeySize {
		signer = r.ReplacementKey
	}
	if len(signer) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(signer, r.signedBytes(), r.Signature)
}

type storedRevocation struct {
	revocation Revocation
	acceptedAt time.Time
}

// Broadcaster holds every accepted Revocation and the replacement-key
// index, protected by a single RWMutex.
type Broadcaster struct {
	mu           sync.RWMutex
	byRevokedKey map[string]storedRevocation
	replacements map[string]ed25519.PublicKey
	expiryDays   int
}

// NewBroadcaster constructs an empty Broadcaster with the default expiry.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		byRevokedKey: make(map[string]storedRevocation),
		replacements: make(map[string]ed25519.PublicKey),
		expiryDays:   DefaultExpiryDays,
	}
}

// SetRevocationExpiryDays overrides the expiry window.
func (b *Broadcaster) SetRevocationExpiryDays(days int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiryDays = days
}

func keyString(pub ed25519.PublicKey) string {
	return string(pub)
}

// ProcessRevocation validates and, if acceptable, stores r. Acceptance
// rule (spec §4.7 a-e): not already present for this key, clock skew
// within MaxClockSkew, not older than the expiry window, any
// RotationCertificate present verifies and links OldPublicKey == RevokedKey,
// and the signature verifies under the appropriate key.
func (b *Broadcaster) ProcessRevocation(r Revocation) error {
	if time.Until(r.RevokedAt) > MaxClockSkew {
		return fmt.Errorf("%w: revocation timestamp too far in the future", cashewerr.ErrPolicy)
	}

	b.mu.RLock()
	expiryDays := b.expiryDays
	b.mu.RUnlock()

	if time.Since(r.RevokedAt) > time.Duration(expiryDays)*24*time.Hour {
		return fmt.Errorf("%w: revocation older than the expiry window", cashewerr.ErrPolicy)
	}

	if r.RotationCert != nil {
		if !r.RotationCert.Verify() {
			return fmt.Errorf("%w: rotation certificate failed to verify", cashewerr.ErrAuth)
		}
		if !bytes.Equal(r.RotationCert.OldPublicKey, r.RevokedKey) {
			return fmt.Errorf("%w: rotation certificate does not match revoked key", cashewerr.ErrIntegrity)
		}
	}

	if !VerifyRevocation(r) {
		return fmt.Errorf("%w: revocation signature verification failed", cashewerr.ErrAuth)
	}

	key := keyString(r.RevokedKey)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byRevokedKey[key]; exists {
		return nil // already seen: not an error, just a no-op
	}

	b.byRevokedKey[key] = storedRevocation{revocation: r, acceptedAt: time.Now()}
	if len(r.ReplacementKey) == ed25519.PublicKeySize {
		b.replacements[key] = r.ReplacementKey
	}
	return nil
}

// IsKeyRevoked reports whether pub has an accepted revocation, in O(1).
func (b *Broadcaster) IsKeyRevoked(pub ed25519.PublicKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byRevokedKey[keyString(pub)]
	return ok
}

// GetRevocation returns the stored Revocation for a key, if any.
func (b *Broadcaster) GetRevocation(pub ed25519.PublicKey) (Revocation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.byRevokedKey[keyString(pub)]
	return s.revocation, ok
}

// GetReplacementKey returns the replacement key for a revoked key, if one
// was announced.
func (b *Broadcaster) GetReplacementKey(pub ed25519.PublicKey) (ed25519.PublicKey, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.replacements[keyString(pub)]
	return r, ok
}

// RecentRevocations returns every revocation accepted within the last hour,
// capped at 100 entries, for inclusion in a CreateRevocationList response.
func (b *Broadcaster) RecentRevocations() []Revocation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := time.Now().Add(-time.Hour)
	var recent []Revocation
	for _, s := range b.byRevokedKey {
		if s.acceptedAt.After(cutoff) {
			recent = append(recent, s.revocation)
			if len(recent) >= 100 {
				break
			}
		}
	}
	return recent
}

// RevocationCount returns the number of revocations currently stored.
func (b *Broadcaster) RevocationCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byRevokedKey)
}

// CleanupExpired removes revocations older than the configured expiry
// window. Intended for a periodic ticker goroutine.
func (b *Broadcaster) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(b.expiryDays) * 24 * time.Hour)
	removed := 0
	for key, s := range b.byRevokedKey {
		if s.revocation.RevokedAt.Before(cutoff) {
			delete(b.byRevokedKey, key)
			delete(b.replacements, key)
			removed++
		}
	}
	return removed
}
