// Package session implements the overlay's ephemeral, forward-secret
// transport sessions: an X25519 handshake authenticated by each side's
// long-term Ed25519 identity, followed by ChaCha20-Poly1305-framed traffic
// with periodic rekeying.
package session

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// State is a Session's position in its handshake/traffic/close lifecycle.
type State int

const (
	Disconnected State = iota
	HandshakeInit
	HandshakeResponse
	Established
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case HandshakeInit:
		return "handshake_init"
	case HandshakeResponse:
		return "handshake_response"
	case Established:
		return "established"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// HandshakeMessageSize is the wire size of a HandshakeMessage:
	// version(1) || ephemeral_pk(32) || node_id(32) || timestamp(8) || signature(64).
	HandshakeMessageSize = 1 + 32 + 32 + 8 + 64
	handshakeVersion     = 0x01
	// MaxHandshakeAge bounds clock skew between peers during the handshake.
	MaxHandshakeAge = 60 * time.Second

	idleTimeout     = 1800 * time.Second
	rekeyInterval   = 3600 * time.Second
	rekeyByteLimit  = 1 << 30 // 1 GiB
	sessionKeyInfo  = "cashew_session_v1"
)

// HandshakeMessage is exchanged in both directions to establish a Session.
type HandshakeMessage struct {
	Version      byte
	EphemeralPK  [32]byte
	NodeID       identity.NodeID
	Timestamp    time.Time
	Signature    []byte // Ed25519 signature over the other fields, by the sender's identity key
}

// EncodeHandshake serializes a HandshakeMessage to its 137-byte wire form.
func EncodeHandshake(m HandshakeMessage) []byte {
	buf := make([]byte, HandshakeMessageSize)
	buf[0] = m.Version
	copy(buf[1:33], m.EphemeralPK[:])
	copy(buf[33:65], m.NodeID[:])
	binary.LittleEndian.PutUint64(buf[65:73], uint64(m.Timestamp.Unix()))
	copy(buf[73:137], m.Signature)
	return buf
}

// DecodeHandshake parses a 137-byte wire HandshakeMessage.
func DecodeHandshake(data []byte) (HandshakeMessage, error) {
	if len(data) != HandshakeMessageSize {
		return HandshakeMessage{}, fmt.Errorf("%w: handshake message is %d bytes, want %d", cashewerr.ErrDecode, len(data), HandshakeMessageSize)
	}
	var m HandshakeMessage
	m.Version = data[0]
	copy(m.EphemeralPK[:], data[1:33])
	copy(m.NodeID[:], data[33:65])
	m.Timestamp = time.Unix(int64(binary.LittleEndian.Uint64(data[65:73])), 0)
	m.Signature = append([]byte(nil), data[73:137]...)
	return m, nil
}

// signedBytes returns the portion of the handshake message that is signed:
// everything except the signature itself.
func signedBytes(m HandshakeMessage) []byte {
	return EncodeHandshake(HandshakeMessage{
		Version:     m.Version,
		EphemeralPK: m.EphemeralPK,
		NodeID:      m.NodeID,
		Timestamp:   m.Timestamp,
	})[:73]
}

// Session is one end of an established, forward-secret transport channel.
type Session struct {
	mu sync.Mutex

	LocalNodeID  identity.NodeID
	RemoteNodeID identity.NodeID
	Initiator    bool

	state State

	localEphPub  [32]byte
	localEphPriv [32]byte
	remoteEphPub [32]byte

	txKey   [32]byte
	rxKey   [32]byte
	txNonce uint64
	rxNonce uint64

	establishedAt time.Time
	lastActivity  time.Time
	bytesSinceRekey uint64
}

// deriveDirectionalKeys derives the two per-direction keys from one ECDH
// shared secret ss: k0 = BLAKE3(ss ∥ sessionKeyInfo) and
// k1 = BLAKE3(ss ∥ sessionKeyInfo ∥ 0x01). The initiator sends with k0 and
// receives with k1; the responder uses the mirrored assignment.
func deriveDirectionalKeys(sharedSecret []byte, initiator bool) (txKey, rxKey [32]byte) {
	base := make([]byte, 0, len(sharedSecret)+len(sessionKeyInfo)+1)
	base = append(base, sharedSecret...)
	base = append(base, sessionKeyInfo...)
	k0 := cryptoprim.BLAKE3(base)
	k1 := cryptoprim.BLAKE3(append(base, 0x01))

	if initiator {
		return k0, k1
	}
	return k1, k0
}

// NewOutbound begins an outbound handshake to remote, returning the Session
// (in HandshakeInit state) and the HandshakeMessage to send.
func NewOutbound(local *identity.Identity, remote identity.NodeID) (*Session, HandshakeMessage, error) {
	ephPub, ephPriv, err := cryptoprim.X25519KeyPair()
	if err != nil {
		return nil, HandshakeMessage{}, err
	}

	s := &Session{
		LocalNodeID:  local.ID(),
		RemoteNodeID: remote,
		Initiator:    true,
		state:        HandshakeInit,
		lastActivity: time.Now(),
	}
	copy(s.localEphPub[:], ephPub)
	copy(s.localEphPriv[:], ephPriv)

	msg := HandshakeMessage{
		Version:     handshakeVersion,
		EphemeralPK: s.localEphPub,
		NodeID:      s.LocalNodeID,
		Timestamp:   time.Now(),
	}
	msg.Signature = local.Sign(signedBytes(msg))

	return s, msg, nil
}

// AcceptInbound processes an inbound HandshakeMessage from a new peer,
// verifying the sender's signature under the NodeID it claims before
// producing the local response. Per the resolved responder-identity
// requirement, the signature MUST verify against a public key the caller
// can attest maps to the claimed NodeID; remotePub is that public key.
func AcceptInbound(local *identity.Identity, remotePub []byte, remoteInit HandshakeMessage) (*Session, HandshakeMessage, error) {
	if remoteInit.Version != handshakeVersion {
		return nil, HandshakeMessage{}, fmt.Errorf("%w: unsupported handshake version %d", cashewerr.ErrDecode, remoteInit.Version)
	}
	if time.Since(remoteInit.Timestamp) > MaxHandshakeAge || time.Until(remoteInit.Timestamp) > MaxHandshakeAge {
		return nil, HandshakeMessage{}, fmt.Errorf("%w: handshake timestamp out of range", cashewerr.ErrPolicy)
	}
	if identity.DeriveNodeID(remotePub) != remoteInit.NodeID {
		return nil, HandshakeMessage{}, fmt.Errorf("%w: node id does not match public key", cashewerr.ErrAuth)
	}
	if !(identity.Identity{PublicKey: remotePub}).Verify(signedBytes(remoteInit), remoteInit.Signature) {
		return nil, HandshakeMessage{}, fmt.Errorf("%w: handshake signature verification failed", cashewerr.ErrAuth)
	}

	ephPub, ephPriv, err := cryptoprim.X25519KeyPair()
	if err != nil {
		return nil, HandshakeMessage{}, err
	}

	s := &Session{
		LocalNodeID:  local.ID(),
		RemoteNodeID: remoteInit.NodeID,
		Initiator:    false,
		state:        HandshakeResponse,
		lastActivity: time.Now(),
	}
	copy(s.localEphPub[:], ephPub)
	copy(s.localEphPriv[:], ephPriv)
	s.remoteEphPub = remoteInit.EphemeralPK

	if err := s.deriveKeysLocked(); err != nil {
		return nil, HandshakeMessage{}, err
	}
	s.state = Established
	s.establishedAt = time.Now()

	resp := HandshakeMessage{
		Version:     handshakeVersion,
		EphemeralPK: s.localEphPub,
		NodeID:      s.LocalNodeID,
		Timestamp:   time.Now(),
	}
	resp.Signature = local.Sign(signedBytes(resp))

	return s, resp, nil
}

// CompleteOutbound finishes an outbound handshake after the responder's
// HandshakeResponse arrives, verifying its signature the same way
// AcceptInbound does.
func (s *Session) CompleteOutbound(remotePub []byte, resp HandshakeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != HandshakeInit {
		return fmt.Errorf("%w: session not awaiting a handshake response", cashewerr.ErrPolicy)
	}
	if identity.DeriveNodeID(remotePub) != resp.NodeID || resp.NodeID != s.RemoteNodeID {
		return fmt.Errorf("%w: responder node id mismatch", cashewerr.ErrAuth)
	}
	if !(identity.Identity{PublicKey: remotePub}).Verify(signedBytes(resp), resp.Signature) {
		return fmt.Errorf("%w: handshake response signature verification failed", cashewerr.ErrAuth)
	}

	s.remoteEphPub = resp.EphemeralPK
	if err := s.deriveKeysLocked(); err != nil {
		return err
	}
	s.state = Established
	s.establishedAt = time.Now()
	return nil
}

func (s *Session) deriveKeysLocked() error {
	shared, err := cryptoprim.X25519ECDH(s.localEphPriv[:], s.remoteEphPub[:])
	if err != nil {
		return err
	}
	s.txKey, s.rxKey = deriveDirectionalKeys(shared, s.Initiator)
	return nil
}

// Encrypt frames plaintext for the wire: a 12-byte nonce (8-byte
// little-endian counter || 4 random bytes) followed by the
// ChaCha20-Poly1305 ciphertext.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Established {
		return nil, fmt.Errorf("%w: session is not established", cashewerr.ErrPolicy)
	}

	counter := atomic.AddUint64(&s.txNonce, 1)
	nonce := make([]byte, 12)
	binary.LittleEndian.PutUint64(nonce[:8], counter)
	rnd, err := cryptoprim.RandomBytes(4)
	if err != nil {
		return nil, err
	}
	copy(nonce[8:], rnd)

	ciphertext, err := cryptoprim.Seal(s.txKey[:], nonce, plaintext, nil)
	if err != nil {
		return nil, err
	}

	s.lastActivity = time.Now()
	s.bytesSinceRekey += uint64(len(plaintext))

	framed := make([]byte, 0, len(nonce)+len(ciphertext))
	framed = append(framed, nonce...)
	framed = append(framed, ciphertext...)
	return framed, nil
}

// Decrypt unframes and authenticates ciphertext produced by the peer's Encrypt.
func (s *Session) Decrypt(framed []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Established {
		return nil, fmt.Errorf("%w: session is not established", cashewerr.ErrPolicy)
	}
	if len(framed) < 12 {
		return nil, fmt.Errorf("%w: frame shorter than nonce", cashewerr.ErrDecode)
	}

	nonce, ciphertext := framed[:12], framed[12:]
	plaintext, err := cryptoprim.Open(s.rxKey[:], nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cashewerr.ErrAuth, err)
	}

	s.lastActivity = time.Now()
	return plaintext, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ShouldRekey reports whether the session has carried enough traffic or
// aged enough since establishment to warrant a new handshake.
func (s *Session) ShouldRekey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established {
		return false
	}
	return s.bytesSinceRekey >= rekeyByteLimit || time.Since(s.establishedAt) >= rekeyInterval
}

// HasTimedOut reports whether the session has been idle past the idle timeout.
func (s *Session) HasTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) >= idleTimeout
}

// Close transitions the session to Closed and zeroes all key material.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.txKey {
		s.txKey[i] = 0
	}
	for i := range s.rxKey {
		s.rxKey[i] = 0
	}
	for i := range s.localEphPriv {
		s.localEphPriv[i] = 0
	}
	s.state = Closed
}
