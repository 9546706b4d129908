// Package onion implements layered Sphinx-style circuit construction and
// peeling: each hop only learns the identity of the next hop and cannot
// read the payload or any other layer.
//
// Grounded on the teacher's pkg/onion/router.go (parse a wire struct,
// derive a per-hop shared secret via X25519 ECDH, AEAD-open, branch on the
// decrypted content, reassemble for the next hop) but replaced the
// teacher's fixed 1280-byte Sphinx packet and its ad hoc
// next-hop-vs-destination heuristic with an explicit in-plaintext tag and
// a variable-length layer list, and dropped the teacher's XOR/ad hoc key
// "blinding" placeholder: each layer gets its own fresh ephemeral keypair
// instead.
package onion

import (
	"fmt"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

const (
	tagTerminal byte = 0x00
	tagRelay    byte = 0x01

	onionKeyInfo = "cashew_onion_v1"

	// macSize is the ChaCha20-Poly1305 authentication tag length.
	macSize = 16
)

// OnionLayer is one hop's encrypted slice of the circuit.
type OnionLayer struct {
	EphemeralPK [32]byte
	Ciphertext  []byte
	MAC         [16]byte
}

// Hop identifies one node on a circuit path: its NodeID and the
// X25519 public key to encrypt that layer under (the node's current
// onion-routing key, distinct from its long-term Ed25519 identity key).
type Hop struct {
	NodeID   identity.NodeID
	PublicKey [32]byte
}

// relayPayload is what a non-terminal layer decrypts to: where to send the
// remaining layers next.
type relayPayload struct {
	NextHop identity.NodeID
}

func encodeRelayPayload(p relayPayload) []byte {
	return append([]byte{tagRelay}, p.NextHop[:]...)
}

func encodeTerminalPayload(payload []byte) []byte {
	return append([]byte{tagTerminal}, payload...)
}

// deriveLayerKey derives the AEAD key for one layer's encryption from the
// ECDH shared secret between the circuit builder's per-layer ephemeral key
// and the hop's public key.
func deriveLayerKey(sharedSecret []byte) [32]byte {
	var secret [32]byte
	copy(secret[:], sharedSecret)
	return cryptoprim.BLAKE3Keyed(secret, []byte(onionKeyInfo))
}

// BuildLayers constructs the onion for path (an ordered list of relay hops
// followed by the destination) carrying payload to the destination.
// Construction proceeds destination-inward: the innermost layer (built
// first) is for the destination and carries the terminal payload; each
// layer built after it wraps the previous ciphertext and tells its hop
// where to forward next.
func BuildLayers(path []Hop, payload []byte) ([]OnionLayer, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: onion path is empty", cashewerr.ErrPolicy)
	}

	layers := make([]OnionLayer, len(path))

	// Innermost (destination) layer.
	last := len(path) - 1
	innerPlaintext := encodeTerminalPayload(payload)

	for i := last; i >= 0; i-- {
		hop := path[i]

		ephPub, ephPriv, err := cryptoprim.X25519KeyPair()
		if err != nil {
			return nil, err
		}
		shared, err := cryptoprim.X25519ECDH(ephPriv, hop.PublicKey[:])
		if err != nil {
			return nil, err
		}
		key := deriveLayerKey(shared)

		nonce := make([]byte, 12) // zero nonce: safe because every layer uses a fresh ephemeral key
		ciphertext, err := cryptoprim.Seal(key[:], nonce, innerPlaintext, nil)
		if err != nil {
			return nil, err
		}

		var layer OnionLayer
		copy(layer.EphemeralPK[:], ephPub)
		layer.Ciphertext = ciphertext[:len(ciphertext)-macSize]
		copy(layer.MAC[:], ciphertext[len(ciphertext)-macSize:])
		layers[i] = layer

		if i > 0 {
			innerPlaintext = encodeRelayPayload(relayPayload{NextHop: path[i].NodeID})
			// the *next* outer layer's plaintext must also embed this
			// layer so a relay can pass the remaining structure along;
			// represent that by concatenating the just-built layer's wire
			// bytes after the relay tag.
			innerPlaintext = append(innerPlaintext, EncodeLayer(layer)...)
		}
	}

	return layers, nil
}

// EncodeLayer serializes a single OnionLayer to its wire form:
// ephemeral_pk(32) || ciphertext_len(4, little-endian) || ciphertext || mac(16).
func EncodeLayer(l OnionLayer) []byte {
	buf := make([]byte, 0, 32+len(l.Ciphertext)+macSize)
	buf = append(buf, l.EphemeralPK[:]...)
	var clen [4]byte
	clen[0] = byte(len(l.Ciphertext))
	clen[1] = byte(len(l.Ciphertext) >> 8)
	clen[2] = byte(len(l.Ciphertext) >> 16)
	clen[3] = byte(len(l.Ciphertext) >> 24)
	buf = append(buf, clen[:]...)
	buf = append(buf, l.Ciphertext...)
	buf = append(buf, l.MAC[:]...)
	return buf
}

// DecodeLayer parses one wire-encoded OnionLayer off the front of data,
// returning the layer and whatever bytes follow it.
func DecodeLayer(data []byte) (OnionLayer, []byte, error) {
	if len(data) < 32+4+macSize {
		return OnionLayer{}, nil, fmt.Errorf("%w: truncated onion layer", cashewerr.ErrDecode)
	}
	var l OnionLayer
	copy(l.EphemeralPK[:], data[:32])
	clen := int(data[32]) | int(data[33])<<8 | int(data[34])<<16 | int(data[35])<<24
	rest := data[36:]
	if len(rest) < clen+macSize {
		return OnionLayer{}, nil, fmt.Errorf("%w: truncated onion layer ciphertext", cashewerr.ErrDecode)
	}
	l.Ciphertext = append([]byte(nil), rest[:clen]...)
	copy(l.MAC[:], rest[clen:clen+macSize])
	return l, rest[clen+macSize:], nil
}

// PeelResult is the outcome of peeling one OnionLayer.
type PeelResult struct {
	// Terminal is true if this node is the destination.
	Terminal bool
	// NextHop is populated when Terminal is false.
	NextHop identity.NodeID
	// Remaining carries the rest of the circuit to forward to NextHop,
	// populated when Terminal is false.
	Remaining []byte
	// Payload is populated when Terminal is true.
	Payload []byte
}

// PeelLayer decrypts one OnionLayer under the node's own X25519 private
// key, returning either the final payload (if this node is the
// destination) or the next hop plus the remaining onion to forward.
func PeelLayer(nodePrivateKey [32]byte, layer OnionLayer) (PeelResult, error) {
	shared, err := cryptoprim.X25519ECDH(nodePrivateKey[:], layer.EphemeralPK[:])
	if err != nil {
		return PeelResult{}, err
	}
	key := deriveLayerKey(shared)

	nonce := make([]byte, 12)
	ciphertext := make([]byte, 0, len(layer.Ciphertext)+macSize)
	ciphertext = append(ciphertext, layer.Ciphertext...)
	ciphertext = append(ciphertext, layer.MAC[:]...)
	plaintext, err := cryptoprim.Open(key[:], nonce, ciphertext, nil)
	if err != nil {
		return PeelResult{}, fmt.Errorf("%w: %v", cashewerr.ErrAuth, err)
	}
	if len(plaintext) == 0 {
		return PeelResult{}, fmt.Errorf("%w: empty onion plaintext", cashewerr.ErrDecode)
	}

	switch plaintext[0] {
	case tagTerminal:
		return PeelResult{Terminal: true, Payload: plaintext[1:]}, nil
	case tagRelay:
		if len(plaintext) < 1+32 {
			return PeelResult{}, fmt.Errorf("%w: truncated relay payload", cashewerr.ErrDecode)
		}
		var next identity.NodeID
		copy(next[:], plaintext[1:33])
		return PeelResult{Terminal: false, NextHop: next, Remaining: plaintext[33:]}, nil
	default:
		return PeelResult{}, fmt.Errorf("%w: unknown onion layer tag %d", cashewerr.ErrDecode, plaintext[0])
	}
}
