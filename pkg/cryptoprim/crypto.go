// Package cryptoprim wraps the primitives the overlay builds on: Ed25519
// signing, X25519 ECDH, ChaCha20-Poly1305 AEAD, BLAKE3 hashing and Argon2id.
package cryptoprim

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"
)

// GenerateEd25519 generates a long-term signing keypair.
func GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// X25519KeyPair generates an ephemeral Curve25519 keypair for ECDH.
func X25519KeyPair() (publicKey, privateKey []byte, err error) {
	privateKey = make([]byte, 32)
	if _, err := rand.Read(privateKey); err != nil {
		return nil, nil, err
	}

	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}

	return publicKey, privateKey, nil
}

// X25519ECDH performs a Curve25519 Diffie-Hellman exchange.
func X25519ECDH(privateKey, publicKey []byte) ([]byte, error) {
	if len(privateKey) != 32 || len(publicKey) != 32 {
		return nil, errors.New("cryptoprim: invalid key length")
	}

	sharedSecret, err := curve25519.X25519(privateKey, publicKey)
	if err != nil {
		return nil, err
	}

	return sharedSecret, nil
}

// BLAKE3 returns the 32-byte BLAKE3 digest of data. Used throughout the
// overlay for NodeIds, message ids, request ids and proof hashes.
func BLAKE3(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// BLAKE3Keyed returns a keyed BLAKE3 digest, used by the onion engine to
// turn each layer's ECDH shared secret into that layer's AEAD key without a
// separate HMAC pass.
func BLAKE3Keyed(key [32]byte, data []byte) [32]byte {
	h := blake3.New(32, key[:])
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Seal encrypts plaintext with ChaCha20-Poly1305 under key/nonce, binding
// additionalData, into a newly allocated ciphertext. nonce must be 12 bytes.
func Seal(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("cryptoprim: invalid nonce length")
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open decrypts and authenticates ciphertext produced by Seal.
func Open(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("cryptoprim: invalid nonce length")
	}
	return aead.Open(nil, nonce, ciphertext, additionalData)
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
