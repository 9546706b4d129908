package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
)

// fileFormat is the on-disk representation of an encrypted identity file:
//
//	magic(4) | salt(16) | nonce(12) | ciphertext(...)
//
// ciphertext is ChaCha20-Poly1305 over the gob encoding of persisted, keyed
// by Argon2id(password, salt, InteractiveParams).
var fileMagic = [4]byte{'c', 's', 'h', '1'}

type persisted struct {
	PublicKey       ed25519.PublicKey
	PrivateKey      ed25519.PrivateKey
	CreatedAt       time.Time
	RotationHistory []RotationCertificate
}

// Encode encrypts id under password, returning the full file contents.
func Encode(id *Identity, password []byte) ([]byte, error) {
	salt, err := cryptoprim.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	nonce, err := cryptoprim.RandomBytes(12)
	if err != nil {
		return nil, err
	}

	key := cryptoprim.Argon2id(password, salt, cryptoprim.InteractiveParams())

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(persisted{
		PublicKey:       id.PublicKey,
		PrivateKey:      id.PrivateKey,
		CreatedAt:       id.CreatedAt,
		RotationHistory: id.RotationHistory,
	}); err != nil {
		return nil, err
	}

	ciphertext, err := cryptoprim.Seal(key, nonce, buf.Bytes(), fileMagic[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+16+12+len(ciphertext))
	out = append(out, fileMagic[:]...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decode decrypts a file produced by Encode.
func Decode(data []byte, password []byte) (*Identity, error) {
	if len(data) < 4+16+12 {
		return nil, fmt.Errorf("identity: file too short")
	}
	if !bytes.Equal(data[:4], fileMagic[:]) {
		return nil, fmt.Errorf("identity: bad magic")
	}
	salt := data[4:20]
	nonce := data[20:32]
	ciphertext := data[32:]

	key := cryptoprim.Argon2id(password, salt, cryptoprim.InteractiveParams())

	plaintext, err := cryptoprim.Open(key, nonce, ciphertext, fileMagic[:])
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt failed (wrong password?): %w", err)
	}

	var p persisted
	if err := gob.NewDecoder(bytes.NewReader(plaintext)).Decode(&p); err != nil {
		return nil, err
	}

	return &Identity{
		PublicKey:       p.PublicKey,
		PrivateKey:      p.PrivateKey,
		CreatedAt:       p.CreatedAt,
		RotationHistory: p.RotationHistory,
	}, nil
}
