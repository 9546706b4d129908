package cryptoprim

import (
	"bytes"
	"testing"
)

func TestGenerateEd25519(t *testing.T) {
	pub, priv, err := GenerateEd25519()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	if len(pub) != 32 {
		t.Errorf("Public key length = %d, want 32", len(pub))
	}

	if len(priv) != 64 {
		t.Errorf("Private key length = %d, want 64", len(priv))
	}
}

func TestX25519KeyPair(t *testing.T) {
	pub, priv, err := X25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate X25519 keypair: %v", err)
	}

	if len(pub) != 32 {
		t.Errorf("Public key length = %d, want 32", len(pub))
	}

	if len(priv) != 32 {
		t.Errorf("Private key length = %d, want 32", len(priv))
	}
}

func TestX25519ECDH(t *testing.T) {
	alicePub, alicePriv, err := X25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate Alice's keypair: %v", err)
	}

	bobPub, bobPriv, err := X25519KeyPair()
	if err != nil {
		t.Fatalf("Failed to generate Bob's keypair: %v", err)
	}

	aliceShared, err := X25519ECDH(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("Alice's ECDH failed: %v", err)
	}

	bobShared, err := X25519ECDH(bobPriv, alicePub)
	if err != nil {
		t.Fatalf("Bob's ECDH failed: %v", err)
	}

	if !bytes.Equal(aliceShared, bobShared) {
		t.Error("shared secrets don't match")
	}
}

func TestBLAKE3Deterministic(t *testing.T) {
	data := []byte("cashew content")
	h1 := BLAKE3(data)
	h2 := BLAKE3(data)

	if h1 != h2 {
		t.Error("BLAKE3 is not deterministic")
	}

	h3 := BLAKE3([]byte("different content"))
	if h1 == h3 {
		t.Error("different data produced same BLAKE3 digest")
	}
}

func TestBLAKE3Keyed(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("session-shared-secret-32-bytes!"))

	out1 := BLAKE3Keyed(key, []byte("dir=initiator"))
	out2 := BLAKE3Keyed(key, []byte("dir=responder"))

	if out1 == out2 {
		t.Error("different context strings produced the same keyed digest")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("0123456789abcdef0123456789abcde"))
	nonce := make([]byte, 12)
	plaintext := []byte("hello overlay")
	aad := []byte("session-1")

	ct, err := Seal(key, nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	pt, err := Open(key, nonce, ct, aad)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !bytes.Equal(pt, plaintext) {
		t.Errorf("round trip mismatch: got %q want %q", pt, plaintext)
	}

	if _, err := Open(key, nonce, ct, []byte("wrong-aad")); err == nil {
		t.Error("Open succeeded with wrong associated data")
	}
}

func TestRandomBytes(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("Failed to generate random bytes: %v", err)
	}

	b2, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("Failed to generate random bytes: %v", err)
	}

	if len(b1) != 32 {
		t.Errorf("random bytes length = %d, want 32", len(b1))
	}

	if bytes.Equal(b1, b2) {
		t.Error("random bytes are not random (collision)")
	}
}

func TestArgon2idDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	params := InteractiveParams()

	h1 := Argon2id([]byte("challenge-nonce"), salt, params)
	h2 := Argon2id([]byte("challenge-nonce"), salt, params)

	if !bytes.Equal(h1, h2) {
		t.Error("Argon2id is not deterministic for identical inputs")
	}

	h3 := Argon2id([]byte("challenge-nonce-2"), salt, params)
	if bytes.Equal(h1, h3) {
		t.Error("different inputs produced the same Argon2id output")
	}

	if len(h1) != int(params.KeyLen) {
		t.Errorf("output length = %d, want %d", len(h1), params.KeyLen)
	}
}
