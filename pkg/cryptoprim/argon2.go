package cryptoprim

import "golang.org/x/crypto/argon2"

// Argon2Params configures the memory-hard Argon2id hash used by the PoW
// engine. Time/Memory/Threads mirror the three tiers defined in the
// original cashew PoW engine (interactive/moderate/sensitive).
type Argon2Params struct {
	Time    uint32
	MemoryKiB uint32
	Threads uint8
	KeyLen  uint32
}

// InteractiveParams is the 64 MiB / 2 pass tier used for difficulty <= 8.
func InteractiveParams() Argon2Params {
	return Argon2Params{Time: 2, MemoryKiB: 64 * 1024, Threads: 1, KeyLen: 32}
}

// ModerateParams is the 256 MiB / 3 pass tier used for difficulty <= 16.
func ModerateParams() Argon2Params {
	return Argon2Params{Time: 3, MemoryKiB: 256 * 1024, Threads: 1, KeyLen: 32}
}

// SensitiveParams is the 1 GiB / 4 pass tier used for difficulty > 16.
func SensitiveParams() Argon2Params {
	return Argon2Params{Time: 4, MemoryKiB: 1024 * 1024, Threads: 1, KeyLen: 32}
}

// Argon2id hashes password under salt with the given parameters.
func Argon2id(password, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
}
