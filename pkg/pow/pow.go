// Package pow implements the adaptive, memory-hard proof-of-work engine
// nodes use to rate-limit expensive requests: an Argon2id puzzle whose
// parameters scale with the requested difficulty tier.
//
// Grounded on original_source/src/core/pow/pow.hpp and
// src/crypto/argon2.hpp (the cashew predecessor's PoW engine), translated
// into idiomatic Go using golang.org/x/crypto/argon2 in place of
// libsodium's crypto_pwhash.
package pow

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/bits"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
)

const (
	// TargetSolveTime is the difficulty controller's target wall-clock
	// time for solving a puzzle.
	TargetSolveTime = 600 * time.Millisecond * 1000 // 600_000ms
	MinDifficulty   = 4
	MaxDifficulty   = 32
)

// Puzzle is a proof-of-work challenge issued to a peer.
type Puzzle struct {
	Challenge  []byte
	Difficulty int
	Epoch      uint64
	IssuedAt   time.Time
}

// Solution is a peer's response to a Puzzle.
type Solution struct {
	Hash          []byte
	Nonce         uint64
	Difficulty    int
	ComputeTimeMs int64
}

// paramsForDifficulty selects the Argon2id tier per the three-band
// schedule the original engine used: 64 MiB for easy puzzles, 256 MiB for
// the middle band, 1 GiB for the hardest ones.
func paramsForDifficulty(difficulty int) cryptoprim.Argon2Params {
	switch {
	case difficulty <= 8:
		return cryptoprim.InteractiveParams()
	case difficulty <= 16:
		return cryptoprim.ModerateParams()
	default:
		return cryptoprim.SensitiveParams()
	}
}

// clampDifficulty bounds a difficulty value to [MinDifficulty, MaxDifficulty].
func clampDifficulty(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

// GeneratePuzzle issues a fresh puzzle at the given difficulty (clamped to
// the valid range) for the given epoch.
func GeneratePuzzle(difficulty int, epoch uint64) (Puzzle, error) {
	challenge, err := cryptoprim.RandomBytes(32)
	if err != nil {
		return Puzzle{}, err
	}
	return Puzzle{
		Challenge:  challenge,
		Difficulty: clampDifficulty(difficulty),
		Epoch:      epoch,
		IssuedAt:   time.Now(),
	}, nil
}

func saltFor(challenge []byte) []byte {
	salt := cryptoprim.BLAKE3(challenge)
	return salt[:16]
}

func hashAttempt(challenge []byte, nonce uint64, params cryptoprim.Argon2Params) []byte {
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	input := make([]byte, 0, len(challenge)+8)
	input = append(input, challenge...)
	input = append(input, nb[:]...)
	return cryptoprim.Argon2id(input, saltFor(challenge), params)
}

func leadingZeroBits(hash []byte) int {
	count := 0
	for _, b := range hash {
		if b == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(b)
		break
	}
	return count
}

func meetsDifficulty(hash []byte, difficulty int) bool {
	return leadingZeroBits(hash) >= difficulty
}

// Solve searches for a nonce whose Argon2id hash of the puzzle meets the
// puzzle's difficulty, drawing each candidate nonce from the CSPRNG and
// checking ctx for cancellation every few attempts so callers can bound the
// search. maxAttempts of 0 means unbounded.
func Solve(ctx context.Context, puzzle Puzzle, maxAttempts uint64) (Solution, error) {
	params := paramsForDifficulty(puzzle.Difficulty)
	start := time.Now()

	var attempts uint64
	for maxAttempts == 0 || attempts < maxAttempts {
		if attempts%8 == 0 {
			select {
			case <-ctx.Done():
				return Solution{}, ctx.Err()
			default:
			}
		}

		nb, err := cryptoprim.RandomBytes(8)
		if err != nil {
			return Solution{}, err
		}
		nonce := binary.LittleEndian.Uint64(nb)
		hash := hashAttempt(puzzle.Challenge, nonce, params)
		if meetsDifficulty(hash, puzzle.Difficulty) {
			return Solution{
				Hash:          hash,
				Nonce:         nonce,
				Difficulty:    puzzle.Difficulty,
				ComputeTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
		attempts++
	}

	return Solution{}, fmt.Errorf("%w: exhausted %d attempts without a solution", cashewerr.ErrResource, maxAttempts)
}

// Verify checks that solution actually solves puzzle.
func Verify(puzzle Puzzle, solution Solution) bool {
	if solution.Difficulty != puzzle.Difficulty {
		return false
	}
	params := paramsForDifficulty(puzzle.Difficulty)
	expected := hashAttempt(puzzle.Challenge, solution.Nonce, params)

	if len(expected) != len(solution.Hash) {
		return false
	}
	for i := range expected {
		if expected[i] != solution.Hash[i] {
			return false
		}
	}
	return meetsDifficulty(solution.Hash, puzzle.Difficulty)
}

// AdjustDifficulty implements the controller: halve-to-double band around
// the target solve time, one step at a time, clamped to the valid range.
func AdjustDifficulty(prevSolveTimeMs int64, current int) int {
	target := TargetSolveTime.Milliseconds()
	switch {
	case prevSolveTimeMs < target/2:
		return clampDifficulty(current + 1)
	case prevSolveTimeMs > target*2:
		return clampDifficulty(current - 1)
	default:
		return current
	}
}

// StartingDifficulty maps a benchmarked hash rate (attempts/sec at the
// interactive tier) onto a reasonable starting difficulty.
func StartingDifficulty(hashesPerSec float64) int {
	switch {
	case hashesPerSec >= 1000:
		return 16
	case hashesPerSec >= 100:
		return 12
	case hashesPerSec >= 10:
		return 8
	default:
		return MinDifficulty
	}
}

// Benchmark measures how many interactive-tier attempts this node can
// perform per second, for use with StartingDifficulty.
func Benchmark(ctx context.Context, duration time.Duration) (float64, error) {
	params := cryptoprim.InteractiveParams()
	challenge, err := cryptoprim.RandomBytes(32)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var attempts uint64
	for time.Since(start) < duration {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		_ = hashAttempt(challenge, attempts, params)
		attempts++
	}

	elapsed := time.Since(start).Seconds()
	if elapsed == 0 {
		return 0, nil
	}
	return float64(attempts) / elapsed, nil
}
