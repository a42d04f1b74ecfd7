// Package step defines the path-segment type used as a key into inode
// values, along with the deterministic policies that map a step to a
// child-slot index at a given tree depth.
package step

import (
	"fmt"

	"github.com/OneOfOne/xxhash"

	"github.com/irmin-go/pack/hash"
)

// Step is one path segment in a tree key. It is opaque binary data; callers
// are responsible for giving it a stable encoding (e.g. a file name).
type Step []byte

// String renders the step for logging/debugging.
func (s Step) String() string {
	return string(s)
}

// Ordering maps a step and the depth at which it is being placed to a bucket
// index in [0, entries). Entries must be a power of two.
type Ordering func(s Step, depth, entries int) (int, error)

// ErrMaxDepth is returned when a step ordering policy runs out of bits to
// extract a bucket index from, i.e. the tree has been split deeper than the
// chosen hash function's digest supports.
type ErrMaxDepth struct {
	Depth int
}

func (e ErrMaxDepth) Error() string {
	return fmt.Sprintf("max depth exceeded at depth %d", e.Depth)
}

// log2 returns log base 2 of n, assuming n is a power of two greater than
// zero. It panics on invalid input since entries is always a store-wide
// configuration constant, never user input.
func log2(n int) int {
	if n <= 0 || n&(n-1) != 0 {
		panic(fmt.Sprintf("entries must be a power of two, got %d", n))
	}
	bits := 0
	for n > 1 {
		n >>= 1
		bits++
	}
	return bits
}

// HashBits builds a step ordering that hashes the step with h and extracts
// log2(entries) consecutive bits of the digest starting at bit
// depth*log2(entries), handling the case where the window straddles a byte
// boundary. It is only valid for entries <= 1024, per spec §4.1.
func HashBits(h func(Step) hash.Hash) Ordering {
	return func(s Step, depth, entries int) (int, error) {
		if entries > 1024 {
			panic("hash-bits ordering requires entries <= 1024")
		}
		width := log2(entries)
		digest := h(s)
		start := depth * width
		if start+width > hash.Size*8 {
			return 0, ErrMaxDepth{Depth: depth}
		}
		return extractBits(digest[:], start, width), nil
	}
}

// extractBits reads width consecutive bits from data starting at bit offset
// start (0 = most significant bit of data[0]), returning them as an int with
// the first extracted bit as the most significant bit of the result.
func extractBits(data []byte, start, width int) int {
	value := 0
	for i := 0; i < width; i++ {
		bitIndex := start + i
		byteIndex := bitIndex / 8
		bitInByte := 7 - (bitIndex % 8)
		bit := (data[byteIndex] >> uint(bitInByte)) & 1
		value = (value << 1) | int(bit)
	}
	return value
}

// SeededHash builds a step ordering using a non-cryptographic short-hash of
// the step's binary encoding, seeded with the depth, then reduced modulo
// entries. Valid for any power-of-two entries.
func SeededHash() Ordering {
	return func(s Step, depth, entries int) (int, error) {
		seed := uint64(depth) + 1
		digest := xxhash.ChecksumString64S(string(s), seed)
		return int(digest % uint64(entries)), nil
	}
}

// Custom wraps a caller-supplied pure ordering function, letting a store
// configure an arbitrary (step, depth) -> bucket mapping.
func Custom(f func(Step, int, int) (int, error)) Ordering {
	return Ordering(f)
}
