// Package inode implements the hash-consed, balanced inode value (spec
// §3/§4.2-§4.4): a recursive map from steps to values that splits into a
// tree of small, shareable chunks once it grows past ENTRIES bindings, and
// collapses back to a flat leaf once it shrinks below that bound.
package inode

import (
	"fmt"
	"math/bits"

	"github.com/irmin-go/pack/step"
)

// Config fixes the parameters that make an inode's hash deterministic
// across any sequence of builds: the branching factor, the stability
// threshold, and the step ordering policy. All three must be identical
// between any two inode values being compared, or hash equality is not
// guaranteed (spec invariant 1).
type Config struct {
	// Entries is the maximum cardinality of a Values leaf, and the fan-out
	// of a Tree node. Must be a power of two.
	Entries int

	// StableHash is the size threshold at or below which a root inode
	// hashes as its flat map rather than its internal chunking. Must be
	// >= Entries.
	StableHash int

	// Ordering assigns a child-slot bucket to a step at a given depth.
	Ordering step.Ordering
}

// MaxDepth returns the maximum recursion depth this configuration permits,
// per spec §3 invariant 8: floor(50 / log2(Entries)).
func (c *Config) MaxDepth() int {
	return 50 / log2(c.Entries)
}

func log2(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len(uint(n)) - 1
}

// Validate checks the configuration's static invariants.
func (c *Config) Validate() error {
	if c.Entries <= 0 || c.Entries&(c.Entries-1) != 0 {
		return fmt.Errorf("entries must be a power of two, got %d", c.Entries)
	}
	if c.StableHash < c.Entries {
		return fmt.Errorf("stable_hash (%d) must be >= entries (%d)", c.StableHash, c.Entries)
	}
	if c.Ordering == nil {
		return fmt.Errorf("ordering policy must be set")
	}
	return nil
}

// shouldBeStable implements spec §4.3:
// should_be_stable(length, root) = length = 0 ∨ (root ∧ length ≤ STABLE_HASH).
func (c *Config) shouldBeStable(length int, root bool) bool {
	return length == 0 || (root && length <= c.StableHash)
}
