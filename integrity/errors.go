// Package integrity implements the result taxonomy and checker used to
// validate a persisted inode tree against its own structural invariants
// (spec §7): every reachable entry must actually be present in the store,
// every recorded hash/depth/length must match what is actually reachable,
// and a Values leaf's bindings (or a Tree's child pointers) must obey the
// ordering and uniqueness the rest of the system assumes.
package integrity

import (
	"fmt"

	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/step"
)

// WrongHash is reported when an entry's recomputed content hash does not
// match the hash it is addressed by.
type WrongHash struct {
	Key  hash.Key
	Want hash.Hash
	Got  hash.Hash
}

func (e WrongHash) Error() string {
	return fmt.Sprintf("wrong hash at %s: want %s, got %s", e.Key, e.Want, e.Got)
}

// AbsentValue is reported when a referenced key cannot be fetched from the
// store at all.
type AbsentValue struct {
	Key hash.Key
}

func (e AbsentValue) Error() string {
	return fmt.Sprintf("absent value: %s is referenced but not present in the store", e.Key)
}

// InvalidDepth is reported when a Tree node's recorded depth does not match
// its actual distance from the root.
type InvalidDepth struct {
	Key     hash.Key
	Want    int
	Got     int
}

func (e InvalidDepth) Error() string {
	return fmt.Sprintf("invalid depth at %s: want %d, got %d", e.Key, e.Want, e.Got)
}

// InvalidLength is reported when a Tree node's recorded length does not
// match the number of bindings actually reachable below it.
type InvalidLength struct {
	Key      hash.Key
	Declared int
	Actual   int
}

func (e InvalidLength) Error() string {
	return fmt.Sprintf("invalid length at %s: declared %d, actual %d", e.Key, e.Declared, e.Actual)
}

// DuplicatedEntries is reported when a Values leaf binds the same step
// twice.
type DuplicatedEntries struct {
	Key  hash.Key
	Step step.Step
}

func (e DuplicatedEntries) Error() string {
	return fmt.Sprintf("duplicated entries at %s: step %q bound twice", e.Key, e.Step)
}

// UnsortedEntries is reported when a Values leaf's bindings are not in
// strictly increasing step order.
type UnsortedEntries struct {
	Key hash.Key
}

func (e UnsortedEntries) Error() string {
	return fmt.Sprintf("unsorted entries at %s", e.Key)
}

// DuplicatedPointers is reported when two different child slots of the same
// Tree node resolve to the same target key, which structural sharing should
// have unified into a single slot referenced once.
type DuplicatedPointers struct {
	Key    hash.Key
	Target hash.Key
}

func (e DuplicatedPointers) Error() string {
	return fmt.Sprintf("duplicated pointers at %s: target %s reachable from two slots", e.Key, e.Target)
}

// UnsortedPointers is reported when a binding is reachable under a child
// slot its step does not actually hash-bucket to at that depth, i.e. the
// tree has been corrupted or built with a different ordering policy.
type UnsortedPointers struct {
	Key  hash.Key
	Step step.Step
	Slot int
	Want int
}

func (e UnsortedPointers) Error() string {
	return fmt.Sprintf("unsorted pointers at %s: step %q stored in slot %d, want slot %d", e.Key, e.Step, e.Slot, e.Want)
}

// Empty is reported when a Tree node has no occupied child slots at all; it
// should have collapsed to a Values leaf.
type Empty struct {
	Key hash.Key
}

func (e Empty) Error() string {
	return fmt.Sprintf("empty tree node at %s: should have collapsed to a values leaf", e.Key)
}
