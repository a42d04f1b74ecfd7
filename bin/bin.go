// Package bin defines the in-memory, wire-shaped form of an inode: either a
// flat Values leaf or a Tree of child pointers. It sits between the
// inode package (which owns mutation, laziness and ownership modes) and the
// compress package (which turns a Bin into compact bytes).
package bin

import (
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/step"
)

// Metadata describes a Contents value. The zero value is the designated
// default metadata, matching spec §3.
type Metadata struct {
	// Permissions mirror a POSIX-like mode bit; zero is the default.
	Permissions uint16
}

// IsDefault reports whether m equals the default metadata.
func (m Metadata) IsDefault() bool {
	return m == Metadata{}
}

// ValueKind tags a Value as pointing to contents or to a child node.
type ValueKind uint8

const (
	// KindContents tags a value as a contents reference with metadata.
	KindContents ValueKind = iota
	// KindNode tags a value as a child node reference.
	KindNode
)

// Value is the tagged union Contents(K, Metadata) | Node(K) from spec §3.
type Value struct {
	Kind     ValueKind
	Target   hash.Key
	Metadata Metadata
}

// Contents builds a Contents(K, Metadata) value.
func Contents(key hash.Key, meta Metadata) Value {
	return Value{Kind: KindContents, Target: key, Metadata: meta}
}

// Node builds a Node(K) value.
func Node(key hash.Key) Value {
	return Value{Kind: KindNode, Target: key}
}

// PtrMode tags how a Tree entry's child pointer is represented in a Bin: as
// a pre-computed hash (structural hashing has not reached a key yet) or as
// an already-resolved key (post-save, ready for external consumption).
type PtrMode uint8

const (
	// PtrHash tags a pointer carrying only a hash.
	PtrHash PtrMode = iota
	// PtrKey tags a pointer carrying a resolved key.
	PtrKey
)

// Ptr is one child pointer slot of a Tree Bin.
type Ptr struct {
	Mode PtrMode
	Hash hash.Hash
	Key  hash.Key

	// Length is the number of bindings reachable under this slot. It lets a
	// loaded tree's seq skip a whole subtree by offset without resolving it.
	Length int
}

// HashOf returns the hash this pointer refers to, regardless of mode.
func (p Ptr) HashOf() hash.Hash {
	if p.Mode == PtrKey {
		return p.Key.Hash()
	}
	return p.Hash
}

// Binding is one step -> value pair of a Values leaf, kept in step order.
type Binding struct {
	Step  step.Step
	Value Value
}

// Kind distinguishes the two Bin shapes.
type Kind uint8

const (
	// Values tags a flat leaf.
	Values Kind = iota
	// Tree tags an interior node of child pointers.
	TreeKind
)

// Bin is the wire shape of one inode: either a Values leaf (an ordered list
// of step->value bindings) or a Tree (depth, length, and up to ENTRIES child
// pointer slots, some of which may be empty).
type Bin struct {
	Kind Kind

	// Values is populated when Kind == Values. Bindings are kept sorted by
	// step to make the Bin deterministic and ready for stable hashing.
	Values []Binding

	// Depth, Length and Entries are populated when Kind == TreeKind.
	Depth   int
	Length  int
	Entries []*Ptr // nil entries are empty slots; length == ENTRIES
}
