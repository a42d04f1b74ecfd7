package inode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
)

// Hash returns v's content hash, computing and caching it on first use. A
// stable inode (should_be_stable) hashes as its flat map, independent of how
// it happens to be chunked internally; an unstable inode hashes structurally,
// over its own shape plus its children's hashes. Both forms are computed
// over a canonical CBOR encoding so the dictionary/addressing choices made by
// the compress package never influence the root hash, per spec §4.3.
func (v *Val) Hash() (hash.Hash, error) {
	v.mu.Lock()
	if v.hashSet {
		h := v.hashVal
		v.mu.Unlock()
		return h, nil
	}
	v.mu.Unlock()

	var h hash.Hash
	var err error
	if v.Stable() {
		h, err = v.hashFlat()
	} else {
		h, err = v.hashStructural()
	}
	if err != nil {
		return hash.Hash{}, err
	}

	v.mu.Lock()
	if !v.hashSet {
		v.hashVal = h
		v.hashSet = true
	}
	h = v.hashVal
	v.mu.Unlock()
	return h, nil
}

type hashBinding struct {
	Step []byte `cbor:"s"`
	Node bool   `cbor:"n"`
	Hash []byte `cbor:"h"`
	Meta bool   `cbor:"m"`
	Perm uint16 `cbor:"p,omitempty"`
}

// hashFlat hashes v as its flattened step->value map, ignoring any internal
// Tree chunking, per should_be_stable.
func (v *Val) hashFlat() (hash.Hash, error) {
	var bindings []bin.Binding
	err := v.walk(func(b bin.Binding) error {
		bindings = append(bindings, b)
		return nil
	})
	if err != nil {
		return hash.Hash{}, err
	}
	return hashBindings(bindings)
}

func hashBindings(bindings []bin.Binding) (hash.Hash, error) {
	wire := make([]hashBinding, len(bindings))
	for i, b := range bindings {
		h := b.Value.Target.Hash()
		wire[i] = hashBinding{
			Step: []byte(b.Step),
			Node: b.Value.Kind == bin.KindNode,
			Hash: h[:],
			Meta: !b.Value.Metadata.IsDefault(),
			Perm: b.Value.Metadata.Permissions,
		}
	}
	return hashCanonical(wire)
}

type hashEntry struct {
	Slot int    `cbor:"i"`
	Hash []byte `cbor:"h"`
}

type hashTree struct {
	Depth   int         `cbor:"d"`
	Length  int         `cbor:"l"`
	Entries []hashEntry `cbor:"e"`
}

// hashStructural hashes v over its own chunking shape: for a Tree, depth,
// length, and the hash of each occupied child slot; for a Values leaf, its
// bindings, wrapped so the result differs from the flat hash of the same
// map. Two inodes holding the same bindings but chunked differently (e.g.
// loaded through a different Ordering history) hash differently here, which
// is the point: structural hashing is only used for non-root inodes and for
// roots above the stability threshold, where internal shape is observable.
func (v *Val) hashStructural() (hash.Hash, error) {
	if v.leaf != nil {
		flat, err := hashBindings(v.leaf.bindings)
		if err != nil {
			return hash.Hash{}, err
		}
		return hashCanonical(struct {
			Values []byte `cbor:"v"`
		}{Values: flat[:]})
	}

	wire := hashTree{Depth: v.tree.depth, Length: v.tree.length}
	for i, e := range v.tree.entries {
		if e == nil {
			continue
		}
		h, err := e.Hash()
		if err != nil {
			return hash.Hash{}, err
		}
		wire.Entries = append(wire.Entries, hashEntry{Slot: i, Hash: h[:]})
	}
	return hashCanonical(wire)
}

func hashCanonical(v interface{}) (hash.Hash, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return hash.Hash{}, fmt.Errorf("could not build cbor encoder: %w", err)
	}
	encoded, err := mode.Marshal(v)
	if err != nil {
		return hash.Hash{}, fmt.Errorf("could not encode for hashing: %w", err)
	}
	return hash.Sum(encoded), nil
}
