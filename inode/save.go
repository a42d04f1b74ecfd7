package inode

import (
	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/compress"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/packv"
)

// Putter is the narrow write surface Save needs from a pack store: append a
// framed entry, keyed by its already-computed content hash, and hand back
// the key other entries will reference it by. A *store.Store satisfies
// this structurally.
type Putter interface {
	Put(h hash.Hash, kind packv.Kind, framed []byte) (hash.Key, error)
}

// Saver persists inode values, walking bottom-up so a Tree's child pointers
// are always promoted to a resolved key before the parent itself is encoded.
type Saver struct {
	Codec   *compress.Codec
	Put     Putter
	Dict    compress.Dict
	Offsets compress.Offsets
}

// Save persists v and everything reachable from it that has not already been
// saved, returning the key it was stored under. Child pointers already
// carrying a key (ModeLazy, i.e. unchanged since the last load) are reused
// as-is rather than re-encoded.
func (s *Saver) Save(v *Val) (hash.Key, error) {
	wire, err := s.toBin(v)
	if err != nil {
		return hash.Key{}, err
	}

	payload, err := s.Codec.Encode(wire, s.Dict, s.Offsets)
	if err != nil {
		return hash.Key{}, err
	}

	h, err := v.Hash()
	if err != nil {
		return hash.Key{}, err
	}

	kind := packv.KindInodeV2NonRoot
	if v.root {
		kind = packv.KindInodeV2Root
	}
	framed := packv.Encode(kind, payload)

	key, err := s.Put.Put(h, kind, framed)
	if err != nil {
		return hash.Key{}, err
	}
	return key, nil
}

func (s *Saver) toBin(v *Val) (bin.Bin, error) {
	if v.leaf != nil {
		return bin.Bin{Kind: bin.Values, Values: v.leaf.bindings}, nil
	}

	entries := make([]*bin.Ptr, len(v.tree.entries))
	for i, e := range v.tree.entries {
		if e == nil {
			continue
		}
		key, err := s.saveChild(e, v.tree.depth)
		if err != nil {
			return bin.Bin{}, err
		}
		entries[i] = &bin.Ptr{Mode: bin.PtrKey, Key: key, Hash: key.Hash(), Length: e.Length()}
	}
	return bin.Bin{Kind: bin.TreeKind, Depth: v.tree.depth, Length: v.tree.length, Entries: entries}, nil
}

func (s *Saver) saveChild(e *ChildPtr, depth int) (hash.Key, error) {
	switch e.mode {
	case ModeLazy:
		e.mu.Lock()
		k := e.key
		cached := e.cached
		e.mu.Unlock()
		if cached == nil {
			return k, nil
		}
		// A loaded-then-untouched child still carries its original key;
		// only re-save it if it was actually mutated, which would have
		// replaced this pointer with a Dirty one in the parent's entries.
		return k, nil
	case ModeBroken:
		return hash.Key{}, UnknownHashAtTruncatedBoundary{Depth: depth}
	case ModeTotal, ModeDirty, ModeIntact:
		key, err := s.Save(e.direct)
		if err != nil {
			return hash.Key{}, err
		}
		if e.mode == ModeDirty {
			e.mu.Lock()
			e.key = key
			e.mu.Unlock()
		}
		return key, nil
	default:
		return hash.Key{}, UnknownHashAtTruncatedBoundary{Depth: depth}
	}
}
