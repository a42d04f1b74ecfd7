package inode

import (
	"fmt"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/compress"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/packv"
)

// Getter is the narrow read surface Load needs from a pack store: fetch the
// framed entry's kind and already-unframed payload for a key. A
// *store.Store satisfies this structurally.
type Getter interface {
	Get(key hash.Key) (packv.Kind, []byte, error)
}

// Loader resolves persisted inode entries back into Val trees, attaching a
// Lazy child pointer (backed by itself, recursively) to every Tree entry so
// a loaded tree is Partial-layout: children fault in on first access.
type Loader struct {
	Codec   *compress.Codec
	Dict    compress.Dict
	Offsets compress.Offsets
	Get     Getter
	Config  *Config
}

// Load fetches and decodes the inode stored at key. root must match whether
// the caller is loading a tree root (e.g. from a commit) or an internal node
// (e.g. via a Lazy pointer's find callback).
func (l *Loader) Load(key hash.Key, root bool) (*Val, error) {
	kind, payload, err := l.Get.Get(key)
	if err != nil {
		return nil, fmt.Errorf("could not fetch inode entry: %w", err)
	}
	if !kind.IsInode() {
		return nil, fmt.Errorf("entry at %s is not an inode (kind: %s)", key, kind)
	}

	wire, err := l.Codec.Decode(payload, l.Dict, l.Offsets)
	if err != nil {
		return nil, fmt.Errorf("could not decode inode bin: %w", err)
	}

	return l.fromBin(wire, root), nil
}

func (l *Loader) fromBin(w bin.Bin, root bool) *Val {
	if w.Kind == bin.Values {
		return &Val{cfg: l.Config, root: root, leaf: &leafShape{bindings: w.Values}}
	}

	find := func(key hash.Key) (*Val, error) {
		return l.Load(key, false)
	}

	entries := make([]*ChildPtr, len(w.Entries))
	for i, p := range w.Entries {
		if p == nil {
			continue
		}
		entries[i] = LazyPtr(p.Key, p.Length, find)
	}

	return &Val{cfg: l.Config, root: root, tree: &treeShape{depth: w.Depth, length: w.Length, entries: entries}}
}
