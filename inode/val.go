package inode

import (
	"fmt"
	"sort"
	"sync"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/step"
)

// Val is one inode value: either a flat Values leaf or a Tree of child
// pointers, per spec §3/§4.2. Values are immutable once built; every
// mutating operation returns a new Val, sharing whatever subtrees did not
// change.
type Val struct {
	cfg  *Config
	root bool

	leaf *leafShape
	tree *treeShape

	mu      sync.Mutex
	hashSet bool
	hashVal hash.Hash
}

type leafShape struct {
	// bindings is kept sorted by Step so Values leaves hash and iterate
	// deterministically.
	bindings []bin.Binding
}

type treeShape struct {
	depth   int
	length  int
	entries []*ChildPtr // len == cfg.Entries; nil slots are empty
}

// Empty builds the empty root inode.
func Empty(cfg *Config) *Val {
	return &Val{cfg: cfg, root: true, leaf: &leafShape{}}
}

// IsTree reports whether v is currently shaped as a Tree rather than a flat
// Values leaf.
func (v *Val) IsTree() bool {
	return v.tree != nil
}

// IsRoot reports whether v is a tree root.
func (v *Val) IsRoot() bool {
	return v.root
}

// Length returns the total number of step->value bindings reachable from v.
func (v *Val) Length() int {
	if v.tree != nil {
		return v.tree.length
	}
	return len(v.leaf.bindings)
}

// NbChildren returns the number of occupied slots at this level: the number
// of non-empty entries for a Tree, or the number of bindings for a Values
// leaf.
func (v *Val) NbChildren() int {
	if v.tree == nil {
		return len(v.leaf.bindings)
	}
	n := 0
	for _, e := range v.tree.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// Depth returns a Tree node's recorded nesting depth, or -1 for a Values
// leaf.
func (v *Val) Depth() int {
	if v.tree == nil {
		return -1
	}
	return v.tree.depth
}

// Entries returns a Tree node's child pointer slots (some possibly nil), or
// nil for a Values leaf. The returned slice must not be mutated.
func (v *Val) Entries() []*ChildPtr {
	if v.tree == nil {
		return nil
	}
	return v.tree.entries
}

// Bindings returns a Values leaf's step->value bindings in step order, or
// nil for a Tree node. The returned slice must not be mutated.
func (v *Val) Bindings() []bin.Binding {
	if v.leaf == nil {
		return nil
	}
	return v.leaf.bindings
}

// Config returns the configuration v was built with.
func (v *Val) Config() *Config {
	return v.cfg
}

// Stable reports whether v hashes as its flat map (should_be_stable),
// per spec §4.3.
func (v *Val) Stable() bool {
	return v.cfg.shouldBeStable(v.Length(), v.root)
}

// Find looks up the value bound to s, if any.
func (v *Val) Find(s step.Step) (bin.Value, bool, error) {
	return v.findAt(s, 0)
}

func (v *Val) findAt(s step.Step, depth int) (bin.Value, bool, error) {
	if v.leaf != nil {
		i := sort.Search(len(v.leaf.bindings), func(i int) bool {
			return string(v.leaf.bindings[i].Step) >= string(s)
		})
		if i < len(v.leaf.bindings) && string(v.leaf.bindings[i].Step) == string(s) {
			return v.leaf.bindings[i].Value, true, nil
		}
		return bin.Value{}, false, nil
	}

	if depth > v.cfg.MaxDepth() {
		return bin.Value{}, false, step.ErrMaxDepth{Depth: depth}
	}
	bucket, err := v.cfg.Ordering(s, depth, v.cfg.Entries)
	if err != nil {
		return bin.Value{}, false, err
	}
	entry := v.tree.entries[bucket]
	if entry == nil {
		return bin.Value{}, false, nil
	}
	child, err := entry.Resolve(depth, true)
	if err != nil {
		return bin.Value{}, false, err
	}
	return child.findAt(s, depth+1)
}

// errSeqDone is an internal sentinel unwound by Seq once it has collected
// length bindings; it never escapes Seq.
var errSeqDone = fmt.Errorf("seq: collected requested length")

// Seq returns the step->value bindings reachable from v in traversal order
// (Tree slots in slot order, each Values leaf in step order; the result as a
// whole is in step order only when v is a Values leaf), restricted to the
// [offset, offset+length) window (length == -1 means "to
// the end"; length == 0 yields no bindings without any traversal). offset < 0
// or length < -1 fail with a precondition error, per spec §4.4.
//
// Traversal descends Tree nodes in slot order and skips a whole subtree by
// consulting its ChildPtr.Length() whenever that subtree lies entirely
// before offset, without resolving it. cache controls whether any ModeLazy
// child actually resolved along the way is promoted to Lazy_loaded: pass
// false to fault values in without retaining them.
func (v *Val) Seq(offset, length int, cache bool) ([]bin.Binding, error) {
	if offset < 0 {
		return nil, ErrInvalidSeqOffset{Offset: offset}
	}
	if length < -1 {
		return nil, ErrInvalidSeqLength{Length: length}
	}
	if length == 0 {
		return nil, nil
	}

	st := &seqState{offset: offset, limit: length, cache: cache}
	err := v.seqWalk(0, st)
	if err != nil && err != errSeqDone {
		return nil, err
	}
	return st.out, nil
}

type seqState struct {
	offset int // bindings still to skip before collecting
	limit  int // bindings still to collect; -1 means unbounded
	cache  bool
	out    []bin.Binding
}

func (v *Val) seqWalk(depth int, st *seqState) error {
	if v.leaf != nil {
		for _, b := range v.leaf.bindings {
			if st.offset > 0 {
				st.offset--
				continue
			}
			st.out = append(st.out, b)
			if st.limit > 0 {
				st.limit--
				if st.limit == 0 {
					return errSeqDone
				}
			}
		}
		return nil
	}

	for _, e := range v.tree.entries {
		if e == nil {
			continue
		}
		if st.offset >= e.Length() {
			st.offset -= e.Length()
			continue
		}
		child, err := e.Resolve(depth, st.cache)
		if err != nil {
			return err
		}
		if err := child.seqWalk(depth+1, st); err != nil {
			return err
		}
		if st.limit == 0 {
			return errSeqDone
		}
	}
	return nil
}

// walk visits every binding reachable from v, in the same traversal order as
// Seq (slot order across Tree nodes, step order within each Values leaf),
// calling visit once per binding. Every resolved child is promoted to Lazy_loaded, the
// same as a cache=true Seq.
func (v *Val) walk(visit func(bin.Binding) error) error {
	if v.leaf != nil {
		for _, b := range v.leaf.bindings {
			if err := visit(b); err != nil {
				return err
			}
		}
		return nil
	}
	for _, e := range v.tree.entries {
		if e == nil {
			continue
		}
		child, err := e.Resolve(v.tree.depth, true)
		if err != nil {
			return err
		}
		if err := child.walk(visit); err != nil {
			return err
		}
	}
	return nil
}

// Clear recursively downgrades every Lazy_loaded child to Lazy, dropping
// cached values to free memory without losing the ability to re-resolve
// them later. Dirty, Total and Intact children are left untouched, per spec
// §4.4.
func (v *Val) Clear() {
	if v.tree == nil {
		return
	}
	for _, e := range v.tree.entries {
		if e == nil {
			continue
		}
		if e.mode == ModeLazy {
			e.mu.Lock()
			child := e.cached
			e.mu.Unlock()
			if child != nil {
				child.Clear()
			}
			e.Clear()
			continue
		}
		if e.direct != nil {
			e.direct.Clear()
		}
	}
}
