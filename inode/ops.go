package inode

import (
	"sort"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/step"
)

// Add returns a new root inode with s bound to val, leaving v untouched. It
// fails with ErrWriteOnNonRoot unless v is a tree root.
func (v *Val) Add(s step.Step, val bin.Value) (*Val, error) {
	if !v.root {
		return nil, ErrWriteOnNonRoot
	}
	next, changed, err := v.addAt(s, val, 0)
	if err != nil {
		return nil, err
	}
	if !changed {
		return v, nil
	}
	next.root = true
	return next, nil
}

// Remove returns a new root inode with s unbound, leaving v untouched. It
// fails with ErrWriteOnNonRoot unless v is a tree root.
func (v *Val) Remove(s step.Step) (*Val, error) {
	if !v.root {
		return nil, ErrWriteOnNonRoot
	}
	next, changed, err := v.removeAt(s, 0)
	if err != nil {
		return nil, err
	}
	if !changed {
		return v, nil
	}
	next.root = true
	return next, nil
}

func (v *Val) addAt(s step.Step, val bin.Value, depth int) (*Val, bool, error) {
	if v.leaf != nil {
		return v.addToLeaf(s, val, depth)
	}
	return v.addToTree(s, val, depth)
}

func (v *Val) addToLeaf(s step.Step, val bin.Value, depth int) (*Val, bool, error) {
	bindings := v.leaf.bindings
	i := sort.Search(len(bindings), func(i int) bool {
		return string(bindings[i].Step) >= string(s)
	})

	if i < len(bindings) && string(bindings[i].Step) == string(s) {
		if bindings[i].Value == val {
			return v, false, nil
		}
		next := make([]bin.Binding, len(bindings))
		copy(next, bindings)
		next[i] = bin.Binding{Step: s, Value: val}
		return &Val{cfg: v.cfg, leaf: &leafShape{bindings: next}}, true, nil
	}

	next := make([]bin.Binding, len(bindings)+1)
	copy(next, bindings[:i])
	next[i] = bin.Binding{Step: s, Value: val}
	copy(next[i+1:], bindings[i:])

	if len(next) <= v.cfg.Entries {
		return &Val{cfg: v.cfg, leaf: &leafShape{bindings: next}}, true, nil
	}

	// Splitting into a Tree: rebuild from scratch by re-inserting every
	// binding through the tree insertion path, per spec §4.2.
	tree := &Val{cfg: v.cfg, tree: &treeShape{depth: depth, entries: make([]*ChildPtr, v.cfg.Entries)}}
	var err error
	for _, b := range next {
		tree, _, err = tree.addToTree(b.Step, b.Value, depth)
		if err != nil {
			return nil, false, err
		}
	}
	return tree, true, nil
}

func (v *Val) addToTree(s step.Step, val bin.Value, depth int) (*Val, bool, error) {
	if depth > v.cfg.MaxDepth() {
		return nil, false, step.ErrMaxDepth{Depth: depth}
	}
	bucket, err := v.cfg.Ordering(s, depth, v.cfg.Entries)
	if err != nil {
		return nil, false, err
	}

	entry := v.tree.entries[bucket]
	var child *Val
	var lengthBefore int
	var find FindFunc
	if entry != nil {
		child, err = entry.Resolve(depth, true)
		if err != nil {
			return nil, false, err
		}
		lengthBefore = child.Length()
		find = entry.find
	} else {
		child = &Val{cfg: v.cfg, leaf: &leafShape{}}
	}

	newChild, changed, err := child.addAt(s, val, depth+1)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return v, false, nil
	}

	entries := make([]*ChildPtr, len(v.tree.entries))
	copy(entries, v.tree.entries)
	entries[bucket] = DirtyPtr(newChild, find)

	length := v.tree.length - lengthBefore + newChild.Length()
	return &Val{cfg: v.cfg, tree: &treeShape{depth: v.tree.depth, length: length, entries: entries}}, true, nil
}

func (v *Val) removeAt(s step.Step, depth int) (*Val, bool, error) {
	if v.leaf != nil {
		bindings := v.leaf.bindings
		i := sort.Search(len(bindings), func(i int) bool {
			return string(bindings[i].Step) >= string(s)
		})
		if i >= len(bindings) || string(bindings[i].Step) != string(s) {
			return v, false, nil
		}
		next := make([]bin.Binding, 0, len(bindings)-1)
		next = append(next, bindings[:i]...)
		next = append(next, bindings[i+1:]...)
		return &Val{cfg: v.cfg, leaf: &leafShape{bindings: next}}, true, nil
	}

	if depth > v.cfg.MaxDepth() {
		return nil, false, step.ErrMaxDepth{Depth: depth}
	}
	bucket, err := v.cfg.Ordering(s, depth, v.cfg.Entries)
	if err != nil {
		return nil, false, err
	}

	entry := v.tree.entries[bucket]
	if entry == nil {
		return v, false, nil
	}
	child, err := entry.Resolve(depth, true)
	if err != nil {
		return nil, false, err
	}

	newChild, changed, err := child.removeAt(s, depth+1)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return v, false, nil
	}

	entries := make([]*ChildPtr, len(v.tree.entries))
	copy(entries, v.tree.entries)
	if newChild.Length() == 0 {
		entries[bucket] = nil
	} else {
		entries[bucket] = DirtyPtr(newChild, entry.find)
	}

	length := v.tree.length - child.Length() + newChild.Length()

	if length <= v.cfg.Entries {
		// Collapse back to a flat Values leaf, per spec §4.2.
		var bindings []bin.Binding
		for _, e := range entries {
			if e == nil {
				continue
			}
			c, err := e.Resolve(depth, true)
			if err != nil {
				return nil, false, err
			}
			err = c.walk(func(b bin.Binding) error {
				bindings = append(bindings, b)
				return nil
			})
			if err != nil {
				return nil, false, err
			}
		}
		sort.Slice(bindings, func(i, j int) bool {
			return string(bindings[i].Step) < string(bindings[j].Step)
		})
		return &Val{cfg: v.cfg, leaf: &leafShape{bindings: bindings}}, true, nil
	}

	return &Val{cfg: v.cfg, tree: &treeShape{depth: v.tree.depth, length: length, entries: entries}}, true, nil
}
