package integrity

import (
	"fmt"
	"strings"

	"github.com/gammazero/deque"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/inode"
)

// Checker walks a persisted inode tree, loading nodes on demand through
// loader, and reports every violation of the structural invariants a
// correctly-built tree must uphold.
type Checker struct {
	Loader *inode.Loader
}

// CheckKey loads the inode at key (root reports whether it is a tree root)
// and checks it and everything reachable from it.
func (c *Checker) CheckKey(key hash.Key, root bool) ([]error, error) {
	v, err := c.Loader.Load(key, root)
	if err != nil {
		return nil, fmt.Errorf("could not load root entry: %w", err)
	}
	return CheckTree(v, key), nil
}

type queued struct {
	val   *inode.Val
	depth int
	key   hash.Key
}

// CheckTree checks an already-in-memory tree, walking every Tree node
// breadth-first the way the teacher's ledger/trie.Trie.Leaves walks a trie.
// key is the tree's own key, if known (the zero key if it has not been
// saved yet, in which case the hash check is skipped).
func CheckTree(root *inode.Val, key hash.Key) []error {
	var errs []error

	queue := deque.New()
	queue.PushBack(queued{val: root, depth: 0, key: key})

	for queue.Len() > 0 {
		item := queue.PopFront().(queued)
		errs = append(errs, checkNode(item, queue)...)
	}

	return errs
}

func checkNode(item queued, queue *deque.Deque) []error {
	v := item.val
	var errs []error

	if v.IsTree() && v.Depth() != item.depth {
		errs = append(errs, InvalidDepth{Key: item.key, Want: item.depth, Got: v.Depth()})
	}

	bindings, err := v.Seq(0, -1, true)
	if err != nil {
		return append(errs, fmt.Errorf("could not enumerate bindings at %s: %w", item.key, err))
	}
	if v.Length() != len(bindings) {
		errs = append(errs, InvalidLength{Key: item.key, Declared: v.Length(), Actual: len(bindings)})
	}

	if !item.key.IsZero() {
		got, err := v.Hash()
		if err != nil {
			errs = append(errs, fmt.Errorf("could not hash %s: %w", item.key, err))
		} else if got != item.key.Hash() {
			errs = append(errs, WrongHash{Key: item.key, Want: item.key.Hash(), Got: got})
		}
	}

	if !v.IsTree() {
		errs = append(errs, checkLeafOrder(item.key, v.Bindings())...)
		return errs
	}

	if v.NbChildren() == 0 {
		errs = append(errs, Empty{Key: item.key})
	}

	cfg := v.Config()
	seenTargets := map[hash.Hash][]int{}
	for slot, entry := range v.Entries() {
		if entry == nil {
			continue
		}

		child, err := entry.Resolve(item.depth, true)
		if err != nil {
			errs = append(errs, AbsentValue{Key: item.key})
			continue
		}
		childKey, _ := entry.Key()

		if h := childKey.Hash(); !h.IsZero() {
			seenTargets[h] = append(seenTargets[h], slot)
		}

		childBindings, err := child.Seq(0, -1, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("could not enumerate bindings under slot %d of %s: %w", slot, item.key, err))
		} else {
			for _, b := range childBindings {
				want, err := cfg.Ordering(b.Step, item.depth, cfg.Entries)
				if err == nil && want != slot {
					errs = append(errs, UnsortedPointers{Key: item.key, Step: b.Step, Slot: slot, Want: want})
				}
			}
		}

		queue.PushBack(queued{val: child, depth: item.depth + 1, key: childKey})
	}

	for target, slots := range seenTargets {
		if len(slots) > 1 {
			errs = append(errs, DuplicatedPointers{Key: item.key, Target: hash.KeyOf(target)})
		}
	}

	return errs
}

func checkLeafOrder(key hash.Key, bindings []bin.Binding) []error {
	var errs []error
	for i := 1; i < len(bindings); i++ {
		cmp := strings.Compare(string(bindings[i-1].Step), string(bindings[i].Step))
		switch {
		case cmp == 0:
			errs = append(errs, DuplicatedEntries{Key: key, Step: bindings[i].Step})
		case cmp > 0:
			errs = append(errs, UnsortedEntries{Key: key})
		}
	}
	return errs
}
