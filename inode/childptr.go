package inode

import (
	"sync"

	"github.com/irmin-go/pack/hash"
)

// FindFunc resolves a persisted key into the inode it names, the store-level
// hook a Partial-layout tree uses to fault in a Lazy child. It may block on
// I/O.
type FindFunc func(key hash.Key) (*Val, error)

// Mode tags a child pointer's ownership: how the slot came to exist and what
// it takes to read the value behind it. Dirty and Lazy only ever occur
// together with a Partial-layout parent; Broken and Intact only occur
// together with a Truncated-layout parent; Total is its own layout,
// always fully resolved and never downgraded.
type Mode uint8

const (
	// ModeTotal: the child is always held directly in memory. Never lazy,
	// never cleared.
	ModeTotal Mode = iota
	// ModeLazy: the child is known only by key; Resolve calls find. Once
	// resolved the value is cached (reported as Lazy_loaded) until Clear
	// drops it back to bare Lazy.
	ModeLazy
	// ModeDirty: the child was built or mutated in memory. Save records the
	// key it stored the child under but leaves the pointer Dirty, still
	// holding the value. Clear has no effect on a Dirty pointer.
	ModeDirty
	// ModeBroken: the child's hash is known but there is no resolver able to
	// turn it back into a value (e.g. decoded without store access).
	ModeBroken
	// ModeIntact: the child was supplied directly at construction time even
	// though the parent is Truncated. Clear has no effect.
	ModeIntact
)

// ChildPtr is one slot of a Tree node's entries array.
type ChildPtr struct {
	mode Mode

	// length is the number of bindings reachable under this slot. It is
	// recorded at construction time (from the child actually built, or from
	// the wire Ptr.Length a load decoded) so that seq can skip a whole
	// subtree by offset without resolving it, per spec §4.4.
	length int

	mu     sync.Mutex
	key    hash.Key // valid once known: ModeLazy, or after Save promotes a Dirty pointer
	cached *Val     // ModeLazy: the resolved value, once loaded
	direct *Val     // ModeTotal, ModeDirty, ModeIntact: the eagerly-held value
	broken hash.Hash
	find   FindFunc
}

// TotalPtr builds a fully in-memory, never-lazy child pointer.
func TotalPtr(v *Val) *ChildPtr {
	return &ChildPtr{mode: ModeTotal, direct: v, length: v.Length()}
}

// LazyPtr builds a child pointer known only by key, resolved on demand
// through find. length is the subtree's binding count as recorded on disk.
func LazyPtr(key hash.Key, length int, find FindFunc) *ChildPtr {
	return &ChildPtr{mode: ModeLazy, key: key, length: length, find: find}
}

// DirtyPtr builds a child pointer for a freshly built or mutated subtree that
// has not yet been saved. find, if non-nil, is carried into the Dirty
// pointers that later mutations of this slot build; a Dirty pointer itself
// never calls it. Save records the key on this pointer but does not turn it
// into a Lazy or Lazy_loaded one.
func DirtyPtr(v *Val, find FindFunc) *ChildPtr {
	return &ChildPtr{mode: ModeDirty, direct: v, length: v.Length(), find: find}
}

// BrokenPtr builds a child pointer for a hash with no attached resolver.
// length is the subtree's binding count as recorded on disk, if known (0
// otherwise); seq uses it the same way as any other slot to decide whether
// an offset can skip past it without resolving.
func BrokenPtr(h hash.Hash, length int) *ChildPtr {
	return &ChildPtr{mode: ModeBroken, broken: h, length: length}
}

// IntactPtr builds a child pointer for a value supplied directly even though
// the owning tree is otherwise Truncated.
func IntactPtr(v *Val) *ChildPtr {
	return &ChildPtr{mode: ModeIntact, direct: v, length: v.Length()}
}

// Length returns the number of bindings reachable under this slot, known
// without resolving the pointer.
func (p *ChildPtr) Length() int {
	return p.length
}

// Mode reports the pointer's construction-time ownership mode. Use
// EffectiveMode to additionally distinguish Lazy from the reported
// Lazy_loaded state.
func (p *ChildPtr) Mode() Mode {
	return p.mode
}

// EffectiveMode reports ModeLazy's Lazy_loaded sub-state once the pointer has
// been resolved and cached, for diagnostics/integrity reporting.
func (p *ChildPtr) EffectiveMode() string {
	switch p.mode {
	case ModeTotal:
		return "total"
	case ModeDirty:
		return "dirty"
	case ModeBroken:
		return "broken"
	case ModeIntact:
		return "intact"
	case ModeLazy:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.cached != nil {
			return "lazy_loaded"
		}
		return "lazy"
	default:
		return "unknown"
	}
}

// Key returns the pointer's persisted key and whether one is known yet.
// Always true for ModeLazy; true for ModeDirty only after Save has run.
// ModeTotal, ModeIntact and ModeBroken pointers never carry a key.
func (p *ChildPtr) Key() (hash.Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == ModeLazy {
		return p.key, true
	}
	if !p.key.IsZero() {
		return p.key, true
	}
	return hash.Key{}, false
}

// Hash returns the pointer's target hash without requiring resolution,
// falling back to resolving the in-memory value's hash when no hash is
// known up front.
func (p *ChildPtr) Hash() (hash.Hash, error) {
	switch p.mode {
	case ModeBroken:
		return p.broken, nil
	case ModeLazy:
		p.mu.Lock()
		k := p.key
		p.mu.Unlock()
		return k.Hash(), nil
	case ModeTotal, ModeDirty, ModeIntact:
		return p.direct.Hash()
	default:
		return hash.Hash{}, nil
	}
}

// Resolve returns the value behind this pointer, faulting it in through find
// if necessary. It is the only suspension point in a pointer walk: ModeLazy
// without a cached value may block on store I/O. cache controls whether a
// freshly-resolved ModeLazy pointer is promoted to Lazy_loaded: pass false
// (e.g. from a seq call with cache=false) to fault the value in without
// retaining it, per spec §4.4/§4.6.
func (p *ChildPtr) Resolve(depth int, cache bool) (*Val, error) {
	switch p.mode {
	case ModeTotal, ModeDirty, ModeIntact:
		return p.direct, nil
	case ModeBroken:
		return nil, ErrBrokenPointer{Depth: depth}
	case ModeLazy:
		p.mu.Lock()
		if p.cached != nil {
			v := p.cached
			p.mu.Unlock()
			return v, nil
		}
		find := p.find
		key := p.key
		p.mu.Unlock()

		if find == nil {
			return nil, ErrBrokenPointer{Depth: depth}
		}
		v, err := find(key)
		if err != nil {
			return nil, err
		}

		if !cache {
			return v, nil
		}

		p.mu.Lock()
		if p.cached == nil {
			p.cached = v
		}
		cached := p.cached
		p.mu.Unlock()
		return cached, nil
	default:
		return nil, ErrBrokenPointer{Depth: depth}
	}
}

// Clear downgrades a Lazy_loaded pointer back to bare Lazy, dropping its
// cached value. Total, Dirty, Broken and Intact pointers are left untouched,
// per spec §4.4.
func (p *ChildPtr) Clear() {
	if p.mode != ModeLazy {
		return
	}
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// clone returns a shallow copy of p suitable for sharing into a sibling
// entries array; the two copies share find and any cached value, guarded
// independently by their own mutex.
func (p *ChildPtr) clone() *ChildPtr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &ChildPtr{
		mode:   p.mode,
		length: p.length,
		key:    p.key,
		cached: p.cached,
		direct: p.direct,
		broken: p.broken,
		find:   p.find,
	}
}
