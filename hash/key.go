package hash

import "fmt"

// Key identifies a persisted value either by its hash alone, or by its hash
// plus an (offset, length) hint pointing into the pack file where it was
// last appended. Keys never demote to hashes: once a value has an offset
// hint, the hint is carried along for the lifetime of the key.
type Key struct {
	hash   Hash
	offset uint64
	length uint32
	hasOff bool
}

// KeyOf builds a plain, hint-less key from a hash.
func KeyOf(h Hash) Key {
	return Key{hash: h}
}

// KeyOfOffset builds a key carrying an in-pack offset/length hint.
func KeyOfOffset(h Hash, offset uint64, length uint32) Key {
	return Key{hash: h, offset: offset, length: length, hasOff: true}
}

// Hash is the total projection from Key to Hash.
func (k Key) Hash() Hash {
	return k.hash
}

// Offset returns the in-pack offset hint and whether one is present.
func (k Key) Offset() (uint64, bool) {
	return k.offset, k.hasOff
}

// Length returns the in-pack length hint and whether one is present.
func (k Key) Length() (uint32, bool) {
	return k.length, k.hasOff
}

// String renders the key for debugging/dumping purposes.
func (k Key) String() string {
	if !k.hasOff {
		return k.hash.String()
	}
	return fmt.Sprintf("%s@%d+%d", k.hash, k.offset, k.length)
}

// IsZero reports whether the key carries the zero hash.
func (k Key) IsZero() bool {
	return k.hash.IsZero()
}
