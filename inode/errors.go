package inode

import "fmt"

// ErrWriteOnNonRoot is returned by Add/Remove when called on an inode whose
// root flag is false. Only the root of a tree may be mutated directly;
// internal nodes are only ever rewritten as a side effect of a root mutation.
var ErrWriteOnNonRoot = fmt.Errorf("add/remove called on a non-root inode")

// ErrBrokenPointer is returned when traversal (find/seq) reaches a child
// pointer built in Truncated/Broken mode: a hash with no resolver attached,
// so the subtree it names is simply unreachable from here.
type ErrBrokenPointer struct {
	Depth int
}

func (e ErrBrokenPointer) Error() string {
	return fmt.Sprintf("broken child pointer at depth %d: no hash resolver attached", e.Depth)
}

// UnknownHashAtTruncatedBoundary is a fatal Save-time error: a Truncated
// subtree's child pointer is still Broken when Save needs its key to build
// the parent's entry. Unlike ErrBrokenPointer, which is a normal read-time miss, this
// means the tree cannot be persisted at all.
type UnknownHashAtTruncatedBoundary struct {
	Depth int
}

func (e UnknownHashAtTruncatedBoundary) Error() string {
	return fmt.Sprintf("unknown hash at truncated boundary, depth %d: cannot save", e.Depth)
}

// ErrInvalidSeqOffset is a precondition error: Seq was called with a
// negative offset.
type ErrInvalidSeqOffset struct {
	Offset int
}

func (e ErrInvalidSeqOffset) Error() string {
	return fmt.Sprintf("invalid seq offset %d: must be >= 0", e.Offset)
}

// ErrInvalidSeqLength is a precondition error: Seq was called with a length
// less than -1 (-1 is the "no limit" sentinel).
type ErrInvalidSeqLength struct {
	Length int
}

func (e ErrInvalidSeqLength) Error() string {
	return fmt.Sprintf("invalid seq length %d: must be >= -1", e.Length)
}
