package inode_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/inode"
	"github.com/irmin-go/pack/step"
)

func testConfig(t *testing.T) *inode.Config {
	t.Helper()
	cfg := &inode.Config{
		Entries:    32,
		StableHash: 256,
		Ordering:   step.SeededHash(),
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func contentsValue(seed int) bin.Value {
	var h hash.Hash
	h[0] = byte(seed)
	h[1] = byte(seed >> 8)
	return bin.Contents(hash.KeyOf(h), bin.Metadata{})
}

func TestEmpty(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)

	assert.True(t, v.IsRoot())
	assert.False(t, v.IsTree())
	assert.Equal(t, 0, v.Length())
	assert.True(t, v.Stable())
}

func TestAddFindRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)

	const n = 200
	for i := 0; i < n; i++ {
		s := step.Step(fmt.Sprintf("step-%04d", i))
		next, err := v.Add(s, contentsValue(i))
		require.NoError(t, err)
		v = next
	}

	require.Equal(t, n, v.Length())
	assert.True(t, v.IsTree(), "inserting past Entries must split into a Tree")

	for i := 0; i < n; i++ {
		s := step.Step(fmt.Sprintf("step-%04d", i))
		got, ok, err := v.Find(s)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, contentsValue(i), got)
	}

	_, ok, err := v.Find(step.Step("absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAddIsIdempotentOnEqualValue checks spec §4.2's "no-op on identical
// rebind" rule: adding the same (step, value) pair again must return the
// exact same Val, not merely an equal one.
func TestAddIsIdempotentOnEqualValue(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)

	v1, err := v.Add(step.Step("a"), contentsValue(1))
	require.NoError(t, err)

	v2, err := v1.Add(step.Step("a"), contentsValue(1))
	require.NoError(t, err)

	assert.Same(t, v1, v2)
}

func TestWriteOnNonRoot(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)
	v, err := v.Add(step.Step("a"), contentsValue(1))
	require.NoError(t, err)

	// Force a split so there is a genuine non-root internal node to probe.
	for i := 0; i < 200; i++ {
		v, err = v.Add(step.Step(fmt.Sprintf("s-%d", i)), contentsValue(i))
		require.NoError(t, err)
	}
	require.True(t, v.IsTree())
	require.True(t, v.IsRoot())

	var child *inode.Val
	for _, e := range v.Entries() {
		if e == nil {
			continue
		}
		resolved, err := e.Resolve(1, true)
		require.NoError(t, err)
		child = resolved
		break
	}
	require.NotNil(t, child, "expected at least one populated child slot")
	require.False(t, child.IsRoot())

	_, err = child.Add(step.Step("z"), contentsValue(999))
	assert.ErrorIs(t, err, inode.ErrWriteOnNonRoot)

	_, err = child.Remove(step.Step("a"))
	assert.ErrorIs(t, err, inode.ErrWriteOnNonRoot)
}

// TestCollapseAfterRemove checks that removing bindings from a Tree back
// below Entries collapses it into a flat Values leaf again (spec §4.2).
func TestCollapseAfterRemove(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)

	const n = 100
	var err error
	for i := 0; i < n; i++ {
		v, err = v.Add(step.Step(fmt.Sprintf("step-%04d", i)), contentsValue(i))
		require.NoError(t, err)
	}
	require.True(t, v.IsTree())

	for i := 0; i < n-5; i++ {
		v, err = v.Remove(step.Step(fmt.Sprintf("step-%04d", i)))
		require.NoError(t, err)
	}

	require.Equal(t, 5, v.Length())
	assert.False(t, v.IsTree(), "shrinking back under Entries must collapse to Values")

	for i := n - 5; i < n; i++ {
		_, ok, err := v.Find(step.Step(fmt.Sprintf("step-%04d", i)))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)
	v1, err := v.Add(step.Step("a"), contentsValue(1))
	require.NoError(t, err)

	v2, err := v1.Remove(step.Step("absent"))
	require.NoError(t, err)
	assert.Same(t, v1, v2)
}

// TestSeqIsTheMap checks that Seq(0, -1) enumerates exactly the bindings
// reachable via Find, each exactly once (in traversal order, so compared
// after sorting), and that a bounded window is the matching slice of the
// full sequence.
func TestSeqIsTheMap(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)

	steps := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		s := fmt.Sprintf("k-%03d", i)
		steps = append(steps, s)
		var err error
		v, err = v.Add(step.Step(s), contentsValue(i))
		require.NoError(t, err)
	}
	sort.Strings(steps)

	got, err := v.Seq(0, -1, true)
	require.NoError(t, err)
	require.Len(t, got, len(steps))

	gotSteps := stepsOf(got)
	sort.Strings(gotSteps)
	assert.Equal(t, steps, gotSteps)

	window, err := v.Seq(10, 5, true)
	require.NoError(t, err)
	require.Len(t, window, 5)
	assert.Equal(t, stepsOf(got)[10:15], stepsOf(window))
}

// TestSeqRejectsInvalidParameters checks spec §4.4's precondition: a
// negative offset or a length below the -1 sentinel must fail with a typed
// error rather than panicking or being silently clamped.
func TestSeqRejectsInvalidParameters(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)
	v, err := v.Add(step.Step("a"), contentsValue(1))
	require.NoError(t, err)

	_, err = v.Seq(-1, 5, true)
	var offsetErr inode.ErrInvalidSeqOffset
	require.ErrorAs(t, err, &offsetErr)
	assert.Equal(t, -1, offsetErr.Offset)

	_, err = v.Seq(0, -2, true)
	var lengthErr inode.ErrInvalidSeqLength
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, -2, lengthErr.Length)

	got, err := v.Seq(0, 0, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestSeqWindowUsesPerSlotLength checks, against the in-memory tree, the
// per-slot Length values Seq's offset skip relies on: they sum to the tree's
// total length, and a window at the last offset yields exactly one binding.
// Whether skipped subtrees are left unresolved is checked on a loaded tree
// by TestSaveLoadSeqSkipsUnfaultedSubtrees.
func TestSeqWindowUsesPerSlotLength(t *testing.T) {
	cfg := testConfig(t)
	v := inode.Empty(cfg)

	const n = 200
	for i := 0; i < n; i++ {
		var err error
		v, err = v.Add(step.Step(fmt.Sprintf("k-%04d", i)), contentsValue(i))
		require.NoError(t, err)
	}
	require.True(t, v.IsTree())

	total := 0
	for _, e := range v.Entries() {
		if e != nil {
			total += e.Length()
		}
	}
	assert.Equal(t, n, total, "per-slot Length must sum to the tree's total length")

	window, err := v.Seq(n-1, 1, true)
	require.NoError(t, err)
	require.Len(t, window, 1)
}

func stepsOf(bindings []bin.Binding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = string(b.Step)
	}
	return out
}

// TestStabilityBoundary checks should_be_stable at the root: a root at
// StableHash bindings is stable; one binding above it, it is not.
func TestStabilityBoundary(t *testing.T) {
	cfg := &inode.Config{Entries: 4, StableHash: 8, Ordering: step.SeededHash()}
	require.NoError(t, cfg.Validate())

	v := inode.Empty(cfg)
	var err error
	for i := 0; i < 8; i++ {
		v, err = v.Add(step.Step(fmt.Sprintf("s-%d", i)), contentsValue(i))
		require.NoError(t, err)
	}
	require.Equal(t, 8, v.Length())
	assert.True(t, v.Stable())

	v, err = v.Add(step.Step("s-8"), contentsValue(8))
	require.NoError(t, err)
	require.Equal(t, 9, v.Length())
	assert.False(t, v.Stable())
}

// TestHashDeterministic checks that building the same bindings in a
// different insertion order produces the same content hash, the property a
// content-addressed store depends on for deduplication.
func TestHashDeterministic(t *testing.T) {
	cfg := testConfig(t)

	build := func(order []int) *inode.Val {
		v := inode.Empty(cfg)
		for _, i := range order {
			var err error
			v, err = v.Add(step.Step(fmt.Sprintf("k-%03d", i)), contentsValue(i))
			require.NoError(t, err)
		}
		return v
	}

	ascending := make([]int, 80)
	descending := make([]int, 80)
	for i := range ascending {
		ascending[i] = i
		descending[i] = 79 - i
	}

	v1 := build(ascending)
	v2 := build(descending)

	h1, err := v1.Hash()
	require.NoError(t, err)
	h2, err := v2.Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestMaxDepthExceeded(t *testing.T) {
	cfg := &inode.Config{
		Entries:    2,
		StableHash: 2,
		Ordering: step.Custom(func(step.Step, int, int) (int, error) {
			return 0, nil
		}),
	}
	require.NoError(t, cfg.Validate())

	v := inode.Empty(cfg)
	var err error
	for i := 0; i < 200 && err == nil; i++ {
		v, err = v.Add(step.Step(fmt.Sprintf("s-%d", i)), contentsValue(i))
	}
	require.Error(t, err)
}
