package step_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/step"
)

func TestSeededHashInRange(t *testing.T) {
	ordering := step.SeededHash()
	for i := 0; i < 500; i++ {
		s := step.Step([]byte{byte(i), byte(i >> 8)})
		bucket, err := ordering(s, i%5, 32)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 32)
	}
}

func TestSeededHashDeterministic(t *testing.T) {
	ordering := step.SeededHash()
	b1, err := ordering(step.Step("a/b/c"), 2, 16)
	require.NoError(t, err)
	b2, err := ordering(step.Step("a/b/c"), 2, 16)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestSeededHashVariesByDepth(t *testing.T) {
	ordering := step.SeededHash()
	buckets := map[int]bool{}
	for depth := 0; depth < 8; depth++ {
		b, err := ordering(step.Step("same-step-every-time"), depth, 1024)
		require.NoError(t, err)
		buckets[b] = true
	}
	assert.Greater(t, len(buckets), 1, "seeding by depth should vary the bucket across depths")
}

func TestHashBitsInRangeAndDeterministic(t *testing.T) {
	ordering := step.HashBits(hash.Sum)
	s := step.Step("some/path/segment")

	b1, err := ordering(s, 0, 16)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b1, 0)
	assert.Less(t, b1, 16)

	b2, err := ordering(s, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestHashBitsExhaustsDigestAtDepth(t *testing.T) {
	ordering := step.HashBits(hash.Sum)
	// hash.Size*8 bits / log2(entries=2) = 256 possible depths; beyond that
	// there are no bits left to extract.
	_, err := ordering(step.Step("x"), 256, 2)
	require.Error(t, err)
	assert.IsType(t, step.ErrMaxDepth{}, err)
}

func TestCustomOrderingIsUsedVerbatim(t *testing.T) {
	ordering := step.Custom(func(s step.Step, depth, entries int) (int, error) {
		return 3, nil
	})
	b, err := ordering(step.Step("anything"), 7, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, b)
}
