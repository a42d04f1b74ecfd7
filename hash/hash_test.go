package hash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irmin-go/pack/hash"
)

func TestSumDeterministic(t *testing.T) {
	h1 := hash.Sum([]byte("hello, pack"))
	h2 := hash.Sum([]byte("hello, pack"))
	assert.Equal(t, h1, h2)

	h3 := hash.Sum([]byte("hello, pack!"))
	assert.NotEqual(t, h1, h3)
}

func TestCompareOrdersLexicographically(t *testing.T) {
	a := hash.Hash{0x01}
	b := hash.Hash{0x02}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestIsZero(t *testing.T) {
	var z hash.Hash
	assert.True(t, z.IsZero())

	h := hash.Sum([]byte("x"))
	assert.False(t, h.IsZero())
}

func TestTextRoundTrip(t *testing.T) {
	h := hash.Sum([]byte("round trip me"))

	text, err := h.MarshalText()
	require.NoError(t, err)

	var got hash.Hash
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, h, got)
}

func TestUnmarshalTextRejectsWrongLength(t *testing.T) {
	var h hash.Hash
	err := h.UnmarshalText([]byte("deadbeef"))
	assert.Error(t, err)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := hash.FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)

	full := make([]byte, hash.Size)
	got, err := hash.FromBytes(full)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
