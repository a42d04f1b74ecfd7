package bin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
)

func TestMetadataIsDefault(t *testing.T) {
	assert.True(t, bin.Metadata{}.IsDefault())
	assert.False(t, bin.Metadata{Permissions: 0o644}.IsDefault())
}

func TestContentsAndNodeTagging(t *testing.T) {
	key := hash.KeyOf(hash.Sum([]byte("x")))

	c := bin.Contents(key, bin.Metadata{Permissions: 0o600})
	assert.Equal(t, bin.KindContents, c.Kind)
	assert.Equal(t, key, c.Target)
	assert.Equal(t, uint16(0o600), c.Metadata.Permissions)

	n := bin.Node(key)
	assert.Equal(t, bin.KindNode, n.Kind)
	assert.True(t, n.Metadata.IsDefault())
}

func TestPtrHashOf(t *testing.T) {
	h := hash.Sum([]byte("target"))
	key := hash.KeyOf(h)

	hashPtr := bin.Ptr{Mode: bin.PtrHash, Hash: h}
	assert.Equal(t, h, hashPtr.HashOf())

	keyPtr := bin.Ptr{Mode: bin.PtrKey, Key: key}
	assert.Equal(t, h, keyPtr.HashOf())
}
