package integrity_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irmin-go/pack/bin"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/inode"
	"github.com/irmin-go/pack/integrity"
	"github.com/irmin-go/pack/step"
)

func buildTree(t *testing.T, n int) *inode.Val {
	t.Helper()
	cfg := &inode.Config{Entries: 16, StableHash: 128, Ordering: step.SeededHash()}
	require.NoError(t, cfg.Validate())

	v := inode.Empty(cfg)
	for i := 0; i < n; i++ {
		var h hash.Hash
		h[0] = byte(i)
		h[1] = byte(i >> 8)
		var err error
		v, err = v.Add(step.Step(fmt.Sprintf("s-%04d", i)), bin.Contents(hash.KeyOf(h), bin.Metadata{}))
		require.NoError(t, err)
	}
	return v
}

func TestCheckTreeCleanValues(t *testing.T) {
	v := buildTree(t, 5)
	errs := integrity.CheckTree(v, hash.Key{})
	assert.Empty(t, errs)
}

func TestCheckTreeCleanTree(t *testing.T) {
	v := buildTree(t, 200)
	require.True(t, v.IsTree())
	errs := integrity.CheckTree(v, hash.Key{})
	assert.Empty(t, errs)
}

func TestCheckTreeWrongHashDetected(t *testing.T) {
	v := buildTree(t, 5)
	h, err := v.Hash()
	require.NoError(t, err)

	var wrong hash.Hash
	wrong[0] = h[0] ^ 0xff
	badKey := hash.KeyOf(wrong)

	errs := integrity.CheckTree(v, badKey)
	require.NotEmpty(t, errs)

	found := false
	for _, e := range errs {
		if _, ok := e.(integrity.WrongHash); ok {
			found = true
		}
	}
	assert.True(t, found)
}
