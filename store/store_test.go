package store_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irmin-go/pack/control"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/packv"
	"github.com/irmin-go/pack/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(zerolog.Nop(), store.WithRootDir(t.TempDir()), store.WithCacheSize(16))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestAppendFindRoundTrip(t *testing.T) {
	s := openStore(t)

	payload := []byte("hello, pack")
	framed := packv.Encode(packv.KindContents, payload)
	h := hash.Sum(payload)

	key, err := s.Append(h, framed)
	require.NoError(t, err)
	assert.Equal(t, h, key.Hash())

	kind, got, err := s.Find(key)
	require.NoError(t, err)
	assert.Equal(t, packv.KindContents, kind)
	assert.Equal(t, payload, got)
}

func TestAppendIsContentAddressedIdempotent(t *testing.T) {
	s := openStore(t)

	payload := []byte("repeat me")
	framed := packv.Encode(packv.KindContents, payload)
	h := hash.Sum(payload)

	key1, err := s.Append(h, framed)
	require.NoError(t, err)
	key2, err := s.Append(h, framed)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
}

func TestMemAndIndex(t *testing.T) {
	s := openStore(t)

	payload := []byte("indexed")
	h := hash.Sum(payload)

	ok, err := s.Mem(h)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Append(h, packv.Encode(packv.KindContents, payload))
	require.NoError(t, err)

	ok, err = s.Mem(h)
	require.NoError(t, err)
	assert.True(t, ok)

	key, ok, err := s.Index(h)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h, key.Hash())
}

func TestBatchCommitsAllOrNothing(t *testing.T) {
	s := openStore(t)

	const n = 20
	var keys []hash.Key
	err := s.Batch(func(b store.Batch) error {
		for i := 0; i < n; i++ {
			payload := []byte(fmt.Sprintf("entry-%d", i))
			h := hash.Sum(payload)
			key, err := b.Append(h, packv.Encode(packv.KindContents, payload))
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	require.NoError(t, err)

	for i, key := range keys {
		kind, payload, err := s.Find(key)
		require.NoError(t, err)
		assert.Equal(t, packv.KindContents, kind)
		assert.Equal(t, fmt.Sprintf("entry-%d", i), string(payload))
	}
}

func TestFindUnknownKeyFails(t *testing.T) {
	s := openStore(t)

	_, _, err := s.Find(hash.KeyOf(hash.Sum([]byte("never appended"))))
	assert.Error(t, err)
}

// TestOpenCreatesControlFile checks that opening a store root for the first
// time, purely through store.Open, leaves behind a control file usable by a
// separate tool opening the same root read-only afterwards (the interop gap
// that previously made a root created by store.Open unreadable by a reader
// that opened store.control directly).
func TestOpenCreatesControlFile(t *testing.T) {
	root := t.TempDir()

	s, err := store.Open(zerolog.Nop(), store.WithRootDir(root), store.WithCacheSize(16))
	require.NoError(t, err)

	assert.Equal(t, control.Payload{}, s.Control().Payload())
	require.NoError(t, s.Close())

	ro, err := control.OpenRo(zerolog.Nop(), filepath.Join(root, control.Name))
	require.NoError(t, err)
	defer ro.Close()

	// The file on disk is the encoded zero payload, whose checksum field the
	// encoder has filled in.
	encoded, err := control.Encode(control.Payload{})
	require.NoError(t, err)
	want, err := control.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, ro.Payload())
}

// TestOpenSurfacesCorruptedControlFile checks spec §4.6/§4.7: a pre-existing
// but corrupted control file must block the store from opening at all,
// rather than being silently ignored until first read.
func TestOpenSurfacesCorruptedControlFile(t *testing.T) {
	root := t.TempDir()

	s, err := store.Open(zerolog.Nop(), store.WithRootDir(root), store.WithCacheSize(16))
	require.NoError(t, err)
	require.NoError(t, s.Control().SetPayload(control.Payload{DictEndPoff: 1}))
	require.NoError(t, s.Close())

	path := filepath.Join(root, control.Name)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = store.Open(zerolog.Nop(), store.WithRootDir(root), store.WithCacheSize(16))
	assert.ErrorIs(t, err, control.ErrCorruptedControlFile)
}
