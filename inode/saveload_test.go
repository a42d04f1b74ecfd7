package inode_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irmin-go/pack/compress"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/inode"
	"github.com/irmin-go/pack/packv"
	"github.com/irmin-go/pack/step"
)

// fakeStore is a minimal in-memory Putter/Getter, standing in for
// store.Store's pack log for round-trip tests that don't need a real
// on-disk pack.
type fakeStore struct {
	mu      sync.Mutex
	entries map[hash.Hash]fakeEntry

	// gets counts, per-key, how many times Get has been called, so a test
	// can assert that Partial layout faults in lazily rather than eagerly.
	gets map[hash.Hash]int
}

type fakeEntry struct {
	kind    packv.Kind
	payload []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: map[hash.Hash]fakeEntry{},
		gets:    map[hash.Hash]int{},
	}
}

func (f *fakeStore) Put(h hash.Hash, kind packv.Kind, framed []byte) (hash.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, payload, total, err := packv.Decode(framed, 0, 0)
	if err != nil {
		return hash.Key{}, err
	}
	_ = total
	f.entries[h] = fakeEntry{kind: kind, payload: payload}
	return hash.KeyOf(h), nil
}

func (f *fakeStore) Get(key hash.Key) (packv.Kind, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := key.Hash()
	f.gets[h]++
	e, ok := f.entries[h]
	if !ok {
		return 0, nil, fmt.Errorf("no entry for key %s", key)
	}
	return e.kind, e.payload, nil
}

func (f *fakeStore) getCount(h hash.Hash) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[h]
}

func newSaverLoader(t *testing.T, fs *fakeStore, cfg *inode.Config) (*inode.Saver, *inode.Loader) {
	t.Helper()
	codec, err := compress.NewCodec()
	require.NoError(t, err)

	saver := &inode.Saver{Codec: codec, Put: fs}
	loader := &inode.Loader{Codec: codec, Get: fs, Config: cfg}
	return saver, loader
}

// TestSaveLoadRoundTrip checks spec property 3: a tree saved then loaded
// back produces a Partial-layout value whose Find/Seq observe exactly the
// same bindings as the original in-memory tree, and whose hash matches the
// original's.
func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	fs := newFakeStore()
	saver, loader := newSaverLoader(t, fs, cfg)

	v := inode.Empty(cfg)
	const n = 300
	for i := 0; i < n; i++ {
		var err error
		v, err = v.Add(step.Step(fmt.Sprintf("k-%04d", i)), contentsValue(i))
		require.NoError(t, err)
	}
	require.True(t, v.IsTree())

	key, err := saver.Save(v)
	require.NoError(t, err)

	loaded, err := loader.Load(key, true)
	require.NoError(t, err)
	require.True(t, loaded.IsTree())
	assert.Equal(t, v.Length(), loaded.Length())

	for i := 0; i < n; i++ {
		s := step.Step(fmt.Sprintf("k-%04d", i))
		want, ok, err := v.Find(s)
		require.NoError(t, err)
		require.True(t, ok)

		got, ok, err := loaded.Find(s)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	wantSeq, err := v.Seq(0, -1, true)
	require.NoError(t, err)
	gotSeq, err := loaded.Seq(0, -1, true)
	require.NoError(t, err)
	assert.Equal(t, wantSeq, gotSeq)

	loadedHash, err := loaded.Hash()
	require.NoError(t, err)
	originalHash, err := v.Hash()
	require.NoError(t, err)
	assert.Equal(t, originalHash, loadedHash)
}

// TestSaveLoadSeqSkipsUnfaultedSubtrees checks that a bounded Seq window on a
// freshly-loaded Partial tree does not fault in every child: per-pointer
// Length lets it skip whole subtrees that fall entirely before offset
// without resolving them.
func TestSaveLoadSeqSkipsUnfaultedSubtrees(t *testing.T) {
	cfg := testConfig(t)
	fs := newFakeStore()
	saver, loader := newSaverLoader(t, fs, cfg)

	v := inode.Empty(cfg)
	const n = 400
	for i := 0; i < n; i++ {
		var err error
		v, err = v.Add(step.Step(fmt.Sprintf("k-%04d", i)), contentsValue(i))
		require.NoError(t, err)
	}

	key, err := saver.Save(v)
	require.NoError(t, err)

	loaded, err := loader.Load(key, true)
	require.NoError(t, err)

	before := fs.getsTotal()
	window, err := loaded.Seq(n-2, 2, true)
	require.NoError(t, err)
	assert.Len(t, window, 2)
	after := fs.getsTotal()

	assert.Less(t, after-before, n, "a near-the-end window must not fault in every child to get there")
}

func (f *fakeStore) getsTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.gets {
		total += n
	}
	return total
}

// TestConcurrentReadsOfCommittedTree is the concurrency stress scenario
// mandated alongside property 3: several workers repeatedly read the same
// loaded, Partial-layout tree concurrently, racing to fault in and promote
// the same Lazy children, and must all observe consistent bindings.
func TestConcurrentReadsOfCommittedTree(t *testing.T) {
	cfg := testConfig(t)
	fs := newFakeStore()
	saver, loader := newSaverLoader(t, fs, cfg)

	v := inode.Empty(cfg)
	const n = 500
	steps := make([]string, n)
	for i := 0; i < n; i++ {
		s := fmt.Sprintf("k-%04d", i)
		steps[i] = s
		var err error
		v, err = v.Add(step.Step(s), contentsValue(i))
		require.NoError(t, err)
	}

	key, err := saver.Save(v)
	require.NoError(t, err)

	loaded, err := loader.Load(key, true)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				idx := (i + worker*37) % n
				s := step.Step(steps[idx])
				got, ok, err := loaded.Find(s)
				if err != nil {
					errCh <- err
					return
				}
				if !ok {
					errCh <- fmt.Errorf("worker %d: missing step %s", worker, s)
					return
				}
				if got != contentsValue(idx) {
					errCh <- fmt.Errorf("worker %d: wrong value for step %s", worker, s)
					return
				}
			}

			if _, err := loaded.Seq(0, -1, true); err != nil {
				errCh <- err
			}
		}(w)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		assert.NoError(t, err)
	}
}
