// Package store implements the pack store adapter (spec §4.5/§6, component
// C8): a Mem/Find/Index/Append/Batch/Close interface, concretely backed by
// an append-only pack log for entry bytes and a badger index from content
// hash to (offset, length), with an LRU read cache and semaphore-bounded
// concurrent commits, mirroring the teacher's ledger/store.Store.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v2"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/irmin-go/pack/control"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/packv"
)

// PackStore is the storage adapter inode values, commits and contents are
// persisted through and loaded back from.
type PackStore interface {
	// Mem reports whether an entry with this content hash has already been
	// appended.
	Mem(h hash.Hash) (bool, error)
	// Find fetches and unframes the entry named by key, validating its
	// checksum.
	Find(key hash.Key) (packv.Kind, []byte, error)
	// Index resolves a content hash to the key it was last appended under.
	Index(h hash.Hash) (hash.Key, bool, error)
	// Append writes an already-framed entry to the pack log and indexes it
	// under h, returning the key future references should use.
	Append(h hash.Hash, framed []byte) (hash.Key, error)
	// Batch runs fn with a Batch that defers its index writes into a single
	// commit.
	Batch(fn func(Batch) error) error
	// Close flushes and releases all underlying resources.
	Close() error
}

// Batch is the write surface handed to a Batch callback.
type Batch interface {
	Append(h hash.Hash, framed []byte) (hash.Key, error)
}

type cacheEntry struct {
	kind    packv.Kind
	payload []byte
}

// Store is the concrete PackStore implementation.
type Store struct {
	log zerolog.Logger

	control *control.File

	mu      sync.Mutex
	logFile *os.File
	tail    uint64

	db    *badger.DB
	cache *lru.Cache
	sema  *semaphore.Weighted
}

const (
	packLogName = "pack.log"
	indexDBName = "index"
)

// Open opens (creating if necessary) a pack store rooted at the configured
// directory.
func Open(log zerolog.Logger, opts ...Option) (*Store, error) {
	cfg := DefaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create store root dir: %w", err)
	}

	logPath := filepath.Join(cfg.RootDir, packLogName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open pack log: %w", err)
	}
	info, err := logFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat pack log: %w", err)
	}

	// The control file is read once at open, per spec §4.6: a corrupted or
	// unrecognised-version control file must block the store from opening
	// at all, not just fail lazily the first time something reads it.
	cf, err := control.OpenRw(log, filepath.Join(cfg.RootDir, control.Name))
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("could not open control file: %w", err)
	}

	badgerOpts := badger.DefaultOptions(filepath.Join(cfg.RootDir, indexDBName))
	badgerOpts.Logger = nil
	db, err := badger.Open(badgerOpts)
	if err != nil {
		logFile.Close()
		cf.Close()
		return nil, fmt.Errorf("could not open index database: %w", err)
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		logFile.Close()
		cf.Close()
		db.Close()
		return nil, fmt.Errorf("could not create read cache: %w", err)
	}

	s := Store{
		log:     log.With().Str("component", "store").Logger(),
		control: cf,
		logFile: logFile,
		tail:    uint64(info.Size()),
		db:      db,
		cache:   cache,
		sema:    semaphore.NewWeighted(cfg.Concurrency),
	}

	return &s, nil
}

// Control returns the store's control file, for callers that need to read
// or update its payload (e.g. after a GC cycle).
func (s *Store) Control() *control.File {
	return s.control
}

// Each iterates every indexed entry, calling fn with its content hash and
// resolved key, in badger's natural (lexicographic hash) key order. It stops
// and returns fn's error, if any.
func (s *Store) Each(fn func(h hash.Hash, key hash.Key) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			h, err := hash.FromBytes(item.KeyCopy(nil))
			if err != nil {
				return fmt.Errorf("corrupted index key: %w", err)
			}

			var offset uint64
			var length uint32
			err = item.Value(func(val []byte) error {
				if len(val) != 12 {
					return fmt.Errorf("corrupted index entry for %s", h)
				}
				offset = binary.BigEndian.Uint64(val[:8])
				length = binary.BigEndian.Uint32(val[8:])
				return nil
			})
			if err != nil {
				return err
			}

			if err := fn(h, hash.KeyOfOffset(h, offset, length)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Mem reports whether an entry with this content hash is already indexed.
func (s *Store) Mem(h hash.Hash) (bool, error) {
	_, ok, err := s.Index(h)
	return ok, err
}

// Index resolves a content hash to the key it was last appended under.
func (s *Store) Index(h hash.Hash) (hash.Key, bool, error) {
	var offset uint64
	var length uint32
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(h[:])
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read index entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			if len(val) != 12 {
				return fmt.Errorf("corrupted index entry for %s", h)
			}
			offset = binary.BigEndian.Uint64(val[:8])
			length = binary.BigEndian.Uint32(val[8:])
			found = true
			return nil
		})
	})
	if err != nil {
		return hash.Key{}, false, err
	}
	if !found {
		return hash.Key{}, false, nil
	}
	return hash.KeyOfOffset(h, offset, length), true, nil
}

// Append writes an already-framed entry to the pack log, indexes it, and
// returns the resulting key. Appending an already-indexed hash is a no-op
// that returns the existing key, since pack entries are content-addressed
// and never need to be written twice.
func (s *Store) Append(h hash.Hash, framed []byte) (hash.Key, error) {
	if key, ok, err := s.Index(h); err != nil {
		return hash.Key{}, err
	} else if ok {
		return key, nil
	}

	if err := s.sema.Acquire(context.Background(), 1); err != nil {
		return hash.Key{}, fmt.Errorf("could not acquire write slot: %w", err)
	}
	defer s.sema.Release(1)

	s.mu.Lock()
	offset := s.tail
	_, err := s.logFile.Write(framed)
	if err != nil {
		s.mu.Unlock()
		return hash.Key{}, fmt.Errorf("could not append to pack log: %w", err)
	}
	s.tail += uint64(len(framed))
	s.mu.Unlock()

	if err := s.indexPut(h, offset, uint32(len(framed))); err != nil {
		return hash.Key{}, err
	}

	return hash.KeyOfOffset(h, offset, uint32(len(framed))), nil
}

func (s *Store) indexPut(h hash.Hash, offset uint64, length uint32) error {
	val := make([]byte, 12)
	binary.BigEndian.PutUint64(val[:8], offset)
	binary.BigEndian.PutUint32(val[8:], length)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(h[:], val)
	})
	if err != nil {
		return fmt.Errorf("could not write index entry: %w", err)
	}
	return nil
}

// Find fetches and unframes the entry named by key, validating its
// checksum. Results are cached by hash so repeated access to a hot entry
// (e.g. a frequently-read inode near the root) does not re-read the pack
// log.
func (s *Store) Find(key hash.Key) (packv.Kind, []byte, error) {
	h := key.Hash()
	if cached, ok := s.cache.Get(h); ok {
		entry := cached.(cacheEntry)
		return entry.kind, entry.payload, nil
	}

	offset, hasOffset := key.Offset()
	length, _ := key.Length()
	if !hasOffset {
		resolved, ok, err := s.Index(h)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, nil, fmt.Errorf("no entry indexed for %s", h)
		}
		offset, _ = resolved.Offset()
		length, _ = resolved.Length()
	}

	buf := make([]byte, length)
	if _, err := s.logFile.ReadAt(buf, int64(offset)); err != nil {
		return 0, nil, fmt.Errorf("could not read pack entry at %d: %w", offset, err)
	}

	kind, payload, _, err := packv.Decode(buf, offset, len(buf))
	if err != nil {
		return 0, nil, fmt.Errorf("could not decode pack entry at %d: %w", offset, err)
	}

	s.cache.Add(h, cacheEntry{kind: kind, payload: payload})
	return kind, payload, nil
}

// Get satisfies inode.Getter.
func (s *Store) Get(key hash.Key) (packv.Kind, []byte, error) {
	return s.Find(key)
}

// Put satisfies inode.Putter.
func (s *Store) Put(h hash.Hash, _ packv.Kind, framed []byte) (hash.Key, error) {
	return s.Append(h, framed)
}

// Batch runs fn against a batch that defers its index writes into a single
// badger transaction, committed once fn returns without error.
func (s *Store) Batch(fn func(Batch) error) error {
	b := &batch{store: s}
	if err := fn(b); err != nil {
		return err
	}
	return b.commit()
}

// Close flushes and closes the pack log and index database, aggregating any
// errors from either.
func (s *Store) Close() error {
	var result *multierror.Error

	if err := s.logFile.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("could not close pack log: %w", err))
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("could not close index database: %w", err))
	}
	if err := s.control.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("could not close control file: %w", err))
	}

	return result.ErrorOrNil()
}
