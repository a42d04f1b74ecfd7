package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/irmin-go/pack/hash"
)

type pendingEntry struct {
	hash   hash.Hash
	offset uint64
	length uint32
}

// batch accumulates Append calls so their index entries commit in a single
// badger transaction, while still writing each entry's bytes to the pack log
// immediately (the log is append-only and has no notion of rollback).
type batch struct {
	store   *Store
	pending []pendingEntry
}

// Append writes framed to the pack log right away and defers its index
// entry to the batch's eventual commit.
func (b *batch) Append(h hash.Hash, framed []byte) (hash.Key, error) {
	if key, ok, err := b.store.Index(h); err != nil {
		return hash.Key{}, err
	} else if ok {
		return key, nil
	}

	if err := b.store.sema.Acquire(context.Background(), 1); err != nil {
		return hash.Key{}, fmt.Errorf("could not acquire write slot: %w", err)
	}
	defer b.store.sema.Release(1)

	b.store.mu.Lock()
	offset := b.store.tail
	_, err := b.store.logFile.Write(framed)
	if err != nil {
		b.store.mu.Unlock()
		return hash.Key{}, fmt.Errorf("could not append to pack log: %w", err)
	}
	b.store.tail += uint64(len(framed))
	b.store.mu.Unlock()

	b.pending = append(b.pending, pendingEntry{hash: h, offset: offset, length: uint32(len(framed))})
	return hash.KeyOfOffset(h, offset, uint32(len(framed))), nil
}

func (b *batch) commit() error {
	if len(b.pending) == 0 {
		return nil
	}
	err := b.store.db.Update(func(txn *badger.Txn) error {
		for _, e := range b.pending {
			val := make([]byte, 12)
			binary.BigEndian.PutUint64(val[:8], e.offset)
			binary.BigEndian.PutUint32(val[8:], e.length)
			if err := txn.Set(e.hash[:], val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not commit batch index entries: %w", err)
	}
	return nil
}
