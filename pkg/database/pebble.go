package database

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/luxfi/migrator/pkg/core"
)

type pebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates a pebble store at path.
func OpenPebble(path string) (Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &pebbleStore{db: db}, nil
}

// NewPebbleMemory creates a pebble store on an in-memory filesystem.
func NewPebbleMemory() (Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func (s *pebbleStore) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *pebbleStore) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *pebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

func (s *pebbleStore) NewIterator(prefix, start []byte) Iterator {
	lower, upper := rangeBounds(prefix, start)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return &errIterator{err: err}
	}
	return &pebbleIterator{iter: iter}
}

func (s *pebbleStore) NewBatch() Batch {
	return &pebbleBatch{db: s.db, batch: s.db.NewBatch()}
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Key() []byte   { return it.iter.Key() }
func (it *pebbleIterator) Value() []byte { return it.iter.Value() }
func (it *pebbleIterator) Error() error  { return it.iter.Error() }
func (it *pebbleIterator) Release()      { it.iter.Close() }

type pebbleBatch struct {
	db     *pebble.DB
	batch  *pebble.Batch
	n      int
	closed bool
}

func (b *pebbleBatch) Put(key, value []byte) error {
	b.n++
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	b.n++
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Len() int { return b.n }

func (b *pebbleBatch) Write() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *pebbleBatch) Reset() {
	b.batch.Reset()
	b.n = 0
}

// Close returns the batch to pebble. It must be called once the batch is
// committed or abandoned.
func (b *pebbleBatch) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.batch.Close()
}

type errIterator struct {
	err error
}

func (it *errIterator) Next() bool    { return false }
func (it *errIterator) Key() []byte   { return nil }
func (it *errIterator) Value() []byte { return nil }
func (it *errIterator) Error() error  { return it.err }
func (it *errIterator) Release()      {}
