package database

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/luxfi/migrator/pkg/core"
)

type levelStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a leveldb store at path.
func OpenLevelDB(path string) (Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return &levelStore{db: db}, nil
}

// NewMemory creates an empty in-memory store.
func NewMemory() Store {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// memory storage cannot fail to open
		panic(err)
	}
	return &levelStore{db: db}
}

func (s *levelStore) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	return value, err
}

func (s *levelStore) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *levelStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *levelStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *levelStore) NewIterator(prefix, start []byte) Iterator {
	lower, upper := rangeBounds(prefix, start)
	return &levelIterator{iter: s.db.NewIterator(&util.Range{Start: lower, Limit: upper}, nil)}
}

func (s *levelStore) NewBatch() Batch {
	return &levelBatch{db: s.db, batch: new(leveldb.Batch)}
}

func (s *levelStore) Close() error {
	return s.db.Close()
}

type levelIterator struct {
	iter iterator.Iterator
}

func (it *levelIterator) Next() bool    { return it.iter.Next() }
func (it *levelIterator) Key() []byte   { return it.iter.Key() }
func (it *levelIterator) Value() []byte { return it.iter.Value() }
func (it *levelIterator) Error() error  { return it.iter.Error() }
func (it *levelIterator) Release()      { it.iter.Release() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *levelBatch) Len() int     { return b.batch.Len() }
func (b *levelBatch) Write() error { return b.db.Write(b.batch, nil) }
func (b *levelBatch) Reset()       { b.batch.Reset() }
func (b *levelBatch) Close() error { return nil }
