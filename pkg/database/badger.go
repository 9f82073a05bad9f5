package database

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/luxfi/migrator/pkg/core"
)

type badgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a badger store at path.
func OpenBadger(path string) (Store, error) {
	return openBadger(badger.DefaultOptions(path).WithLogger(nil))
}

// NewBadgerMemory creates an in-memory badger store.
func NewBadgerMemory() (Store, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrNotFound
	}
	return value, err
}

func (s *badgerStore) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *badgerStore) Put(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bytes.Clone(key), bytes.Clone(value))
	})
}

func (s *badgerStore) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bytes.Clone(key))
	})
}

func (s *badgerStore) NewIterator(prefix, start []byte) Iterator {
	lower, _ := rangeBounds(prefix, start)
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = bytes.Clone(prefix)
	return &badgerIterator{txn: txn, iter: txn.NewIterator(opts), lower: lower, prefix: opts.Prefix}
}

func (s *badgerStore) NewBatch() Batch {
	return &badgerBatch{db: s.db}
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

type badgerIterator struct {
	txn     *badger.Txn
	iter    *badger.Iterator
	lower   []byte
	prefix  []byte
	started bool
	key     []byte
	value   []byte
	err     error
}

func (it *badgerIterator) Next() bool {
	if !it.started {
		it.started = true
		it.iter.Seek(it.lower)
	} else {
		it.iter.Next()
	}
	if !it.iter.ValidForPrefix(it.prefix) {
		return false
	}
	item := it.iter.Item()
	it.key = item.KeyCopy(nil)
	it.value, it.err = item.ValueCopy(nil)
	return it.err == nil
}

func (it *badgerIterator) Key() []byte   { return it.key }
func (it *badgerIterator) Value() []byte { return it.value }
func (it *badgerIterator) Error() error  { return it.err }

func (it *badgerIterator) Release() {
	it.iter.Close()
	it.txn.Discard()
}

type badgerOp struct {
	key    []byte
	value  []byte
	delete bool
}

// badgerBatch buffers operations and applies them in a single transaction.
type badgerBatch struct {
	db  *badger.DB
	ops []badgerOp
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, badgerOp{key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (b *badgerBatch) Delete(key []byte) error {
	b.ops = append(b.ops, badgerOp{key: bytes.Clone(key), delete: true})
	return nil
}

func (b *badgerBatch) Len() int { return len(b.ops) }

func (b *badgerBatch) Write() error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			var err error
			if op.delete {
				err = txn.Delete(op.key)
			} else {
				err = txn.Set(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerBatch) Reset() { b.ops = b.ops[:0] }

func (b *badgerBatch) Close() error {
	b.ops = nil
	return nil
}
