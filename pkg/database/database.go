// Package database provides the ordered key-value stores that hold the state of
// both chains during the migration.
package database

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/migrator/pkg/core"
)

// DatabaseType represents the database backend type
type DatabaseType string

const (
	PebbleDB DatabaseType = "pebbledb"
	BadgerDB DatabaseType = "badgerdb"
	LevelDB  DatabaseType = "leveldb"
	MemDB    DatabaseType = "memdb"
)

// Reader is the read side of a store.
type Reader interface {
	// Get returns core.ErrNotFound when the key is absent.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// NewIterator walks keys with the given prefix in byte order, starting at
	// start (inclusive) when it sorts after the prefix.
	NewIterator(prefix, start []byte) Iterator
}

// Writer is the write side of a store.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Store is an ordered key-value store with atomic batches.
type Store interface {
	Reader
	Writer
	NewBatch() Batch
	Close() error
}

// Batch collects writes that are applied atomically by Write. Close releases
// the batch and is safe to call more than once.
type Batch interface {
	Writer
	Len() int
	Write() error
	Reset()
	Close() error
}

// Iterator walks a key range. Key and Value are only valid until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

// Open opens a store of the given type. An empty type is detected from the directory.
func Open(typ DatabaseType, path string) (Store, error) {
	if typ == "" {
		typ = DetectType(path)
	}
	switch typ {
	case PebbleDB:
		return OpenPebble(path)
	case BadgerDB:
		return OpenBadger(path)
	case LevelDB:
		return OpenLevelDB(path)
	case MemDB:
		return NewMemory(), nil
	}
	return nil, core.ErrInvalidConfigf("unsupported database type %q", typ)
}

// DetectType tries to determine the database type from the files on disk
func DetectType(dbPath string) DatabaseType {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		// Default to PebbleDB for new databases
		return PebbleDB
	}

	if matches, _ := filepath.Glob(filepath.Join(dbPath, "*.vlog")); len(matches) > 0 {
		return BadgerDB
	}
	if matches, _ := filepath.Glob(filepath.Join(dbPath, "*.sst")); len(matches) > 0 {
		return PebbleDB
	}
	if matches, _ := filepath.Glob(filepath.Join(dbPath, "*.ldb")); len(matches) > 0 {
		return LevelDB
	}

	// MANIFEST files could be either; pebble also writes an OPTIONS file
	if matches, _ := filepath.Glob(filepath.Join(dbPath, "MANIFEST-*")); len(matches) > 0 {
		if opts, _ := filepath.Glob(filepath.Join(dbPath, "OPTIONS-*")); len(opts) > 0 {
			return PebbleDB
		}
		return LevelDB
	}
	return PebbleDB
}

// Copy writes every key with the given prefix from src into dst, committing
// every batchSize keys. It returns the number of keys copied.
func Copy(dst, src Store, prefix []byte, batchSize int) (uint64, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}
	it := src.NewIterator(prefix, nil)
	defer it.Release()

	batch := dst.NewBatch()
	defer batch.Close()
	var n uint64
	for it.Next() {
		if err := batch.Put(bytes.Clone(it.Key()), bytes.Clone(it.Value())); err != nil {
			return n, fmt.Errorf("failed to stage key: %w", err)
		}
		n++
		if batch.Len() >= batchSize {
			if err := batch.Write(); err != nil {
				return n, fmt.Errorf("failed to write batch: %w", err)
			}
			batch.Reset()
		}
	}
	if err := it.Error(); err != nil {
		return n, fmt.Errorf("iterator error: %w", err)
	}
	if batch.Len() > 0 {
		if err := batch.Write(); err != nil {
			return n, fmt.Errorf("failed to write final batch: %w", err)
		}
	}
	return n, nil
}

// Snapshot copies the whole store into a fresh in-memory store.
func Snapshot(src Store) (Store, error) {
	snap := NewMemory()
	if _, err := Copy(snap, src, nil, 0); err != nil {
		snap.Close()
		return nil, fmt.Errorf("failed to snapshot: %w", err)
	}
	return snap, nil
}

// Count returns the number of keys with the given prefix.
func Count(r Reader, prefix []byte) (uint64, error) {
	it := r.NewIterator(prefix, nil)
	defer it.Release()
	var n uint64
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// rangeBounds returns the effective lower and exclusive upper bounds for an
// iteration over prefix starting at start.
func rangeBounds(prefix, start []byte) (lower, upper []byte) {
	lower = prefix
	if bytes.Compare(start, prefix) > 0 {
		lower = start
	}
	return bytes.Clone(lower), upperBound(prefix)
}

// upperBound returns the smallest key greater than every key with prefix, or
// nil when no such key exists.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
