package database

import "bytes"

type prefixStore struct {
	inner  Store
	prefix []byte
}

// Prefixed returns a view of s in which every key is stored under prefix.
// Closing the view does not close s.
func Prefixed(s Store, prefix []byte) Store {
	return &prefixStore{inner: s, prefix: bytes.Clone(prefix)}
}

func (p *prefixStore) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *prefixStore) Get(key []byte) ([]byte, error)  { return p.inner.Get(p.key(key)) }
func (p *prefixStore) Has(key []byte) (bool, error)    { return p.inner.Has(p.key(key)) }
func (p *prefixStore) Put(key, value []byte) error     { return p.inner.Put(p.key(key), value) }
func (p *prefixStore) Delete(key []byte) error         { return p.inner.Delete(p.key(key)) }
func (p *prefixStore) Close() error                    { return nil }
func (p *prefixStore) NewBatch() Batch                 { return &prefixBatch{p: p, inner: p.inner.NewBatch()} }

func (p *prefixStore) NewIterator(prefix, start []byte) Iterator {
	var s []byte
	if start != nil {
		s = p.key(start)
	}
	return &prefixIterator{inner: p.inner.NewIterator(p.key(prefix), s), n: len(p.prefix)}
}

type prefixIterator struct {
	inner Iterator
	n     int
}

func (it *prefixIterator) Next() bool    { return it.inner.Next() }
func (it *prefixIterator) Key() []byte   { return it.inner.Key()[it.n:] }
func (it *prefixIterator) Value() []byte { return it.inner.Value() }
func (it *prefixIterator) Error() error  { return it.inner.Error() }
func (it *prefixIterator) Release()      { it.inner.Release() }

type prefixBatch struct {
	p     *prefixStore
	inner Batch
}

func (b *prefixBatch) Put(key, value []byte) error { return b.inner.Put(b.p.key(key), value) }
func (b *prefixBatch) Delete(key []byte) error     { return b.inner.Delete(b.p.key(key)) }
func (b *prefixBatch) Len() int                    { return b.inner.Len() }
func (b *prefixBatch) Write() error                { return b.inner.Write() }
func (b *prefixBatch) Reset()                      { b.inner.Reset() }
func (b *prefixBatch) Close() error                { return b.inner.Close() }

type prefixWriter struct {
	inner  Writer
	prefix []byte
}

// PrefixedWriter returns a writer that stores every key under prefix in w.
// It lets a batch of the underlying store carry writes for a Prefixed view.
func PrefixedWriter(w Writer, prefix []byte) Writer {
	return &prefixWriter{inner: w, prefix: bytes.Clone(prefix)}
}

func (p *prefixWriter) Put(key, value []byte) error {
	return p.inner.Put(append(bytes.Clone(p.prefix), key...), value)
}

func (p *prefixWriter) Delete(key []byte) error {
	return p.inner.Delete(append(bytes.Clone(p.prefix), key...))
}
