package database_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
)

func keys(it database.Iterator) []string {
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(bytes.Clone(it.Key())))
	}
	Expect(it.Error()).NotTo(HaveOccurred())
	return out
}

var backends = map[string]func() (database.Store, error){
	"leveldb": func() (database.Store, error) { return database.NewMemory(), nil },
	"pebble":  database.NewPebbleMemory,
	"badger":  database.NewBadgerMemory,
}

var _ = Describe("Store", func() {
	for name, open := range backends {
		name, open := name, open

		Context(name, func() {
			var store database.Store

			BeforeEach(func() {
				var err error
				store, err = open()
				Expect(err).NotTo(HaveOccurred())
				for _, k := range []string{"a/1", "a/2", "a/3", "b/1", "c"} {
					Expect(store.Put([]byte(k), []byte("v"+k))).To(Succeed())
				}
			})

			AfterEach(func() {
				Expect(store.Close()).To(Succeed())
			})

			It("gets and reports missing keys", func() {
				v, err := store.Get([]byte("a/2"))
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal([]byte("va/2")))

				_, err = store.Get([]byte("zz"))
				Expect(err).To(MatchError(core.ErrNotFound))

				ok, err := store.Has([]byte("zz"))
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})

			It("iterates a prefix in key order from a start key", func() {
				Expect(keys(store.NewIterator([]byte("a/"), nil))).To(Equal([]string{"a/1", "a/2", "a/3"}))
				Expect(keys(store.NewIterator([]byte("a/"), []byte("a/2")))).To(Equal([]string{"a/2", "a/3"}))
				Expect(keys(store.NewIterator([]byte("a/"), []byte("a/2\x00")))).To(Equal([]string{"a/3"}))
				Expect(keys(store.NewIterator(nil, nil))).To(HaveLen(5))
			})

			It("applies batches atomically on write", func() {
				batch := store.NewBatch()
				Expect(batch.Delete([]byte("a/1"))).To(Succeed())
				Expect(batch.Put([]byte("d"), []byte("vd"))).To(Succeed())
				Expect(batch.Len()).To(Equal(2))

				ok, _ := store.Has([]byte("d"))
				Expect(ok).To(BeFalse())

				Expect(batch.Write()).To(Succeed())
				Expect(keys(store.NewIterator(nil, nil))).To(Equal([]string{"a/2", "a/3", "b/1", "c", "d"}))
			})

			It("closes batches once written or abandoned", func() {
				written := store.NewBatch()
				Expect(written.Put([]byte("d"), []byte("vd"))).To(Succeed())
				Expect(written.Write()).To(Succeed())
				Expect(written.Close()).To(Succeed())
				Expect(written.Close()).To(Succeed())

				abandoned := store.NewBatch()
				Expect(abandoned.Put([]byte("e"), []byte("ve"))).To(Succeed())
				Expect(abandoned.Close()).To(Succeed())
				ok, err := store.Has([]byte("e"))
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})

			It("copies and counts", func() {
				dst := database.NewMemory()
				defer dst.Close()
				n, err := database.Copy(dst, store, []byte("a/"), 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(uint64(3)))

				count, err := database.Count(dst, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(uint64(3)))
			})
		})
	}
})

var _ = Describe("Prefixed", func() {
	It("isolates key spaces", func() {
		store := database.NewMemory()
		defer store.Close()

		left := database.Prefixed(store, []byte("l/"))
		right := database.Prefixed(store, []byte("r/"))
		Expect(left.Put([]byte("k"), []byte("1"))).To(Succeed())

		batch := right.NewBatch()
		Expect(batch.Put([]byte("k"), []byte("2"))).To(Succeed())
		Expect(batch.Write()).To(Succeed())

		v, err := left.Get([]byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("1")))
		Expect(keys(right.NewIterator(nil, nil))).To(Equal([]string{"k"}))
		Expect(keys(store.NewIterator(nil, nil))).To(Equal([]string{"l/k", "r/k"}))
	})

	It("lets a store batch write into a prefixed view", func() {
		store := database.NewMemory()
		defer store.Close()
		view := database.Prefixed(store, []byte("v/"))

		batch := store.NewBatch()
		defer batch.Close()
		Expect(batch.Put([]byte("plain"), []byte("1"))).To(Succeed())
		Expect(database.PrefixedWriter(batch, []byte("v/")).Put([]byte("k"), []byte("2"))).To(Succeed())
		Expect(view.Has([]byte("k"))).To(BeFalse())

		Expect(batch.Write()).To(Succeed())
		v, err := view.Get([]byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("2")))
		Expect(keys(store.NewIterator(nil, nil))).To(Equal([]string{"plain", "v/k"}))
	})
})

var _ = Describe("DetectType", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "detect")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("defaults to pebble for missing directories", func() {
		Expect(database.DetectType(filepath.Join(dir, "missing"))).To(Equal(database.PebbleDB))
	})

	It("recognises leveldb tables", func() {
		Expect(os.WriteFile(filepath.Join(dir, "000001.ldb"), nil, 0644)).To(Succeed())
		Expect(database.DetectType(dir)).To(Equal(database.LevelDB))
	})

	It("recognises badger value logs", func() {
		Expect(os.WriteFile(filepath.Join(dir, "000001.vlog"), nil, 0644)).To(Succeed())
		Expect(database.DetectType(dir)).To(Equal(database.BadgerDB))
	})
})
