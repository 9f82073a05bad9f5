package migration_test

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/balance"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/fixture"
	"github.com/luxfi/migrator/pkg/ingest"
	"github.com/luxfi/migrator/pkg/migration"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

var ctx = context.Background()

var errWriteFailed = errors.New("write failed")

// failingStore fails the next fail batch writes.
type failingStore struct {
	database.Store
	fail int
}

func (s *failingStore) NewBatch() database.Batch {
	return &failingBatch{Batch: s.Store.NewBatch(), store: s}
}

type failingBatch struct {
	database.Batch
	store *failingStore
}

func (b *failingBatch) Write() error {
	if b.store.fail > 0 {
		b.store.fail--
		return errWriteFailed
	}
	return b.Batch.Write()
}

type env struct {
	source *failingStore
	queue  *xcm.StoreQueue
	deps   migration.Deps
}

func newEnv(cfg migration.Config) *env {
	src := &failingStore{Store: database.NewMemory()}
	e := &env{source: src, queue: xcm.NewStoreQueue(src, records.MetaKey("xcm/out/"))}
	logger := log.NewLogger("test")
	e.deps = migration.Deps{
		Log:        logger,
		Source:     e.source,
		Dispatcher: xcm.NewDispatcher(logger, e.queue, cfg.MaxMessageSize),
		Config:     cfg,
	}
	return e
}

// drain returns every record of the given kind sent so far, in order.
func (e *env) drain(kind xcm.Kind) [][]byte {
	var out [][]byte
	for {
		m, err := e.queue.Peek(ctx)
		Expect(err).NotTo(HaveOccurred())
		if m == nil {
			return out
		}
		Expect(m.Kind).To(Equal(kind))
		items, err := m.Items()
		Expect(err).NotTo(HaveOccurred())
		for _, it := range items {
			out = append(out, it)
		}
		Expect(e.queue.Pop(ctx)).To(Succeed())
	}
}

// runToEnd calls MigrateMany with a fresh meter until the domain is exhausted.
func runToEnd(m migration.Migrator, limit weight.Weight) int {
	var (
		cursor []byte
		calls  int
	)
	for {
		calls++
		Expect(calls).To(BeNumerically("<", 10_000))
		next, err := m.MigrateMany(ctx, cursor, weight.NewMeter(limit))
		Expect(err).NotTo(HaveOccurred())
		if next == nil {
			return calls
		}
		cursor = next
	}
}

func seedAccounts(db database.Store, n int) {
	for i := 0; i < n; i++ {
		Expect(fixture.Put(db, fixture.Account(fixture.ID(uint32(i)), uint64(i+1), 0))).To(Succeed())
	}
}

var _ = Describe("PrefixMigrator", func() {
	var cfg migration.Config

	BeforeEach(func() {
		cfg = migration.DefaultConfig()
	})

	It("moves every record exactly once and empties the source", func() {
		e := newEnv(cfg)
		seedAccounts(e.source, 50)

		runToEnd(migration.NewAccounts(e.deps), weight.New(1<<62, 1<<62))

		sent := e.drain(xcm.ReceiveAccounts)
		Expect(sent).To(HaveLen(50))
		seen := map[string]bool{}
		for _, raw := range sent {
			acc, err := records.Decode[records.Account](raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen[string(acc.Who[:])]).To(BeFalse())
			seen[string(acc.Who[:])] = true
		}
		Expect(database.Count(e.source, records.AccountPrefix)).To(BeZero())
	})

	It("produces the same output in one pass and in many small passes", func() {
		cfg.MaxItems = 7
		small := newEnv(cfg)
		seedAccounts(small.source, 40)
		calls := runToEnd(migration.NewAccounts(small.deps), weight.New(1<<62, 1<<62))
		Expect(calls).To(BeNumerically(">", 5))

		big := newEnv(migration.DefaultConfig())
		seedAccounts(big.source, 40)
		Expect(runToEnd(migration.NewAccounts(big.deps), weight.New(1<<62, 1<<62))).To(Equal(1))

		Expect(small.drain(xcm.ReceiveAccounts)).To(Equal(big.drain(xcm.ReceiveAccounts)))
	})

	It("stops at the weight budget and resumes", func() {
		e := newEnv(cfg)
		seedAccounts(e.source, 10)
		perRecord := cfg.DbWeight.ReadsWrites(1, 1)

		m := migration.NewAccounts(e.deps)
		next, err := m.MigrateMany(ctx, nil, weight.NewMeter(perRecord.Mul(3)))
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(records.AccountKey(fixture.ID(2))))
		Expect(database.Count(e.source, records.AccountPrefix)).To(Equal(uint64(7)))

		next, err = m.MigrateMany(ctx, next, weight.NewMeter(perRecord.Mul(100)))
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(BeNil())
		Expect(e.drain(xcm.ReceiveAccounts)).To(HaveLen(10))
	})

	It("keeps records and sends nothing when the hand-off fails", func() {
		e := newEnv(cfg)
		seedAccounts(e.source, 10)
		before, err := balance.New(e.source).Summarize()
		Expect(err).NotTo(HaveOccurred())

		m := migration.NewAccounts(e.deps)
		e.source.fail = 1
		next, err := m.MigrateMany(ctx, nil, weight.NewMeter(weight.New(1<<62, 1<<62)))
		Expect(err).To(MatchError(errWriteFailed))
		Expect(next).To(BeNil())
		Expect(database.Count(e.source, records.AccountPrefix)).To(Equal(uint64(10)))
		Expect(e.queue.Len(ctx)).To(BeZero())

		// the retry sends every record exactly once
		Expect(runToEnd(m, weight.New(1<<62, 1<<62))).To(Equal(1))
		Expect(database.Count(e.source, records.AccountPrefix)).To(BeZero())

		dest := database.NewMemory()
		in := ingest.New(ingest.Env{Log: log.NewLogger("test"), Store: dest, Translator: account.NewTranslator(nil)})
		for {
			msg, err := e.queue.Peek(ctx)
			Expect(err).NotTo(HaveOccurred())
			if msg == nil {
				break
			}
			res, err := in.Receive(ctx, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Bad).To(BeZero())
			Expect(e.queue.Pop(ctx)).To(Succeed())
		}
		after, err := balance.New(dest).Summarize()
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Accounts).To(Equal(before.Accounts))
		Expect(after.Total()).To(Equal(before.Total()))
	})

	It("reports out of weight when nothing fits", func() {
		e := newEnv(cfg)
		seedAccounts(e.source, 1)
		_, err := migration.NewAccounts(e.deps).MigrateMany(ctx, nil, weight.NewMeter(weight.New(1, 1)))
		Expect(err).To(MatchError(core.ErrOutOfWeight))
		Expect(database.Count(e.source, records.AccountPrefix)).To(Equal(uint64(1)))
	})

	It("returns nil for an empty domain", func() {
		e := newEnv(cfg)
		next, err := migration.NewIndices(e.deps).MigrateMany(ctx, nil, weight.NewMeter(weight.New(1<<40, 1<<40)))
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(BeNil())
	})

	It("respects the message limit", func() {
		cfg.MaxMessages = 1
		cfg.MaxMessageSize = 400
		e := newEnv(cfg)
		seedAccounts(e.source, 20)
		next, err := migration.NewAccounts(e.deps).MigrateMany(ctx, nil, weight.NewMeter(weight.New(1<<62, 1<<62)))
		Expect(err).NotTo(HaveOccurred())
		Expect(next).NotTo(BeNil())
		Expect(e.queue.Len(ctx)).To(Equal(1))
	})

	It("drops dead accounts without sending them", func() {
		e := newEnv(cfg)
		Expect(fixture.Put(e.source, records.NewAccount(fixture.ID(1)), fixture.Account(fixture.ID(2), 5, 0))).To(Succeed())
		runToEnd(migration.NewAccounts(e.deps), weight.New(1<<62, 1<<62))
		Expect(e.drain(xcm.ReceiveAccounts)).To(HaveLen(1))
		Expect(database.Count(e.source, records.AccountPrefix)).To(BeZero())
	})

	It("leaves undecodable records in place", func() {
		e := newEnv(cfg)
		Expect(e.source.Put(records.IndexKey(1), []byte{0xff, 0x00})).To(Succeed())
		Expect(fixture.Put(e.source, &records.Index{Index: 2, Who: fixture.ID(2), Deposit: uint256.NewInt(1)})).To(Succeed())

		runToEnd(migration.NewIndices(e.deps), weight.New(1<<62, 1<<62))
		Expect(e.drain(xcm.ReceiveIndices)).To(HaveLen(1))
		Expect(database.Count(e.source, records.IndexPrefix)).To(Equal(uint64(1)))
	})
})

var _ = Describe("PreimageChunks", func() {
	It("splits large preimages and drops legacy ones", func() {
		cfg := migration.DefaultConfig()
		cfg.MaxMessageSize = 1100
		cfg.MaxMessages = 2
		e := newEnv(cfg)

		data := make([]byte, 4500)
		for i := range data {
			data[i] = byte(i % 251)
		}
		hash, err := fixture.PutPreimage(e.source, data, fixture.ID(1), false)
		Expect(err).NotTo(HaveOccurred())
		_, err = fixture.PutPreimage(e.source, []byte("old"), fixture.ID(1), true)
		Expect(err).NotTo(HaveOccurred())

		calls := runToEnd(migration.NewPreimageChunks(e.deps), weight.New(1<<62, 1<<62))
		Expect(calls).To(BeNumerically(">=", 3))

		var rebuilt []byte
		for _, raw := range e.drain(xcm.ReceivePreimageChunks) {
			chunk, err := records.Decode[records.PreimageChunk](raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Hash).To(Equal(hash))
			Expect(chunk.Offset).To(Equal(uint32(len(rebuilt))))
			Expect(len(chunk.Data)).To(BeNumerically("<=", xcm.ChunkSize(cfg.MaxMessageSize)))
			rebuilt = append(rebuilt, chunk.Data...)
		}
		Expect(rebuilt).To(Equal(data))
		Expect(database.Count(e.source, records.PreimagePrefix)).To(BeZero())
		// request statuses migrate in their own stage
		Expect(database.Count(e.source, records.RequestStatusPrefix)).To(Equal(uint64(1)))
	})
})

var _ = Describe("Registry", func() {
	It("has a migrator for every domain", func() {
		e := newEnv(migration.DefaultConfig())
		reg := migration.NewRegistry(e.deps)
		for _, d := range stage.Domains() {
			m, err := reg.Get(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Domain()).To(Equal(d))
		}
		_, err := reg.Get(stage.Domain(200))
		Expect(err).To(MatchError(core.ErrUnknownDomain))
	})
})
