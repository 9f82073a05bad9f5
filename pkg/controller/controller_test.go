package controller_test

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/balance"
	"github.com/luxfi/migrator/pkg/controller"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/fixture"
	"github.com/luxfi/migrator/pkg/ingest"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/migration"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

var ctx = context.Background()

type options struct {
	policy       controller.Policy
	maxItems     int
	sourceWeight weight.Weight
	destWeight   weight.Weight
}

func defaults() options {
	return options{
		policy:       controller.PolicyAccept,
		maxItems:     xcm.DefaultMaxItems,
		sourceWeight: weight.New(500_000_000_000, 5*1024*1024),
		destWeight:   weight.New(2_000_000_000_000, 10*1024*1024),
	}
}

var (
	errWriteFailed = errors.New("write failed")
	outboxPrefix   = records.MetaKey("xcm/out/")
)

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

type harness struct {
	opts     options
	log      log.Logger
	src, dst database.Store
	faults   *failingStore
	out, ack *xcm.StoreQueue
	reg      *prometheus.Registry
	metrics  *metrics.Metrics
	source   *controller.Source
	dest     *controller.Destination
	pair     *controller.Pair
}

func newHarness(opts options) *harness {
	faults := &failingStore{Store: database.NewMemory()}
	dst := database.NewMemory()
	h := &harness{
		opts:   opts,
		log:    log.NewLogger("test"),
		src:    faults,
		dst:    dst,
		faults: faults,
		out:    xcm.NewStoreQueue(faults, outboxPrefix),
		ack:    xcm.NewStoreQueue(dst, records.MetaKey("xcm/ack/")),
		reg:    prometheus.NewRegistry(),
	}
	var err error
	h.metrics, err = metrics.New(h.reg)
	Expect(err).NotTo(HaveOccurred())
	h.open()

	dest, err := controller.NewDestination(controller.DestinationConfig{
		Log: h.log,
		Ingest: ingest.Env{
			Translator: account.NewTranslator(nil),
			Clock:      ingest.FixedClock{Source: 100, Destination: 75},
		},
		Store:       h.dst,
		Inbox:       h.out,
		Outbox:      xcm.NewDispatcher(h.log, h.ack, 0),
		Metrics:     h.metrics,
		DbWeight:    weight.DefaultDbWeight,
		BlockWeight: opts.destWeight,
		Policy:      opts.policy,
	})
	Expect(err).NotTo(HaveOccurred())
	h.dest = dest
	h.pair = &controller.Pair{Log: h.log, Source: h.source, Destination: h.dest}

	DeferCleanup(func() {
		h.src.Close()
		h.dst.Close()
	})
	return h
}

// open (re)creates the source controller from the persisted state.
func (h *harness) open() {
	cfg := migration.DefaultConfig()
	cfg.MaxItems = h.opts.maxItems
	dispatcher := xcm.NewDispatcher(h.log, h.out, cfg.MaxMessageSize)

	source, err := controller.NewSource(controller.SourceConfig{
		Log: h.log,
		Store: h.src,
		Registry: migration.NewRegistry(migration.Deps{
			Log:        h.log,
			Source:     h.src,
			Dispatcher: dispatcher,
			Metrics:    h.metrics,
			Config:     cfg,
		}),
		Outbox:      dispatcher,
		Inbox:       h.ack,
		Metrics:     h.metrics,
		BlockWeight: h.opts.sourceWeight,
	})
	Expect(err).NotTo(HaveOccurred())
	h.source = source
	if h.pair != nil {
		h.pair.Source = source
	}
}

func (h *harness) populate() {
	_, err := fixture.Populate(h.src, fixture.Options{
		Accounts:      40,
		ParaIDs:       []uint16{1000, 2000},
		PreimageBytes: 120_000,
	})
	Expect(err).NotTo(HaveOccurred())
}

func (h *harness) block() {
	_, _, err := h.pair.Block(ctx)
	Expect(err).NotTo(HaveOccurred())
}

// handshake starts the migration and runs until the first domain migrates.
func (h *harness) handshake() {
	Expect(h.source.Start(ctx)).To(Succeed())
	h.block()
	h.block()
	Expect(h.source.Stage()).To(Equal(stage.AccountsMigrating))
}

func queued(q xcm.Queue) int {
	n, err := q.Len(ctx)
	Expect(err).NotTo(HaveOccurred())
	return n
}

var _ = Describe("Controllers", func() {
	It("does nothing until started", func() {
		h := newHarness(defaults())
		h.block()
		Expect(h.source.Stage()).To(Equal(stage.Pending))
		Expect(h.dest.Stage()).To(Equal(stage.DestinationPending))
		Expect(queued(h.out)).To(BeZero())
	})

	It("waits for the destination to acknowledge the start", func() {
		h := newHarness(defaults())
		Expect(h.source.Start(ctx)).To(Succeed())
		Expect(h.source.Stage()).To(Equal(stage.WaitingForDestination))
		Expect(h.source.Start(ctx)).To(MatchError(core.ErrInvalidTransition))

		By("letting the destination process the start message")
		_, err := h.dest.OnBlock(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.dest.Stage()).To(Equal(stage.DataMigrationOngoing))
		Expect(queued(h.ack)).To(Equal(1))

		By("consuming the acknowledgement on the source")
		_, err = h.source.OnBlock(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.source.Stage()).To(Equal(stage.AccountsMigrating))
		Expect(queued(h.ack)).To(BeZero())
	})

	It("migrates every domain and conserves the issuance", func() {
		h := newHarness(defaults())
		h.populate()
		before, err := balance.New(h.src).Summarize()
		Expect(err).NotTo(HaveOccurred())

		Expect(h.source.Start(ctx)).To(Succeed())
		_, err = h.pair.Run(ctx, 200)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.pair.Done()).To(BeTrue())

		after, err := balance.New(h.dst).Summarize()
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Total()).To(Equal(before.Total()))
		Expect(h.dest.Events().TotalBad()).To(BeZero())

		By("leaving no migrated records on the source")
		for _, prefix := range [][]byte{records.AccountPrefix, records.ProxyPrefix, records.PreimagePrefix, records.IndexPrefix, records.NomPoolsPrefix} {
			n, err := database.Count(h.src, prefix)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero(), "prefix %s", prefix)
		}

		By("translating sovereign accounts")
		Expect(h.dst.Has(records.AccountKey(account.SiblingSovereign(1000)))).To(BeTrue())
		Expect(h.dst.Has(records.AccountKey(account.ParaSovereign(1000)))).To(BeFalse())

		By("persisting both stages")
		st, err := controller.LoadState(h.src)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Stage).To(Equal(stage.MigrationDone))
		dst, err := controller.LoadDestinationStage(h.dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst).To(Equal(stage.DestinationDone))
	})

	It("resumes from the persisted cursor", func() {
		opts := defaults()
		opts.maxItems = 10
		h := newHarness(opts)
		h.populate()
		h.handshake()

		h.block()
		state := h.source.State()
		Expect(state.Stage).To(Equal(stage.AccountsMigrating))
		Expect(state.Cursor).NotTo(BeNil())

		h.open()
		Expect(h.source.State()).To(Equal(state))

		_, err := h.pair.Run(ctx, 200)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.dest.Events().TotalBad()).To(BeZero())
	})

	It("halts at the next domain boundary", func() {
		opts := defaults()
		opts.maxItems = 10
		h := newHarness(opts)
		h.populate()
		h.handshake()
		h.block()

		Expect(h.source.Halt()).To(Succeed())
		Expect(h.source.State().HaltRequested).To(BeTrue())
		Expect(h.source.Stage()).To(Equal(stage.AccountsMigrating))

		for i := 0; i < 20 && !h.source.State().Halted; i++ {
			h.block()
		}
		state := h.source.State()
		Expect(state.Halted).To(BeTrue())
		Expect(state.Stage).To(Equal(stage.MultisigsMigrating))
		Expect(state.Cursor).To(BeNil())

		By("skipping blocks while halted")
		pending := queued(h.out)
		step, err := h.source.OnBlock(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(step.Halted).To(BeTrue())
		Expect(queued(h.out)).To(Equal(pending))

		_, err = h.pair.Run(ctx, 10)
		Expect(err).To(MatchError(core.ErrHalted))

		Expect(h.source.Resume()).To(Succeed())
		_, err = h.pair.Run(ctx, 200)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("extracting in several passes", func() {
		var (
			h     *harness
			ids   []account.ID
			funds map[account.ID]uint64
		)

		BeforeEach(func() {
			opts := defaults()
			opts.maxItems = 3
			h = newHarness(opts)
			funds = map[account.ID]uint64{}
			for i := uint32(1); i <= 5; i++ {
				id := fixture.ID(i)
				ids = append(ids, id)
				funds[id] = uint64(100 * i)
				Expect(fixture.Put(h.src, fixture.Account(id, funds[id], 0))).To(Succeed())
			}
			h.handshake()
		})

		AfterEach(func() {
			ids = nil
		})

		has := func(db database.Reader, who account.ID) bool {
			ok, err := db.Has(records.AccountKey(who))
			Expect(err).NotTo(HaveOccurred())
			return ok
		}

		expectMigrated := func() {
			for _, id := range ids {
				Expect(has(h.src, id)).To(BeFalse())
				acc, err := h.dst.Get(records.AccountKey(id))
				Expect(err).NotTo(HaveOccurred())
				got, err := records.Decode[records.Account](acc)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Free.Uint64()).To(Equal(funds[id]))
			}
		}

		It("ingests the batches in extraction order", func() {
			h.block()
			for i, id := range ids {
				Expect(has(h.dst, id)).To(Equal(i < 3), "account %d", i)
				Expect(has(h.src, id)).To(Equal(i >= 3), "account %d", i)
			}
			Expect(h.source.State().Cursor).To(Equal(records.AccountKey(ids[2])))

			h.block()
			Expect(h.source.Stage()).To(Equal(stage.MultisigsMigrating))
			expectMigrated()

			var counts []int
			for _, e := range h.dest.Events().Events() {
				if e.Kind == ingest.BatchProcessed && e.Domain == stage.Accounts {
					counts = append(counts, e.Count)
				}
			}
			Expect(counts).To(Equal([]int{3, 2}))

			_, err := h.pair.Run(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.dest.Events().TotalBad()).To(BeZero())
		})

		It("keeps the source intact when removal fails", func() {
			h.faults.fail = 1
			_, _, err := h.pair.Block(ctx)
			Expect(err).To(MatchError(errWriteFailed))
			for _, id := range ids {
				Expect(has(h.src, id)).To(BeTrue())
				Expect(has(h.dst, id)).To(BeFalse())
			}
			Expect(queued(h.out)).To(BeZero())
			Expect(h.source.State().Cursor).To(BeNil())

			_, err = h.pair.Run(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			expectMigrated()
			Expect(h.dest.Events().TotalBad()).To(BeZero())
		})

		It("keeps the source intact when the hand-off cannot be staged", func() {
			tail := append(append([]byte{}, outboxPrefix...), "tail"...)
			good, err := h.src.Get(tail)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.src.Put(tail, []byte{1})).To(Succeed())

			_, _, err = h.pair.Block(ctx)
			Expect(err).To(HaveOccurred())
			for _, id := range ids {
				Expect(has(h.src, id)).To(BeTrue())
				Expect(has(h.dst, id)).To(BeFalse())
			}

			Expect(h.src.Put(tail, good)).To(Succeed())
			_, err = h.pair.Run(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			expectMigrated()
		})
	})

	It("only regresses through a forced transition", func() {
		h := newHarness(defaults())
		Expect(h.source.Start(ctx)).To(Succeed())
		Expect(h.source.Force(stage.Pending)).To(Succeed())
		Expect(h.source.Stage()).To(Equal(stage.Pending))
		Expect(h.source.Force(stage.MigrationDone + 1)).To(MatchError(core.ErrInvalidTransition))
	})

	It("surfaces out of weight on the source", func() {
		opts := defaults()
		opts.sourceWeight = weight.New(1, 0)
		h := newHarness(opts)
		h.populate()
		h.handshake()

		_, err := h.source.OnBlock(ctx)
		Expect(err).To(MatchError(core.ErrOutOfWeight))
		Expect(h.source.State().Cursor).To(BeNil())
		Expect(testutil.GatherAndCount(h.reg, "migrator_out_of_weight_total")).To(Equal(1))
	})

	It("keeps a message queued when the destination is out of weight", func() {
		opts := defaults()
		opts.destWeight = weight.New(1, 0)
		h := newHarness(opts)
		Expect(h.source.Start(ctx)).To(Succeed())

		_, err := h.dest.OnBlock(ctx)
		Expect(err).To(MatchError(core.ErrOutOfWeight))
		Expect(queued(h.out)).To(Equal(1))
		Expect(h.dest.Stage()).To(Equal(stage.DestinationPending))
	})

	Context("with bad items", func() {
		occupy := func(h *harness) {
			// index 0 is part of the population
			Expect(fixture.Put(h.dst, &records.Index{Index: 0, Who: fixture.ID(77), Deposit: uint256.NewInt(1)})).To(Succeed())
		}

		It("finishes under the accept policy", func() {
			h := newHarness(defaults())
			h.populate()
			occupy(h)
			Expect(h.source.Start(ctx)).To(Succeed())

			_, err := h.pair.Run(ctx, 200)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.dest.Events().TotalBad()).To(Equal(1))
			Expect(h.dest.Events().Bad()).To(HaveKeyWithValue(stage.Indices, 1))
		})

		It("holds the finish under the repair policy", func() {
			opts := defaults()
			opts.policy = controller.PolicyRepair
			h := newHarness(opts)
			h.populate()
			occupy(h)
			Expect(h.source.Start(ctx)).To(Succeed())

			_, err := h.pair.Run(ctx, 60)
			Expect(err).To(HaveOccurred())
			Expect(h.source.Stage()).To(Equal(stage.MigrationDone))
			Expect(h.dest.Stage()).To(Equal(stage.DataMigrationOngoing))
			Expect(queued(h.out)).To(Equal(1))

			drain, err := h.dest.OnBlock(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(drain.Blocked).To(BeTrue())

			h.dest.Repaired()
			_, err = h.dest.OnBlock(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.dest.Stage()).To(Equal(stage.DestinationDone))
		})
	})
})

var _ = Describe("ParsePolicy", func() {
	It("defaults to accept", func() {
		p, err := controller.ParsePolicy("")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(controller.PolicyAccept))
	})

	It("rejects unknown policies", func() {
		_, err := controller.ParsePolicy("ignore")
		Expect(err).To(BeAssignableToTypeOf(core.ConfigError{}))
	})
})
