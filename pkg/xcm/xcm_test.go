package xcm_test

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/xcm"
)

func record(tag byte) rlp.RawValue {
	enc, err := rlp.EncodeToBytes(bytes.Repeat([]byte{tag}, 100))
	Expect(err).NotTo(HaveOccurred())
	return enc
}

var _ = Describe("Chunk", func() {
	It("keeps order and packs greedily", func() {
		items := []rlp.RawValue{record('A'), record('B'), record('C'), record('D'), record('E')}
		// three 102-byte records fit into 320 bytes, four do not
		payloads, err := xcm.Chunk(items, 320)
		Expect(err).NotTo(HaveOccurred())
		Expect(payloads).To(HaveLen(2))

		var got [][]rlp.RawValue
		for _, p := range payloads {
			Expect(len(p)).To(BeNumerically("<=", 320))
			m := &xcm.Message{Kind: xcm.ReceiveAccounts, Payload: p}
			parts, err := m.Items()
			Expect(err).NotTo(HaveOccurred())
			got = append(got, parts)
		}
		Expect(got[0]).To(Equal(items[:3]))
		Expect(got[1]).To(Equal(items[3:]))
	})

	It("rejects a record that cannot fit any envelope", func() {
		_, err := xcm.Chunk([]rlp.RawValue{record('A')}, 50)
		Expect(err).To(MatchError(core.ErrMessageTooLarge))
	})

	It("predicts the envelope count", func() {
		c := xcm.NewChunker(320)
		for _, tag := range []byte("ABC") {
			Expect(c.Fits(102, 1)).To(BeTrue())
			Expect(c.Add(record(tag))).To(Succeed())
		}
		Expect(c.Fits(102, 1)).To(BeFalse())
		Expect(c.Fits(102, 2)).To(BeTrue())
	})
})

var _ = Describe("Message", func() {
	It("counts batch items", func() {
		payloads, err := xcm.Chunk([]rlp.RawValue{record('A'), record('B')}, xcm.DefaultMaxSize)
		Expect(err).NotTo(HaveOccurred())
		m := &xcm.Message{Kind: xcm.ReceiveVesting, Payload: payloads[0]}
		Expect(m.Count()).To(Equal(2))

		enc, err := m.Encode()
		Expect(err).NotTo(HaveOccurred())
		back, err := xcm.DecodeMessage(enc)
		Expect(err).NotTo(HaveOccurred())
		Expect(back).To(Equal(m))
	})

	It("maps kinds to domains", func() {
		for _, d := range stage.Domains() {
			k := xcm.KindOf(d)
			back, ok := k.Domain()
			Expect(ok).To(BeTrue())
			Expect(back).To(Equal(d))
			Expect(k.IsControl()).To(BeFalse())
		}
		Expect(xcm.FinishMigration.IsControl()).To(BeTrue())
		_, ok := xcm.StartDataMigration.Domain()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Queue", func() {
	ctx := context.Background()

	behaves := func(newQueue func() xcm.Queue) {
		It("delivers in FIFO order", func() {
			q := newQueue()
			Expect(q.Enqueue(ctx, &xcm.Message{Kind: xcm.ReceiveAccounts, Payload: []byte{0xc0}},
				&xcm.Message{Kind: xcm.ReceiveMultisigs, Payload: []byte{0xc0}})).To(Succeed())
			Expect(q.Enqueue(ctx, &xcm.Message{Kind: xcm.FinishMigration})).To(Succeed())
			Expect(q.Len(ctx)).To(Equal(3))

			var kinds []xcm.Kind
			for {
				m, err := q.Peek(ctx)
				Expect(err).NotTo(HaveOccurred())
				if m == nil {
					break
				}
				kinds = append(kinds, m.Kind)
				Expect(q.Pop(ctx)).To(Succeed())
			}
			Expect(kinds).To(Equal([]xcm.Kind{xcm.ReceiveAccounts, xcm.ReceiveMultisigs, xcm.FinishMigration}))
			Expect(q.Pop(ctx)).To(MatchError(core.ErrNotFound))
		})
	}

	Context("in memory", func() {
		behaves(func() xcm.Queue { return xcm.NewMemoryQueue() })
	})

	Context("in a store", func() {
		prefix := []byte("q/")
		behaves(func() xcm.Queue { return xcm.NewStoreQueue(database.NewMemory(), prefix) })

		It("survives reopening", func() {
			db := database.NewMemory()
			Expect(xcm.NewStoreQueue(db, prefix).Enqueue(ctx, &xcm.Message{Kind: xcm.StartDataMigration})).To(Succeed())

			m, err := xcm.NewStoreQueue(db, prefix).Peek(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Kind).To(Equal(xcm.StartDataMigration))
		})

		It("queues staged messages only once their batch is written", func() {
			db := database.NewMemory()
			q := xcm.NewStoreQueue(db, prefix)
			Expect(q.Enqueue(ctx, &xcm.Message{Kind: xcm.StartDataMigration})).To(Succeed())

			batch := db.NewBatch()
			defer batch.Close()
			Expect(batch.Put([]byte("other"), []byte{1})).To(Succeed())
			Expect(q.EnqueueBatch(ctx, batch, &xcm.Message{Kind: xcm.ReceiveAccounts}, &xcm.Message{Kind: xcm.ReceiveIndices})).To(Succeed())
			Expect(q.Len(ctx)).To(Equal(1))

			Expect(batch.Write()).To(Succeed())
			Expect(q.Len(ctx)).To(Equal(3))
			Expect(db.Has([]byte("other"))).To(BeTrue())

			var kinds []xcm.Kind
			for {
				m, err := q.Peek(ctx)
				Expect(err).NotTo(HaveOccurred())
				if m == nil {
					break
				}
				kinds = append(kinds, m.Kind)
				Expect(q.Pop(ctx)).To(Succeed())
			}
			Expect(kinds).To(Equal([]xcm.Kind{xcm.StartDataMigration, xcm.ReceiveAccounts, xcm.ReceiveIndices}))
		})

		It("drops staged messages of an abandoned batch", func() {
			db := database.NewMemory()
			q := xcm.NewStoreQueue(db, prefix)
			batch := db.NewBatch()
			Expect(q.EnqueueBatch(ctx, batch, &xcm.Message{Kind: xcm.ReceiveAccounts})).To(Succeed())
			Expect(batch.Close()).To(Succeed())
			Expect(q.Len(ctx)).To(BeZero())
		})
	})
})

var _ = Describe("Dispatcher", func() {
	It("enqueues every envelope of a batch", func() {
		q := xcm.NewMemoryQueue()
		d := xcm.NewDispatcher(log.NewLogger("test"), q, 320)
		n, err := d.SendChunked(context.Background(), xcm.ReceiveIndices,
			[]rlp.RawValue{record('A'), record('B'), record('C'), record('D')})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		Expect(q.Len(context.Background())).To(Equal(2))
	})

	It("stages payloads into a batch of the queue store", func() {
		ctx := context.Background()
		db := database.NewMemory()
		q := xcm.NewStoreQueue(db, []byte("q/"))
		d := xcm.NewDispatcher(log.NewLogger("test"), q, 320)

		batch := db.NewBatch()
		defer batch.Close()
		Expect(d.StagePayloads(ctx, batch, xcm.ReceiveIndices, [][]byte{{0xc0}, {0xc0}})).To(Succeed())
		Expect(q.Len(ctx)).To(BeZero())
		Expect(batch.Write()).To(Succeed())
		Expect(q.Len(ctx)).To(Equal(2))
	})

	It("refuses to stage into a queue outside the store", func() {
		d := xcm.NewDispatcher(log.NewLogger("test"), xcm.NewMemoryQueue(), 320)
		batch := database.NewMemory().NewBatch()
		defer batch.Close()
		err := d.StagePayloads(context.Background(), batch, xcm.ReceiveIndices, [][]byte{{0xc0}})
		Expect(err).To(BeAssignableToTypeOf(core.ConfigError{}))
	})
})
