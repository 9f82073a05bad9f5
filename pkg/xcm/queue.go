package xcm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
)

// Queue is an ordered channel between the chains. Messages are delivered in
// the order they were enqueued.
type Queue interface {
	// Enqueue appends messages atomically: either all or none are queued.
	Enqueue(ctx context.Context, msgs ...*Message) error
	// Peek returns the oldest message, or nil when the queue is empty.
	Peek(ctx context.Context) (*Message, error)
	// Pop removes the oldest message.
	Pop(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// MemoryQueue is a Queue held in memory.
type MemoryQueue struct {
	mu   sync.Mutex
	msgs []*Message
}

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msgs ...*Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msgs...)
	return nil
}

func (q *MemoryQueue) Peek(_ context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil, nil
	}
	return q.msgs[0], nil
}

func (q *MemoryQueue) Pop(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return core.ErrNotFound
	}
	q.msgs[0] = nil
	q.msgs = q.msgs[1:]
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs), nil
}

var (
	headKey = []byte("head")
	tailKey = []byte("tail")
	msgKey  = []byte("msg/")
)

// Stager is a Queue whose messages can be committed together with other
// writes to the store that holds it.
type Stager interface {
	Queue
	// EnqueueBatch stages msgs into w, a batch of the store holding the
	// queue. The messages are queued once the batch is written. Only one
	// EnqueueBatch call may be staged per batch.
	EnqueueBatch(ctx context.Context, w database.Writer, msgs ...*Message) error
}

// StoreQueue is a Queue persisted in a database under big-endian sequence
// numbers so that it survives restarts.
type StoreQueue struct {
	db     database.Store
	prefix []byte
}

// NewStoreQueue creates a queue in db with every key under prefix.
func NewStoreQueue(db database.Store, prefix []byte) *StoreQueue {
	return &StoreQueue{db: database.Prefixed(db, prefix), prefix: prefix}
}

func (q *StoreQueue) counter(key []byte) (uint64, error) {
	v, err := q.db.Get(key)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt queue counter %q", key)
	}
	return binary.BigEndian.Uint64(v), nil
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, msgKey...), seq)
}

func (q *StoreQueue) Enqueue(ctx context.Context, msgs ...*Message) error {
	batch := q.db.NewBatch()
	defer batch.Close()
	if err := q.stage(ctx, batch, msgs); err != nil {
		return err
	}
	return batch.Write()
}

func (q *StoreQueue) EnqueueBatch(ctx context.Context, w database.Writer, msgs ...*Message) error {
	return q.stage(ctx, database.PrefixedWriter(w, q.prefix), msgs)
}

func (q *StoreQueue) stage(ctx context.Context, w database.Writer, msgs []*Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tail, err := q.counter(tailKey)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		enc, err := m.Encode()
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		if err := w.Put(seqKey(tail), enc); err != nil {
			return err
		}
		tail++
	}
	return w.Put(tailKey, binary.BigEndian.AppendUint64(nil, tail))
}

func (q *StoreQueue) Peek(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	head, err := q.counter(headKey)
	if err != nil {
		return nil, err
	}
	raw, err := q.db.Get(seqKey(head))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeMessage(raw)
}

func (q *StoreQueue) Pop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	head, err := q.counter(headKey)
	if err != nil {
		return err
	}
	tail, err := q.counter(tailKey)
	if err != nil {
		return err
	}
	if head >= tail {
		return core.ErrNotFound
	}
	batch := q.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(seqKey(head)); err != nil {
		return err
	}
	if err := batch.Put(headKey, binary.BigEndian.AppendUint64(nil, head+1)); err != nil {
		return err
	}
	return batch.Write()
}

func (q *StoreQueue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	head, err := q.counter(headKey)
	if err != nil {
		return 0, err
	}
	tail, err := q.counter(tailKey)
	if err != nil {
		return 0, err
	}
	return int(tail - head), nil
}

var _ Stager = (*StoreQueue)(nil)
