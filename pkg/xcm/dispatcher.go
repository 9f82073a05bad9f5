package xcm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
)

// Dispatcher chunks batches and hands them to the outbound queue.
type Dispatcher struct {
	log     log.Logger
	queue   Queue
	maxSize int
}

// NewDispatcher creates a dispatcher writing to queue.
func NewDispatcher(logger log.Logger, queue Queue, maxSize int) *Dispatcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Dispatcher{log: logger, queue: queue, maxSize: maxSize}
}

// MaxSize returns the payload bound of one message.
func (d *Dispatcher) MaxSize() int { return d.maxSize }

// SendChunked splits items into envelopes and enqueues them in order. It
// returns the number of envelopes sent.
func (d *Dispatcher) SendChunked(ctx context.Context, kind Kind, items []rlp.RawValue) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	payloads, err := Chunk(items, d.maxSize)
	if err != nil {
		return 0, err
	}
	if err := d.SendPayloads(ctx, kind, payloads); err != nil {
		return 0, err
	}
	d.log.Info("Dispatched batch", "kind", kind, "items", len(items), "messages", len(payloads))
	return len(payloads), nil
}

func envelopes(kind Kind, payloads [][]byte) []*Message {
	msgs := make([]*Message, len(payloads))
	for i, p := range payloads {
		msgs[i] = &Message{Kind: kind, Payload: p}
	}
	return msgs
}

// SendPayloads enqueues pre-chunked payloads in order.
func (d *Dispatcher) SendPayloads(ctx context.Context, kind Kind, payloads [][]byte) error {
	if err := d.queue.Enqueue(ctx, envelopes(kind, payloads)...); err != nil {
		return fmt.Errorf("failed to enqueue %d messages of %s: %w", len(payloads), kind, err)
	}
	return nil
}

// StagePayloads stages pre-chunked payloads into batch, a batch of the store
// holding the queue, so that they are sent exactly when batch is written.
func (d *Dispatcher) StagePayloads(ctx context.Context, batch database.Batch, kind Kind, payloads [][]byte) error {
	stager, ok := d.queue.(Stager)
	if !ok {
		return core.ErrInvalidConfigf("queue %T cannot stage messages into a batch", d.queue)
	}
	if err := stager.EnqueueBatch(ctx, batch, envelopes(kind, payloads)...); err != nil {
		return fmt.Errorf("failed to stage %d messages of %s: %w", len(payloads), kind, err)
	}
	return nil
}

// SendControl enqueues a control message with an empty payload.
func (d *Dispatcher) SendControl(ctx context.Context, kind Kind) error {
	if err := d.queue.Enqueue(ctx, &Message{Kind: kind}); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", kind, err)
	}
	d.log.Info("Sent control message", "kind", kind)
	return nil
}
