package xcm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luxfi/migrator/pkg/core"
)

const (
	// DefaultMaxSize is the largest encoded payload of one message.
	DefaultMaxSize = 50_000
	// DefaultMaxMessages is the number of messages sent per block.
	DefaultMaxMessages = 10
	// DefaultMaxItems is the number of records extracted per block.
	DefaultMaxItems = 10_000

	chunkMargin = 100
)

// ChunkSize is the preimage slice length that fits one message of maxSize.
func ChunkSize(maxSize int) int {
	return maxSize - chunkMargin
}

// Chunker accumulates encoded records into envelopes of bounded size.
type Chunker struct {
	maxSize  int
	current  []rlp.RawValue
	size     uint64
	payloads [][]byte
}

// NewChunker creates a chunker with the given payload bound.
func NewChunker(maxSize int) *Chunker {
	return &Chunker{maxSize: maxSize}
}

// Fits reports whether an item of n bytes can be added without opening more
// than limit envelopes in total.
func (c *Chunker) Fits(n int, limit int) bool {
	envelopes := len(c.payloads)
	if len(c.current) > 0 {
		envelopes++
	}
	if len(c.current) > 0 && rlp.ListSize(c.size+uint64(n)) <= uint64(c.maxSize) {
		return envelopes <= limit
	}
	return envelopes+1 <= limit
}

// Add appends an encoded record, sealing the current envelope when full.
func (c *Chunker) Add(item rlp.RawValue) error {
	n := uint64(len(item))
	if rlp.ListSize(n) > uint64(c.maxSize) {
		return fmt.Errorf("%w: record of %d bytes exceeds %d", core.ErrMessageTooLarge, n, c.maxSize)
	}
	if len(c.current) > 0 && rlp.ListSize(c.size+n) > uint64(c.maxSize) {
		if err := c.seal(); err != nil {
			return err
		}
	}
	c.current = append(c.current, item)
	c.size += n
	return nil
}

// Payloads seals the open envelope and returns all payloads in order.
func (c *Chunker) Payloads() ([][]byte, error) {
	if len(c.current) > 0 {
		if err := c.seal(); err != nil {
			return nil, err
		}
	}
	return c.payloads, nil
}

func (c *Chunker) seal() error {
	payload, err := rlp.EncodeToBytes(c.current)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	c.payloads = append(c.payloads, payload)
	c.current = nil
	c.size = 0
	return nil
}

// Chunk splits encoded records into payloads of at most maxSize bytes,
// preserving order.
func Chunk(items []rlp.RawValue, maxSize int) ([][]byte, error) {
	c := NewChunker(maxSize)
	for _, item := range items {
		if err := c.Add(item); err != nil {
			return nil, err
		}
	}
	return c.Payloads()
}
