package migration

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

// MaxPreimageSize is the largest preimage accepted by the destination.
const MaxPreimageSize = 4 * 1024 * 1024

// PreimageChunks sends preimages in slices that each fit one message. A
// preimage is removed from the source once its last slice has been sent.
// Preimages without a request status are legacy leftovers and are removed
// without being sent.
type PreimageChunks struct {
	Deps
}

// NewPreimageChunks creates the preimage chunk migrator.
func NewPreimageChunks(d Deps) *PreimageChunks {
	return &PreimageChunks{Deps: d}
}

func (m *PreimageChunks) Domain() stage.Domain { return stage.PreimageChunks }

// the cursor is the preimage key followed by the next offset
func encodeChunkCursor(key []byte, offset uint32) []byte {
	return binary.BigEndian.AppendUint32(cloned(key), offset)
}

func decodeChunkCursor(c []byte) (key []byte, offset uint32, err error) {
	if len(c) < len(records.PreimagePrefix)+4 {
		return nil, 0, fmt.Errorf("%w: preimage cursor of %d bytes", core.ErrDecode, len(c))
	}
	n := len(c) - 4
	return cloned(c[:n]), binary.BigEndian.Uint32(c[n:]), nil
}

func (m *PreimageChunks) MigrateMany(ctx context.Context, last []byte, meter *weight.Meter) ([]byte, error) {
	start := records.PreimagePrefix
	var (
		resume []byte
		offset uint32
	)
	if last != nil {
		key, off, err := decodeChunkCursor(last)
		if err != nil {
			return last, err
		}
		start, resume, offset = key, key, off
	}

	chunkSize := xcm.ChunkSize(m.Config.MaxMessageSize)
	itemCost := xcm.ItemWeight(xcm.ReceivePreimageChunks, m.Config.DbWeight)
	destMeter := weight.NewMeter(m.Config.MaxDestinationWeight)
	batch := m.Source.NewBatch()
	defer batch.Close()

	var (
		payloads  [][]byte
		cursor    []byte
		progress  bool
		exhausted bool
		chunks    int
	)

	for len(payloads) < m.Config.MaxMessages {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if !meter.CanConsume(m.Config.DbWeight.Reads(2)) {
			break
		}
		key, value, ok, err := m.first(start)
		if err != nil {
			return last, err
		}
		if !ok {
			exhausted = true
			break
		}
		hash, length, valid := records.ParsePreimageKey(key)
		if !valid || int(length) != len(value) || length > MaxPreimageSize {
			m.Log.Error("Skipping malformed preimage", "key", fmt.Sprintf("%x", key), "len", len(value))
			m.Metrics.Skipped(m.Domain().String())
			meter.TryConsume(m.Config.DbWeight.Reads(1))
			start, offset = after(key), 0
			cursor = encodeChunkCursor(key, uint32(len(value)))
			progress = true
			continue
		}
		if !bytes.Equal(key, resume) || offset > length {
			offset = 0
		}

		legacy, err := m.isLegacy(hash)
		if err != nil {
			return last, err
		}
		if legacy {
			if !meter.CanConsume(m.Config.DbWeight.ReadsWrites(2, 1)) {
				break
			}
			meter.TryConsume(m.Config.DbWeight.ReadsWrites(2, 1))
			if err := batch.Delete(key); err != nil {
				return last, err
			}
			m.Log.Info("Dropping legacy preimage", "hash", hash, "len", length)
			m.Metrics.Dropped(m.Domain().String(), 1)
			start, offset = after(key), 0
			cursor = encodeChunkCursor(key, length)
			progress = true
			continue
		}

		if !meter.CanConsume(m.Config.DbWeight.ReadsWrites(2, 1)) || !destMeter.CanConsume(itemCost) {
			break
		}
		end := offset + uint32(chunkSize)
		if end > length {
			end = length
		}
		payload, err := rlp.EncodeToBytes([]*records.PreimageChunk{{
			Hash:   hash,
			Len:    length,
			Offset: offset,
			Data:   value[offset:end],
		}})
		if err != nil {
			return last, fmt.Errorf("failed to encode preimage chunk: %w", err)
		}
		meter.TryConsume(m.Config.DbWeight.ReadsWrites(2, 1))
		destMeter.TryConsume(itemCost)
		payloads = append(payloads, payload)
		chunks++
		progress = true

		if end == length {
			if err := batch.Delete(key); err != nil {
				return last, err
			}
			start, resume, offset = after(key), nil, 0
			cursor = encodeChunkCursor(key, length)
		} else {
			start, resume, offset = key, key, end
			cursor = encodeChunkCursor(key, end)
		}
	}

	if !progress {
		if exhausted {
			return nil, nil
		}
		return last, outOfWeight(m.Domain())
	}

	if len(payloads) > 0 {
		if err := m.Dispatcher.StagePayloads(ctx, batch, xcm.ReceivePreimageChunks, payloads); err != nil {
			return last, fmt.Errorf("failed to dispatch preimage chunks: %w", err)
		}
	}
	if err := batch.Write(); err != nil {
		return last, fmt.Errorf("failed to hand off preimage chunks: %w", err)
	}
	m.Metrics.Extracted(m.Domain().String(), chunks)
	m.Metrics.MessagesSent(xcm.ReceivePreimageChunks.String(), len(payloads))
	m.Log.Info("Migrated preimage chunks", "chunks", chunks, "exhausted", exhausted)

	if exhausted {
		return nil, nil
	}
	return cursor, nil
}

// first returns the first preimage at or after start.
func (m *PreimageChunks) first(start []byte) (key, value []byte, ok bool, err error) {
	it := m.Source.NewIterator(records.PreimagePrefix, start)
	defer it.Release()
	if !it.Next() {
		return nil, nil, false, it.Error()
	}
	return cloned(it.Key()), cloned(it.Value()), true, nil
}

func (m *PreimageChunks) isLegacy(hash common.Hash) (bool, error) {
	ok, err := m.Source.Has(records.RequestStatusKey(hash))
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return false, err
	}
	return !ok, nil
}
