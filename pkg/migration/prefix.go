package migration

import (
	"context"
	"fmt"

	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

// ExtractFunc turns a stored value into the record sent to the destination.
// keep == false deletes the record without sending it.
type ExtractFunc func(key, value []byte) (rec records.Record, keep bool, err error)

// PrefixMigrator migrates every key under a storage prefix in key order.
type PrefixMigrator struct {
	Deps
	domain  stage.Domain
	prefix  []byte
	extract ExtractFunc
}

// NewPrefixMigrator creates a migrator for keys under prefix.
func NewPrefixMigrator(d Deps, domain stage.Domain, prefix []byte, extract ExtractFunc) *PrefixMigrator {
	return &PrefixMigrator{Deps: d, domain: domain, prefix: prefix, extract: extract}
}

// Decoder returns an ExtractFunc that decodes values as T and keeps all of them.
func Decoder[T any, PT interface {
	*T
	records.Record
}]() ExtractFunc {
	return func(_, value []byte) (records.Record, bool, error) {
		v, err := records.Decode[T](value)
		if err != nil {
			return nil, false, err
		}
		return PT(v), true, nil
	}
}

func (m *PrefixMigrator) Domain() stage.Domain { return m.domain }

func (m *PrefixMigrator) MigrateMany(ctx context.Context, last []byte, meter *weight.Meter) ([]byte, error) {
	var start []byte
	if last != nil {
		start = after(last)
	}

	kind := xcm.KindOf(m.domain)
	itemCost := xcm.ItemWeight(kind, m.Config.DbWeight)
	readWrite := m.Config.DbWeight.ReadsWrites(1, 1)
	destMeter := weight.NewMeter(m.Config.MaxDestinationWeight)
	chunker := xcm.NewChunker(m.Config.MaxMessageSize)
	batch := m.Source.NewBatch()
	defer batch.Close()

	var (
		cursor    []byte
		processed int
		sent      int
		dropped   int
		exhausted = true
	)

	it := m.Source.NewIterator(m.prefix, start)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			it.Release()
			return last, err
		}
		if processed >= m.Config.MaxItems || !meter.CanConsume(readWrite) {
			exhausted = false
			break
		}
		key, value := cloned(it.Key()), cloned(it.Value())

		rec, keep, err := m.extract(key, value)
		if err != nil {
			// left in place for the operator, the post check reports it
			m.Log.Error("Skipping undecodable record", "domain", m.domain, "key", fmt.Sprintf("%x", key), "error", err)
			m.Metrics.Skipped(m.domain.String())
			meter.TryConsume(m.Config.DbWeight.Reads(1))
			cursor = key
			processed++
			continue
		}

		if keep {
			enc, err := records.Encode(rec)
			if err != nil {
				it.Release()
				return last, fmt.Errorf("failed to encode %s record: %w", m.domain, err)
			}
			if !destMeter.CanConsume(itemCost) || !chunker.Fits(len(enc), m.Config.MaxMessages) {
				exhausted = false
				break
			}
			if err := chunker.Add(enc); err != nil {
				it.Release()
				return last, fmt.Errorf("failed to add %s record: %w", m.domain, err)
			}
			destMeter.TryConsume(itemCost)
			sent++
		} else {
			dropped++
		}

		meter.TryConsume(readWrite)
		if err := batch.Delete(key); err != nil {
			it.Release()
			return last, err
		}
		cursor = key
		processed++
	}
	iterErr := it.Error()
	it.Release()
	if iterErr != nil {
		return last, fmt.Errorf("failed to iterate %s: %w", m.domain, iterErr)
	}

	if processed == 0 {
		if exhausted {
			return nil, nil
		}
		return last, outOfWeight(m.domain)
	}

	payloads, err := chunker.Payloads()
	if err != nil {
		return last, err
	}
	if len(payloads) > 0 {
		if err := m.Dispatcher.StagePayloads(ctx, batch, kind, payloads); err != nil {
			return last, fmt.Errorf("failed to dispatch %s: %w", m.domain, err)
		}
	}
	// removal and hand-off commit together
	if err := batch.Write(); err != nil {
		return last, fmt.Errorf("failed to hand off migrated %s records: %w", m.domain, err)
	}

	m.Metrics.Extracted(m.domain.String(), sent)
	m.Metrics.Dropped(m.domain.String(), dropped)
	m.Metrics.MessagesSent(kind.String(), len(payloads))
	m.Log.Info("Migrated records", "domain", m.domain, "sent", sent, "dropped", dropped, "messages", len(payloads), "exhausted", exhausted)

	if exhausted {
		return nil, nil
	}
	return cursor, nil
}

var _ Migrator = (*PrefixMigrator)(nil)
