// Package ingest applies migration batches on the destination chain. Every
// item is applied in its own atomic unit; a failing item is counted and
// logged and never aborts the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/xcm"
)

var (
	// ErrFailedToUnreserve is returned when a deposit is not held by its owner.
	ErrFailedToUnreserve = errors.New("failed to unreserve deposit")
	// ErrPreimageHashMismatch is returned when a completed preimage does not hash to its key.
	ErrPreimageHashMismatch = errors.New("preimage hash mismatch")
	// ErrPreimageTooBig is returned when chunks grow a preimage beyond its declared length.
	ErrPreimageTooBig = errors.New("preimage too big")
)

// Config holds the destination-side limits.
type Config struct {
	MaxProxies          int
	MaxVestingSchedules int
	// BlockRatio is the number of source blocks per destination block.
	BlockRatio uint64
	// KnownBadMultisigs are creators whose deposits are known to be missing.
	KnownBadMultisigs []account.ID
}

// DefaultConfig returns the destination limits of the reference runtime.
func DefaultConfig() Config {
	return Config{
		MaxProxies:          32,
		MaxVestingSchedules: 28,
		BlockRatio:          2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxProxies <= 0 {
		c.MaxProxies = def.MaxProxies
	}
	if c.MaxVestingSchedules <= 0 {
		c.MaxVestingSchedules = def.MaxVestingSchedules
	}
	if c.BlockRatio == 0 {
		c.BlockRatio = def.BlockRatio
	}
	return c
}

// Clock reports the current block of each chain as seen by the destination.
type Clock interface {
	SourceNow() uint64
	DestinationNow() uint64
}

// Env are the collaborators shared by every handler.
type Env struct {
	Log        log.Logger
	Store      database.Store
	Translator *account.Translator
	Clock      Clock
	Events     EventSink
	Metrics    *metrics.Metrics
	Config     Config
}

// ItemFunc applies one encoded record, staging its writes in batch.
type ItemFunc func(ctx context.Context, raw []byte, batch database.Batch) error

// Result summarizes one batch.
type Result struct {
	Domain stage.Domain
	Count  int
	Good   int
	Bad    int
}

// Ingestor routes batches to the handler of their kind.
type Ingestor struct {
	env      Env
	conv     Converter
	handlers map[xcm.Kind]ItemFunc
}

// New creates an ingestor with a handler for every domain
func New(env Env) *Ingestor {
	if env.Events == nil {
		env.Events = Discard{}
	}
	if env.Clock == nil {
		env.Clock = FixedClock{}
	}
	env.Config = env.Config.withDefaults()
	in := &Ingestor{env: env, conv: NewConverter(env.Config, env.Clock)}
	in.handlers = map[xcm.Kind]ItemFunc{
		xcm.ReceiveAccounts:              in.account,
		xcm.ReceiveMultisigs:             in.multisig,
		xcm.ReceiveProxies:               in.proxies,
		xcm.ReceiveProxyAnnouncements:    in.announcement,
		xcm.ReceivePreimageChunks:        in.preimageChunk,
		xcm.ReceivePreimageRequestStatus: in.requestStatus,
		xcm.ReceivePreimageLegacyStatus:  in.legacyStatus,
		xcm.ReceiveReferenda:             in.referendum,
		xcm.ReceiveIndices:               insert[records.Index](in),
		xcm.ReceiveVesting:               in.vesting,
		xcm.ReceiveRecovery:              insert[records.RecoveryConfig](in),
		xcm.ReceiveFastUnstake:           insert[records.FastUnstake](in),
		xcm.ReceiveNomPools:              in.nomPools,
		xcm.ReceiveScheduler:             in.scheduler,
		xcm.ReceiveConvictionVoting:      in.convictionVoting,
		xcm.ReceiveBounties:              in.bounties,
		xcm.ReceiveTreasury:              in.treasury,
		xcm.ReceiveStaking:               insert[records.StakingLedger](in),
	}
	return in
}

// Receive applies a batch message. Per-item failures are reflected in the
// result; an error is only returned for messages that are not batches.
func (in *Ingestor) Receive(ctx context.Context, msg *xcm.Message) (Result, error) {
	domain, ok := msg.Kind.Domain()
	handler, found := in.handlers[msg.Kind]
	if !ok || !found {
		return Result{}, fmt.Errorf("%w: %s", core.ErrUnknownDomain, msg.Kind)
	}
	res := Result{Domain: domain}

	items, err := msg.Items()
	if err != nil {
		in.env.Log.Error("Failed to decode batch", "domain", domain, "error", err)
		res.Bad = 1
		in.env.Events.Emit(Event{Kind: BatchReceived, Domain: domain})
		in.finish(res)
		return res, nil
	}

	res.Count = len(items)
	in.env.Events.Emit(Event{Kind: BatchReceived, Domain: domain, Count: res.Count})
	in.env.Log.Info("Integrating batch", "domain", domain, "count", res.Count)

	for i, raw := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := in.apply(ctx, handler, raw); err != nil {
			res.Bad++
			in.env.Log.Error("Failed to integrate item", "domain", domain, "index", i, "error", err)
			continue
		}
		res.Good++
	}
	in.finish(res)
	return res, nil
}

// partialError fails an item but keeps the writes it staged.
type partialError struct{ error }

func (e partialError) Unwrap() error { return e.error }

func (in *Ingestor) apply(ctx context.Context, handler ItemFunc, raw rlp.RawValue) error {
	batch := in.env.Store.NewBatch()
	defer batch.Close()
	err := handler(ctx, raw, batch)
	var partial partialError
	if err != nil && !errors.As(err, &partial) {
		return err
	}
	if batch.Len() > 0 {
		if werr := batch.Write(); werr != nil {
			return fmt.Errorf("failed to commit item: %w", werr)
		}
	}
	return err
}

func (in *Ingestor) finish(res Result) {
	in.env.Events.Emit(Event{Kind: BatchProcessed, Domain: res.Domain, Count: res.Count, CountGood: res.Good, CountBad: res.Bad})
	in.env.Metrics.Ingested(res.Domain.String(), res.Good, res.Bad)
}

func (in *Ingestor) translate(r records.Record) {
	r.Translate(in.env.Translator.Translate)
}

// insert decodes T, translates it and stores it if its key is free.
func insert[T any, PT interface {
	*T
	records.Record
}](in *Ingestor) ItemFunc {
	return func(_ context.Context, raw []byte, batch database.Batch) error {
		v, err := records.Decode[T](raw)
		if err != nil {
			return err
		}
		rec := PT(v)
		in.translate(rec)
		return in.putNew(rec, batch)
	}
}

// putNew stores rec unless its key is taken.
func (in *Ingestor) putNew(rec records.Record, batch database.Batch) error {
	key := rec.Key()
	exists, err := in.env.Store.Has(key)
	if err != nil {
		return err
	}
	if exists {
		core.Defensive(in.env.Log, "key already occupied on destination", "key", fmt.Sprintf("%x", key))
		return fmt.Errorf("%w: %x", core.ErrAlreadyExists, key)
	}
	return put(batch, rec)
}

func put(batch database.Batch, rec records.Record) error {
	enc, err := records.Encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return batch.Put(rec.Key(), enc)
}

// load reads and decodes a T, returning nil when absent.
func load[T any](store database.Reader, key []byte) (*T, error) {
	raw, err := store.Get(key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return records.Decode[T](raw)
}
