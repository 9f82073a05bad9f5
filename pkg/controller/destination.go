package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/ingest"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

var destinationStageKey = records.MetaKey("destination_stage")

// Policy decides what happens to bad items when the source finishes.
type Policy string

const (
	// PolicyAccept reports bad items and finishes anyway.
	PolicyAccept Policy = "accept"
	// PolicyRepair refuses to finish until the bad items were repaired.
	PolicyRepair Policy = "repair"
)

// ParsePolicy parses a partial ingestion policy. The empty string is PolicyAccept.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAccept:
		return PolicyAccept, nil
	case PolicyRepair:
		return PolicyRepair, nil
	}
	return "", core.ErrInvalidConfigf("unknown partial ingestion policy %q", s)
}

// DestinationConfig wires a destination controller.
type DestinationConfig struct {
	Log log.Logger
	// Ingest configures the handlers. Store, Log and Metrics default to the
	// controller's own.
	Ingest ingest.Env
	Store  database.Store
	// Inbox receives batches and control messages from the source.
	Inbox xcm.Queue
	// Outbox sends acknowledgements to the source.
	Outbox      *xcm.Dispatcher
	Metrics     *metrics.Metrics
	DbWeight    weight.DbWeight
	BlockWeight weight.Weight
	Policy      Policy
}

// Destination is the destination chain controller.
type Destination struct {
	cfg      DestinationConfig
	ingestor *ingest.Ingestor
	recorder *ingest.Recorder
	stage    stage.DestinationStage
}

// Drain reports what one block did.
type Drain struct {
	Messages int
	Good     int
	Bad      int
	Consumed weight.Weight
	// Blocked is set when a FinishMigration is held back by PolicyRepair.
	Blocked bool
}

// NewDestination loads the persisted stage and returns a controller.
func NewDestination(cfg DestinationConfig) (*Destination, error) {
	if cfg.Store == nil || cfg.Inbox == nil || cfg.Outbox == nil {
		return nil, core.ErrInvalidConfig("destination controller needs a store, an inbox and an outbox")
	}
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	st, err := LoadDestinationStage(cfg.Store)
	if err != nil {
		return nil, err
	}

	rec := ingest.NewRecorder()
	env := cfg.Ingest
	env.Events = ingest.Tee(rec, env.Events)
	if env.Store == nil {
		env.Store = cfg.Store
	}
	if env.Log == nil {
		env.Log = cfg.Log
	}
	if env.Metrics == nil {
		env.Metrics = cfg.Metrics
	}

	cfg.Metrics.DestinationStage(uint8(st))
	return &Destination{cfg: cfg, ingestor: ingest.New(env), recorder: rec, stage: st}, nil
}

// LoadDestinationStage reads the persisted destination stage.
func LoadDestinationStage(store database.Reader) (stage.DestinationStage, error) {
	raw, err := store.Get(destinationStageKey)
	if errors.Is(err, core.ErrNotFound) {
		return stage.DestinationPending, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read destination stage: %w", err)
	}
	if len(raw) != 1 || stage.DestinationStage(raw[0]) > stage.DestinationDone {
		return 0, fmt.Errorf("%w: destination stage %x", core.ErrDecode, raw)
	}
	return stage.DestinationStage(raw[0]), nil
}

// Stage returns the current destination stage.
func (d *Destination) Stage() stage.DestinationStage { return d.stage }

// Events returns the recorded batch events.
func (d *Destination) Events() *ingest.Recorder { return d.recorder }

// Repaired clears the bad item counts so a held back FinishMigration can proceed.
func (d *Destination) Repaired() {
	d.cfg.Log.Info("Bad items marked as repaired", "bad", d.recorder.TotalBad())
	d.recorder.Reset()
}

func (d *Destination) setStage(to stage.DestinationStage) error {
	next, err := stage.TransitionDestination(d.stage, to)
	if err != nil {
		return err
	}
	if next == d.stage {
		return nil
	}
	if err := d.cfg.Store.Put(destinationStageKey, []byte{byte(next)}); err != nil {
		return fmt.Errorf("failed to persist destination stage: %w", err)
	}
	d.cfg.Log.Info("Destination stage changed", "from", d.stage, "to", next)
	d.cfg.Metrics.DestinationStage(uint8(next))
	d.stage = next
	return nil
}

// cost is the weight of applying msg. An undecodable batch costs one item.
func (d *Destination) cost(msg *xcm.Message) weight.Weight {
	if msg.Kind.IsControl() {
		return d.cfg.DbWeight.ReadsWrites(1, 1)
	}
	n, err := msg.Count()
	if err != nil || n == 0 {
		n = 1
	}
	return xcm.ItemWeight(msg.Kind, d.cfg.DbWeight).Mul(uint64(n))
}

// OnBlock drains the inbox in order until it is empty or the block budget
// is spent. A message that does not fit stays queued for the next block.
func (d *Destination) OnBlock(ctx context.Context) (out Drain, err error) {
	meter := weight.NewMeter(d.cfg.BlockWeight)
	defer func() { out.Consumed = meter.Consumed() }()

	for {
		msg, err := d.cfg.Inbox.Peek(ctx)
		if err != nil {
			return out, fmt.Errorf("failed to read inbox: %w", err)
		}
		if msg == nil {
			return out, nil
		}

		cost := d.cost(msg)
		if err := meter.TryConsume(cost); err != nil {
			if out.Messages > 0 {
				return out, nil
			}
			d.cfg.Log.Warn("Out of weight", "kind", msg.Kind, "cost", cost, "limit", meter.Limit())
			d.cfg.Metrics.OutOfWeight(core.Destination.String())
			return out, fmt.Errorf("%w: %s needs %s", err, msg.Kind, cost)
		}

		if msg.Kind.IsControl() {
			proceed, err := d.control(ctx, msg)
			if err != nil {
				return out, err
			}
			if !proceed {
				out.Blocked = true
				return out, nil
			}
		} else {
			if d.stage != stage.DataMigrationOngoing {
				core.Defensive(d.cfg.Log, "batch received outside of data migration", "kind", msg.Kind, "stage", d.stage)
			}
			res, err := d.ingestor.Receive(ctx, msg)
			if err != nil {
				return out, err
			}
			out.Good += res.Good
			out.Bad += res.Bad
		}

		if err := d.cfg.Inbox.Pop(ctx); err != nil {
			return out, fmt.Errorf("failed to pop inbox: %w", err)
		}
		out.Messages++
	}
}

// control applies a control message. It reports false when the message has
// to stay queued.
func (d *Destination) control(ctx context.Context, msg *xcm.Message) (bool, error) {
	switch msg.Kind {
	case xcm.StartDataMigration:
		if d.stage == stage.DestinationDone {
			d.cfg.Log.Warn("Ignoring start after the migration finished")
			return true, nil
		}
		if err := d.setStage(stage.DataMigrationOngoing); err != nil {
			return false, err
		}
		return true, d.cfg.Outbox.SendControl(ctx, xcm.AckDataMigrationStarted)

	case xcm.FinishMigration:
		if bad := d.recorder.TotalBad(); bad > 0 {
			if d.cfg.Policy == PolicyRepair {
				d.cfg.Log.Error("Refusing to finish migration with bad items", "bad", bad, "domains", d.recorder.Bad())
				return false, nil
			}
			d.cfg.Log.Warn("Finishing migration with bad items", "bad", bad, "domains", d.recorder.Bad())
		}
		return true, d.setStage(stage.DestinationDone)
	}

	d.cfg.Log.Warn("Ignoring unexpected control message", "kind", msg.Kind)
	return true, nil
}
