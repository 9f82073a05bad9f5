// Package controller drives both ends of the migration one block at a time.
// The source controller owns the migration stage and cursor; the destination
// controller drains the inbound channel into the ingestion handlers.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/migration"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

var stateKey = records.MetaKey("state")

// SourceConfig wires a source controller.
type SourceConfig struct {
	Log   log.Logger
	Store database.Store
	// Registry holds the extractor of every domain.
	Registry migration.Registry
	// Outbox sends control messages to the destination. Batches are sent by
	// the migrators through the same dispatcher.
	Outbox *xcm.Dispatcher
	// Inbox receives acknowledgements from the destination.
	Inbox   xcm.Queue
	Metrics *metrics.Metrics
	// BlockWeight is the budget of one OnBlock call.
	BlockWeight weight.Weight
}

// Source is the source chain controller.
type Source struct {
	cfg   SourceConfig
	state stage.State
}

// SourceStep reports what one block did.
type SourceStep struct {
	Stage    stage.Stage
	Consumed weight.Weight
	// Halted is set when the block was skipped because of an operator halt.
	Halted bool
}

// NewSource loads the persisted state and returns a controller.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Store == nil || cfg.Outbox == nil || cfg.Inbox == nil {
		return nil, core.ErrInvalidConfig("source controller needs a store, an outbox and an inbox")
	}
	state, err := LoadState(cfg.Store)
	if err != nil {
		return nil, err
	}
	cfg.Metrics.SourceStage(uint8(state.Stage))
	return &Source{cfg: cfg, state: state}, nil
}

// LoadState reads the persisted source state. A missing state is Pending.
func LoadState(store database.Reader) (stage.State, error) {
	raw, err := store.Get(stateKey)
	if errors.Is(err, core.ErrNotFound) {
		return stage.State{}, nil
	}
	if err != nil {
		return stage.State{}, fmt.Errorf("failed to read migration state: %w", err)
	}
	var s stage.State
	if err := rlp.DecodeBytes(raw, &s); err != nil {
		return stage.State{}, fmt.Errorf("%w: migration state: %v", core.ErrDecode, err)
	}
	if len(s.Cursor) == 0 {
		s.Cursor = nil
	}
	return s, nil
}

// State returns a copy of the current state.
func (s *Source) State() stage.State {
	out := s.state
	out.Cursor = bytes.Clone(s.state.Cursor)
	return out
}

// Stage returns the current stage.
func (s *Source) Stage() stage.Stage { return s.state.Stage }

func (s *Source) apply(ev stage.Event) error {
	next, err := stage.Transition(s.state, ev)
	if err != nil {
		return err
	}
	enc, err := rlp.EncodeToBytes(&next)
	if err != nil {
		return fmt.Errorf("failed to encode migration state: %w", err)
	}
	if err := s.cfg.Store.Put(stateKey, enc); err != nil {
		return fmt.Errorf("failed to persist migration state: %w", err)
	}
	if next.Stage != s.state.Stage {
		s.cfg.Log.Info("Migration stage changed", "from", s.state.Stage, "to", next.Stage, "halted", next.Halted)
		s.cfg.Metrics.SourceStage(uint8(next.Stage))
	}
	s.state = next
	return nil
}

// Start asks the destination to prepare and waits for its acknowledgement.
func (s *Source) Start(ctx context.Context) error {
	if s.state.Stage != stage.Pending {
		return fmt.Errorf("%w: migration already started (%s)", core.ErrInvalidTransition, s.state.Stage)
	}
	if err := s.cfg.Outbox.SendControl(ctx, xcm.StartDataMigration); err != nil {
		return err
	}
	return s.apply(stage.Event{Kind: stage.EventStart})
}

// Halt pauses the migration. While a domain is migrating the halt takes
// effect when the domain is exhausted.
func (s *Source) Halt() error {
	if err := s.apply(stage.Event{Kind: stage.EventHalt}); err != nil {
		return err
	}
	if s.state.HaltRequested {
		s.cfg.Log.Info("Halt requested, waiting for the domain boundary", "stage", s.state.Stage)
	} else {
		s.cfg.Log.Info("Migration halted", "stage", s.state.Stage)
	}
	return nil
}

// Resume clears a halt or a pending halt request.
func (s *Source) Resume() error {
	return s.apply(stage.Event{Kind: stage.EventResume})
}

// Force moves the migration to target, dropping the cursor.
func (s *Source) Force(target stage.Stage) error {
	s.cfg.Log.Warn("Forcing migration stage", "from", s.state.Stage, "to", target)
	return s.apply(stage.Event{Kind: stage.EventForce, Target: target})
}

// OnBlock performs the work of one block.
func (s *Source) OnBlock(ctx context.Context) (SourceStep, error) {
	step := SourceStep{Stage: s.state.Stage}
	if s.state.Halted {
		step.Halted = true
		return step, nil
	}

	switch st := s.state.Stage; {
	case st == stage.WaitingForDestination:
		return step, s.pollAck(ctx)
	case st.Migrating():
		meter := weight.NewMeter(s.cfg.BlockWeight)
		err := s.migrate(ctx, meter)
		step.Consumed = meter.Consumed()
		return step, err
	case st == stage.SignalMigrationFinish:
		if err := s.cfg.Outbox.SendControl(ctx, xcm.FinishMigration); err != nil {
			return step, err
		}
		return step, s.apply(stage.Event{Kind: stage.EventFinishSent})
	}
	return step, nil
}

func (s *Source) pollAck(ctx context.Context) error {
	for {
		msg, err := s.cfg.Inbox.Peek(ctx)
		if err != nil {
			return fmt.Errorf("failed to read inbox: %w", err)
		}
		if msg == nil {
			return nil
		}
		if err := s.cfg.Inbox.Pop(ctx); err != nil {
			return fmt.Errorf("failed to pop inbox: %w", err)
		}
		if msg.Kind != xcm.AckDataMigrationStarted {
			s.cfg.Log.Warn("Ignoring unexpected message from destination", "kind", msg.Kind)
			continue
		}
		s.cfg.Log.Info("Destination ready for data migration")
		return s.apply(stage.Event{Kind: stage.EventDestinationReady})
	}
}

func (s *Source) migrate(ctx context.Context, meter *weight.Meter) error {
	domain, _ := s.state.Stage.Domain()
	m, err := s.cfg.Registry.Get(domain)
	if err != nil {
		return err
	}

	next, err := m.MigrateMany(ctx, s.state.Cursor, meter)
	if errors.Is(err, core.ErrOutOfWeight) {
		s.cfg.Log.Warn("Out of weight", "domain", domain, "limit", meter.Limit())
		s.cfg.Metrics.OutOfWeight(core.Source.String())
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", domain, err)
	}

	if next == nil {
		s.cfg.Log.Info("Domain exhausted", "domain", domain)
		return s.apply(stage.Event{Kind: stage.EventExhausted})
	}
	return s.apply(stage.Event{Kind: stage.EventProgress, Cursor: next})
}
