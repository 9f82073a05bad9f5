package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/stage"
)

// Pair steps both controllers once per block, source first.
type Pair struct {
	Log         log.Logger
	Source      *Source
	Destination *Destination
}

// Done reports whether both chains finished the migration.
func (p *Pair) Done() bool {
	return p.Source.Stage() == stage.MigrationDone && p.Destination.Stage() == stage.DestinationDone
}

// SourceStage returns the stage of the source controller.
func (p *Pair) SourceStage() stage.Stage { return p.Source.Stage() }

// DestinationStage returns the stage of the destination controller.
func (p *Pair) DestinationStage() stage.DestinationStage { return p.Destination.Stage() }

// Block advances both chains by one block. Out of weight is logged by the
// controllers and retried on the next block.
func (p *Pair) Block(ctx context.Context) (SourceStep, Drain, error) {
	step, err := p.Source.OnBlock(ctx)
	if err != nil && !errors.Is(err, core.ErrOutOfWeight) {
		return step, Drain{}, fmt.Errorf("source: %w", err)
	}
	drain, err := p.Destination.OnBlock(ctx)
	if err != nil && !errors.Is(err, core.ErrOutOfWeight) {
		return step, drain, fmt.Errorf("destination: %w", err)
	}
	return step, drain, nil
}

// Run advances both chains until they are done or maxBlocks blocks passed.
// It returns the number of blocks run.
func (p *Pair) Run(ctx context.Context, maxBlocks int) (int, error) {
	for n := 0; n < maxBlocks; n++ {
		if p.Done() {
			return n, nil
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		step, drain, err := p.Block(ctx)
		if err != nil {
			return n + 1, err
		}
		if step.Halted && drain.Messages == 0 {
			p.Log.Info("Migration halted", "block", n, "stage", step.Stage)
			return n + 1, core.ErrHalted
		}
		if drain.Messages > 0 {
			p.Log.Info("Block processed", "block", n, "stage", step.Stage, "messages", drain.Messages, "good", drain.Good, "bad", drain.Bad)
		}
	}
	if p.Done() {
		return maxBlocks, nil
	}
	return maxBlocks, fmt.Errorf("migration not done after %d blocks (source %s, destination %s)",
		maxBlocks, p.Source.Stage(), p.Destination.Stage())
}
