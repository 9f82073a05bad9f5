// Package check verifies a migration from snapshots of both chains taken
// before and after it ran.
package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
)

const (
	PhasePre  = "pre"
	PhasePost = "post"
)

// SourceCheck observes the source chain. The payload of PreCheck is handed
// to PostCheck and to the destination check of the same domain.
type SourceCheck[P any] interface {
	PreCheck(ctx context.Context, src database.Reader) (P, error)
	PostCheck(ctx context.Context, src database.Reader, pre P) error
}

// DestinationCheck observes the destination chain given what the source
// check saw before the migration.
type DestinationCheck[S, P any] interface {
	PreCheck(ctx context.Context, dst database.Reader, src S) (P, error)
	PostCheck(ctx context.Context, dst database.Reader, src S, pre P) error
}

// Check is a type-erased pair of source and destination checks.
type Check interface {
	Name() string
	pre(ctx context.Context, src, dst database.Reader) (payload, error)
	post(ctx context.Context, src, dst database.Reader, p payload) error
}

type payload interface{}

type pair[S, P any] struct {
	name string
	src  SourceCheck[S]
	dst  DestinationCheck[S, P]
}

type pairPayload[S, P any] struct {
	src S
	dst P
}

// Domain combines the checks of one domain. Either side may be nil.
func Domain[S, P any](name string, src SourceCheck[S], dst DestinationCheck[S, P]) Check {
	return &pair[S, P]{name: name, src: src, dst: dst}
}

func (c *pair[S, P]) Name() string { return c.name }

func (c *pair[S, P]) pre(ctx context.Context, src, dst database.Reader) (payload, error) {
	var out pairPayload[S, P]
	var err error
	if c.src != nil {
		if out.src, err = c.src.PreCheck(ctx, src); err != nil {
			return nil, err
		}
	}
	if c.dst != nil {
		if out.dst, err = c.dst.PreCheck(ctx, dst, out.src); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *pair[S, P]) post(ctx context.Context, src, dst database.Reader, p payload) error {
	pp, ok := p.(pairPayload[S, P])
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	if c.src != nil {
		if err := c.src.PostCheck(ctx, src, pp.src); err != nil {
			return err
		}
	}
	if c.dst != nil {
		return c.dst.PostCheck(ctx, dst, pp.src, pp.dst)
	}
	return nil
}

// Runner runs checks in two phases against externally supplied snapshots.
type Runner struct {
	log      log.Logger
	checks   []Check
	payloads []payload
}

// NewRunner creates a runner for checks.
func NewRunner(logger log.Logger, checks ...Check) *Runner {
	return &Runner{log: logger, checks: checks}
}

// Checks returns the names of the registered checks.
func (r *Runner) Checks() []string {
	names := make([]string, len(r.checks))
	for i, c := range r.checks {
		names[i] = c.Name()
	}
	return names
}

// RunPre observes both chains before the migration.
func (r *Runner) RunPre(ctx context.Context, src, dst database.Reader) error {
	r.payloads = make([]payload, len(r.checks))
	for i, c := range r.checks {
		p, err := c.pre(ctx, src, dst)
		if err != nil {
			return asCheckError(c.Name(), PhasePre, err)
		}
		r.payloads[i] = p
		r.log.Info("Pre check passed", "check", c.Name())
	}
	return nil
}

// RunPost verifies both chains after the migration. The first failure aborts
// the run.
func (r *Runner) RunPost(ctx context.Context, src, dst database.Reader) error {
	if len(r.payloads) != len(r.checks) {
		return fmt.Errorf("post checks need a pre check run first")
	}
	for i, c := range r.checks {
		if err := c.post(ctx, src, dst, r.payloads[i]); err != nil {
			return asCheckError(c.Name(), PhasePost, err)
		}
		r.log.Info("Post check passed", "check", c.Name())
	}
	return nil
}

// Run runs both phases.
func (r *Runner) Run(ctx context.Context, srcBefore, dstBefore, srcAfter, dstAfter database.Reader) error {
	if err := r.RunPre(ctx, srcBefore, dstBefore); err != nil {
		return err
	}
	return r.RunPost(ctx, srcAfter, dstAfter)
}

func asCheckError(name, phase string, err error) error {
	var ce *core.CheckError
	if errors.As(err, &ce) {
		if ce.Check == "" {
			ce.Check = name
		}
		if ce.Phase == "" {
			ce.Phase = phase
		}
		return ce
	}
	return &core.CheckError{Check: name, Phase: phase, Msg: err.Error()}
}

func failf(format string, args ...interface{}) error {
	return core.ErrCheckf("", "", format, args...)
}
