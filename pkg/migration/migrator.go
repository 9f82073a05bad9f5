// Package migration extracts state from the source chain one weight-bounded
// page at a time and hands it to the outbound channel.
package migration

import (
	"bytes"
	"context"
	"fmt"

	"github.com/luxfi/log"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
	"github.com/luxfi/migrator/pkg/xcm"
)

// Migrator extracts one domain.
type Migrator interface {
	// Domain returns the domain this migrator extracts.
	Domain() stage.Domain
	// MigrateMany moves records after last (nil for the start) until the
	// meter or a per-block limit is exhausted. It returns the cursor to
	// resume from, or nil once the domain is empty. core.ErrOutOfWeight is
	// returned when not a single record could be moved.
	MigrateMany(ctx context.Context, last []byte, meter *weight.Meter) ([]byte, error)
}

// Config holds the per-block limits shared by all migrators.
type Config struct {
	DbWeight weight.DbWeight
	// MaxDestinationWeight bounds the destination cost of one call.
	MaxDestinationWeight weight.Weight
	MaxItems             int
	MaxMessages          int
	MaxMessageSize       int
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		DbWeight:             weight.DefaultDbWeight,
		MaxDestinationWeight: weight.New(1_000_000_000_000, 5*1024*1024),
		MaxItems:             xcm.DefaultMaxItems,
		MaxMessages:          xcm.DefaultMaxMessages,
		MaxMessageSize:       xcm.DefaultMaxSize,
	}
}

// Deps are the collaborators of every migrator.
type Deps struct {
	Log        log.Logger
	Source     database.Store
	Dispatcher *xcm.Dispatcher
	Metrics    *metrics.Metrics
	Config     Config
}

// Registry maps every domain to its migrator.
type Registry map[stage.Domain]Migrator

// NewRegistry builds the migrators of every domain.
func NewRegistry(d Deps) Registry {
	r := Registry{}
	for _, m := range []Migrator{
		NewAccounts(d),
		NewMultisigs(d),
		NewProxies(d),
		NewProxyAnnouncements(d),
		NewPreimageChunks(d),
		NewPreimageRequestStatus(d),
		NewPreimageLegacyStatus(d),
		NewReferenda(d),
		NewIndices(d),
		NewVesting(d),
		NewRecovery(d),
		NewFastUnstake(d),
		NewNomPools(d),
		NewScheduler(d),
		NewConvictionVoting(d),
		NewBounties(d),
		NewTreasury(d),
		NewStaking(d),
	} {
		r[m.Domain()] = m
	}
	return r
}

// Get returns the migrator of d.
func (r Registry) Get(d stage.Domain) (Migrator, error) {
	m, ok := r[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDomain, d)
	}
	return m, nil
}

// after returns the smallest key sorting after k.
func after(k []byte) []byte {
	out := make([]byte, len(k)+1)
	copy(out, k)
	return out
}

func outOfWeight(d stage.Domain) error {
	return fmt.Errorf("%w: %s made no progress", core.ErrOutOfWeight, d)
}

func cloned(b []byte) []byte { return bytes.Clone(b) }
