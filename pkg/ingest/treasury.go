package ingest

import (
	"context"
	"fmt"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// bounties stores a bounty or the bounty counters. Bonds and curator
// deposits stay reserved on the migrated accounts.
func (in *Ingestor) bounties(_ context.Context, raw []byte, batch database.Batch) error {
	e, err := records.Decode[records.BountiesEntry](raw)
	if err != nil {
		return err
	}
	in.translate(e)

	switch {
	case e.Bounty != nil:
		return in.putNew(e.Bounty, batch)
	case e.Meta != nil:
		return put(batch, e.Meta)
	}
	return fmt.Errorf("%w: empty bounties entry", core.ErrDecode)
}

// treasury stores a proposal, a spend or the treasury counters.
func (in *Ingestor) treasury(_ context.Context, raw []byte, batch database.Batch) error {
	e, err := records.Decode[records.TreasuryEntry](raw)
	if err != nil {
		return err
	}
	in.translate(e)

	switch {
	case e.Proposal != nil:
		return in.putNew(e.Proposal, batch)
	case e.Spend != nil:
		return in.putNew(e.Spend, batch)
	case e.Meta != nil:
		return put(batch, e.Meta)
	}
	return fmt.Errorf("%w: empty treasury entry", core.ErrDecode)
}
