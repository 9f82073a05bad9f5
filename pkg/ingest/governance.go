package ingest

import (
	"context"
	"fmt"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// legacyStatus releases the deposit of a deprecated preimage status. Neither
// the status nor its preimage is recreated.
func (in *Ingestor) legacyStatus(_ context.Context, raw []byte, batch database.Batch) error {
	s, err := records.Decode[records.LegacyStatus](raw)
	if err != nil {
		return err
	}
	in.translate(s)

	missing, err := in.unreserve(s.Depositor, s.Deposit, batch)
	if err != nil {
		return err
	}
	if !missing.IsZero() {
		in.env.Log.Warn("Failed to unreserve legacy preimage deposit", "hash", s.Hash, "depositor", s.Depositor, "missing", missing)
		return partialError{fmt.Errorf("%w: preimage %s of %s missing %s", ErrFailedToUnreserve, s.Hash, s.Depositor, missing)}
	}
	return nil
}

// scheduler stores a scheduler record. Tasks dispatched from origins that
// do not exist on the destination are dropped; an agenda left empty is not
// stored.
func (in *Ingestor) scheduler(_ context.Context, raw []byte, batch database.Batch) error {
	e, err := records.Decode[records.SchedulerEntry](raw)
	if err != nil {
		return err
	}
	in.translate(e)

	switch {
	case e.Agenda != nil:
		for _, t := range in.conv.Agenda(e.Agenda) {
			in.env.Log.Warn("Dropping scheduled task with unsupported origin", "block", e.Agenda.Block, "call", t.CallHash, "origin", t.Origin)
		}
		if len(e.Agenda.Tasks) == 0 {
			return nil
		}
		for _, t := range e.Agenda.Tasks {
			ok, err := in.hasPreimage(t.CallHash, t.CallLen)
			if err != nil {
				return err
			}
			if !ok {
				in.env.Log.Warn("Scheduled call preimage missing", "block", e.Agenda.Block, "call", t.CallHash)
			}
		}
		return in.putNew(e.Agenda, batch)
	case e.Lookup != nil:
		return in.putNew(e.Lookup, batch)
	case e.Retry != nil:
		return in.putNew(e.Retry, batch)
	case e.Incomplete != nil:
		return put(batch, e.Incomplete)
	}
	return fmt.Errorf("%w: empty scheduler entry", core.ErrDecode)
}

// convictionVoting stores votes, delegations and class locks.
func (in *Ingestor) convictionVoting(_ context.Context, raw []byte, batch database.Batch) error {
	e, err := records.Decode[records.VotingEntry](raw)
	if err != nil {
		return err
	}
	in.translate(e)

	switch {
	case e.Voting != nil:
		return in.putNew(e.Voting, batch)
	case e.Locks != nil:
		return in.putNew(e.Locks, batch)
	}
	return fmt.Errorf("%w: empty conviction voting entry", core.ErrDecode)
}
