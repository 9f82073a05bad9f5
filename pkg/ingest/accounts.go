package ingest

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// account credits a migrated account, merging with any balance the account
// already has on the destination.
func (in *Ingestor) account(_ context.Context, raw []byte, batch database.Batch) error {
	acc, err := records.Decode[records.Account](raw)
	if err != nil {
		return err
	}
	in.translate(acc)

	existing, err := load[records.Account](in.env.Store, acc.Key())
	if err != nil {
		return err
	}
	if existing != nil {
		in.env.Log.Info("Merging with existing destination account", "who", acc.Who)
		existing.Merge(acc)
		acc = existing
	}
	return put(batch, acc)
}

// unreserve releases a deposit held by who. It returns the part that was not reserved.
func (in *Ingestor) unreserve(who account.ID, amount *uint256.Int, batch database.Batch) (*uint256.Int, error) {
	acc, err := load[records.Account](in.env.Store, records.AccountKey(who))
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return amount.Clone(), nil
	}
	missing := acc.Unreserve(amount)
	if err := put(batch, acc); err != nil {
		return nil, fmt.Errorf("failed to store account: %w", err)
	}
	return missing, nil
}

// multisig releases the deposit of a pending multisig on its creator. The
// multisig itself is not recreated.
func (in *Ingestor) multisig(_ context.Context, raw []byte, batch database.Batch) error {
	m, err := records.Decode[records.Multisig](raw)
	if err != nil {
		return err
	}
	source := m.Creator
	in.translate(m)

	missing, err := in.unreserve(m.Creator, m.Deposit, batch)
	if err != nil {
		return err
	}
	if !missing.IsZero() {
		if !in.knownBadMultisig(source) {
			in.env.Log.Warn("Failed to unreserve multisig deposit", "creator", m.Creator, "missing", missing)
		}
		// the part that was reserved stays released
		return partialError{fmt.Errorf("%w: multisig of %s missing %s", ErrFailedToUnreserve, m.Creator, missing)}
	}
	return nil
}

func (in *Ingestor) knownBadMultisig(creator account.ID) bool {
	for _, bad := range in.env.Config.KnownBadMultisigs {
		if bad == creator {
			return true
		}
	}
	return false
}

// announcement releases the deposit held for proxy announcements.
func (in *Ingestor) announcement(_ context.Context, raw []byte, batch database.Batch) error {
	a, err := records.Decode[records.Announcement](raw)
	if err != nil {
		return err
	}
	in.translate(a)

	missing, err := in.unreserve(a.Depositor, a.Deposit, batch)
	if err != nil {
		return err
	}
	if !missing.IsZero() {
		in.env.Log.Warn("Could not unreserve full proxy announcement deposit", "depositor", a.Depositor, "missing", missing)
	}
	return nil
}
