package migration

import (
	"bytes"
	"fmt"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
)

// NewAccounts migrates balances. Dead accounts are removed without being sent.
func NewAccounts(d Deps) *PrefixMigrator {
	decode := Decoder[records.Account]()
	return NewPrefixMigrator(d, stage.Accounts, records.AccountPrefix, func(key, value []byte) (records.Record, bool, error) {
		rec, _, err := decode(key, value)
		if err != nil {
			return nil, false, err
		}
		return rec, !rec.(*records.Account).IsDead(), nil
	})
}

// NewMultisigs migrates pending multisig deposits.
func NewMultisigs(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Multisigs, records.MultisigPrefix, Decoder[records.Multisig]())
}

// NewProxies migrates proxy definitions.
func NewProxies(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Proxies, records.ProxyPrefix, Decoder[records.Proxies]())
}

// NewProxyAnnouncements migrates announcement deposits.
func NewProxyAnnouncements(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.ProxyAnnouncements, records.AnnouncementPrefix, Decoder[records.Announcement]())
}

// NewPreimageRequestStatus migrates request statuses after their preimages.
func NewPreimageRequestStatus(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.PreimageRequestStatus, records.RequestStatusPrefix, Decoder[records.RequestStatus]())
}

// NewPreimageLegacyStatus migrates the deposits of deprecated preimage
// statuses.
func NewPreimageLegacyStatus(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.PreimageLegacyStatus, records.LegacyStatusPrefix, Decoder[records.LegacyStatus]())
}

// NewReferenda migrates referenda.
func NewReferenda(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Referenda, records.ReferendumPrefix, Decoder[records.Referendum]())
}

// NewIndices migrates account indices.
func NewIndices(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Indices, records.IndexPrefix, Decoder[records.Index]())
}

// NewVesting migrates vesting schedules.
func NewVesting(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Vesting, records.VestingPrefix, Decoder[records.Vesting]())
}

// NewRecovery migrates recovery configs.
func NewRecovery(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Recovery, records.RecoveryPrefix, Decoder[records.RecoveryConfig]())
}

// NewFastUnstake migrates the fast-unstake queue.
func NewFastUnstake(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.FastUnstake, records.FastUnstakePrefix, Decoder[records.FastUnstake]())
}

// NewNomPools migrates pool members and bonded pools.
func NewNomPools(d Deps) *PrefixMigrator {
	members, pools := Decoder[records.PoolMember](), Decoder[records.BondedPool]()
	return NewPrefixMigrator(d, stage.NomPools, records.NomPoolsPrefix, func(key, value []byte) (records.Record, bool, error) {
		if bytes.HasPrefix(key, records.PoolMemberPrefix) {
			rec, _, err := members(key, value)
			if err != nil {
				return nil, false, err
			}
			return &records.NomPoolsEntry{Member: rec.(*records.PoolMember)}, true, nil
		}
		rec, _, err := pools(key, value)
		if err != nil {
			return nil, false, err
		}
		return &records.NomPoolsEntry{Pool: rec.(*records.BondedPool)}, true, nil
	})
}

// NewScheduler migrates agendas, task lookups, retries and the incomplete
// marker.
func NewScheduler(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Scheduler, records.SchedulerPrefix, func(key, value []byte) (records.Record, bool, error) {
		e := new(records.SchedulerEntry)
		var err error
		switch {
		case bytes.HasPrefix(key, records.AgendaPrefix):
			e.Agenda, err = records.Decode[records.Agenda](value)
		case bytes.HasPrefix(key, records.LookupPrefix):
			e.Lookup, err = records.Decode[records.TaskLookup](value)
		case bytes.HasPrefix(key, records.RetryPrefix):
			e.Retry, err = records.Decode[records.TaskRetry](value)
		case bytes.Equal(key, records.IncompleteKey):
			e.Incomplete, err = records.Decode[records.IncompleteSince](value)
		default:
			return nil, false, unexpectedKey(stage.Scheduler, key)
		}
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	})
}

// NewConvictionVoting migrates votes, delegations and class locks.
func NewConvictionVoting(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.ConvictionVoting, records.VotingPrefix, func(key, value []byte) (records.Record, bool, error) {
		e := new(records.VotingEntry)
		var err error
		switch {
		case bytes.HasPrefix(key, records.VotingForPrefix):
			e.Voting, err = records.Decode[records.Voting](value)
		case bytes.HasPrefix(key, records.ClassLocksPrefix):
			e.Locks, err = records.Decode[records.ClassLocks](value)
		default:
			return nil, false, unexpectedKey(stage.ConvictionVoting, key)
		}
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	})
}

// NewBounties migrates bounties and the bounty counters.
func NewBounties(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Bounties, records.BountiesPrefix, func(key, value []byte) (records.Record, bool, error) {
		e := new(records.BountiesEntry)
		var err error
		switch {
		case bytes.HasPrefix(key, records.BountyPrefix):
			e.Bounty, err = records.Decode[records.Bounty](value)
		case bytes.Equal(key, records.BountiesMetaKey):
			e.Meta, err = records.Decode[records.BountiesMeta](value)
		default:
			return nil, false, unexpectedKey(stage.Bounties, key)
		}
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	})
}

// NewTreasury migrates proposals, spends and the treasury counters.
func NewTreasury(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Treasury, records.TreasuryPrefix, func(key, value []byte) (records.Record, bool, error) {
		e := new(records.TreasuryEntry)
		var err error
		switch {
		case bytes.HasPrefix(key, records.ProposalPrefix):
			e.Proposal, err = records.Decode[records.TreasuryProposal](value)
		case bytes.HasPrefix(key, records.SpendPrefix):
			e.Spend, err = records.Decode[records.Spend](value)
		case bytes.Equal(key, records.TreasuryMetaKey):
			e.Meta, err = records.Decode[records.TreasuryMeta](value)
		default:
			return nil, false, unexpectedKey(stage.Treasury, key)
		}
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	})
}

func unexpectedKey(d stage.Domain, key []byte) error {
	return fmt.Errorf("%w: unexpected %s key %x", core.ErrDecode, d, key)
}

// NewStaking migrates staking ledgers.
func NewStaking(d Deps) *PrefixMigrator {
	return NewPrefixMigrator(d, stage.Staking, records.StakingPrefix, Decoder[records.StakingLedger]())
}
