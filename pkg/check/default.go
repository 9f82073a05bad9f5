package check

import (
	"bytes"

	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/ingest"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
)

type variant struct {
	prefix []byte
	decode DecodeFunc
}

// union decodes a value with the decoder of the first variant whose prefix
// matches the key.
func union(variants ...variant) DecodeFunc {
	return func(key, value []byte) (records.Record, error) {
		for _, v := range variants {
			if bytes.HasPrefix(key, v.prefix) {
				return v.decode(key, value)
			}
		}
		return nil, failf("unexpected key %x", key)
	}
}

// converters predicts what the destination stores for each record.
func converters(conv ingest.Converter) map[string]ConvertFunc {
	return map[string]ConvertFunc{
		"proxies": func(r records.Record) bool {
			conv.Proxies(r.(*records.Proxies))
			return true
		},
		"vesting": func(r records.Record) bool {
			v := r.(*records.Vesting)
			v.Schedules, _ = conv.Schedules(v.Schedules)
			return true
		},
		"nom_pools": func(r records.Record) bool {
			if p, ok := r.(*records.BondedPool); ok {
				conv.Pool(p)
			}
			return true
		},
		"scheduler": func(r records.Record) bool {
			a, ok := r.(*records.Agenda)
			if !ok {
				return true
			}
			conv.Agenda(a)
			return len(a.Tasks) > 0
		},
	}
}

// Default returns the checks of every domain plus the stage sanity check.
// conv must match the conversions of the destination ingestor.
func Default(tr *account.Translator, conv ingest.Converter) []Check {
	convert := converters(conv)
	keyed := func(name string, prefix []byte, decode DecodeFunc) Check {
		return KeyedDomain(name, Keyed{Prefix: prefix, Translator: tr, Decode: decode, Convert: convert[name]})
	}
	return []Check{
		Domain[stage.Stage, stage.DestinationStage]("stages", Stages{}, DestinationStages{}),
		Domain[accountsPre, *uint256.Int]("accounts", AccountsSource{}, AccountsDestination{}),
		Domain[[]account.ID, struct{}]("multisigs", Multisigs{Translator: tr}, MultisigsDestination{}),
		keyed("proxies", records.ProxyPrefix, Decoder[records.Proxies]()),
		Removed("proxy_announcements", records.AnnouncementPrefix),
		Domain[[]preimageRef, struct{}]("preimages", Preimages{}, PreimagesDestination{}),
		keyed("preimage_request_status", records.RequestStatusPrefix, Decoder[records.RequestStatus]()),
		Removed("preimage_legacy_status", records.LegacyStatusPrefix),
		keyed("referenda", records.ReferendumPrefix, Decoder[records.Referendum]()),
		keyed("indices", records.IndexPrefix, Decoder[records.Index]()),
		keyed("vesting", records.VestingPrefix, Decoder[records.Vesting]()),
		keyed("recovery", records.RecoveryPrefix, Decoder[records.RecoveryConfig]()),
		keyed("fast_unstake", records.FastUnstakePrefix, Decoder[records.FastUnstake]()),
		keyed("nom_pools", records.NomPoolsPrefix, union(
			variant{records.PoolMemberPrefix, Decoder[records.PoolMember]()},
			variant{records.BondedPoolPrefix, Decoder[records.BondedPool]()},
		)),
		keyed("scheduler", records.SchedulerPrefix, union(
			variant{records.AgendaPrefix, Decoder[records.Agenda]()},
			variant{records.LookupPrefix, Decoder[records.TaskLookup]()},
			variant{records.RetryPrefix, Decoder[records.TaskRetry]()},
			variant{records.IncompleteKey, Decoder[records.IncompleteSince]()},
		)),
		keyed("conviction_voting", records.VotingPrefix, union(
			variant{records.VotingForPrefix, Decoder[records.Voting]()},
			variant{records.ClassLocksPrefix, Decoder[records.ClassLocks]()},
		)),
		keyed("bounties", records.BountiesPrefix, union(
			variant{records.BountyPrefix, Decoder[records.Bounty]()},
			variant{records.BountiesMetaKey, Decoder[records.BountiesMeta]()},
		)),
		keyed("treasury", records.TreasuryPrefix, union(
			variant{records.ProposalPrefix, Decoder[records.TreasuryProposal]()},
			variant{records.SpendPrefix, Decoder[records.Spend]()},
			variant{records.TreasuryMetaKey, Decoder[records.TreasuryMeta]()},
		)),
		keyed("staking", records.StakingPrefix, Decoder[records.StakingLedger]()),
	}
}
