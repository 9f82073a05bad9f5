package filter

import "github.com/luxfi/migrator/pkg/core"

type set map[Category]bool

func setOf(cats ...Category) set {
	s := make(set, len(cats))
	for _, c := range cats {
		s[c] = true
	}
	return s
}

var (
	// destination modules that stay closed until the state arrived
	destinationBefore = setOf(
		Staking, NominationPools, FastUnstake, VoterList, Indices, Vesting,
		Referenda, Bounties, Treasury, Recovery, Society, ConvictionVoting,
	)
	destinationDuring = setOf(
		System, Timestamp, ParachainSystem, MessageQueue, Balances, Assets,
		Utility, Scheduler, XCM,
	)
	sourceDuring = setOf(
		System, Timestamp, Consensus, Session, Utility, MessageQueue, Parachains,
	)
	sourceAfter = setOf(
		System, Timestamp, Consensus, Session, Utility, MessageQueue, Balances,
		Proxy, Multisig, OnDemand, Registrar, XCM, Parachains,
	)
)

// Allowed is the default policy table.
func Allowed(chain core.Chain, phase Phase, cat Category) bool {
	if chain == core.Source {
		switch phase {
		case Before:
			return true
		case During:
			return sourceDuring[cat]
		default:
			return sourceAfter[cat]
		}
	}
	switch phase {
	case Before:
		return !destinationBefore[cat]
	case During:
		return destinationDuring[cat]
	default:
		return true
	}
}
