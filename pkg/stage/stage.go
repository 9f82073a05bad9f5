// Package stage models the migration stages of both chains and the pure
// transition function that moves the source stage forward.
package stage

// Domain is a category of state migrated as a unit.
type Domain uint8

const (
	Accounts Domain = iota
	Multisigs
	Proxies
	ProxyAnnouncements
	PreimageChunks
	PreimageRequestStatus
	PreimageLegacyStatus
	Referenda
	Indices
	Vesting
	Recovery
	FastUnstake
	NomPools
	Scheduler
	ConvictionVoting
	Bounties
	Treasury
	Staking
)

var domainNames = [...]string{
	Accounts:              "accounts",
	Multisigs:             "multisigs",
	Proxies:               "proxies",
	ProxyAnnouncements:    "proxy_announcements",
	PreimageChunks:        "preimage_chunks",
	PreimageRequestStatus: "preimage_request_status",
	PreimageLegacyStatus:  "preimage_legacy_status",
	Referenda:             "referenda",
	Indices:               "indices",
	Vesting:               "vesting",
	Recovery:              "recovery",
	FastUnstake:           "fast_unstake",
	NomPools:              "nom_pools",
	Scheduler:             "scheduler",
	ConvictionVoting:      "conviction_voting",
	Bounties:              "bounties",
	Treasury:              "treasury",
	Staking:               "staking",
}

func (d Domain) String() string {
	if int(d) < len(domainNames) {
		return domainNames[d]
	}
	return "unknown"
}

// Domains lists every domain in migration order.
func Domains() []Domain {
	out := make([]Domain, len(domainNames))
	for i := range out {
		out[i] = Domain(i)
	}
	return out
}

// Stage is the source-chain migration stage. Stages are ordered; the
// numeric order is the program order.
type Stage uint8

const (
	Pending Stage = iota
	WaitingForDestination
	AccountsMigrating
	MultisigsMigrating
	ProxiesMigrating
	ProxyAnnouncementsMigrating
	PreimageChunksMigrating
	PreimageRequestStatusMigrating
	PreimageLegacyStatusMigrating
	ReferendaMigrating
	IndicesMigrating
	VestingMigrating
	RecoveryMigrating
	FastUnstakeMigrating
	NomPoolsMigrating
	SchedulerMigrating
	ConvictionVotingMigrating
	BountiesMigrating
	TreasuryMigrating
	StakingMigrating
	SignalMigrationFinish
	MigrationDone
)

// FirstMigrating is the first stage that extracts state.
const FirstMigrating = AccountsMigrating

// Domain returns the domain extracted in s.
func (s Stage) Domain() (Domain, bool) {
	if s < AccountsMigrating || s > StakingMigrating {
		return 0, false
	}
	return Domain(s - AccountsMigrating), true
}

// Migrating reports whether s extracts a domain.
func (s Stage) Migrating() bool {
	_, ok := s.Domain()
	return ok
}

// Ongoing reports whether the migration has started and not finished.
func (s Stage) Ongoing() bool {
	return s > Pending && s < MigrationDone
}

// StageOf returns the migrating stage of d.
func StageOf(d Domain) Stage {
	return AccountsMigrating + Stage(d)
}

func (s Stage) String() string {
	switch s {
	case Pending:
		return "pending"
	case WaitingForDestination:
		return "waiting_for_destination"
	case SignalMigrationFinish:
		return "signal_migration_finish"
	case MigrationDone:
		return "migration_done"
	}
	if d, ok := s.Domain(); ok {
		return d.String() + "_migrating"
	}
	return "unknown"
}

// ParseStage parses the output of Stage.String.
func ParseStage(name string) (Stage, bool) {
	for s := Pending; s <= MigrationDone; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// DestinationStage is the stage mirrored on the destination chain.
type DestinationStage uint8

const (
	DestinationPending DestinationStage = iota
	DataMigrationOngoing
	DestinationDone
)

func (s DestinationStage) String() string {
	switch s {
	case DestinationPending:
		return "pending"
	case DataMigrationOngoing:
		return "data_migration_ongoing"
	case DestinationDone:
		return "migration_done"
	}
	return "unknown"
}
