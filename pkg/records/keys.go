package records

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/migrator/pkg/account"
)

// Storage prefixes. Both chains use the same layout so the destination key of
// a record is its source key with every account translated.
var (
	AccountPrefix       = []byte("acc/")
	MultisigPrefix      = []byte("msig/")
	ProxyPrefix         = []byte("proxy/")
	AnnouncementPrefix  = []byte("proxyann/")
	PreimagePrefix      = []byte("preimage/for/")
	RequestStatusPrefix = []byte("preimage/status/")
	LegacyStatusPrefix  = []byte("preimage/legacy/")
	ReferendumPrefix    = []byte("ref/")
	IndexPrefix         = []byte("idx/")
	VestingPrefix       = []byte("vest/")
	RecoveryPrefix      = []byte("recov/")
	FastUnstakePrefix   = []byte("fastunstake/")
	NomPoolsPrefix      = []byte("pools/")
	PoolMemberPrefix    = []byte("pools/m/")
	BondedPoolPrefix    = []byte("pools/p/")
	StakingPrefix       = []byte("staking/")

	SchedulerPrefix  = []byte("sched/")
	AgendaPrefix     = []byte("sched/agenda/")
	LookupPrefix     = []byte("sched/lookup/")
	RetryPrefix      = []byte("sched/retry/")
	IncompleteKey    = []byte("sched/incomplete")
	VotingPrefix     = []byte("cvote/")
	VotingForPrefix  = []byte("cvote/for/")
	ClassLocksPrefix = []byte("cvote/locks/")
	BountiesPrefix   = []byte("bounty/")
	BountyPrefix     = []byte("bounty/b/")
	BountiesMetaKey  = []byte("bounty/meta")
	TreasuryPrefix   = []byte("treasury/")
	ProposalPrefix   = []byte("treasury/proposal/")
	SpendPrefix      = []byte("treasury/spend/")
	TreasuryMetaKey  = []byte("treasury/meta")

	// MetaPrefix holds migration bookkeeping, never migrated.
	MetaPrefix = []byte("migrator/")
)

func join(prefix []byte, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func be32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func be64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// AccountKey returns the storage key of an account.
func AccountKey(who account.ID) []byte { return join(AccountPrefix, who[:]) }

// MultisigKey returns the storage key of a pending multisig operation.
func MultisigKey(multisig account.ID, callHash common.Hash) []byte {
	return join(MultisigPrefix, multisig[:], callHash[:])
}

// ProxyKey returns the storage key of a delegator's proxies.
func ProxyKey(delegator account.ID) []byte { return join(ProxyPrefix, delegator[:]) }

// AnnouncementKey returns the storage key of a depositor's announcements.
func AnnouncementKey(who account.ID) []byte { return join(AnnouncementPrefix, who[:]) }

// PreimageKey returns the storage key of a preimage.
func PreimageKey(hash common.Hash, length uint32) []byte {
	return join(PreimagePrefix, hash[:], be32(length))
}

// ParsePreimageKey splits a preimage key into hash and length.
func ParsePreimageKey(key []byte) (common.Hash, uint32, bool) {
	if len(key) != len(PreimagePrefix)+common.HashLength+4 {
		return common.Hash{}, 0, false
	}
	rest := key[len(PreimagePrefix):]
	return common.BytesToHash(rest[:common.HashLength]), binary.BigEndian.Uint32(rest[common.HashLength:]), true
}

// RequestStatusKey returns the storage key of a preimage request status.
func RequestStatusKey(hash common.Hash) []byte { return join(RequestStatusPrefix, hash[:]) }

// LegacyStatusKey returns the storage key of a deprecated preimage status.
func LegacyStatusKey(hash common.Hash) []byte { return join(LegacyStatusPrefix, hash[:]) }

// ReferendumKey returns the storage key of a referendum.
func ReferendumKey(index uint32) []byte { return join(ReferendumPrefix, be32(index)) }

// IndexKey returns the storage key of an account index.
func IndexKey(index uint32) []byte { return join(IndexPrefix, be32(index)) }

// VestingKey returns the storage key of an account's vesting schedules.
func VestingKey(who account.ID) []byte { return join(VestingPrefix, who[:]) }

// RecoveryKey returns the storage key of a recovery config.
func RecoveryKey(lost account.ID) []byte { return join(RecoveryPrefix, lost[:]) }

// FastUnstakeKey returns the storage key of a fast-unstake queue entry.
func FastUnstakeKey(stash account.ID) []byte { return join(FastUnstakePrefix, stash[:]) }

// PoolMemberKey returns the storage key of a pool member.
func PoolMemberKey(member account.ID) []byte { return join(PoolMemberPrefix, member[:]) }

// BondedPoolKey returns the storage key of a bonded pool.
func BondedPoolKey(id uint32) []byte { return join(BondedPoolPrefix, be32(id)) }

// StakingKey returns the storage key of a staking ledger.
func StakingKey(stash account.ID) []byte { return join(StakingPrefix, stash[:]) }

// AgendaKey returns the storage key of the tasks scheduled at block.
func AgendaKey(block uint64) []byte { return join(AgendaPrefix, be64(block)) }

// LookupKey returns the storage key of a named task.
func LookupKey(name common.Hash) []byte { return join(LookupPrefix, name[:]) }

// RetryKey returns the storage key of the retry config of a task.
func RetryKey(block uint64, index uint32) []byte { return join(RetryPrefix, be64(block), be32(index)) }

// VotingForKey returns the storage key of an account's votes in a class.
func VotingForKey(who account.ID, class uint16) []byte { return join(VotingForPrefix, who[:], be16(class)) }

// ClassLocksKey returns the storage key of an account's voting locks.
func ClassLocksKey(who account.ID) []byte { return join(ClassLocksPrefix, who[:]) }

// BountyKey returns the storage key of a bounty.
func BountyKey(index uint32) []byte { return join(BountyPrefix, be32(index)) }

// ProposalKey returns the storage key of a treasury proposal.
func ProposalKey(index uint32) []byte { return join(ProposalPrefix, be32(index)) }

// SpendKey returns the storage key of a treasury spend.
func SpendKey(index uint32) []byte { return join(SpendPrefix, be32(index)) }

// MetaKey returns a bookkeeping key.
func MetaKey(name string) []byte { return join(MetaPrefix, []byte(name)) }

// PreimageHash is the hash a preimage is stored under.
func PreimageHash(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return common.BytesToHash(h.Sum(nil))
}
