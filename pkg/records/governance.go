package records

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
)

// LegacyStatus is a preimage status of the deprecated format. Only its
// deposit is migrated: the destination releases it.
type LegacyStatus struct {
	Hash      common.Hash
	Depositor account.ID
	Deposit   *uint256.Int
}

func (l *LegacyStatus) Key() []byte        { return LegacyStatusKey(l.Hash) }
func (l *LegacyStatus) Translate(m Mapper) { l.Depositor = m(l.Depositor) }

// OriginKind is the dispatch origin of a scheduled task.
type OriginKind uint8

const (
	OriginRoot OriginKind = iota
	OriginSigned
	// OriginTrack is a governance track origin.
	OriginTrack
	// OriginParachain is a parachain origin, which only exists on the source.
	OriginParachain
)

// Portable reports whether the origin exists on the destination.
func (o OriginKind) Portable() bool { return o != OriginParachain }

// ScheduledTask is a call scheduled for a future block. The call is stored
// as a preimage and referenced by hash.
type ScheduledTask struct {
	// Name is set for named tasks.
	Name     common.Hash
	Priority uint8
	CallHash common.Hash
	CallLen  uint32
	Origin   OriginKind
	// Signer is the dispatching account of OriginSigned tasks.
	Signer account.ID
	Track  uint16
	// Period and Repeats are zero for one-shot tasks.
	Period  uint64
	Repeats uint32
}

// Agenda holds the tasks scheduled at one block.
type Agenda struct {
	Block uint64
	Tasks []ScheduledTask
}

func (a *Agenda) Key() []byte { return AgendaKey(a.Block) }

func (a *Agenda) Translate(m Mapper) {
	for i := range a.Tasks {
		if a.Tasks[i].Origin == OriginSigned {
			a.Tasks[i].Signer = m(a.Tasks[i].Signer)
		}
	}
}

// TaskLookup resolves a task name to its agenda slot.
type TaskLookup struct {
	Name  common.Hash
	Block uint64
	Index uint32
}

func (l *TaskLookup) Key() []byte      { return LookupKey(l.Name) }
func (l *TaskLookup) Translate(Mapper) {}

// TaskRetry is the retry config of a failed task.
type TaskRetry struct {
	Block     uint64
	Index     uint32
	Total     uint8
	Remaining uint8
	Period    uint64
}

func (r *TaskRetry) Key() []byte      { return RetryKey(r.Block, r.Index) }
func (r *TaskRetry) Translate(Mapper) {}

// IncompleteSince is the first block whose agenda was not fully serviced.
type IncompleteSince struct {
	Block uint64
}

func (i *IncompleteSince) Key() []byte      { return IncompleteKey }
func (i *IncompleteSince) Translate(Mapper) {}

// SchedulerEntry carries exactly one scheduler record.
type SchedulerEntry struct {
	Agenda     *Agenda          `rlp:"nil"`
	Lookup     *TaskLookup      `rlp:"nil"`
	Retry      *TaskRetry       `rlp:"nil"`
	Incomplete *IncompleteSince `rlp:"nil"`
}

// Record returns the carried record, or nil for an empty entry.
func (e *SchedulerEntry) Record() Record {
	switch {
	case e.Agenda != nil:
		return e.Agenda
	case e.Lookup != nil:
		return e.Lookup
	case e.Retry != nil:
		return e.Retry
	case e.Incomplete != nil:
		return e.Incomplete
	}
	return nil
}

// AccountVote is a vote on one referendum.
type AccountVote struct {
	Referendum uint32
	Aye        bool
	Conviction uint8
	Balance    *uint256.Int
}

// Voting is the conviction voting state of an account in one class. A
// delegating account has a non-zero Target and no votes.
type Voting struct {
	Who        account.ID
	Class      uint16
	Votes      []AccountVote
	Target     account.ID
	Delegated  *uint256.Int
	Conviction uint8
	// PriorUnlock is the block at which the prior lock of PriorAmount expires.
	PriorUnlock uint64
	PriorAmount *uint256.Int
}

// Delegating reports whether the account delegates its votes.
func (v *Voting) Delegating() bool { return v.Target != account.ID{} }

func (v *Voting) Key() []byte { return VotingForKey(v.Who, v.Class) }

func (v *Voting) Translate(m Mapper) {
	v.Who = m(v.Who)
	if v.Delegating() {
		v.Target = m(v.Target)
	}
}

// ClassLock is the amount locked by voting in one class.
type ClassLock struct {
	Class  uint16
	Amount *uint256.Int
}

// ClassLocks are the voting locks of an account.
type ClassLocks struct {
	Who   account.ID
	Locks []ClassLock
}

func (c *ClassLocks) Key() []byte        { return ClassLocksKey(c.Who) }
func (c *ClassLocks) Translate(m Mapper) { c.Who = m(c.Who) }

// VotingEntry carries exactly one conviction voting record.
type VotingEntry struct {
	Voting *Voting     `rlp:"nil"`
	Locks  *ClassLocks `rlp:"nil"`
}

// Record returns the carried record, or nil for an empty entry.
func (e *VotingEntry) Record() Record {
	switch {
	case e.Voting != nil:
		return e.Voting
	case e.Locks != nil:
		return e.Locks
	}
	return nil
}

func (e *SchedulerEntry) Key() []byte        { return entryKey(e.Record()) }
func (e *SchedulerEntry) Translate(m Mapper) { entryTranslate(e.Record(), m) }

func (e *VotingEntry) Key() []byte        { return entryKey(e.Record()) }
func (e *VotingEntry) Translate(m Mapper) { entryTranslate(e.Record(), m) }

func entryKey(r Record) []byte {
	if r == nil {
		return nil
	}
	return r.Key()
}

func entryTranslate(r Record, m Mapper) {
	if r != nil {
		r.Translate(m)
	}
}
