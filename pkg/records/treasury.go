package records

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
)

// BountyStatus is the lifecycle stage of a bounty.
type BountyStatus uint8

const (
	BountyProposed BountyStatus = iota
	BountyApproved
	BountyFunded
	BountyCuratorProposed
	BountyActive
	BountyPendingPayout
	BountyApprovedWithCurator
)

// HasCurator reports whether a curator is assigned in status s.
func (s BountyStatus) HasCurator() bool { return s >= BountyCuratorProposed }

// Bounty is a treasury bounty. Curator, Beneficiary and Due are only
// meaningful in the statuses that carry them.
type Bounty struct {
	Index          uint32
	Proposer       account.ID
	Value          *uint256.Int
	Fee            *uint256.Int
	CuratorDeposit *uint256.Int
	Bond           *uint256.Int
	Status         BountyStatus
	Curator        account.ID
	Beneficiary    account.ID
	Due            uint64
	Description    []byte
}

func (b *Bounty) Key() []byte { return BountyKey(b.Index) }

func (b *Bounty) Translate(m Mapper) {
	b.Proposer = m(b.Proposer)
	if b.Status.HasCurator() {
		b.Curator = m(b.Curator)
	}
	if b.Status == BountyPendingPayout {
		b.Beneficiary = m(b.Beneficiary)
	}
}

// BountiesMeta holds the bounty counter and the approval queue.
type BountiesMeta struct {
	Count     uint32
	Approvals []uint32
}

func (b *BountiesMeta) Key() []byte      { return BountiesMetaKey }
func (b *BountiesMeta) Translate(Mapper) {}

// BountiesEntry carries exactly one bounties record.
type BountiesEntry struct {
	Bounty *Bounty       `rlp:"nil"`
	Meta   *BountiesMeta `rlp:"nil"`
}

// Record returns the carried record, or nil for an empty entry.
func (e *BountiesEntry) Record() Record {
	switch {
	case e.Bounty != nil:
		return e.Bounty
	case e.Meta != nil:
		return e.Meta
	}
	return nil
}

// TreasuryProposal is a pending spend proposal of the legacy treasury.
type TreasuryProposal struct {
	Index       uint32
	Proposer    account.ID
	Value       *uint256.Int
	Beneficiary account.ID
	Bond        *uint256.Int
}

func (p *TreasuryProposal) Key() []byte { return ProposalKey(p.Index) }

func (p *TreasuryProposal) Translate(m Mapper) {
	p.Proposer = m(p.Proposer)
	p.Beneficiary = m(p.Beneficiary)
}

// Spend is an approved treasury payout of an asset.
type Spend struct {
	Index       uint32
	Asset       uint32
	Amount      *uint256.Int
	Beneficiary account.ID
	ValidFrom   uint64
	ExpireAt    uint64
	Status      uint8
}

func (s *Spend) Key() []byte        { return SpendKey(s.Index) }
func (s *Spend) Translate(m Mapper) { s.Beneficiary = m(s.Beneficiary) }

// TreasuryMeta holds the treasury counters and approval queue.
type TreasuryMeta struct {
	ProposalCount uint32
	SpendCount    uint32
	Approvals     []uint32
	Deactivated   *uint256.Int
}

func (t *TreasuryMeta) Key() []byte      { return TreasuryMetaKey }
func (t *TreasuryMeta) Translate(Mapper) {}

// TreasuryEntry carries exactly one treasury record.
type TreasuryEntry struct {
	Proposal *TreasuryProposal `rlp:"nil"`
	Spend    *Spend            `rlp:"nil"`
	Meta     *TreasuryMeta     `rlp:"nil"`
}

// Record returns the carried record, or nil for an empty entry.
func (e *TreasuryEntry) Record() Record {
	switch {
	case e.Proposal != nil:
		return e.Proposal
	case e.Spend != nil:
		return e.Spend
	case e.Meta != nil:
		return e.Meta
	}
	return nil
}

func (e *BountiesEntry) Key() []byte        { return entryKey(e.Record()) }
func (e *BountiesEntry) Translate(m Mapper) { entryTranslate(e.Record(), m) }

func (e *TreasuryEntry) Key() []byte        { return entryKey(e.Record()) }
func (e *TreasuryEntry) Translate(m Mapper) { entryTranslate(e.Record(), m) }
