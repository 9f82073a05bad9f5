// Package records defines the state records moved between the chains and
// their RLP encoding.
package records

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/core"
)

// Mapper rewrites a source account into its destination form.
type Mapper func(account.ID) account.ID

// Record is a single migratable state item.
type Record interface {
	// Key is the storage key of the record on either chain.
	Key() []byte
	// Translate rewrites every account-shaped field.
	Translate(Mapper)
}

// Encode RLP-encodes a record.
func Encode(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// Decode RLP-decodes into a new T.
func Decode[T any](b []byte) (*T, error) {
	v := new(T)
	if err := rlp.DecodeBytes(b, v); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDecode, err)
	}
	return v, nil
}

// Hold is balance reserved for a named reason.
type Hold struct {
	Reason [8]byte
	Amount *uint256.Int
}

// Lock restricts spending of free balance.
type Lock struct {
	ID     [8]byte
	Amount *uint256.Int
}

// Account is the balance and reference state of an account.
type Account struct {
	Who         account.ID
	Nonce       uint64
	Free        *uint256.Int
	Reserved    *uint256.Int
	Frozen      *uint256.Int
	Holds       []Hold
	Locks       []Lock
	Consumers   uint32
	Providers   uint32
	Sufficients uint32
}

// NewAccount returns an empty account.
func NewAccount(who account.ID) *Account {
	return &Account{Who: who, Free: new(uint256.Int), Reserved: new(uint256.Int), Frozen: new(uint256.Int)}
}

func (a *Account) Key() []byte        { return AccountKey(a.Who) }
func (a *Account) Translate(m Mapper) { a.Who = m(a.Who) }

// Total returns free plus reserved balance.
func (a *Account) Total() *uint256.Int {
	return new(uint256.Int).Add(orZero(a.Free), orZero(a.Reserved))
}

// IsDead reports whether the account holds nothing and is referenced by nothing.
func (a *Account) IsDead() bool {
	return a.Total().IsZero() && a.Consumers == 0 && a.Providers == 0 && a.Sufficients == 0
}

// Unreserve moves up to amount from reserved to free and returns the part
// that could not be unreserved.
func (a *Account) Unreserve(amount *uint256.Int) *uint256.Int {
	a.normalize()
	actual := amount.Clone()
	if actual.Gt(a.Reserved) {
		actual.Set(a.Reserved)
	}
	a.Reserved.Sub(a.Reserved, actual)
	a.Free.Add(a.Free, actual)
	return new(uint256.Int).Sub(amount, actual)
}

// Merge adds the balances and references of o into a.
func (a *Account) Merge(o *Account) {
	a.normalize()
	a.Free.Add(a.Free, orZero(o.Free))
	a.Reserved.Add(a.Reserved, orZero(o.Reserved))
	if f := orZero(o.Frozen); f.Gt(a.Frozen) {
		a.Frozen.Set(f)
	}
	a.Holds = append(a.Holds, o.Holds...)
	a.Locks = append(a.Locks, o.Locks...)
	a.Consumers += o.Consumers
	a.Providers += o.Providers
	a.Sufficients += o.Sufficients
	if o.Nonce > a.Nonce {
		a.Nonce = o.Nonce
	}
}

func (a *Account) normalize() {
	if a.Free == nil {
		a.Free = new(uint256.Int)
	}
	if a.Reserved == nil {
		a.Reserved = new(uint256.Int)
	}
	if a.Frozen == nil {
		a.Frozen = new(uint256.Int)
	}
}

// Multisig is a pending multisig operation. Only its deposit is migrated.
type Multisig struct {
	Account  account.ID
	CallHash common.Hash
	Creator  account.ID
	Deposit  *uint256.Int
}

func (m *Multisig) Key() []byte { return MultisigKey(m.Account, m.CallHash) }

func (m *Multisig) Translate(f Mapper) {
	m.Account = f(m.Account)
	m.Creator = f(m.Creator)
}

// ProxyType is the permission class of a proxy.
type ProxyType uint8

const (
	ProxyAny ProxyType = iota
	ProxyNonTransfer
	ProxyGovernance
	ProxyStaking
	ProxyIdentityJudgement
	ProxyCancelProxy
	ProxyAuction
	ProxyNominationPools
	ProxyParaRegistration
)

// ProxyDefinition is one delegate of a delegator.
type ProxyDefinition struct {
	Delegate account.ID
	Type     ProxyType
	Delay    uint64
}

// Proxies are the delegates of one delegator and the deposit held for them.
type Proxies struct {
	Delegator account.ID
	Deposit   *uint256.Int
	Proxies   []ProxyDefinition
}

func (p *Proxies) Key() []byte { return ProxyKey(p.Delegator) }

func (p *Proxies) Translate(m Mapper) {
	p.Delegator = m(p.Delegator)
	for i := range p.Proxies {
		p.Proxies[i].Delegate = m(p.Proxies[i].Delegate)
	}
}

// Announcement is the deposit held for a depositor's proxy announcements.
type Announcement struct {
	Depositor account.ID
	Deposit   *uint256.Int
}

func (a *Announcement) Key() []byte        { return AnnouncementKey(a.Depositor) }
func (a *Announcement) Translate(m Mapper) { a.Depositor = m(a.Depositor) }

// PreimageChunk is a contiguous slice of a preimage.
type PreimageChunk struct {
	Hash   common.Hash
	Len    uint32
	Offset uint32
	Data   []byte
}

func (c *PreimageChunk) Key() []byte      { return PreimageKey(c.Hash, c.Len) }
func (c *PreimageChunk) Translate(Mapper) {}

// RequestStatus tracks who noted or requested a preimage.
type RequestStatus struct {
	Hash      common.Hash
	Len       uint32
	Depositor account.ID
	Deposit   *uint256.Int
	Requests  uint32
}

// Unrequested reports whether the preimage is only noted.
func (r *RequestStatus) Unrequested() bool { return r.Requests == 0 }

func (r *RequestStatus) Key() []byte        { return RequestStatusKey(r.Hash) }
func (r *RequestStatus) Translate(m Mapper) { r.Depositor = m(r.Depositor) }

// Referendum is a governance referendum and the proposal it votes on.
type Referendum struct {
	Index       uint32
	Track       uint16
	Proposal    common.Hash
	ProposalLen uint32
	Submitter   account.ID
	Deposit     *uint256.Int
	Submitted   uint64
	Enactment   uint64
	Status      uint8
}

func (r *Referendum) Key() []byte        { return ReferendumKey(r.Index) }
func (r *Referendum) Translate(m Mapper) { r.Submitter = m(r.Submitter) }

// Index is a short account index claimed by an account.
type Index struct {
	Index   uint32
	Who     account.ID
	Deposit *uint256.Int
	Frozen  bool
}

func (i *Index) Key() []byte        { return IndexKey(i.Index) }
func (i *Index) Translate(m Mapper) { i.Who = m(i.Who) }

// VestingSchedule releases Locked linearly from Starting at PerBlock.
type VestingSchedule struct {
	Locked   *uint256.Int
	PerBlock *uint256.Int
	Starting uint64
}

// Vesting holds the schedules of one account.
type Vesting struct {
	Who       account.ID
	Schedules []VestingSchedule
}

func (v *Vesting) Key() []byte        { return VestingKey(v.Who) }
func (v *Vesting) Translate(m Mapper) { v.Who = m(v.Who) }

// RecoveryConfig is the social recovery setup of an account.
type RecoveryConfig struct {
	Lost        account.ID
	Friends     []account.ID
	Threshold   uint16
	DelayPeriod uint64
	Deposit     *uint256.Int
}

func (r *RecoveryConfig) Key() []byte { return RecoveryKey(r.Lost) }

func (r *RecoveryConfig) Translate(m Mapper) {
	r.Lost = m(r.Lost)
	for i := range r.Friends {
		r.Friends[i] = m(r.Friends[i])
	}
}

// FastUnstake is a queued fast-unstake request.
type FastUnstake struct {
	Stash   account.ID
	Deposit *uint256.Int
}

func (f *FastUnstake) Key() []byte        { return FastUnstakeKey(f.Stash) }
func (f *FastUnstake) Translate(m Mapper) { f.Stash = m(f.Stash) }

// UnbondingEra is a pending unbond of pool points.
type UnbondingEra struct {
	Era    uint32
	Points *uint256.Int
}

// PoolMember is a member of a nomination pool.
type PoolMember struct {
	Member    account.ID
	Pool      uint32
	Points    *uint256.Int
	Unbonding []UnbondingEra
}

func (p *PoolMember) Key() []byte        { return PoolMemberKey(p.Member) }
func (p *PoolMember) Translate(m Mapper) { p.Member = m(p.Member) }

// Commission is the commission setup of a bonded pool. ThrottleFrom is a
// source block number, zero when unset.
type Commission struct {
	Current      uint32
	MaxChange    uint32
	MinDelay     uint64
	ThrottleFrom uint64
	Payee        account.ID
}

// BondedPool is a nomination pool.
type BondedPool struct {
	ID         uint32
	Depositor  account.ID
	Root       account.ID
	Nominator  account.ID
	Bouncer    account.ID
	Points     *uint256.Int
	Members    uint32
	State      uint8
	Commission Commission
}

func (p *BondedPool) Key() []byte { return BondedPoolKey(p.ID) }

func (p *BondedPool) Translate(m Mapper) {
	p.Depositor = m(p.Depositor)
	p.Root = m(p.Root)
	p.Nominator = m(p.Nominator)
	p.Bouncer = m(p.Bouncer)
	p.Commission.Payee = m(p.Commission.Payee)
}

// NomPoolsEntry is either a pool member or a bonded pool.
type NomPoolsEntry struct {
	Member *PoolMember `rlp:"nil"`
	Pool   *BondedPool `rlp:"nil"`
}

func (e *NomPoolsEntry) Key() []byte {
	if e.Member != nil {
		return PoolMemberKey(e.Member.Member)
	}
	if e.Pool != nil {
		return BondedPoolKey(e.Pool.ID)
	}
	return nil
}

func (e *NomPoolsEntry) Translate(m Mapper) {
	if e.Member != nil {
		e.Member.Translate(m)
	}
	if e.Pool != nil {
		e.Pool.Translate(m)
	}
}

// UnlockChunk is a pending unbond of a staking ledger.
type UnlockChunk struct {
	Value *uint256.Int
	Era   uint32
}

// StakingLedger is the bonded stake of a stash.
type StakingLedger struct {
	Stash       account.ID
	Controller  account.ID
	Total       *uint256.Int
	Active      *uint256.Int
	Unlocking   []UnlockChunk
	Payee       account.ID
	Nominations []account.ID
}

func (s *StakingLedger) Key() []byte { return StakingKey(s.Stash) }

func (s *StakingLedger) Translate(m Mapper) {
	s.Stash = m(s.Stash)
	s.Controller = m(s.Controller)
	s.Payee = m(s.Payee)
	for i := range s.Nominations {
		s.Nominations[i] = m(s.Nominations[i])
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
