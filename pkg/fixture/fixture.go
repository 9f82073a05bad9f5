// Package fixture builds deterministic source-chain state for tests and dry runs.
package fixture

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// Put stores records under their keys.
func Put(db database.Writer, recs ...records.Record) error {
	for _, r := range recs {
		enc, err := records.Encode(r)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		if err := db.Put(r.Key(), enc); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
	}
	return nil
}

// PutPreimage stores a preimage and, unless legacy, its request status.
func PutPreimage(db database.Writer, data []byte, depositor account.ID, legacy bool) (common.Hash, error) {
	hash := Hash(data)
	if err := db.Put(records.PreimageKey(hash, uint32(len(data))), data); err != nil {
		return hash, err
	}
	if legacy {
		return hash, nil
	}
	return hash, Put(db, &records.RequestStatus{
		Hash:      hash,
		Len:       uint32(len(data)),
		Depositor: depositor,
		Deposit:   uint256.NewInt(10),
		Requests:  1,
	})
}

// Hash is the preimage hash function.
func Hash(data []byte) common.Hash {
	return records.PreimageHash(data)
}

// ID returns a regular account derived from n.
func ID(n uint32) account.ID {
	var id account.ID
	copy(id[:], "acct")
	binary.BigEndian.PutUint32(id[4:], n)
	id[31] = 0xff
	return id
}

// Account returns a live account with the given balances.
func Account(who account.ID, free, reserved uint64) *records.Account {
	a := records.NewAccount(who)
	a.Free.SetUint64(free)
	a.Reserved.SetUint64(reserved)
	a.Providers = 1
	return a
}

// Options sizes a generated population.
type Options struct {
	Accounts      int
	ParaIDs       []uint16
	PreimageBytes int
}

// Populate writes a mixed source state covering every domain. It returns the
// number of records written.
func Populate(db database.Store, opts Options) (int, error) {
	var recs []records.Record
	for i := 0; i < opts.Accounts; i++ {
		who := ID(uint32(i))
		recs = append(recs, Account(who, uint64(1000+i), 100))
		if i%5 == 0 {
			recs = append(recs, &records.Vesting{Who: who, Schedules: []records.VestingSchedule{{
				Locked: uint256.NewInt(500), PerBlock: uint256.NewInt(5), Starting: uint64(i),
			}}})
		}
		if i%7 == 0 {
			recs = append(recs, &records.Proxies{Delegator: who, Deposit: uint256.NewInt(20), Proxies: []records.ProxyDefinition{
				{Delegate: ID(uint32(i + 1)), Type: records.ProxyAny, Delay: 10},
			}})
		}
		if i%11 == 0 {
			recs = append(recs, &records.Index{Index: uint32(i), Who: who, Deposit: uint256.NewInt(1)})
		}
		if i%13 == 0 {
			recs = append(recs, &records.Multisig{Account: ID(uint32(1_000_000 + i)), CallHash: Hash([]byte{byte(i)}), Creator: who, Deposit: uint256.NewInt(50)})
		}
	}
	// a dead account is dropped rather than sent
	recs = append(recs, records.NewAccount(ID(999_999)))

	for n, id := range opts.ParaIDs {
		sov := account.ParaSovereign(id)
		recs = append(recs,
			Account(sov, 1_000_000, 0),
			&records.StakingLedger{Stash: sov, Controller: sov, Payee: sov, Total: uint256.NewInt(5000), Active: uint256.NewInt(5000)},
			&records.FastUnstake{Stash: account.Derive(sov, 0), Deposit: uint256.NewInt(1)},
			&records.RecoveryConfig{Lost: sov, Friends: []account.ID{ID(1), ID(2)}, Threshold: 2, DelayPeriod: 100, Deposit: uint256.NewInt(3)},
			&records.BondedPool{ID: uint32(n + 1), Depositor: sov, Root: sov, Nominator: sov, Bouncer: sov, Points: uint256.NewInt(100), Members: 1,
				Commission: records.Commission{ThrottleFrom: 90, Payee: sov}},
			&records.PoolMember{Member: account.Derive(sov, 1), Pool: uint32(n + 1), Points: uint256.NewInt(100)},
			&records.Voting{Who: sov, Class: uint16(n), Votes: []records.AccountVote{
				{Referendum: 0, Aye: true, Conviction: 1, Balance: uint256.NewInt(400)},
			}, Delegated: new(uint256.Int), PriorAmount: new(uint256.Int)},
			&records.ClassLocks{Who: sov, Locks: []records.ClassLock{{Class: uint16(n), Amount: uint256.NewInt(400)}}},
		)
	}
	recs = append(recs, governance()...)
	if err := Put(db, recs...); err != nil {
		return 0, err
	}
	written := len(recs)

	if opts.PreimageBytes > 0 {
		data := make([]byte, opts.PreimageBytes)
		for i := range data {
			data[i] = byte(i)
		}
		hash, err := PutPreimage(db, data, ID(0), false)
		if err != nil {
			return 0, err
		}
		if err := Put(db, &records.Referendum{Index: 0, Proposal: hash, ProposalLen: uint32(len(data)), Submitter: ID(0), Deposit: uint256.NewInt(1)}); err != nil {
			return 0, err
		}
		legacy, err := PutPreimage(db, []byte("legacy"), ID(0), true)
		if err != nil {
			return 0, err
		}
		written += 4
		if opts.Accounts > 0 {
			if err := Put(db, &records.LegacyStatus{Hash: legacy, Depositor: ID(0), Deposit: uint256.NewInt(10)}); err != nil {
				return 0, err
			}
			written++
		}
	}
	return written, nil
}

// governance returns scheduler, bounty and treasury state. One agenda only
// holds a parachain-origin task and is dropped by the destination.
func governance() []records.Record {
	task := records.ScheduledTask{Priority: 63, CallHash: Hash([]byte("call")), CallLen: 4, Origin: records.OriginRoot}
	named := task
	named.Name = common.HexToHash("0x01")
	named.Origin = records.OriginSigned
	named.Signer = ID(3)
	named.Period, named.Repeats = 100, 5
	para := task
	para.Origin = records.OriginParachain

	return []records.Record{
		&records.Agenda{Block: 500, Tasks: []records.ScheduledTask{task, named, para}},
		&records.Agenda{Block: 600, Tasks: []records.ScheduledTask{para}},
		&records.TaskLookup{Name: named.Name, Block: 500, Index: 1},
		&records.TaskRetry{Block: 500, Index: 0, Total: 3, Remaining: 2, Period: 10},
		&records.IncompleteSince{Block: 450},
		&records.Bounty{Index: 0, Proposer: ID(1), Value: uint256.NewInt(1000), Fee: uint256.NewInt(10),
			CuratorDeposit: uint256.NewInt(5), Bond: uint256.NewInt(2), Status: records.BountyActive,
			Curator: ID(2), Due: 900, Description: []byte("audit")},
		&records.BountiesMeta{Count: 1, Approvals: []uint32{}},
		&records.TreasuryProposal{Index: 0, Proposer: ID(1), Value: uint256.NewInt(100), Beneficiary: ID(2), Bond: uint256.NewInt(5)},
		&records.Spend{Index: 0, Asset: 1, Amount: uint256.NewInt(300), Beneficiary: ID(4), ValidFrom: 10, ExpireAt: 1000},
		&records.TreasuryMeta{ProposalCount: 1, SpendCount: 1, Approvals: []uint32{0}, Deactivated: new(uint256.Int)},
	}
}
