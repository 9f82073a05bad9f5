// Package xcm carries migration batches between the chains as ordered,
// size-bounded messages.
package xcm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/stage"
	"github.com/luxfi/migrator/pkg/weight"
)

// Kind is the discriminant of a message.
type Kind uint16

// Batch kinds follow the domain order. Control kinds start at 0x100.
const (
	ReceiveAccounts Kind = iota
	ReceiveMultisigs
	ReceiveProxies
	ReceiveProxyAnnouncements
	ReceivePreimageChunks
	ReceivePreimageRequestStatus
	ReceivePreimageLegacyStatus
	ReceiveReferenda
	ReceiveIndices
	ReceiveVesting
	ReceiveRecovery
	ReceiveFastUnstake
	ReceiveNomPools
	ReceiveScheduler
	ReceiveConvictionVoting
	ReceiveBounties
	ReceiveTreasury
	ReceiveStaking
)

const (
	StartDataMigration Kind = 0x100 + iota
	FinishMigration
	AckDataMigrationStarted
)

// KindOf returns the batch kind that carries records of d.
func KindOf(d stage.Domain) Kind {
	return Kind(d)
}

// Domain returns the domain of a batch kind.
func (k Kind) Domain() (stage.Domain, bool) {
	if k > ReceiveStaking {
		return 0, false
	}
	return stage.Domain(k), true
}

// IsControl reports whether k carries a stage signal instead of records.
func (k Kind) IsControl() bool {
	return k >= StartDataMigration
}

func (k Kind) String() string {
	if d, ok := k.Domain(); ok {
		return "receive_" + d.String()
	}
	switch k {
	case StartDataMigration:
		return "start_data_migration"
	case FinishMigration:
		return "finish_migration"
	case AckDataMigrationStarted:
		return "ack_data_migration_started"
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// ItemWeight is the destination cost of applying one record of kind k.
func ItemWeight(k Kind, db weight.DbWeight) weight.Weight {
	switch k {
	case ReceiveAccounts:
		return db.ReadsWrites(2, 2)
	case ReceiveMultisigs, ReceiveProxyAnnouncements:
		// unreserve on the creator account
		return db.ReadsWrites(1, 1)
	case ReceivePreimageChunks:
		return db.ReadsWrites(1, 1).Add(weight.New(0, uint64(ChunkSize(DefaultMaxSize))))
	case ReceivePreimageRequestStatus, ReceiveReferenda:
		return db.ReadsWrites(2, 1)
	case ReceivePreimageLegacyStatus:
		// unreserve only
		return db.ReadsWrites(1, 1)
	case ReceiveScheduler:
		// agenda plus the call preimage lookup
		return db.ReadsWrites(2, 1)
	case ReceiveVesting:
		return db.ReadsWrites(1, 2)
	case ReceiveNomPools, ReceiveStaking:
		return db.ReadsWrites(2, 2)
	default:
		return db.ReadsWrites(1, 1)
	}
}

// Message is the envelope sent over the channel.
type Message struct {
	Kind    Kind
	Payload []byte
}

// Encode returns the wire form of m.
func (m *Message) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(m)
}

// DecodeMessage parses the wire form of a message.
func DecodeMessage(b []byte) (*Message, error) {
	m := new(Message)
	if err := rlp.DecodeBytes(b, m); err != nil {
		return nil, fmt.Errorf("%w: message: %v", core.ErrDecode, err)
	}
	return m, nil
}

// Items splits a batch payload into its encoded records.
func (m *Message) Items() ([]rlp.RawValue, error) {
	content, _, err := rlp.SplitList(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: batch: %v", core.ErrDecode, err)
	}
	var items []rlp.RawValue
	for len(content) > 0 {
		_, _, rest, err := rlp.Split(content)
		if err != nil {
			return nil, fmt.Errorf("%w: batch item: %v", core.ErrDecode, err)
		}
		items = append(items, rlp.RawValue(content[:len(content)-len(rest)]))
		content = rest
	}
	return items, nil
}

// Count returns the number of records in a batch without decoding them.
func (m *Message) Count() (int, error) {
	content, _, err := rlp.SplitList(m.Payload)
	if err != nil {
		return 0, fmt.Errorf("%w: batch: %v", core.ErrDecode, err)
	}
	return rlp.CountValues(content)
}
