// Package account holds the 32-byte account identifier shared by both chains
// and the rules that translate source accounts into destination accounts.
package account

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IDLength is the size of an account identifier in bytes.
const IDLength = 32

// ID is an opaque account identifier.
type ID [IDLength]byte

// Empty is the all-zero account.
var Empty ID

// BytesToID copies b into an ID, left-aligned. Longer input is truncated.
func BytesToID(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

// Bytes returns a copy of the identifier bytes.
func (id ID) Bytes() []byte {
	return bytes.Clone(id[:])
}

// Hex returns the 0x-prefixed hex encoding.
func (id ID) Hex() string {
	return hexutil.Encode(id[:])
}

func (id ID) String() string {
	return id.Hex()
}

// Bech32 encodes the identifier with the given human readable part.
func (id ID) Bech32(hrp string) (string, error) {
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert bits: %w", err)
	}
	return bech32.Encode(hrp, conv)
}

// ParseID accepts a 0x-prefixed hex string or a bech32 string.
func ParseID(s string) (ID, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return ID{}, fmt.Errorf("invalid hex account %q: %w", s, err)
		}
		if len(b) != IDLength {
			return ID{}, fmt.Errorf("invalid account length %d, want %d", len(b), IDLength)
		}
		return BytesToID(b), nil
	}

	_, data, err := bech32.Decode(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid bech32 account %q: %w", s, err)
	}
	b, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return ID{}, fmt.Errorf("failed to convert bits: %w", err)
	}
	if len(b) != IDLength {
		return ID{}, fmt.Errorf("invalid account length %d, want %d", len(b), IDLength)
	}
	return BytesToID(b), nil
}
