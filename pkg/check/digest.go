package check

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// Digest hashes every key and value under prefix in key order, skipping
// migration bookkeeping. Equal stores have equal digests.
func Digest(r database.Reader, prefix []byte) (common.Hash, uint64, error) {
	h := sha3.NewLegacyKeccak256()
	var (
		n   uint64
		buf [4]byte
	)
	it := r.NewIterator(prefix, nil)
	defer it.Release()
	for it.Next() {
		if bytes.HasPrefix(it.Key(), records.MetaPrefix) {
			continue
		}
		for _, b := range [][]byte{it.Key(), it.Value()} {
			binary.BigEndian.PutUint32(buf[:], uint32(len(b)))
			h.Write(buf[:])
			h.Write(b)
		}
		n++
	}
	if err := it.Error(); err != nil {
		return common.Hash{}, 0, err
	}
	return common.BytesToHash(h.Sum(nil)), n, nil
}
