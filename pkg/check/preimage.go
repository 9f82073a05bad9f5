package check

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

type preimageRef struct {
	Hash common.Hash
	Len  uint32
}

// Preimages verifies that every requested preimage arrives whole.
type Preimages struct{}

func (Preimages) PreCheck(_ context.Context, src database.Reader) ([]preimageRef, error) {
	var refs []preimageRef
	it := src.NewIterator(records.RequestStatusPrefix, nil)
	defer it.Release()
	for it.Next() {
		rs, err := records.Decode[records.RequestStatus](it.Value())
		if err != nil {
			return nil, failf("undecodable request status at %x: %v", it.Key(), err)
		}
		ok, err := src.Has(records.PreimageKey(rs.Hash, rs.Len))
		if err != nil {
			return nil, err
		}
		if ok {
			refs = append(refs, preimageRef{Hash: rs.Hash, Len: rs.Len})
		}
	}
	return refs, it.Error()
}

func (Preimages) PostCheck(_ context.Context, src database.Reader, _ []preimageRef) error {
	n, err := database.Count(src, records.PreimagePrefix)
	if err != nil {
		return err
	}
	if n != 0 {
		return failf("%d preimages left on the source", n)
	}
	return nil
}

// PreimagesDestination checks length and hash of every migrated preimage.
type PreimagesDestination struct{}

func (PreimagesDestination) PreCheck(context.Context, database.Reader, []preimageRef) (struct{}, error) {
	return struct{}{}, nil
}

func (PreimagesDestination) PostCheck(_ context.Context, dst database.Reader, refs []preimageRef, _ struct{}) error {
	for _, ref := range refs {
		data, err := dst.Get(records.PreimageKey(ref.Hash, ref.Len))
		if errors.Is(err, core.ErrNotFound) {
			return failf("preimage %s missing on the destination", ref.Hash)
		}
		if err != nil {
			return err
		}
		if uint32(len(data)) != ref.Len {
			return failf("preimage %s has %d of %d bytes", ref.Hash, len(data), ref.Len)
		}
		if got := records.PreimageHash(data); got != ref.Hash {
			return failf("preimage %s hashes to %s", ref.Hash, got)
		}
	}
	return nil
}
