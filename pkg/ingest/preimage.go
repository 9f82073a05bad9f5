package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// preimageChunk appends a chunk to a partially received preimage. Chunks must
// arrive at the current end of the preimage.
func (in *Ingestor) preimageChunk(_ context.Context, raw []byte, batch database.Batch) error {
	chunk, err := records.Decode[records.PreimageChunk](raw)
	if err != nil {
		return err
	}
	key := chunk.Key()

	have, err := in.env.Store.Get(key)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if end := int(chunk.Offset) + len(chunk.Data); len(chunk.Data) > 0 && end <= len(have) && bytes.Equal(have[chunk.Offset:end], chunk.Data) {
		in.env.Log.Warn("Preimage chunk already received", "hash", chunk.Hash, "offset", chunk.Offset)
		return nil
	}
	if uint32(len(have)) != chunk.Offset {
		core.Defensive(in.env.Log, "preimage chunk missing", "hash", chunk.Hash, "have", len(have), "offset", chunk.Offset)
		return fmt.Errorf("%w: preimage %s chunk at %d, have %d bytes", core.ErrMissingDependency, chunk.Hash, chunk.Offset, len(have))
	}

	data := append(have, chunk.Data...)
	if uint32(len(data)) > chunk.Len {
		core.Defensive(in.env.Log, "preimage too big", "hash", chunk.Hash, "len", len(data), "want", chunk.Len)
		return fmt.Errorf("%w: %s", ErrPreimageTooBig, chunk.Hash)
	}
	if uint32(len(data)) == chunk.Len {
		if got := records.PreimageHash(data); got != chunk.Hash {
			return fmt.Errorf("%w: %s hashes to %s", ErrPreimageHashMismatch, chunk.Hash, got)
		}
		in.env.Log.Info("Preimage complete", "hash", chunk.Hash, "len", chunk.Len)
	}
	return batch.Put(key, data)
}

// hasPreimage reports whether the full preimage is present.
func (in *Ingestor) hasPreimage(hash common.Hash, length uint32) (bool, error) {
	have, err := in.env.Store.Get(records.PreimageKey(hash, length))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return uint32(len(have)) == length, nil
}

// requestStatus stores who noted or requested a preimage. A missing
// preimage is tolerated.
func (in *Ingestor) requestStatus(_ context.Context, raw []byte, batch database.Batch) error {
	rs, err := records.Decode[records.RequestStatus](raw)
	if err != nil {
		return err
	}
	in.translate(rs)

	ok, err := in.hasPreimage(rs.Hash, rs.Len)
	if err != nil {
		return err
	}
	if !ok {
		in.env.Log.Warn("Preimage for request status missing", "hash", rs.Hash, "len", rs.Len)
	}
	return in.putNew(rs, batch)
}

// referendum stores a referendum. A proposal whose preimage has not arrived
// is only reported.
func (in *Ingestor) referendum(_ context.Context, raw []byte, batch database.Batch) error {
	r, err := records.Decode[records.Referendum](raw)
	if err != nil {
		return err
	}
	in.translate(r)

	if r.ProposalLen > 0 {
		ok, err := in.hasPreimage(r.Proposal, r.ProposalLen)
		if err != nil {
			return err
		}
		if !ok {
			in.env.Log.Warn("Preimage for referendum proposal missing", "referendum", r.Index, "hash", r.Proposal)
		}
	}
	return in.putNew(r, batch)
}
