package ingest

import (
	"context"
	"fmt"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// nomPools stores a pool member or a bonded pool. Pool block numbers are
// re-anchored to the destination clock.
func (in *Ingestor) nomPools(_ context.Context, raw []byte, batch database.Batch) error {
	e, err := records.Decode[records.NomPoolsEntry](raw)
	if err != nil {
		return err
	}
	in.translate(e)

	switch {
	case e.Member != nil:
		return in.putNew(e.Member, batch)
	case e.Pool != nil:
		in.conv.Pool(e.Pool)
		return in.putNew(e.Pool, batch)
	}
	return fmt.Errorf("%w: empty nomination pools entry", core.ErrDecode)
}
