package ingest

import (
	"context"

	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// proxies stores the delegates of a delegator. The deposit already moved
// with the account.
func (in *Ingestor) proxies(_ context.Context, raw []byte, batch database.Batch) error {
	p, err := records.Decode[records.Proxies](raw)
	if err != nil {
		return err
	}
	in.translate(p)

	dropped, truncated := in.conv.Proxies(p)
	for _, def := range dropped {
		in.env.Log.Info("Dropping unsupported proxy kind", "type", def.Type, "delegate", def.Delegate, "delegator", p.Delegator)
	}
	if truncated > 0 {
		in.env.Log.Warn("Truncating proxy list", "delegator", p.Delegator, "truncated", truncated, "max", in.env.Config.MaxProxies)
	}
	return in.putNew(p, batch)
}
