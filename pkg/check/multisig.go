package check

import (
	"context"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// Multisigs checks that pending multisigs leave the source and that every
// creator, whose deposit was released, has an account on the destination.
type Multisigs struct {
	Translator *account.Translator
}

func (m Multisigs) PreCheck(_ context.Context, src database.Reader) ([]account.ID, error) {
	var creators []account.ID
	it := src.NewIterator(records.MultisigPrefix, nil)
	defer it.Release()
	for it.Next() {
		ms, err := records.Decode[records.Multisig](it.Value())
		if err != nil {
			return nil, failf("undecodable multisig at %x: %v", it.Key(), err)
		}
		creators = append(creators, m.Translator.Translate(ms.Creator))
	}
	return creators, it.Error()
}

func (Multisigs) PostCheck(_ context.Context, src database.Reader, _ []account.ID) error {
	n, err := database.Count(src, records.MultisigPrefix)
	if err != nil {
		return err
	}
	if n != 0 {
		return failf("%d multisigs left on the source", n)
	}
	return nil
}

// MultisigsDestination requires the translated creators on the destination.
type MultisigsDestination struct{}

func (MultisigsDestination) PreCheck(context.Context, database.Reader, []account.ID) (struct{}, error) {
	return struct{}{}, nil
}

func (MultisigsDestination) PostCheck(_ context.Context, dst database.Reader, creators []account.ID, _ struct{}) error {
	for _, who := range creators {
		ok, err := dst.Has(records.AccountKey(who))
		if err != nil {
			return err
		}
		if !ok {
			return failf("multisig creator %s has no destination account", who)
		}
	}
	return nil
}
