package check

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/balance"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// AccountsSource records the issuance held on the source.
type AccountsSource struct{}

type accountsPre struct {
	Accounts uint64
	Total    *uint256.Int
}

func (AccountsSource) PreCheck(_ context.Context, src database.Reader) (accountsPre, error) {
	s, err := balance.New(src).Summarize()
	if err != nil {
		return accountsPre{}, err
	}
	return accountsPre{Accounts: s.Accounts, Total: s.Total()}, nil
}

func (AccountsSource) PostCheck(_ context.Context, src database.Reader, _ accountsPre) error {
	n, err := database.Count(src, records.AccountPrefix)
	if err != nil {
		return err
	}
	if n != 0 {
		return failf("%d accounts left on the source", n)
	}
	return nil
}

// AccountsDestination verifies that the destination issuance grew by exactly
// the source issuance.
type AccountsDestination struct{}

func (AccountsDestination) PreCheck(_ context.Context, dst database.Reader, _ accountsPre) (*uint256.Int, error) {
	s, err := balance.New(dst).Summarize()
	if err != nil {
		return nil, err
	}
	return s.Total(), nil
}

func (AccountsDestination) PostCheck(_ context.Context, dst database.Reader, src accountsPre, before *uint256.Int) error {
	s, err := balance.New(dst).Summarize()
	if err != nil {
		return err
	}
	want := new(uint256.Int).Add(before, src.Total)
	if got := s.Total(); !got.Eq(want) {
		return failf("destination issuance %s, want %s (%s before plus %s migrated)", got.Dec(), want.Dec(), before.Dec(), src.Total.Dec())
	}
	return nil
}
