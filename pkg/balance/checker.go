package balance

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// Config holds the configuration for the balance checker.
type Config struct {
	Backend database.DatabaseType
	DBPath  string
}

// Info holds the retrieved balances of an account.
type Info struct {
	Who      account.ID
	Free     *uint256.Int
	Reserved *uint256.Int
	Frozen   *uint256.Int
	Nonce    uint64
}

// Summary aggregates every account of a store.
type Summary struct {
	Accounts uint64
	Free     *uint256.Int
	Reserved *uint256.Int
}

// Total returns free plus reserved balance.
func (s Summary) Total() *uint256.Int {
	return new(uint256.Int).Add(s.Free, s.Reserved)
}

// Checker reads account balances from a store.
type Checker struct {
	db    database.Reader
	close func() error
}

// NewChecker opens the database at cfg.DBPath. An empty backend is detected
// from the files on disk.
func NewChecker(cfg Config) (*Checker, error) {
	typ := cfg.Backend
	if typ == "" {
		typ = database.DetectType(cfg.DBPath)
	}
	db, err := database.Open(typ, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database at %s: %w", typ, cfg.DBPath, err)
	}
	return &Checker{db: db, close: db.Close}, nil
}

// New returns a checker over an open store. Close is a no-op.
func New(db database.Reader) *Checker {
	return &Checker{db: db}
}

// GetBalance retrieves the balances of who.
func (c *Checker) GetBalance(who account.ID) (*Info, error) {
	data, err := c.db.Get(records.AccountKey(who))
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("no account %s: %w", who, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %w", who, err)
	}
	acc, err := records.Decode[records.Account](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", who, err)
	}
	return info(acc), nil
}

func info(acc *records.Account) *Info {
	return &Info{
		Who:      acc.Who,
		Free:     zero(acc.Free).Clone(),
		Reserved: zero(acc.Reserved).Clone(),
		Frozen:   zero(acc.Frozen).Clone(),
		Nonce:    acc.Nonce,
	}
}

// Each calls fn for every decodable account in key order.
func (c *Checker) Each(fn func(*Info) error) error {
	it := c.db.NewIterator(records.AccountPrefix, nil)
	defer it.Release()

	for it.Next() {
		acc, err := records.Decode[records.Account](it.Value())
		if err != nil {
			return fmt.Errorf("failed to decode account at %x: %w", it.Key(), err)
		}
		if err := fn(info(acc)); err != nil {
			return err
		}
	}
	return it.Error()
}

// Summarize sums the balances of every account.
func (c *Checker) Summarize() (Summary, error) {
	s := Summary{Free: new(uint256.Int), Reserved: new(uint256.Int)}
	err := c.Each(func(i *Info) error {
		s.Accounts++
		s.Free.Add(s.Free, i.Free)
		s.Reserved.Add(s.Reserved, i.Reserved)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}

// Close closes the underlying database if the checker opened it.
func (c *Checker) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func zero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
