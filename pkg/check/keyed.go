package check

import (
	"bytes"
	"context"
	"errors"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// DecodeFunc decodes a stored record.
type DecodeFunc func(key, value []byte) (records.Record, error)

// Decoder decodes values as T.
func Decoder[T any, PT interface {
	*T
	records.Record
}]() DecodeFunc {
	return func(_, value []byte) (records.Record, error) {
		v, err := records.Decode[T](value)
		if err != nil {
			return nil, err
		}
		return PT(v), nil
	}
}

// ConvertFunc rewrites a translated record into its destination form. It
// returns false for records that are not stored on the destination.
type ConvertFunc func(records.Record) bool

// Keyed checks a domain stored under one prefix. The source must be empty
// afterwards and every translated record must arrive on the destination.
type Keyed struct {
	Prefix     []byte
	Translator *account.Translator
	Decode     DecodeFunc
	// Convert is optional.
	Convert ConvertFunc
}

// expected maps destination keys to the translated encoding.
type expected map[string][]byte

func (k Keyed) PreCheck(_ context.Context, src database.Reader) (expected, error) {
	out := expected{}
	it := src.NewIterator(k.Prefix, nil)
	defer it.Release()
	for it.Next() {
		rec, err := k.Decode(it.Key(), it.Value())
		if err != nil {
			return nil, failf("undecodable record at %x: %v", it.Key(), err)
		}
		rec.Translate(k.Translator.Translate)
		if k.Convert != nil && !k.Convert(rec) {
			continue
		}
		enc, err := records.Encode(rec)
		if err != nil {
			return nil, err
		}
		out[string(rec.Key())] = enc
	}
	return out, it.Error()
}

func (k Keyed) PostCheck(_ context.Context, src database.Reader, _ expected) error {
	n, err := database.Count(src, k.Prefix)
	if err != nil {
		return err
	}
	if n != 0 {
		return failf("%d records left on the source under %q", n, k.Prefix)
	}
	return nil
}

// KeyedDestination verifies that every record of a Keyed domain arrived
// byte for byte. Keys that were already occupied before the migration are
// skipped.
type KeyedDestination struct{}

func (KeyedDestination) PreCheck(_ context.Context, dst database.Reader, src expected) (map[string]bool, error) {
	occupied := map[string]bool{}
	for key := range src {
		ok, err := dst.Has([]byte(key))
		if err != nil {
			return nil, err
		}
		if ok {
			occupied[key] = true
		}
	}
	return occupied, nil
}

func (KeyedDestination) PostCheck(_ context.Context, dst database.Reader, src expected, occupied map[string]bool) error {
	for key, want := range src {
		if occupied[key] {
			continue
		}
		got, err := dst.Get([]byte(key))
		if errors.Is(err, core.ErrNotFound) {
			return failf("record %x missing on the destination", key)
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(got, want) {
			return failf("record %x differs on the destination", key)
		}
	}
	return nil
}

// KeyedDomain returns the check pair of a keyed domain.
func KeyedDomain(name string, k Keyed) Check {
	return Domain[expected, map[string]bool](name, k, KeyedDestination{})
}

// Removed returns a check that only requires the source prefix to be empty,
// for domains that are not stored on the destination.
func Removed(name string, prefix []byte) Check {
	return Domain[expected, struct{}](name, removed{prefix: prefix}, nil)
}

type removed struct {
	prefix []byte
}

func (r removed) PreCheck(context.Context, database.Reader) (expected, error) {
	return nil, nil
}

func (r removed) PostCheck(_ context.Context, src database.Reader, _ expected) error {
	n, err := database.Count(src, r.prefix)
	if err != nil {
		return err
	}
	if n != 0 {
		return failf("%d records left on the source under %q", n, r.prefix)
	}
	return nil
}
