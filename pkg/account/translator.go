package account

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

var (
	// SourcePrefix tags the sovereign account of a child chain on the source chain.
	SourcePrefix = []byte("para")
	// DestinationPrefix tags the sovereign account of a sibling chain on the destination.
	DestinationPrefix = []byte("sibl")

	derivationSeed = []byte("modlpy/utilisuba")
)

// ParaSovereign returns the source-side sovereign account of a child chain.
func ParaSovereign(paraID uint16) ID {
	return sovereign(SourcePrefix, paraID)
}

// SiblingSovereign returns the destination-side sovereign account of a chain.
func SiblingSovereign(paraID uint16) ID {
	return sovereign(DestinationPrefix, paraID)
}

func sovereign(prefix []byte, paraID uint16) ID {
	var id ID
	copy(id[:], prefix)
	binary.LittleEndian.PutUint16(id[len(prefix):], paraID)
	return id
}

// TranslateSovereign maps a source sovereign account onto its destination
// counterpart. Accounts that do not have the exact sovereign layout are
// returned unchanged with ok == false.
func TranslateSovereign(a ID) (translated ID, paraID uint16, ok bool) {
	if !bytes.HasPrefix(a[:], SourcePrefix) {
		return a, 0, false
	}
	tail := a[len(SourcePrefix)+2:]
	for _, b := range tail {
		if b != 0 {
			return a, 0, false
		}
	}
	paraID = binary.LittleEndian.Uint16(a[len(SourcePrefix):])
	return SiblingSovereign(paraID), paraID, true
}

// Derive returns the derivative account of parent at index.
func Derive(parent ID, index uint16) ID {
	buf := make([]byte, 0, len(derivationSeed)+IDLength+2)
	buf = append(buf, derivationSeed...)
	buf = append(buf, parent[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, index)
	return ID(blake2b.Sum256(buf))
}

// Entry maps a derived source account to its destination counterpart.
type Entry struct {
	From   ID
	To     ID
	ParaID uint16
	Index  uint16
}

// Table is a sorted lookup of derived accounts. It is immutable once built.
type Table struct {
	entries []Entry
}

// BuildTable derives every (para id, index) combination of sovereign accounts.
func BuildTable(paraIDs []uint16, indices []uint16) (*Table, error) {
	entries := make([]Entry, 0, len(paraIDs)*len(indices))
	for _, id := range paraIDs {
		from, to := ParaSovereign(id), SiblingSovereign(id)
		for _, idx := range indices {
			entries = append(entries, Entry{
				From:   Derive(from, idx),
				To:     Derive(to, idx),
				ParaID: id,
				Index:  idx,
			})
		}
	}
	return NewTable(entries)
}

// NewTable sorts and validates entries.
func NewTable(entries []Entry) (*Table, error) {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if bytes.HasPrefix(e.From[:], DestinationPrefix) {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].From[:], sorted[j].From[:]) < 0
	})

	t := &Table{entries: sorted}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].From == sorted[i-1].From {
			return nil, fmt.Errorf("duplicate derived account %s", sorted[i].From)
		}
	}
	// a target that is itself a source key would break idempotence
	for _, e := range sorted {
		if _, ok := t.Lookup(e.To); ok {
			return nil, fmt.Errorf("derived account %s is both source and target", e.To)
		}
	}
	return t, nil
}

// Lookup finds the entry for a source account.
func (t *Table) Lookup(a ID) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	i := sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].From[:], a[:]) >= 0
	})
	if i < len(t.entries) && t.entries[i].From == a {
		return t.entries[i], true
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Translator converts source accounts into destination accounts.
type Translator struct {
	table *Table
}

// NewTranslator creates a translator. A nil table only translates sovereign accounts.
func NewTranslator(table *Table) *Translator {
	return &Translator{table: table}
}

// Translate returns the destination account for a.
func (t *Translator) Translate(a ID) ID {
	to, _ := t.TranslateWithKind(a)
	return to
}

// Kind describes which rule translated an account.
type Kind uint8

const (
	Unchanged Kind = iota
	Sovereign
	Derived
)

func (k Kind) String() string {
	switch k {
	case Sovereign:
		return "sovereign"
	case Derived:
		return "derived"
	}
	return "unchanged"
}

// TranslateWithKind returns the destination account and the rule that applied.
func (t *Translator) TranslateWithKind(a ID) (ID, Kind) {
	if to, _, ok := TranslateSovereign(a); ok {
		return to, Sovereign
	}
	if t != nil {
		if e, ok := t.table.Lookup(a); ok {
			return e.To, Derived
		}
	}
	return a, Unchanged
}

// Translations counts table entries; zero for a sovereign-only translator.
func (t *Translator) Translations() int {
	if t == nil {
		return 0
	}
	return t.table.Len()
}
