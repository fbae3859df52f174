package symtable

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"

	"github.com/maxgio92/xexport/pkg/elfedit"
)

var (
	ErrSymNotFound   = errors.New("symbol not found")
	ErrSymTableEmpty = errors.New("symtable is empty")
)

// ELFSymTab resolves addresses to the sized, defined symbols of an ELF
// dynamic symbol table.
type ELFSymTab struct {
	Symtab []elfedit.Symbol
}

func NewELFSymTab() *ELFSymTab {
	tab := new(ELFSymTab)
	tab.Symtab = make([]elfedit.Symbol, 0)

	return tab
}

// Load stores the defined symbols of bin that cover an address range,
// ordered by address.
func (e *ELFSymTab) Load(bin *elfedit.Binary) error {
	// Skip load if the table has already been loaded.
	if len(e.Symtab) > 0 {
		return nil
	}

	for _, s := range bin.DynamicSymbols() {
		if !s.Defined() || s.Size == 0 {
			continue
		}
		e.Symtab = append(e.Symtab, s)
	}
	if len(e.Symtab) == 0 {
		return ErrSymTableEmpty
	}
	slices.SortStableFunc(e.Symtab, func(a, b elfedit.Symbol) int {
		return cmp.Compare(a.Value, b.Value)
	})

	return nil
}

// GetName returns the name of the symbol whose range holds ip.
func (e *ELFSymTab) GetName(ip uint64) (string, error) {
	if len(e.Symtab) == 0 {
		return "", ErrSymTableEmpty
	}
	for _, s := range e.Symtab {
		if s.Value > ip {
			break
		}
		if ip < s.Value+s.Size {
			return s.Name, nil
		}
	}

	return "", ErrSymNotFound
}
