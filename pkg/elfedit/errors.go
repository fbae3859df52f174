package elfedit

import (
	"github.com/pkg/errors"
)

var (
	ErrNoDynamicSymbols   = errors.New("binary has no dynamic symbol table")
	ErrNoHashTable        = errors.New("binary has neither a GNU nor a SysV hash table")
	ErrNoLoadSegment      = errors.New("binary has no loadable segment")
	ErrInvalidSymbolName  = errors.New("invalid symbol name")
	ErrUnsupportedClass   = errors.New("unsupported ELF class")
	ErrUnsupportedMachine = errors.New("unsupported machine")
	ErrAddressNotMapped   = errors.New("address is not mapped by any loadable segment")
	ErrMalformed          = errors.New("malformed ELF file")
)
