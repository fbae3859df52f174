package elfedit

import (
	"debug/elf"
)

// sttGNUIFunc is the GNU indirect function type, sharing its value with
// STT_LOOS.
const sttGNUIFunc = elf.STT_LOOS

// Symbol is an entry of the dynamic symbol table.
type Symbol struct {
	Name    string
	Info    byte
	Other   byte
	Section elf.SectionIndex
	Value   uint64
	Size    uint64

	// Index is the position of the symbol in the dynamic symbol table
	// at the time it was read or added. Writing may reorder the hashed
	// part of the table.
	Index int

	nameOff uint32
}

func (s Symbol) Bind() elf.SymBind {
	return elf.ST_BIND(s.Info)
}

func (s Symbol) Type() elf.SymType {
	return elf.ST_TYPE(s.Info)
}

func (s Symbol) Visibility() elf.SymVis {
	return elf.ST_VISIBILITY(s.Other)
}

// Defined reports whether the symbol is provided by the binary itself.
func (s Symbol) Defined() bool {
	return s.Section != elf.SHN_UNDEF
}

// IsExportedFunction reports whether the dynamic loader can resolve the
// symbol as a function provided by the binary.
func (s Symbol) IsExportedFunction() bool {
	if !s.Defined() {
		return false
	}
	switch s.Bind() {
	case elf.STB_GLOBAL, elf.STB_WEAK:
	default:
		return false
	}
	switch s.Type() {
	case elf.STT_FUNC, sttGNUIFunc:
	default:
		return false
	}
	switch s.Visibility() {
	case elf.STV_HIDDEN, elf.STV_INTERNAL:
		return false
	}
	return true
}

func (s Symbol) raw() rawSymbol {
	return rawSymbol{
		name:  s.nameOff,
		info:  s.Info,
		other: s.Other,
		shndx: uint16(s.Section),
		value: s.Value,
		size:  s.Size,
	}
}

// cstring returns the NUL-terminated string starting at off in tab.
func cstring(tab []byte, off uint32) string {
	if int(off) >= len(tab) {
		return ""
	}
	end := int(off)
	for end < len(tab) && tab[end] != 0 {
		end++
	}
	return string(tab[off:end])
}
