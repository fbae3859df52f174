// Package elfedit parses ELF executables and shared objects, injects
// exported functions into their dynamic symbol table and serializes the
// result.
//
// The dynamic symbol table, its string table, version table and hash tables
// are rebuilt and relocated into a new read-only loadable segment appended
// to the file, so the existing code and data keep their addresses.
package elfedit

import (
	"bytes"
	"debug/elf"
	"slices"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// Binary is the in-memory, mutable representation of an ELF image.
type Binary struct {
	fs     afero.Fs
	logger log.Logger

	path  string
	raw   []byte
	file  *elf.File
	codec codec

	// dynsym is the section index of .dynsym, zero when absent.
	dynsym  int
	strtab  []byte
	symbols []Symbol
	added   []Symbol
}

func newBinary(opts ...Option) *Binary {
	b := &Binary{
		fs:     afero.NewOsFs(),
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Parse reads and parses the ELF file at path.
func Parse(path string, opts ...Option) (*Binary, error) {
	b := newBinary(opts...)
	raw, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read binary")
	}
	if err := b.load(raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	b.path = path

	return b, nil
}

// ParseBytes parses an ELF image held in memory.
func ParseBytes(raw []byte, opts ...Option) (*Binary, error) {
	b := newBinary(opts...)
	if err := b.load(bytes.Clone(raw)); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Binary) load(raw []byte) error {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "failed to open ELF file")
	}
	c, err := newCodec(f.Class, f.ByteOrder)
	if err != nil {
		return err
	}
	b.raw, b.file, b.codec = raw, f, c

	for i, s := range f.Sections {
		if s.Type == elf.SHT_DYNSYM {
			b.dynsym = i
			break
		}
	}
	if b.dynsym == 0 {
		b.logger.Debug().Msg("no dynamic symbol table found")
		return nil
	}

	return b.loadDynamicSymbols()
}

func (b *Binary) loadDynamicSymbols() error {
	sec := b.file.Sections[b.dynsym]
	if int(sec.Link) == 0 || int(sec.Link) >= len(b.file.Sections) {
		return errors.Wrapf(ErrMalformed, "dynamic symbol table links to section %d", sec.Link)
	}
	strtab, err := b.file.Sections[sec.Link].Data()
	if err != nil {
		return errors.Wrap(err, "error reading dynamic string table")
	}
	data, err := sec.Data()
	if err != nil {
		return errors.Wrap(err, "error reading dynamic symbol table")
	}
	size := b.codec.symSize()
	if len(data)%size != 0 {
		return errors.Wrap(ErrMalformed, "dynamic symbol table size is not a multiple of the entry size")
	}

	b.strtab = strtab
	b.symbols = make([]Symbol, 0, len(data)/size)
	for off := 0; off < len(data); off += size {
		raw, err := b.codec.decodeSym(data[off:])
		if err != nil {
			return errors.Wrap(err, "error decoding dynamic symbol")
		}
		b.symbols = append(b.symbols, Symbol{
			Name:    cstring(strtab, raw.name),
			Info:    raw.info,
			Other:   raw.other,
			Section: elf.SectionIndex(raw.shndx),
			Value:   raw.value,
			Size:    raw.size,
			Index:   len(b.symbols),
			nameOff: raw.name,
		})
	}
	b.logger.Debug().Int("symbols", len(b.symbols)).Msg("loaded dynamic symbol table")

	return nil
}

// AddExportedFunction registers a new global function symbol named name at
// address addr. No range, alignment or collision checks are performed.
func (b *Binary) AddExportedFunction(addr uint64, name string) (Symbol, error) {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return Symbol{}, errors.Wrapf(ErrInvalidSymbolName, "%q", name)
	}
	if b.dynsym == 0 {
		return Symbol{}, ErrNoDynamicSymbols
	}

	sym := Symbol{
		Name:    name,
		Info:    elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		Other:   byte(elf.STV_DEFAULT),
		Section: b.sectionAt(addr),
		Value:   addr,
		Index:   len(b.symbols) + len(b.added),
	}
	b.added = append(b.added, sym)
	b.logger.Debug().
		Str("name", name).
		Uint64("address", addr).
		Int("section", int(sym.Section)).
		Msg("added exported function")

	return sym, nil
}

// sectionAt returns the index of the allocated section holding addr, or
// SHN_ABS when none does.
func (b *Binary) sectionAt(addr uint64) elf.SectionIndex {
	for i, s := range b.file.Sections {
		if i == 0 || s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		if addr >= s.Addr && addr < s.Addr+s.Size && i < int(elf.SHN_LORESERVE) {
			return elf.SectionIndex(i)
		}
	}
	return elf.SHN_ABS
}

// DynamicSymbols returns the dynamic symbol table, including the symbols
// added since the binary was parsed. The null symbol is omitted.
func (b *Binary) DynamicSymbols() []Symbol {
	all := append(slices.Clone(b.symbols), b.added...)
	if len(all) == 0 {
		return nil
	}
	return all[1:]
}

// ExportedFunctions returns the functions the binary exports to the dynamic
// loader, in table order.
func (b *Binary) ExportedFunctions() []Symbol {
	return lo.Filter(b.DynamicSymbols(), func(s Symbol, _ int) bool {
		return s.IsExportedFunction()
	})
}

// Lookup resolves a defined dynamic symbol by name through the binary's
// hash table, the same way the dynamic loader does. Symbols added since
// parsing are only resolvable after the binary is written and re-parsed.
func (b *Binary) Lookup(name string) (Symbol, bool) {
	if b.dynsym == 0 {
		return Symbol{}, false
	}
	names := lo.Map(b.symbols, func(s Symbol, _ int) string { return s.Name })

	var (
		idx   int
		found bool
	)
	if sec := b.file.SectionByType(elf.SHT_GNU_HASH); sec != nil {
		if data, err := sec.Data(); err == nil {
			idx, found = b.codec.lookupGNU(data, names, name)
		}
	} else if sec := b.file.SectionByType(elf.SHT_HASH); sec != nil {
		if data, err := sec.Data(); err == nil {
			idx, found = b.codec.lookupSysv(data, names, name)
		}
	}
	if !found || !b.symbols[idx].Defined() {
		return Symbol{}, false
	}
	return b.symbols[idx], true
}

// Section returns the name of the section with index idx.
func (b *Binary) Section(idx elf.SectionIndex) string {
	switch {
	case idx == elf.SHN_ABS:
		return "ABS"
	case idx == elf.SHN_UNDEF:
		return "UND"
	case int(idx) < len(b.file.Sections):
		return b.file.Sections[idx].Name
	}
	return ""
}

// Read returns up to n bytes of file-backed content mapped at addr.
func (b *Binary) Read(addr uint64, n int) ([]byte, error) {
	for _, p := range b.file.Progs {
		if p.Type != elf.PT_LOAD || addr < p.Vaddr || addr >= p.Vaddr+p.Filesz {
			continue
		}
		off := p.Off + (addr - p.Vaddr)
		end := min(off+uint64(n), p.Off+p.Filesz, uint64(len(b.raw)))
		if off >= end {
			break
		}
		return bytes.Clone(b.raw[off:end]), nil
	}
	return nil, errors.Wrapf(ErrAddressNotMapped, "%#x", addr)
}

func (b *Binary) Machine() elf.Machine {
	return b.file.Machine
}

func (b *Binary) Class() elf.Class {
	return b.file.Class
}

// Size returns the size of the parsed image in bytes.
func (b *Binary) Size() int {
	return len(b.raw)
}
