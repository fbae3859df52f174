package elfedit

import (
	"bytes"
	"debug/elf"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const (
	defaultPageSize = 0x1000
	largePageSize   = 0x10000

	// verNdxGlobal is the version index of unversioned global symbols.
	verNdxGlobal = 1
)

// table is a dynamic table rebuilt and moved into the new segment.
type table struct {
	section int
	tags    []elf.DynTag
	data    []byte
	align   int

	off  uint64
	addr uint64
}

// Write serializes the binary to path, overwriting any existing file. The
// output keeps the permissions of the parsed file. A failed write removes
// the partial output.
func (b *Binary) Write(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}

	mode := os.FileMode(0o755)
	if b.path != "" {
		if fi, err := b.fs.Stat(b.path); err == nil {
			mode = fi.Mode().Perm()
		}
	}

	err = afero.WriteFile(b.fs, path, data, mode)
	if err == nil {
		// An existing file keeps its mode through WriteFile.
		err = b.fs.Chmod(path, mode)
	}
	if err != nil {
		var result error = errors.Wrapf(err, "failed to write %s", path)
		if rmErr := b.fs.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			result = multierror.Append(result, errors.Wrap(rmErr, "failed to remove partial output"))
		}
		return result
	}
	b.logger.Debug().
		Str("path", path).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("wrote binary")

	return nil
}

// Bytes serializes the binary in memory.
func (b *Binary) Bytes() ([]byte, error) {
	if len(b.added) == 0 {
		return bytes.Clone(b.raw), nil
	}
	if b.dynsym == 0 {
		return nil, ErrNoDynamicSymbols
	}
	if b.file.Machine == elf.EM_MIPS {
		return nil, errors.Wrap(ErrUnsupportedMachine, "MIPS dynamic symbol order is bound to the GOT")
	}

	hdr, err := b.codec.decodeHeader(b.raw)
	if err != nil {
		return nil, err
	}

	syms := append(slices.Clone(b.symbols), b.added...)
	strtab := bytes.Clone(b.strtab)
	for i := len(b.symbols); i < len(syms); i++ {
		syms[i].nameOff = uint32(len(strtab))
		strtab = append(strtab, syms[i].Name...)
		strtab = append(strtab, 0)
	}

	gnuSec := b.sectionIndexByType(elf.SHT_GNU_HASH)
	sysvSec := b.sectionIndexByType(elf.SHT_HASH)
	verSec := b.sectionIndexByType(elf.SHT_GNU_VERSYM)
	if gnuSec == 0 && sysvSec == 0 {
		return nil, ErrNoHashTable
	}

	// order[new] is the old index of the symbol stored at new.
	order := make([]int, len(syms))
	for i := range order {
		order[i] = i
	}
	var gnuData []byte
	if gnuSec != 0 {
		data, err := b.file.Sections[gnuSec].Data()
		if err != nil {
			return nil, errors.Wrap(err, "error reading GNU hash table")
		}
		params, err := b.codec.readGNUHashParams(data)
		if err != nil {
			return nil, err
		}
		params = params.normalize(len(syms))
		order = gnuHashOrder(lo.Map(syms, func(s Symbol, _ int) string { return s.Name }), params)
		syms = lo.Map(order, func(old int, _ int) Symbol { return syms[old] })
		gnuData = b.codec.buildGNUHash(lo.Map(syms, func(s Symbol, _ int) string { return s.Name }), params)
	}
	names := lo.Map(syms, func(s Symbol, _ int) string { return s.Name })

	var sysvData []byte
	if sysvSec != 0 {
		data, err := b.file.Sections[sysvSec].Data()
		if err != nil {
			return nil, errors.Wrap(err, "error reading SysV hash table")
		}
		var nbucket uint32
		if len(data) >= 4 {
			nbucket = b.codec.order.Uint32(data)
		}
		sysvData = b.codec.buildSysvHash(names, nbucket)
	}

	symData := make([]byte, len(syms)*b.codec.symSize())
	for i, s := range syms {
		if err := b.codec.encodeSym(symData[i*b.codec.symSize():], s.raw()); err != nil {
			return nil, errors.Wrap(err, "error encoding dynamic symbol")
		}
	}

	tables := []*table{
		{section: b.dynsym, tags: []elf.DynTag{elf.DT_SYMTAB}, data: symData, align: b.codec.wordSize()},
	}
	if verSec != 0 {
		versym, err := b.versym(verSec, order)
		if err != nil {
			return nil, err
		}
		tables = append(tables, &table{section: verSec, tags: []elf.DynTag{elf.DT_VERSYM}, data: versym, align: 2})
	}
	tables = append(tables, &table{
		section: int(b.file.Sections[b.dynsym].Link),
		tags:    []elf.DynTag{elf.DT_STRTAB},
		data:    strtab,
		align:   1,
	})
	if gnuSec != 0 {
		tables = append(tables, &table{section: gnuSec, tags: []elf.DynTag{elf.DT_GNU_HASH}, data: gnuData, align: b.codec.wordSize()})
	}
	if sysvSec != 0 {
		tables = append(tables, &table{section: sysvSec, tags: []elf.DynTag{elf.DT_HASH}, data: sysvData, align: 4})
	}

	out, err := b.layout(hdr, tables)
	if err != nil {
		return nil, err
	}
	if err := b.patchDynamic(out, tables, uint64(len(strtab))); err != nil {
		return nil, err
	}
	if err := b.patchSections(out, hdr, tables); err != nil {
		return nil, err
	}
	if err := b.patchRelocations(out, order); err != nil {
		return nil, err
	}

	return out, nil
}

func (b *Binary) sectionIndexByType(typ elf.SectionType) int {
	for i, s := range b.file.Sections {
		if s.Type == typ {
			return i
		}
	}
	return 0
}

// versym rebuilds the symbol version table in the new symbol order. Added
// symbols are unversioned globals.
func (b *Binary) versym(idx int, order []int) ([]byte, error) {
	old, err := b.file.Sections[idx].Data()
	if err != nil {
		return nil, errors.Wrap(err, "error reading symbol version table")
	}
	data := make([]byte, 2*len(order))
	for i, o := range order {
		v := uint16(verNdxGlobal)
		if 2*o+2 <= len(old) {
			v = b.codec.order.Uint16(old[2*o:])
		}
		b.codec.order.PutUint16(data[2*i:], v)
	}
	return data, nil
}

// segmentAlign returns the alignment of the appended segment: the largest
// alignment of the existing loadable segments, never below the machine's
// page size.
func (b *Binary) segmentAlign(loads []*elf.Prog) uint64 {
	align := uint64(defaultPageSize)
	switch b.file.Machine {
	case elf.EM_AARCH64, elf.EM_PPC64:
		align = largePageSize
	}
	for _, p := range loads {
		if p.Align > align && p.Align&(p.Align-1) == 0 {
			align = p.Align
		}
	}
	return align
}

// interpreted reports whether the image is an executable started through
// a program interpreter.
func (b *Binary) interpreted() bool {
	return lo.ContainsBy(b.file.Progs, func(p *elf.Prog) bool { return p.Type == elf.PT_INTERP })
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// layout places the relocated program header table and the rebuilt tables
// in a new read-only PT_LOAD segment after every existing segment, and
// returns the new image.
func (b *Binary) layout(hdr fileHeader, tables []*table) ([]byte, error) {
	loads := lo.Filter(b.file.Progs, func(p *elf.Prog, _ int) bool { return p.Type == elf.PT_LOAD })
	if len(loads) == 0 {
		return nil, ErrNoLoadSegment
	}
	first := lo.MinBy(loads, func(x, y *elf.Prog) bool { return x.Vaddr < y.Vaddr })
	memEnd := lo.Max(lo.Map(loads, func(p *elf.Prog, _ int) uint64 { return p.Vaddr + p.Memsz }))

	page := b.segmentAlign(loads)
	off := alignUp(uint64(len(b.raw)), page)
	vaddr := alignUp(memEnd, page)
	if delta := first.Vaddr - first.Off; b.interpreted() && delta%page == 0 {
		// Kernels before 5.18 derive AT_PHDR from e_phoff and the first
		// segment's vaddr-offset, so the program headers of an executable
		// must keep that distance. The gap up to the end of memory,
		// .bss included, is then padded in the file.
		if off+delta < vaddr {
			off = vaddr - delta
		}
		vaddr = off + delta
	}

	phentsize := uint64(hdr.phentsize)
	if phentsize == 0 {
		phentsize = uint64(b.codec.progSize())
	}
	phnum := len(b.file.Progs) + 1
	if phnum > 0xffff {
		return nil, errors.Wrap(ErrMalformed, "too many program headers")
	}

	size := uint64(phnum) * phentsize
	for _, t := range tables {
		size = alignUp(size, uint64(t.align))
		t.off = off + size
		t.addr = vaddr + size
		size += uint64(len(t.data))
	}

	progs := make([]elf.ProgHeader, 0, phnum)
	lastLoad := 0
	for i, p := range b.file.Progs {
		if p.Type == elf.PT_LOAD {
			lastLoad = i
		}
	}
	for i, p := range b.file.Progs {
		ph := p.ProgHeader
		if ph.Type == elf.PT_PHDR {
			ph.Off, ph.Vaddr, ph.Paddr = off, vaddr, vaddr
			ph.Filesz = uint64(phnum) * phentsize
			ph.Memsz = ph.Filesz
		}
		progs = append(progs, ph)
		if i == lastLoad {
			progs = append(progs, elf.ProgHeader{
				Type:   elf.PT_LOAD,
				Flags:  elf.PF_R,
				Off:    off,
				Vaddr:  vaddr,
				Paddr:  vaddr,
				Filesz: size,
				Memsz:  size,
				Align:  page,
			})
		}
	}

	out := make([]byte, off+size)
	copy(out, b.raw)
	for i, p := range progs {
		if err := b.codec.encodeProg(out[off+uint64(i)*phentsize:], p); err != nil {
			return nil, errors.Wrap(err, "error encoding program header")
		}
	}
	for _, t := range tables {
		copy(out[t.off:], t.data)
	}
	if err := b.codec.patchHeader(out, off, uint16(phnum)); err != nil {
		return nil, err
	}
	b.logger.Debug().
		Uint64("offset", off).
		Uint64("vaddr", vaddr).
		Str("size", humanize.Bytes(size)).
		Msg("appended dynamic tables segment")

	return out, nil
}

// patchDynamic points the dynamic section at the relocated tables.
func (b *Binary) patchDynamic(out []byte, tables []*table, strsz uint64) error {
	dyn, ok := lo.Find(b.file.Progs, func(p *elf.Prog) bool { return p.Type == elf.PT_DYNAMIC })
	if !ok {
		return errors.Wrap(ErrMalformed, "binary has a dynamic symbol table but no dynamic segment")
	}

	addrs := make(map[elf.DynTag]uint64)
	for _, t := range tables {
		for _, tag := range t.tags {
			addrs[tag] = t.addr
		}
	}

	size := uint64(b.codec.dynSize())
	for off := dyn.Off; off+size <= dyn.Off+dyn.Filesz && off+size <= uint64(len(out)); off += size {
		tag, val, err := b.codec.decodeDyn(out[off:])
		if err != nil {
			return errors.Wrap(err, "error decoding dynamic entry")
		}
		if tag == elf.DT_NULL {
			break
		}
		if addr, ok := addrs[tag]; ok {
			val = addr
		} else if tag == elf.DT_STRSZ {
			val = strsz
		} else {
			continue
		}
		if err := b.codec.encodeDyn(out[off:], tag, val); err != nil {
			return errors.Wrap(err, "error encoding dynamic entry")
		}
	}

	return nil
}

// patchSections points the section headers of the moved tables at their
// new location.
func (b *Binary) patchSections(out []byte, hdr fileHeader, tables []*table) error {
	if hdr.shoff == 0 {
		return nil
	}
	for _, t := range tables {
		off := hdr.shoff + uint64(t.section)*uint64(hdr.shentsize)
		if off+uint64(hdr.shentsize) > uint64(len(out)) {
			return errors.Wrapf(ErrMalformed, "section header %d is out of bounds", t.section)
		}
		if err := b.codec.patchSection(out[off:], t.off, t.addr, uint64(len(t.data))); err != nil {
			return errors.Wrapf(err, "error patching section header %d", t.section)
		}
	}
	return nil
}

// patchRelocations renumbers the symbol references of the relocation
// sections bound to the dynamic symbol table.
func (b *Binary) patchRelocations(out []byte, order []int) error {
	moved := make(map[uint32]uint32)
	for newIdx, oldIdx := range order {
		if newIdx != oldIdx {
			moved[uint32(oldIdx)] = uint32(newIdx)
		}
	}
	if len(moved) == 0 {
		return nil
	}

	for i, s := range b.file.Sections {
		if (s.Type != elf.SHT_RELA && s.Type != elf.SHT_REL) || int(s.Link) != b.dynsym {
			continue
		}
		entsize := s.Entsize
		if entsize == 0 {
			return errors.Wrapf(ErrMalformed, "relocation section %s has no entry size", s.Name)
		}
		if s.Offset+s.Size > uint64(len(out)) {
			return errors.Wrapf(ErrMalformed, "relocation section %s is out of bounds", s.Name)
		}
		var patched int
		for off := s.Offset; off+entsize <= s.Offset+s.Size; off += entsize {
			sym := b.codec.relocSym(out[off:])
			if newSym, ok := moved[sym]; ok {
				b.codec.setRelocSym(out[off:], newSym)
				patched++
			}
		}
		b.logger.Debug().Int("section", i).Str("name", s.Name).Int("patched", patched).Msg("renumbered relocations")
	}

	return nil
}
