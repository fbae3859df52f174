// Package elftest synthesizes minimal dynamically linked ELF images for
// tests.
//
// The generated image is laid out like a small shared object: the dynamic
// tables follow the program headers in a read-execute segment together with
// .text and .rodata, and .dynamic and .data live in a read-write segment.
// Loadable sections have their virtual address equal to their file offset.
package elftest

import (
	"cmp"
	"debug/elf"
	"encoding/binary"
	"slices"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	TextAddr   = 0x1000
	TextSize   = 0x100
	RodataAddr = TextAddr + TextSize
	RodataSize = 0x40
	DataAddr   = 0x2000

	SOName = "libfixture.so"
	Needed = "libc.so.6"
)

// HashStyle selects the symbol hash tables of a generated image.
type HashStyle int

const (
	HashGNU HashStyle = iota
	HashSysV
	HashBoth
	HashNone
)

func (h HashStyle) gnu() bool  { return h == HashGNU || h == HashBoth }
func (h HashStyle) sysv() bool { return h == HashSysV || h == HashBoth }

// Symbol describes a dynamic symbol of a generated image. Symbols are global
// functions unless marked otherwise.
type Symbol struct {
	Name      string
	Value     uint64
	Size      uint64
	Weak      bool
	Object    bool
	Undefined bool
}

// Reloc is a dynamic relocation against a named symbol. Relocations are
// placed in .data, one address-sized slot each.
type Reloc struct {
	Symbol string
	Type   uint32
}

var (
	DefaultSymbols = []Symbol{
		{Name: "puts", Undefined: true},
		{Name: "__cxa_finalize", Undefined: true, Weak: true},
		{Name: "alpha", Value: TextAddr, Size: 0x10},
		{Name: "beta", Value: TextAddr + 0x20, Size: 0x10},
		{Name: "_ZN3foo3barEv", Value: TextAddr + 0x40, Size: 0x10},
		{Name: "weak_fn", Value: TextAddr + 0x60, Size: 0x10, Weak: true},
		{Name: "answer", Value: RodataAddr, Size: 4, Object: true},
	}

	// DefaultRelocations use the x86 relocation numbers, which are shared
	// by R_X86_64 and R_386: 6 is GLOB_DAT and 1 is the absolute word.
	DefaultRelocations = []Reloc{
		{Symbol: "puts", Type: 6},
		{Symbol: "beta", Type: 1},
		{Symbol: "answer", Type: 6},
		{Symbol: "__cxa_finalize", Type: 6},
	}
)

type config struct {
	class   elf.Class
	machine elf.Machine
	hash    HashStyle
	buckets uint32
	symbols []Symbol
	relocs  []Reloc
	text    []byte
	static  bool
	interp  string
	bss     uint64
	align   uint64
}

type Option func(*config)

// WithClass selects a 32 or 64-bit image. 32-bit images default to EM_386
// and use REL relocations.
func WithClass(class elf.Class) Option {
	return func(c *config) {
		c.class = class
	}
}

func WithMachine(machine elf.Machine) Option {
	return func(c *config) {
		c.machine = machine
	}
}

func WithHashStyle(style HashStyle) Option {
	return func(c *config) {
		c.hash = style
	}
}

// WithBuckets sets the bucket count of the generated hash tables.
func WithBuckets(n uint32) Option {
	return func(c *config) {
		c.buckets = n
	}
}

func WithSymbols(symbols ...Symbol) Option {
	return func(c *config) {
		c.symbols = symbols
	}
}

func WithRelocations(relocs ...Reloc) Option {
	return func(c *config) {
		c.relocs = relocs
	}
}

// WithText sets the leading bytes of .text. The rest is filled with 0xc3.
func WithText(code []byte) Option {
	return func(c *config) {
		c.text = code
	}
}

// WithInterp adds a PT_INTERP segment naming the program interpreter, as
// in a position-independent executable.
func WithInterp(path string) Option {
	return func(c *config) {
		c.interp = path
	}
}

// WithBSS extends the memory size of the read-write segment by size
// zero-initialized bytes that take no room in the file.
func WithBSS(size uint64) Option {
	return func(c *config) {
		c.bss = size
	}
}

// WithSegmentAlign sets the alignment of the loadable segments.
func WithSegmentAlign(align uint64) Option {
	return func(c *config) {
		c.align = align
	}
}

// Static generates an image without any dynamic linking information.
func Static() Option {
	return func(c *config) {
		c.static = true
	}
}

// Build generates an ELF image. It panics on inconsistent options, such as
// a relocation against an unknown symbol.
func Build(opts ...Option) []byte {
	c := &config{
		class:   elf.ELFCLASS64,
		hash:    HashGNU,
		buckets: 3,
		symbols: DefaultSymbols,
		relocs:  DefaultRelocations,
		align:   0x1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.machine == elf.EM_NONE {
		c.machine = elf.EM_X86_64
		if c.class == elf.ELFCLASS32 {
			c.machine = elf.EM_386
		}
	}
	if c.buckets == 0 {
		c.buckets = 1
	}

	return newBuilder(c).build()
}

// WriteFile generates an ELF image and stores it at path.
func WriteFile(t testing.TB, fs afero.Fs, path string, opts ...Option) []byte {
	t.Helper()

	raw := Build(opts...)
	require.NoError(t, afero.WriteFile(fs, path, raw, 0o755))

	return raw
}

// GNUHash is the DT_GNU_HASH hash function.
func GNUHash(name string) uint32 {
	h := uint32(5381)
	for _, c := range []byte(name) {
		h = h*33 + uint32(c)
	}
	return h
}

// SysvHash is the DT_HASH hash function.
func SysvHash(name string) uint32 {
	var h uint32
	for _, c := range []byte(name) {
		h = h<<4 + uint32(c)
		g := h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &^= g
	}
	return h
}

type section struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	link    string
	info    uint32
	align   uint64
	entsize uint64

	off    uint64
	size   uint64
	placed bool
}

type builder struct {
	*config
	order binary.ByteOrder
	plan  []string
	secs  map[string]*section
	out   []byte

	symbols []Symbol
	dynstr  []byte
	strOffs map[string]uint32
}

func newBuilder(c *config) *builder {
	b := &builder{
		config: c,
		order:  binary.LittleEndian,
		secs:   make(map[string]*section),
	}
	if !c.static {
		if c.interp != "" {
			b.plan = append(b.plan, ".interp")
		}
		if c.hash.sysv() {
			b.plan = append(b.plan, ".hash")
		}
		if c.hash.gnu() {
			b.plan = append(b.plan, ".gnu.hash")
		}
		b.plan = append(b.plan, ".dynsym", ".dynstr", ".gnu.version", b.relName())
	}
	b.plan = append(b.plan, ".text", ".rodata")
	if !c.static {
		b.plan = append(b.plan, ".dynamic", ".data")
	}
	b.plan = append(b.plan, ".shstrtab")

	return b
}

func (b *builder) is64() bool {
	return b.class == elf.ELFCLASS64
}

func (b *builder) relName() string {
	if b.is64() {
		return ".rela.dyn"
	}
	return ".rel.dyn"
}

func (b *builder) wordSize() uint64 {
	if b.is64() {
		return 8
	}
	return 4
}

func (b *builder) encode(v any) []byte {
	buf, err := binary.Append(nil, b.order, v)
	if err != nil {
		panic(err)
	}
	return buf
}

func (b *builder) index(name string) uint32 {
	i := slices.Index(b.plan, name)
	if i < 0 {
		return 0
	}
	return uint32(i + 1)
}

// addr returns the address of a placed section, zero otherwise.
func (b *builder) addr(name string) uint64 {
	if s, ok := b.secs[name]; ok && s.placed {
		return s.off
	}
	return 0
}

func (b *builder) padTo(off uint64) {
	for uint64(len(b.out)) < off {
		b.out = append(b.out, 0)
	}
}

func (b *builder) add(s *section, data []byte) {
	if s.align > 1 {
		b.padTo((uint64(len(b.out)) + s.align - 1) &^ (s.align - 1))
	}
	s.off = uint64(len(b.out))
	s.size = uint64(len(data))
	s.placed = true
	b.out = append(b.out, data...)
	b.secs[s.name] = s
}

func (b *builder) phnum() int {
	switch {
	case b.static:
		return 3
	case b.interp != "":
		return 6
	}
	return 5
}

func (b *builder) sizes() (ehsize, phentsize, shentsize uint64) {
	if b.is64() {
		return 64, 56, 64
	}
	return 52, 32, 40
}

func (b *builder) build() []byte {
	ehsize, phentsize, _ := b.sizes()
	b.out = make([]byte, ehsize+uint64(b.phnum())*phentsize)

	if !b.static {
		b.orderSymbols()
		b.buildStrtab()
		if b.interp != "" {
			b.add(&section{name: ".interp", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC, align: 1}, append([]byte(b.interp), 0))
		}
		if b.hash.sysv() {
			b.add(&section{name: ".hash", typ: elf.SHT_HASH, flags: elf.SHF_ALLOC, link: ".dynsym", align: 4, entsize: 4}, b.sysvHashTable())
		}
		if b.hash.gnu() {
			b.add(&section{name: ".gnu.hash", typ: elf.SHT_GNU_HASH, flags: elf.SHF_ALLOC, link: ".dynsym", align: b.wordSize()}, b.gnuHashTable())
		}
		b.add(&section{name: ".dynsym", typ: elf.SHT_DYNSYM, flags: elf.SHF_ALLOC, link: ".dynstr", info: 1, align: b.wordSize(), entsize: b.symSize()}, b.symtab())
		b.add(&section{name: ".dynstr", typ: elf.SHT_STRTAB, flags: elf.SHF_ALLOC, align: 1}, b.dynstr)
		b.add(&section{name: ".gnu.version", typ: elf.SHT_GNU_VERSYM, flags: elf.SHF_ALLOC, link: ".dynsym", align: 2, entsize: 2}, b.versym())
		b.addRelocations()
	}

	b.padTo(TextAddr)
	text := make([]byte, TextSize)
	for i := range text {
		text[i] = 0xc3
	}
	copy(text, b.text)
	b.add(&section{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, align: 16}, text)
	b.add(&section{name: ".rodata", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC, align: 16}, make([]byte, RodataSize))
	rxEnd := uint64(len(b.out))

	rwEnd := uint64(DataAddr)
	if !b.static {
		b.padTo(DataAddr)
		b.add(&section{name: ".dynamic", typ: elf.SHT_DYNAMIC, flags: elf.SHF_ALLOC | elf.SHF_WRITE, link: ".dynstr", align: b.wordSize(), entsize: 2 * b.wordSize()}, b.dynamic())
		b.add(&section{name: ".data", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE, align: 16}, make([]byte, b.dataSize()))
		rwEnd = uint64(len(b.out))
	}

	shstrtab, nameOffs := b.shstrtab()
	b.add(&section{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1}, shstrtab)

	b.padTo((uint64(len(b.out)) + 7) &^ 7)
	shoff := uint64(len(b.out))
	b.out = append(b.out, b.sectionHeaders(nameOffs)...)

	copy(b.out, b.header(shoff))
	copy(b.out[ehsize:], b.programHeaders(rxEnd, rwEnd))

	return b.out
}

// orderSymbols lays out the dynamic symbol table: the null symbol, the
// undefined symbols, then the defined ones grouped by GNU hash bucket.
func (b *builder) orderSymbols() {
	var undef, def []Symbol
	for _, s := range b.config.symbols {
		if s.Undefined {
			undef = append(undef, s)
		} else {
			def = append(def, s)
		}
	}
	if b.hash.gnu() {
		slices.SortStableFunc(def, func(x, y Symbol) int {
			return cmp.Compare(GNUHash(x.Name)%b.buckets, GNUHash(y.Name)%b.buckets)
		})
	}
	b.symbols = append([]Symbol{{}}, undef...)
	b.symbols = append(b.symbols, def...)
}

func (b *builder) symbolIndex(name string) uint32 {
	for i, s := range b.symbols {
		if i > 0 && s.Name == name {
			return uint32(i)
		}
	}
	panic("elftest: unknown symbol " + name)
}

func (b *builder) buildStrtab() {
	b.dynstr = []byte{0}
	b.strOffs = make(map[string]uint32)
	names := []string{Needed, SOName}
	for _, s := range b.symbols[1:] {
		names = append(names, s.Name)
	}
	for _, n := range names {
		if _, ok := b.strOffs[n]; ok {
			continue
		}
		b.strOffs[n] = uint32(len(b.dynstr))
		b.dynstr = append(b.dynstr, n...)
		b.dynstr = append(b.dynstr, 0)
	}
}

func (b *builder) symSize() uint64 {
	if b.is64() {
		return elf.Sym64Size
	}
	return elf.Sym32Size
}

func (b *builder) shndx(s Symbol) uint16 {
	switch {
	case s.Undefined:
		return uint16(elf.SHN_UNDEF)
	case s.Value >= TextAddr && s.Value < TextAddr+TextSize:
		return uint16(b.index(".text"))
	case s.Value >= RodataAddr && s.Value < RodataAddr+RodataSize:
		return uint16(b.index(".rodata"))
	}
	return uint16(elf.SHN_ABS)
}

func (b *builder) symtab() []byte {
	var out []byte
	for i, s := range b.symbols {
		var (
			name       uint32
			info       byte
			shndx      uint16
			value, siz uint64
		)
		if i > 0 {
			bind, typ := elf.STB_GLOBAL, elf.STT_FUNC
			if s.Weak {
				bind = elf.STB_WEAK
			}
			if s.Object {
				typ = elf.STT_OBJECT
			}
			name, info, shndx, value, siz = b.strOffs[s.Name], elf.ST_INFO(bind, typ), b.shndx(s), s.Value, s.Size
		}
		if b.is64() {
			out = append(out, b.encode(elf.Sym64{Name: name, Info: info, Shndx: shndx, Value: value, Size: siz})...)
		} else {
			out = append(out, b.encode(elf.Sym32{Name: name, Value: uint32(value), Size: uint32(siz), Info: info, Shndx: shndx})...)
		}
	}
	return out
}

func (b *builder) versym() []byte {
	out := make([]byte, 2*len(b.symbols))
	for i := 1; i < len(b.symbols); i++ {
		b.order.PutUint16(out[2*i:], 1)
	}
	return out
}

func (b *builder) gnuHashTable() []byte {
	const bloomShift = 6
	symoffset := uint32(1)
	for _, s := range b.symbols[1:] {
		if s.Undefined {
			symoffset++
		}
	}
	wordBits := uint32(b.wordSize() * 8)

	var bloom uint64
	buckets := make([]uint32, b.buckets)
	chains := make([]uint32, 0, len(b.symbols))
	for i := int(symoffset); i < len(b.symbols); i++ {
		h := GNUHash(b.symbols[i].Name)
		bloom |= 1<<(h%wordBits) | 1<<((h>>bloomShift)%wordBits)
		bucket := h % b.buckets
		if buckets[bucket] == 0 {
			buckets[bucket] = uint32(i)
		}
		chain := h &^ 1
		if i == len(b.symbols)-1 || GNUHash(b.symbols[i+1].Name)%b.buckets != bucket {
			chain |= 1
		}
		chains = append(chains, chain)
	}

	out := b.encode([]uint32{b.buckets, symoffset, 1, bloomShift})
	if b.is64() {
		out = append(out, b.encode(bloom)...)
	} else {
		out = append(out, b.encode(uint32(bloom))...)
	}
	out = append(out, b.encode(buckets)...)
	return append(out, b.encode(chains)...)
}

func (b *builder) sysvHashTable() []byte {
	buckets := make([]uint32, b.buckets)
	chains := make([]uint32, len(b.symbols))
	for i := 1; i < len(b.symbols); i++ {
		bucket := SysvHash(b.symbols[i].Name) % b.buckets
		chains[i] = buckets[bucket]
		buckets[bucket] = uint32(i)
	}
	out := b.encode([]uint32{b.buckets, uint32(len(b.symbols))})
	out = append(out, b.encode(buckets)...)
	return append(out, b.encode(chains)...)
}

func (b *builder) dataSize() uint64 {
	return max(uint64(len(b.relocs)), 1) * b.wordSize()
}

// dataAddr is where .data lands: right after .dynamic, which has a fixed
// number of entries.
func (b *builder) dataAddr() uint64 {
	size := uint64(len(b.dynamic())) + DataAddr
	return (size + 15) &^ 15
}

func (b *builder) addRelocations() {
	var out []byte
	data := b.dataAddr()
	for i, r := range b.relocs {
		off := data + uint64(i)*b.wordSize()
		sym := b.symbolIndex(r.Symbol)
		if b.is64() {
			out = append(out, b.encode(elf.Rela64{Off: off, Info: elf.R_INFO(sym, r.Type)})...)
		} else {
			out = append(out, b.encode(elf.Rel32{Off: uint32(off), Info: elf.R_INFO32(sym, r.Type)})...)
		}
	}

	s := &section{name: b.relName(), typ: elf.SHT_RELA, flags: elf.SHF_ALLOC, link: ".dynsym", align: b.wordSize(), entsize: 24}
	if !b.is64() {
		s.typ, s.entsize = elf.SHT_REL, 8
	}
	b.add(s, out)
}

func (b *builder) dynamic() []byte {
	type entry struct {
		tag elf.DynTag
		val uint64
	}
	entries := []entry{
		{elf.DT_NEEDED, uint64(b.strOffs[Needed])},
		{elf.DT_SONAME, uint64(b.strOffs[SOName])},
	}
	if b.hash.sysv() {
		entries = append(entries, entry{elf.DT_HASH, b.addr(".hash")})
	}
	if b.hash.gnu() {
		entries = append(entries, entry{elf.DT_GNU_HASH, b.addr(".gnu.hash")})
	}
	entries = append(entries,
		entry{elf.DT_STRTAB, b.addr(".dynstr")},
		entry{elf.DT_SYMTAB, b.addr(".dynsym")},
		entry{elf.DT_STRSZ, uint64(len(b.dynstr))},
		entry{elf.DT_SYMENT, b.symSize()},
		entry{elf.DT_VERSYM, b.addr(".gnu.version")},
	)
	if rel, ok := b.secs[b.relName()]; ok {
		if b.is64() {
			entries = append(entries, entry{elf.DT_RELA, rel.off}, entry{elf.DT_RELASZ, rel.size}, entry{elf.DT_RELAENT, rel.entsize})
		} else {
			entries = append(entries, entry{elf.DT_REL, rel.off}, entry{elf.DT_RELSZ, rel.size}, entry{elf.DT_RELENT, rel.entsize})
		}
	} else if b.is64() {
		entries = append(entries, entry{elf.DT_RELA, 0}, entry{elf.DT_RELASZ, 0}, entry{elf.DT_RELAENT, 0})
	} else {
		entries = append(entries, entry{elf.DT_REL, 0}, entry{elf.DT_RELSZ, 0}, entry{elf.DT_RELENT, 0})
	}
	entries = append(entries, entry{elf.DT_NULL, 0})

	var out []byte
	for _, e := range entries {
		if b.is64() {
			out = append(out, b.encode(elf.Dyn64{Tag: int64(e.tag), Val: e.val})...)
		} else {
			out = append(out, b.encode(elf.Dyn32{Tag: int32(e.tag), Val: uint32(e.val)})...)
		}
	}
	return out
}

func (b *builder) shstrtab() ([]byte, map[string]uint32) {
	out := []byte{0}
	offs := make(map[string]uint32, len(b.plan))
	for _, n := range b.plan {
		offs[n] = uint32(len(out))
		out = append(out, n...)
		out = append(out, 0)
	}
	return out, offs
}

func (b *builder) sectionHeaders(nameOffs map[string]uint32) []byte {
	_, _, shentsize := b.sizes()
	out := make([]byte, shentsize)
	for _, name := range b.plan {
		s := b.secs[name]
		var addr uint64
		if s.flags&elf.SHF_ALLOC != 0 {
			addr = s.off
		}
		link := b.index(s.link)
		if b.is64() {
			out = append(out, b.encode(elf.Section64{
				Name: nameOffs[name], Type: uint32(s.typ), Flags: uint64(s.flags), Addr: addr, Off: s.off,
				Size: s.size, Link: link, Info: s.info, Addralign: s.align, Entsize: s.entsize,
			})...)
		} else {
			out = append(out, b.encode(elf.Section32{
				Name: nameOffs[name], Type: uint32(s.typ), Flags: uint32(s.flags), Addr: uint32(addr), Off: uint32(s.off),
				Size: uint32(s.size), Link: link, Info: s.info, Addralign: uint32(s.align), Entsize: uint32(s.entsize),
			})...)
		}
	}
	return out
}

func (b *builder) header(shoff uint64) []byte {
	ehsize, phentsize, shentsize := b.sizes()
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(b.class)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	shnum := uint16(len(b.plan) + 1)
	shstrndx := uint16(b.index(".shstrtab"))
	if b.is64() {
		return b.encode(elf.Header64{
			Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(b.machine), Version: uint32(elf.EV_CURRENT),
			Phoff: ehsize, Shoff: shoff, Ehsize: uint16(ehsize), Phentsize: uint16(phentsize), Phnum: uint16(b.phnum()),
			Shentsize: uint16(shentsize), Shnum: shnum, Shstrndx: shstrndx,
		})
	}
	return b.encode(elf.Header32{
		Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(b.machine), Version: uint32(elf.EV_CURRENT),
		Phoff: uint32(ehsize), Shoff: uint32(shoff), Ehsize: uint16(ehsize), Phentsize: uint16(phentsize), Phnum: uint16(b.phnum()),
		Shentsize: uint16(shentsize), Shnum: shnum, Shstrndx: shstrndx,
	})
}

func (b *builder) programHeaders(rxEnd, rwEnd uint64) []byte {
	ehsize, phentsize, _ := b.sizes()
	progs := []elf.ProgHeader{
		{Type: elf.PT_PHDR, Flags: elf.PF_R, Off: ehsize, Vaddr: ehsize, Paddr: ehsize,
			Filesz: uint64(b.phnum()) * phentsize, Memsz: uint64(b.phnum()) * phentsize, Align: b.wordSize()},
	}
	if interp, ok := b.secs[".interp"]; ok {
		progs = append(progs, elf.ProgHeader{Type: elf.PT_INTERP, Flags: elf.PF_R, Off: interp.off, Vaddr: interp.off, Paddr: interp.off,
			Filesz: interp.size, Memsz: interp.size, Align: 1})
	}
	progs = append(progs, elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Filesz: rxEnd, Memsz: rxEnd, Align: b.align})
	if !b.static {
		dyn := b.secs[".dynamic"]
		progs = append(progs,
			elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: DataAddr, Vaddr: DataAddr, Paddr: DataAddr,
				Filesz: rwEnd - DataAddr, Memsz: rwEnd - DataAddr + b.bss, Align: b.align},
			elf.ProgHeader{Type: elf.PT_DYNAMIC, Flags: elf.PF_R | elf.PF_W, Off: dyn.off, Vaddr: dyn.off, Paddr: dyn.off,
				Filesz: dyn.size, Memsz: dyn.size, Align: b.wordSize()},
		)
	}
	progs = append(progs, elf.ProgHeader{Type: elf.PT_GNU_STACK, Flags: elf.PF_R | elf.PF_W, Align: 16})

	var out []byte
	for _, p := range progs {
		if b.is64() {
			out = append(out, b.encode(elf.Prog64{
				Type: uint32(p.Type), Flags: uint32(p.Flags), Off: p.Off, Vaddr: p.Vaddr, Paddr: p.Paddr,
				Filesz: p.Filesz, Memsz: p.Memsz, Align: p.Align,
			})...)
		} else {
			out = append(out, b.encode(elf.Prog32{
				Type: uint32(p.Type), Off: uint32(p.Off), Vaddr: uint32(p.Vaddr), Paddr: uint32(p.Paddr),
				Filesz: uint32(p.Filesz), Memsz: uint32(p.Memsz), Flags: uint32(p.Flags), Align: uint32(p.Align),
			})...)
		}
	}
	return out
}
