package elfedit_test

import (
	"bytes"
	"debug/elf"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
	log "github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xexport/internal/elftest"
	"github.com/maxgio92/xexport/pkg/elfedit"
)

const fixturePath = "/usr/lib/libfixture.so"

func parseFixture(t *testing.T, opts ...elftest.Option) (*elfedit.Binary, afero.Fs, []byte) {
	t.Helper()

	fs := afero.NewMemMapFs()
	raw := elftest.WriteFile(t, fs, fixturePath, opts...)
	bin, err := elfedit.Parse(fixturePath,
		elfedit.WithFs(fs),
		elfedit.WithLogger(log.New(log.NewTestWriter(t))),
	)
	require.NoError(t, err)

	return bin, fs, raw
}

// relocationSymbols returns the name of the symbol referenced by every
// dynamic relocation, in file order.
func relocationSymbols(t *testing.T, raw []byte) []string {
	t.Helper()

	f, err := elf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)
	syms, err := f.DynamicSymbols()
	require.NoError(t, err)

	var names []string
	for _, s := range f.Sections {
		if s.Type != elf.SHT_RELA && s.Type != elf.SHT_REL {
			continue
		}
		data, err := s.Data()
		require.NoError(t, err)
		for off := 0; off+int(s.Entsize) <= len(data); off += int(s.Entsize) {
			var idx uint32
			if f.Class == elf.ELFCLASS64 {
				idx = elf.R_SYM64(f.ByteOrder.Uint64(data[off+8:]))
			} else {
				idx = elf.R_SYM32(f.ByteOrder.Uint32(data[off+4:]))
			}
			require.NotZero(t, idx)
			names = append(names, syms[idx-1].Name)
		}
	}
	return names
}

func sectionIndex(f *elf.File, name string) elf.SectionIndex {
	for i, s := range f.Sections {
		if s.Name == name {
			return elf.SectionIndex(i)
		}
	}
	return elf.SHN_UNDEF
}

func TestParse(t *testing.T) {
	bin, _, raw := parseFixture(t)

	require.Equal(t, elf.EM_X86_64, bin.Machine())
	require.Equal(t, elf.ELFCLASS64, bin.Class())
	require.Equal(t, len(raw), bin.Size())
	require.Len(t, bin.DynamicSymbols(), len(elftest.DefaultSymbols))

	names := lo.Map(bin.ExportedFunctions(), func(s elfedit.Symbol, _ int) string { return s.Name })
	require.ElementsMatch(t, []string{"alpha", "beta", "_ZN3foo3barEv", "weak_fn"}, names)

	sym, ok := bin.Lookup("beta")
	require.True(t, ok)
	require.Equal(t, uint64(elftest.TextAddr+0x20), sym.Value)
	require.Equal(t, ".text", bin.Section(sym.Section))

	sym, ok = bin.Lookup("answer")
	require.True(t, ok)
	require.Equal(t, elf.STT_OBJECT, sym.Type())
	require.False(t, sym.IsExportedFunction())

	_, ok = bin.Lookup("puts")
	require.False(t, ok, "undefined symbols are not resolvable")
}

func TestParseErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/not-elf", []byte("#!/bin/sh\necho hello\n"), 0o755))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: "/does/not/exist"},
		{name: "not an ELF file", path: "/not-elf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, err := elfedit.Parse(tt.path, elfedit.WithFs(fs))
			require.Error(t, err)
			require.Nil(t, bin)
		})
	}
}

func TestAddExportedFunction(t *testing.T) {
	tests := []struct {
		name    string
		addr    uint64
		symbol  string
		section string
		err     error
	}{
		{name: "inside text", addr: elftest.TextAddr + 0x80, symbol: "injected", section: ".text"},
		{name: "inside rodata", addr: elftest.RodataAddr + 8, symbol: "table", section: ".rodata"},
		{name: "unmapped address", addr: 0xdead0000, symbol: "nowhere", section: "ABS"},
		{name: "name with colons", addr: elftest.TextAddr, symbol: "ns::fn", section: ".text"},
		{name: "empty name", addr: elftest.TextAddr, err: elfedit.ErrInvalidSymbolName},
		{name: "name with NUL", addr: elftest.TextAddr, symbol: "a\x00b", err: elfedit.ErrInvalidSymbolName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, _, _ := parseFixture(t)

			sym, err := bin.AddExportedFunction(tt.addr, tt.symbol)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.symbol, sym.Name)
			require.Equal(t, tt.addr, sym.Value)
			require.Equal(t, elf.STB_GLOBAL, sym.Bind())
			require.Equal(t, elf.STT_FUNC, sym.Type())
			require.Equal(t, elf.STV_DEFAULT, sym.Visibility())
			require.Equal(t, tt.section, bin.Section(sym.Section))
			require.True(t, sym.IsExportedFunction())

			exported := bin.ExportedFunctions()
			require.Equal(t, tt.symbol, exported[len(exported)-1].Name)
		})
	}
}

func TestAddExportedFunctionStatic(t *testing.T) {
	bin, _, _ := parseFixture(t, elftest.Static())

	_, err := bin.AddExportedFunction(elftest.TextAddr, "fn")
	require.ErrorIs(t, err, elfedit.ErrNoDynamicSymbols)
	require.Empty(t, bin.DynamicSymbols())
}

func TestWriteRoundTrip(t *testing.T) {
	injected := []struct {
		addr uint64
		name string
	}{
		{addr: elftest.TextAddr + 0x80, name: "injected"},
		{addr: elftest.TextAddr + 0x90, name: "ns::with:colons"},
		{addr: 0x7000, name: "absolute"},
		{addr: elftest.TextAddr, name: "alpha_alias"},
	}

	tests := []struct {
		name string
		opts []elftest.Option
		page uint64
		// interp marks executables whose program headers keep the first
		// segment's vaddr-offset distance.
		interp bool
	}{
		{name: "GNU hash", page: 0x1000},
		{name: "SysV hash", opts: []elftest.Option{elftest.WithHashStyle(elftest.HashSysV)}, page: 0x1000},
		{name: "both hashes", opts: []elftest.Option{elftest.WithHashStyle(elftest.HashBoth)}, page: 0x1000},
		{name: "single bucket", opts: []elftest.Option{elftest.WithBuckets(1)}, page: 0x1000},
		{name: "many buckets", opts: []elftest.Option{elftest.WithBuckets(17), elftest.WithHashStyle(elftest.HashBoth)}, page: 0x1000},
		{name: "32-bit", opts: []elftest.Option{elftest.WithClass(elf.ELFCLASS32), elftest.WithHashStyle(elftest.HashBoth)}, page: 0x1000},
		{name: "aarch64", opts: []elftest.Option{elftest.WithMachine(elf.EM_AARCH64)}, page: 0x10000},
		{name: "16K segments", opts: []elftest.Option{elftest.WithMachine(elf.EM_RISCV), elftest.WithSegmentAlign(0x4000)}, page: 0x4000},
		{name: "large bss", opts: []elftest.Option{elftest.WithBSS(256 << 20)}, page: 0x1000},
		{
			name:   "interpreted executable",
			opts:   []elftest.Option{elftest.WithInterp("/lib64/ld-linux-x86-64.so.2"), elftest.WithBSS(0x10000)},
			page:   0x1000,
			interp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, fs, raw := parseFixture(t, tt.opts...)
			for _, inj := range injected {
				_, err := bin.AddExportedFunction(inj.addr, inj.name)
				require.NoError(t, err)
			}
			require.NoError(t, bin.Write(fixturePath+".so"))

			out, err := afero.ReadFile(fs, fixturePath+".so")
			require.NoError(t, err)
			require.Greater(t, len(out), len(raw))
			require.Equal(t, raw[elftest.TextAddr:elftest.TextAddr+elftest.TextSize], out[elftest.TextAddr:elftest.TextAddr+elftest.TextSize])

			if diff := cmp.Diff(relocationSymbols(t, raw), relocationSymbols(t, out)); diff != "" {
				t.Fatalf("relocations changed symbols (-before +after):\n%s", diff)
			}

			parsed, err := elfedit.Parse(fixturePath+".so", elfedit.WithFs(fs))
			require.NoError(t, err)
			for _, s := range elftest.DefaultSymbols {
				got, ok := parsed.Lookup(s.Name)
				if s.Undefined {
					require.False(t, ok, s.Name)
					continue
				}
				require.True(t, ok, s.Name)
				require.Equal(t, s.Value, got.Value, s.Name)
			}
			for _, inj := range injected {
				got, ok := parsed.Lookup(inj.name)
				require.True(t, ok, inj.name)
				require.Equal(t, inj.addr, got.Value)
				require.True(t, got.IsExportedFunction())
			}

			f, err := elf.NewFile(bytes.NewReader(out))
			require.NoError(t, err)

			syms, err := f.DynamicSymbols()
			require.NoError(t, err)
			bySymbol := lo.SliceToMap(syms, func(s elf.Symbol) (string, elf.Symbol) { return s.Name, s })
			require.Equal(t, sectionIndex(f, ".text"), bySymbol["injected"].Section)
			require.Equal(t, elf.SHN_ABS, bySymbol["absolute"].Section)
			require.Equal(t, elf.SHN_UNDEF, bySymbol["puts"].Section)

			symtab, err := f.DynValue(elf.DT_SYMTAB)
			require.NoError(t, err)
			require.Equal(t, []uint64{f.Section(".dynsym").Addr}, symtab)
			strtab, err := f.DynValue(elf.DT_STRTAB)
			require.NoError(t, err)
			require.Equal(t, []uint64{f.Section(".dynstr").Addr}, strtab)
			strsz, err := f.DynValue(elf.DT_STRSZ)
			require.NoError(t, err)
			require.Equal(t, []uint64{f.Section(".dynstr").Size}, strsz)
			soname, err := f.DynString(elf.DT_SONAME)
			require.NoError(t, err)
			require.Equal(t, []string{elftest.SOName}, soname)

			before, err := elf.NewFile(bytes.NewReader(raw))
			require.NoError(t, err)
			oldLoads := lo.Filter(before.Progs, func(p *elf.Prog, _ int) bool { return p.Type == elf.PT_LOAD })
			newLoads := lo.Filter(f.Progs, func(p *elf.Prog, _ int) bool { return p.Type == elf.PT_LOAD })
			require.Len(t, newLoads, len(oldLoads)+1)
			require.Len(t, f.Progs, len(before.Progs)+1)

			added := newLoads[len(newLoads)-1]
			require.Equal(t, elf.PF_R, added.Flags)
			require.Zero(t, added.Off%tt.page)
			require.Equal(t, added.Off%tt.page, added.Vaddr%tt.page)
			require.Equal(t, tt.page, added.Align)
			for _, p := range oldLoads {
				require.GreaterOrEqual(t, added.Vaddr, p.Vaddr+p.Memsz)
				require.GreaterOrEqual(t, added.Off, p.Off+p.Filesz)
			}
			if tt.interp {
				first := lo.MinBy(oldLoads, func(x, y *elf.Prog) bool { return x.Vaddr < y.Vaddr })
				require.Equal(t, first.Vaddr-first.Off, added.Vaddr-added.Off)
			} else {
				// Only the alignment padding and the rebuilt tables are added,
				// whatever the memory size of the image.
				require.LessOrEqual(t, uint64(len(out)), uint64(len(raw))+tt.page+added.Filesz)
			}

			phdr, ok := lo.Find(f.Progs, func(p *elf.Prog) bool { return p.Type == elf.PT_PHDR })
			require.True(t, ok)
			require.Equal(t, added.Vaddr, phdr.Vaddr)
			require.Equal(t, added.Off, phdr.Off)

			for _, name := range []string{".dynsym", ".dynstr", ".gnu.version"} {
				s := f.Section(name)
				require.NotNil(t, s, name)
				require.GreaterOrEqual(t, s.Addr, added.Vaddr, name)
				require.LessOrEqual(t, s.Addr+s.Size, added.Vaddr+added.Memsz, name)
			}
			require.Equal(t, uint64(len(syms)+1)*2, f.Section(".gnu.version").Size)
		})
	}
}

func TestWriteUnchanged(t *testing.T) {
	bin, _, raw := parseFixture(t)

	out, err := bin.Bytes()
	require.NoError(t, err)
	require.Equal(t, raw, out)
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []elftest.Option
		err  error
	}{
		{name: "no hash table", opts: []elftest.Option{elftest.WithHashStyle(elftest.HashNone)}, err: elfedit.ErrNoHashTable},
		{name: "MIPS", opts: []elftest.Option{elftest.WithMachine(elf.EM_MIPS)}, err: elfedit.ErrUnsupportedMachine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, fs, _ := parseFixture(t, tt.opts...)
			_, err := bin.AddExportedFunction(elftest.TextAddr, "fn")
			require.NoError(t, err)

			err = bin.Write("/out.so")
			require.ErrorIs(t, err, tt.err)

			exists, err := afero.Exists(fs, "/out.so")
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestWriteKeepsFileMode(t *testing.T) {
	tests := []struct {
		name     string
		existing bool
	}{
		{name: "new output"},
		{name: "existing output", existing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/in", elftest.Build(), 0o640))
			if tt.existing {
				require.NoError(t, afero.WriteFile(fs, "/in.so", []byte("stale"), 0o600))
			}

			bin, err := elfedit.Parse("/in", elfedit.WithFs(fs))
			require.NoError(t, err)
			_, err = bin.AddExportedFunction(elftest.TextAddr, "fn")
			require.NoError(t, err)
			require.NoError(t, bin.Write("/in.so"))

			fi, err := fs.Stat("/in.so")
			require.NoError(t, err)
			require.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
			require.Greater(t, fi.Size(), int64(len("stale")))
		})
	}
}

func TestWriteFailureLeavesNoOutput(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/in", elftest.Build(), 0o755))
	fs := afero.NewReadOnlyFs(base)

	bin, err := elfedit.Parse("/in", elfedit.WithFs(fs))
	require.NoError(t, err)
	_, err = bin.AddExportedFunction(elftest.TextAddr, "fn")
	require.NoError(t, err)

	err = bin.Write("/in.so")
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)

	exists, err := afero.Exists(base, "/in.so")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRead(t *testing.T) {
	bin, _, _ := parseFixture(t, elftest.WithText([]byte{0x55, 0x48, 0x89, 0xe5}))

	code, err := bin.Read(elftest.TextAddr, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x55, 0x48, 0x89, 0xe5}, code)

	tail, err := bin.Read(elftest.RodataAddr+elftest.RodataSize-2, 16)
	require.NoError(t, err)
	require.Len(t, tail, 2)

	_, err = bin.Read(0x9000, 1)
	require.ErrorIs(t, err, elfedit.ErrAddressNotMapped)
}
