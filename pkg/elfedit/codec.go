package elfedit

import (
	"debug/elf"
	"encoding/binary"

	"github.com/pkg/errors"
)

// codec encodes and decodes the class-dependent ELF structures.
type codec struct {
	class elf.Class
	order binary.ByteOrder
}

type fileHeader struct {
	phoff     uint64
	shoff     uint64
	phentsize uint16
	phnum     uint16
	shentsize uint16
	shnum     uint16
}

type rawSymbol struct {
	name  uint32
	info  uint8
	other uint8
	shndx uint16
	value uint64
	size  uint64
}

func newCodec(class elf.Class, order binary.ByteOrder) (codec, error) {
	if order == nil {
		return codec{}, errors.New("byte order has to be specified")
	}
	switch class {
	case elf.ELFCLASS32, elf.ELFCLASS64:
		return codec{class: class, order: order}, nil
	default:
		return codec{}, errors.Wrapf(ErrUnsupportedClass, "%v", class)
	}
}

func (c codec) is64() bool {
	return c.class == elf.ELFCLASS64
}

func (c codec) wordSize() int {
	if c.is64() {
		return 8
	}
	return 4
}

func (c codec) symSize() int {
	if c.is64() {
		return elf.Sym64Size
	}
	return elf.Sym32Size
}

func (c codec) progSize() int {
	if c.is64() {
		return binary.Size(elf.Prog64{})
	}
	return binary.Size(elf.Prog32{})
}

func (c codec) dynSize() int {
	if c.is64() {
		return binary.Size(elf.Dyn64{})
	}
	return binary.Size(elf.Dyn32{})
}

func (c codec) decodeHeader(b []byte) (fileHeader, error) {
	if c.is64() {
		var h elf.Header64
		if _, err := binary.Decode(b, c.order, &h); err != nil {
			return fileHeader{}, errors.Wrap(err, "failed to decode ELF header")
		}
		return fileHeader{
			phoff:     h.Phoff,
			shoff:     h.Shoff,
			phentsize: h.Phentsize,
			phnum:     h.Phnum,
			shentsize: h.Shentsize,
			shnum:     h.Shnum,
		}, nil
	}
	var h elf.Header32
	if _, err := binary.Decode(b, c.order, &h); err != nil {
		return fileHeader{}, errors.Wrap(err, "failed to decode ELF header")
	}
	return fileHeader{
		phoff:     uint64(h.Phoff),
		shoff:     uint64(h.Shoff),
		phentsize: h.Phentsize,
		phnum:     h.Phnum,
		shentsize: h.Shentsize,
		shnum:     h.Shnum,
	}, nil
}

// patchHeader rewrites the program header table location in the ELF
// header at the start of b.
func (c codec) patchHeader(b []byte, phoff uint64, phnum uint16) error {
	if c.is64() {
		var h elf.Header64
		if _, err := binary.Decode(b, c.order, &h); err != nil {
			return errors.Wrap(err, "failed to decode ELF header")
		}
		h.Phoff = phoff
		h.Phnum = phnum
		_, err := binary.Encode(b, c.order, &h)
		return errors.Wrap(err, "failed to encode ELF header")
	}
	var h elf.Header32
	if _, err := binary.Decode(b, c.order, &h); err != nil {
		return errors.Wrap(err, "failed to decode ELF header")
	}
	h.Phoff = uint32(phoff)
	h.Phnum = phnum
	_, err := binary.Encode(b, c.order, &h)
	return errors.Wrap(err, "failed to encode ELF header")
}

func (c codec) decodeSym(b []byte) (rawSymbol, error) {
	if c.is64() {
		var s elf.Sym64
		if _, err := binary.Decode(b, c.order, &s); err != nil {
			return rawSymbol{}, err
		}
		return rawSymbol{name: s.Name, info: s.Info, other: s.Other, shndx: s.Shndx, value: s.Value, size: s.Size}, nil
	}
	var s elf.Sym32
	if _, err := binary.Decode(b, c.order, &s); err != nil {
		return rawSymbol{}, err
	}
	return rawSymbol{name: s.Name, info: s.Info, other: s.Other, shndx: s.Shndx, value: uint64(s.Value), size: uint64(s.Size)}, nil
}

func (c codec) encodeSym(b []byte, s rawSymbol) error {
	var err error
	if c.is64() {
		_, err = binary.Encode(b, c.order, &elf.Sym64{
			Name: s.name, Info: s.info, Other: s.other, Shndx: s.shndx, Value: s.value, Size: s.size,
		})
	} else {
		_, err = binary.Encode(b, c.order, &elf.Sym32{
			Name: s.name, Value: uint32(s.value), Size: uint32(s.size), Info: s.info, Other: s.other, Shndx: s.shndx,
		})
	}
	return err
}

func (c codec) encodeProg(b []byte, p elf.ProgHeader) error {
	var err error
	if c.is64() {
		_, err = binary.Encode(b, c.order, &elf.Prog64{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Off:    p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Paddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Align:  p.Align,
		})
	} else {
		_, err = binary.Encode(b, c.order, &elf.Prog32{
			Type:   uint32(p.Type),
			Off:    uint32(p.Off),
			Vaddr:  uint32(p.Vaddr),
			Paddr:  uint32(p.Paddr),
			Filesz: uint32(p.Filesz),
			Memsz:  uint32(p.Memsz),
			Flags:  uint32(p.Flags),
			Align:  uint32(p.Align),
		})
	}
	return err
}

// patchSection moves the section header at the start of b.
func (c codec) patchSection(b []byte, off, addr, size uint64) error {
	if c.is64() {
		var s elf.Section64
		if _, err := binary.Decode(b, c.order, &s); err != nil {
			return err
		}
		s.Off, s.Addr, s.Size = off, addr, size
		_, err := binary.Encode(b, c.order, &s)
		return err
	}
	var s elf.Section32
	if _, err := binary.Decode(b, c.order, &s); err != nil {
		return err
	}
	s.Off, s.Addr, s.Size = uint32(off), uint32(addr), uint32(size)
	_, err := binary.Encode(b, c.order, &s)
	return err
}

func (c codec) decodeDyn(b []byte) (elf.DynTag, uint64, error) {
	if c.is64() {
		var d elf.Dyn64
		if _, err := binary.Decode(b, c.order, &d); err != nil {
			return 0, 0, err
		}
		return elf.DynTag(d.Tag), d.Val, nil
	}
	var d elf.Dyn32
	if _, err := binary.Decode(b, c.order, &d); err != nil {
		return 0, 0, err
	}
	return elf.DynTag(d.Tag), uint64(d.Val), nil
}

func (c codec) encodeDyn(b []byte, tag elf.DynTag, val uint64) error {
	var err error
	if c.is64() {
		_, err = binary.Encode(b, c.order, &elf.Dyn64{Tag: int64(tag), Val: val})
	} else {
		_, err = binary.Encode(b, c.order, &elf.Dyn32{Tag: int32(tag), Val: uint32(val)})
	}
	return err
}

// relocSym returns the symbol index of the relocation entry at the start of
// b. Both REL and RELA entries start with r_offset followed by r_info.
func (c codec) relocSym(b []byte) uint32 {
	if c.is64() {
		return elf.R_SYM64(c.order.Uint64(b[8:]))
	}
	return elf.R_SYM32(c.order.Uint32(b[4:]))
}

func (c codec) setRelocSym(b []byte, sym uint32) {
	if c.is64() {
		info := c.order.Uint64(b[8:])
		c.order.PutUint64(b[8:], elf.R_INFO(sym, elf.R_TYPE64(info)))
		return
	}
	info := c.order.Uint32(b[4:])
	c.order.PutUint32(b[4:], elf.R_INFO32(sym, elf.R_TYPE32(info)))
}

// putWord writes an address-sized value.
func (c codec) putWord(b []byte, v uint64) {
	if c.is64() {
		c.order.PutUint64(b, v)
		return
	}
	c.order.PutUint32(b, uint32(v))
}

func (c codec) word(b []byte) uint64 {
	if c.is64() {
		return c.order.Uint64(b)
	}
	return uint64(c.order.Uint32(b))
}
