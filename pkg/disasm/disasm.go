// Package disasm decodes single machine instructions of ELF binaries.
package disasm

import (
	"debug/elf"

	"github.com/pkg/errors"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// MaxInstructionLen is the longest instruction any supported machine
// encodes.
const MaxInstructionLen = 15

var ErrUnsupportedMachine = errors.New("instruction decoding is not supported for machine")

// Supported reports whether First can decode instructions of machine.
func Supported(machine elf.Machine) bool {
	switch machine {
	case elf.EM_X86_64, elf.EM_386, elf.EM_AARCH64:
		return true
	}
	return false
}

// First decodes the instruction at the start of code, which is mapped at
// pc, and returns it in Intel syntax for x86 and GNU syntax for arm64.
func First(machine elf.Machine, code []byte, pc uint64) (string, error) {
	switch machine {
	case elf.EM_X86_64, elf.EM_386:
		mode := 64
		if machine == elf.EM_386 {
			mode = 32
		}
		inst, err := x86asm.Decode(code, mode)
		if err != nil {
			return "", errors.Wrap(err, "failed to decode x86 instruction")
		}
		return x86asm.IntelSyntax(inst, pc, nil), nil
	case elf.EM_AARCH64:
		inst, err := arm64asm.Decode(code)
		if err != nil {
			return "", errors.Wrap(err, "failed to decode arm64 instruction")
		}
		return arm64asm.GNUSyntax(inst), nil
	}
	return "", errors.Wrapf(ErrUnsupportedMachine, "%v", machine)
}
