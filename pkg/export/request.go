package export

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Request asks for a function named Name to be exported at Address.
type Request struct {
	Address uint64
	Name    string
}

// ParseRequest decodes an "<hex-address>:<name>" argument. The name is
// everything after the first colon, so it may contain colons itself. The
// address may carry a 0x prefix.
func ParseRequest(arg string) (Request, error) {
	addr, name, ok := strings.Cut(arg, ":")
	if !ok {
		return Request{}, errors.Wrapf(ErrMissingSeparator, "%q", arg)
	}

	digits := strings.TrimSpace(addr)
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	value, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return Request{}, errors.Wrapf(ErrInvalidAddress, "%q", addr)
	}

	return Request{Address: value, Name: name}, nil
}
