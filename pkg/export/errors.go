package export

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidSyntax    = errors.New("invalid syntax")
	ErrMissingSeparator = errors.New("missing ':' between address and name")
	ErrInvalidAddress   = errors.New("invalid hexadecimal address")
)
