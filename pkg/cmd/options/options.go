package options

import (
	"context"
	"io"

	log "github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// CommonOptions are shared by the root command and its subcommands.
type CommonOptions struct {
	Ctx      context.Context
	Logger   log.Logger
	LogLevel string

	// Fs is where binaries are read from and written to.
	Fs afero.Fs
	// Out receives the command output.
	Out io.Writer
}
