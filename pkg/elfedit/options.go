package elfedit

import (
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type Option func(*Binary)

// WithFs sets the filesystem the binary is read from and written to.
func WithFs(fs afero.Fs) Option {
	return func(b *Binary) {
		b.fs = fs
	}
}

func WithLogger(logger log.Logger) Option {
	return func(b *Binary) {
		b.logger = logger.With().Str("component", "elfedit").Logger()
	}
}
