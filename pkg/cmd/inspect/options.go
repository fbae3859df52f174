package inspect

import (
	"context"
	"os"

	log "github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/maxgio92/xexport/pkg/cmd/options"
)

type Options struct {
	demangle bool
	disasm   bool
	format   string

	*options.CommonOptions
}

type Option func(o *Options)

func NewOptions(opts ...Option) *Options {
	o := new(Options)
	o.CommonOptions = &options.CommonOptions{
		Ctx:    context.Background(),
		Logger: log.Nop(),
		Fs:     afero.NewOsFs(),
		Out:    os.Stdout,
	}

	for _, f := range opts {
		f(o)
	}

	return o
}

// WithCommonOptions shares the root command options, so that persistent
// flags applied by the root reach the subcommand.
func WithCommonOptions(common *options.CommonOptions) Option {
	return func(o *Options) {
		o.CommonOptions = common
	}
}
