package cmd

import (
	"context"
	"io"
	"os"

	log "github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/maxgio92/xexport/pkg/cmd/options"
)

type Options struct {
	output string

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

func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithLogLevel(level string) Option {
	return func(o *Options) {
		o.LogLevel = level
	}
}

func WithFs(fs afero.Fs) Option {
	return func(o *Options) {
		o.Fs = fs
	}
}

func WithOut(w io.Writer) Option {
	return func(o *Options) {
		o.Out = w
	}
}
