package export

import (
	"io"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/xexport/internal/output"
)

type Option func(i *Injector)

func WithLogger(logger log.Logger) Option {
	return func(i *Injector) {
		i.logger = logger.With().Str("component", "export").Logger()
	}
}

// WithOutput sets where progress lines are printed.
func WithOutput(w io.Writer) Option {
	return func(i *Injector) {
		i.printer = output.NewPrinter(w)
	}
}

func WithParser(parse ParseFunc) Option {
	return func(i *Injector) {
		i.parse = parse
	}
}

// WithOutputPath overrides the path derived from the input file.
func WithOutputPath(path string) Option {
	return func(i *Injector) {
		i.output = path
	}
}
