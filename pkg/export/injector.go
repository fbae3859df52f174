// Package export turns "<address>:<name>" requests into exported functions
// of an ELF binary and writes the result as a shared object.
package export

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xexport/internal/output"
	"github.com/maxgio92/xexport/internal/settings"
	"github.com/maxgio92/xexport/pkg/elfedit"
)

// Binary is the mutable binary image requests are applied to.
type Binary interface {
	AddExportedFunction(addr uint64, name string) (elfedit.Symbol, error)
	Write(path string) error
}

// ParseFunc loads the binary at path.
type ParseFunc func(path string) (Binary, error)

// Injector applies export requests to a single binary, reporting progress
// through a Printer.
type Injector struct {
	logger  log.Logger
	printer *output.Printer
	parse   ParseFunc
	output  string
}

// OutputPath returns the path the shared object built from infile is
// written to.
func OutputPath(infile string) string {
	return infile + settings.OutputSuffix
}

func NewInjector(opts ...Option) *Injector {
	i := new(Injector)
	i.logger = log.Nop()
	for _, f := range opts {
		f(i)
	}
	if i.printer == nil {
		i.printer = output.NewPrinter(os.Stdout)
	}
	if i.parse == nil {
		i.parse = ELFParser(elfedit.WithLogger(i.logger))
	}

	return i
}

// ELFParser returns a ParseFunc backed by elfedit.
func ELFParser(opts ...elfedit.Option) ParseFunc {
	return func(path string) (Binary, error) {
		return elfedit.Parse(path, opts...)
	}
}

// OutputPath returns where Run writes the shared object built from infile.
func (i *Injector) OutputPath(infile string) string {
	if i.output != "" {
		return i.output
	}
	return OutputPath(infile)
}

// Run parses infile, exports one function per pair in order and writes the
// result. Any failure aborts the run before the output is written.
func (i *Injector) Run(ctx context.Context, infile string, pairs []string) error {
	if len(pairs) == 0 {
		i.printer.InvalidSyntax()
		return ErrInvalidSyntax
	}

	bin, err := i.parse(infile)
	if err != nil {
		return errors.Wrap(err, "failed to load binary")
	}
	i.logger.Debug().Str("path", infile).Int("requests", len(pairs)).Msg("binary loaded")

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "export interrupted")
		}

		req, err := ParseRequest(pair)
		if err != nil {
			return err
		}
		i.printer.Exporting(req.Name, req.Address)

		sym, err := bin.AddExportedFunction(req.Address, req.Name)
		if err != nil {
			return errors.Wrapf(err, "failed to export %q", req.Name)
		}
		i.logger.Debug().
			Str("name", sym.Name).
			Uint64("address", sym.Value).
			Int("index", sym.Index).
			Msg("function exported")
	}

	out := i.OutputPath(infile)
	i.printer.Writing(out)
	if err := bin.Write(out); err != nil {
		return errors.Wrap(err, "failed to write shared object")
	}
	i.printer.Done()

	return nil
}
