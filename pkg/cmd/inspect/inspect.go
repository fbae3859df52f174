package inspect

import (
	"fmt"
	"strings"

	"github.com/aquasecurity/libbpfgo/helpers"
	"github.com/dustin/go-humanize"
	"github.com/ianlancetaylor/demangle"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xexport/internal/output"
	"github.com/maxgio92/xexport/pkg/disasm"
	"github.com/maxgio92/xexport/pkg/elfedit"
	"github.com/maxgio92/xexport/pkg/report"
	"github.com/maxgio92/xexport/pkg/symtable"
)

const (
	CmdName = "inspect"

	FormatTable = "table"
	FormatJSON  = "json"

	none = "-"
)

var ErrInvalidFormat = errors.New("invalid output format")

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdName + " <file>",
		Short: "List the functions an ELF binary exports",
		Long: fmt.Sprintf(`
%s lists the functions exported through the dynamic symbol table of an ELF binary,
together with the file offset a uprobe would attach to and the first instruction at their address.
`, CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Args:              cobra.ExactArgs(1),
		RunE:              o.Run,
	}
	cmd.Flags().BoolVar(&o.demangle, "demangle", false, "Demangle C++ and Rust symbol names")
	cmd.Flags().BoolVar(&o.disasm, "disasm", true, "Decode the first instruction of every function")
	cmd.Flags().StringVarP(&o.format, "format", "f", FormatTable, fmt.Sprintf("Output format (%s, %s)", FormatTable, FormatJSON))

	return cmd
}

func (o *Options) Run(_ *cobra.Command, args []string) error {
	if o.format != FormatTable && o.format != FormatJSON {
		return errors.Wrapf(ErrInvalidFormat, "%q", o.format)
	}
	path := args[0]

	bin, err := elfedit.Parse(path, elfedit.WithFs(o.Fs), elfedit.WithLogger(o.Logger))
	if err != nil {
		return errors.Wrap(err, "failed to load binary")
	}

	tab := symtable.NewELFSymTab()
	if err := tab.Load(bin); err != nil {
		o.Logger.Debug().Err(err).Msg("no sized dynamic symbols to resolve enclosing functions")
	}

	funcs := lo.Map(bin.ExportedFunctions(), func(s elfedit.Symbol, _ int) report.Function {
		return o.describe(bin, tab, path, s)
	})

	if o.format == FormatJSON {
		return report.NewExportReport(
			report.WithReportExePath(path),
			report.WithReportMachine(bin.Machine().String(), bin.Class().String()),
			report.WithReportSize(bin.Size()),
			report.WithReportFunctions(funcs),
		).WriteReport(o.Out)
	}

	output.Table(o.Out,
		[]string{"NAME", "ADDRESS", "SIZE", "SECTION", "BIND", "OFFSET", "WITHIN", "INSN"},
		lo.Map(funcs, func(f report.Function, _ int) []string { return row(f) }),
	)
	fmt.Fprintf(o.Out, "\n%d exported functions in %s (%s, %s, %s)\n",
		len(funcs), path, humanize.Bytes(uint64(bin.Size())), bin.Machine(), bin.Class())

	return nil
}

func (o *Options) describe(bin *elfedit.Binary, tab *symtable.ELFSymTab, path string, s elfedit.Symbol) report.Function {
	f := report.Function{
		Name:    s.Name,
		Address: s.Value,
		Size:    s.Size,
		Section: bin.Section(s.Section),
		Binding: strings.TrimPrefix(s.Bind().String(), "STB_"),
	}
	logger := o.Logger.With().Str("symbol", s.Name).Logger()

	if o.demangle {
		if d := demangle.Filter(s.Name); d != s.Name {
			f.Demangled = d
		}
	}

	// Offsets are resolved on the binary as found on disk.
	if _, ok := o.Fs.(*afero.OsFs); ok {
		offset, err := helpers.SymbolToOffset(path, s.Name)
		if err != nil {
			logger.Debug().Err(err).Msg("failed to resolve uprobe offset")
		} else {
			f.Offset = &offset
		}
	}

	if within, err := tab.GetName(s.Value); err == nil && within != s.Name {
		f.Within = within
	}

	if o.disasm && disasm.Supported(bin.Machine()) {
		code, err := bin.Read(s.Value, disasm.MaxInstructionLen)
		if err != nil {
			logger.Debug().Err(err).Msg("failed to read function code")
			return f
		}
		insn, err := disasm.First(bin.Machine(), code, s.Value)
		if err != nil {
			logger.Debug().Err(err).Msg("failed to decode first instruction")
			return f
		}
		f.Insn = insn
	}

	return f
}

func row(f report.Function) []string {
	name := f.Name
	if f.Demangled != "" {
		name = f.Demangled
	}
	offset := none
	if f.Offset != nil {
		offset = fmt.Sprintf("%#x", *f.Offset)
	}
	section := f.Section
	if section == "" {
		section = none
	}

	return []string{
		name,
		fmt.Sprintf("%#x", f.Address),
		humanize.Bytes(f.Size),
		section,
		f.Binding,
		offset,
		lo.Ternary(f.Within != "", f.Within, none),
		lo.Ternary(f.Insn != "", f.Insn, none),
	}
}
