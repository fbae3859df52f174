package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xexport/internal/settings"
	"github.com/maxgio92/xexport/pkg/cmd/common"
	"github.com/maxgio92/xexport/pkg/cmd/inspect"
	"github.com/maxgio92/xexport/pkg/elfedit"
	"github.com/maxgio92/xexport/pkg/export"
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <infile> <addr:name>...", settings.CmdName),
		Short: "Export functions of an ELF binary as dynamic symbols",
		Long: fmt.Sprintf(`
%s adds an exported function symbol to an ELF binary for every <addr:name> pair,
where addr is a hexadecimal virtual address and name is everything after the first colon.
The result is written as a shared object next to the input, as <infile>%s.
`, settings.CmdName, settings.OutputSuffix),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return common.ApplyLogLevel(o.CommonOptions)
		},
		RunE: o.Run,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", common.LogLevelInfo, "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", fmt.Sprintf("Path of the written shared object (default <infile>%s)", settings.OutputSuffix))

	cmd.AddCommand(inspect.NewCommand(inspect.NewOptions(inspect.WithCommonOptions(o.CommonOptions))))

	return cmd
}

func (o *Options) Run(_ *cobra.Command, args []string) error {
	var (
		infile string
		pairs  []string
	)
	if len(args) > 0 {
		infile, pairs = args[0], args[1:]
	}

	injector := export.NewInjector(
		export.WithLogger(o.Logger),
		export.WithOutput(o.Out),
		export.WithOutputPath(o.output),
		export.WithParser(export.ELFParser(
			elfedit.WithFs(o.Fs),
			elfedit.WithLogger(o.Logger),
		)),
	)

	return injector.Run(o.Ctx, infile, pairs)
}

// Execute runs the root command and exits with status 1 on any error.
// This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	opts := NewOptions(
		WithContext(ctx),
		WithLogger(logger),
	)

	err := NewCommand(opts).ExecuteContext(ctx)
	cancel()
	if err != nil {
		if !errors.Is(err, export.ErrInvalidSyntax) {
			opts.Logger.Error().Err(err).Msg("command failed")
		}
		os.Exit(1)
	}
}
