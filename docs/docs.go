//go:build docs

package main

import (
	"bytes"
	"os"
	"path"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra/doc"

	"github.com/maxgio92/xexport/internal/settings"
	"github.com/maxgio92/xexport/pkg/cmd"
)

const (
	docsDir        = "docs"
	readmeTemplate = "README.md.tpl"
	readme         = "README.md"
	templateMarker = "{{ .CLI_REFERENCE }}"
)

// linkHandler points the root command page at the README and keeps the
// subcommand pages under docs/.
func linkHandler(filename string) string {
	if filename == settings.CmdName+".md" {
		return readme
	}
	return path.Join(docsDir, filename)
}

func generate(fs afero.Fs, logger log.Logger) error {
	root := cmd.NewCommand(cmd.NewOptions(cmd.WithLogger(logger)))
	if err := doc.GenMarkdownTreeCustom(root, docsDir, func(string) string { return "" }, linkHandler); err != nil {
		return errors.Wrap(err, "failed to generate CLI docs")
	}

	var reference bytes.Buffer
	if err := doc.GenMarkdownCustom(root, &reference, linkHandler); err != nil {
		return errors.Wrap(err, "failed to generate CLI reference")
	}

	return renderReadme(fs, reference.Bytes(), logger)
}

// renderReadme writes the README from its template, replacing the marker
// with the CLI reference.
func renderReadme(fs afero.Fs, reference []byte, logger log.Logger) error {
	tpl, err := afero.ReadFile(fs, readmeTemplate)
	if err != nil {
		return errors.Wrap(err, "failed to read README template")
	}
	if !bytes.Contains(tpl, []byte(templateMarker)) {
		return errors.Errorf("README template has no %s marker", templateMarker)
	}

	out := bytes.Replace(tpl, []byte(templateMarker), reference, 1)
	if err := afero.WriteFile(fs, readme, out, 0o644); err != nil {
		return errors.Wrap(err, "failed to write README")
	}
	logger.Info().Str("path", readme).Msg("README generated")

	return nil
}

func main() {
	logger := log.New(log.ConsoleWriter{Out: os.Stderr}).Level(log.InfoLevel)

	if err := generate(afero.NewOsFs(), logger); err != nil {
		logger.Fatal().Err(err).Msg("docs generation failed")
	}
}
