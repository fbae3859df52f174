//go:build docs

package main

import (
	"bytes"
	"testing"

	log "github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra/doc"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xexport/pkg/cmd"
)

func TestReadmeTemplate(t *testing.T) {
	// Tests run from the package directory.
	tpl, err := afero.ReadFile(afero.NewOsFs(), "../"+readmeTemplate)
	require.NoError(t, err)
	require.Contains(t, string(tpl), templateMarker)
}

func TestRenderReadme(t *testing.T) {
	tpl, err := afero.ReadFile(afero.NewOsFs(), "../"+readmeTemplate)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, readmeTemplate, tpl, 0o644))

	var reference bytes.Buffer
	require.NoError(t, doc.GenMarkdownCustom(cmd.NewCommand(cmd.NewOptions()), &reference, linkHandler))
	require.NoError(t, renderReadme(fs, reference.Bytes(), log.New(log.NewTestWriter(t))))

	out, err := afero.ReadFile(fs, readme)
	require.NoError(t, err)
	require.NotContains(t, string(out), templateMarker)
	require.Contains(t, string(out), "# xexport")
	require.Contains(t, string(out), "--log-level")
	require.Contains(t, string(out), "docs/xexport_inspect.md")
}

func TestRenderReadmeErrors(t *testing.T) {
	logger := log.New(log.NewTestWriter(t))

	require.Error(t, renderReadme(afero.NewMemMapFs(), []byte("ref"), logger))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, readmeTemplate, []byte("# no marker\n"), 0o644))
	require.Error(t, renderReadme(fs, []byte("ref"), logger))
}
