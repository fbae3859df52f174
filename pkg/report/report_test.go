package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xexport/pkg/report"
)

func TestNewReportWithOptions(t *testing.T) {
	funcs := []report.Function{{Name: "foo", Address: 0x1000}}

	r := report.NewExportReport(
		report.WithReportExePath("/lib/libfoo.so"),
		report.WithReportMachine("EM_X86_64", "ELFCLASS64"),
		report.WithReportSize(4096),
		report.WithReportFunctions(funcs),
	)

	require.Equal(t, "/lib/libfoo.so", r.ExePath)
	require.Equal(t, "EM_X86_64", r.Machine)
	require.Equal(t, "ELFCLASS64", r.Class)
	require.Equal(t, 4096, r.Size)
	require.Equal(t, funcs, r.Functions)
}

func TestWriteReportJSONOutput(t *testing.T) {
	offset := uint32(0x1000)
	r := report.NewExportReport(
		report.WithReportExePath("mybin"),
		report.WithReportFunctions([]report.Function{
			{Name: "_ZN3foo3barEv", Demangled: "foo::bar()", Address: 0x1000, Size: 16, Section: ".text", Binding: "STB_GLOBAL", Offset: &offset},
		}),
	)

	var buf bytes.Buffer
	require.NoError(t, r.WriteReport(&buf))

	var parsed report.ExportReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Equal(t, r, &parsed)
}

func TestWriteReportContainsExpectedFields(t *testing.T) {
	r := report.NewExportReport(
		report.WithReportExePath("mybin"),
		report.WithReportFunctions([]report.Function{{Name: "main.foo", Insn: "ret"}}),
	)

	var buf bytes.Buffer
	require.NoError(t, r.WriteReport(&buf))

	out := buf.String()
	require.True(t, strings.Contains(out, "main.foo"))
	require.True(t, strings.Contains(out, "first_insn"))
	require.True(t, strings.Contains(out, "exe_path"))
	require.False(t, strings.Contains(out, "uprobe_offset"))
}

func TestEmptyReportHasFunctionList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewExportReport().WriteReport(&buf))
	require.Contains(t, buf.String(), `"functions": []`)
}
