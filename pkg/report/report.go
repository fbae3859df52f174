package report

import (
	"encoding/json"
	"io"
)

// Function describes an exported function of an inspected binary.
type Function struct {
	Name      string  `json:"name"`
	Demangled string  `json:"demangled,omitempty"`
	Address   uint64  `json:"address"`
	Size      uint64  `json:"size"`
	Section   string  `json:"section"`
	Binding   string  `json:"binding"`
	Offset    *uint32 `json:"uprobe_offset,omitempty"`
	Within    string  `json:"within,omitempty"`
	Insn      string  `json:"first_insn,omitempty"`
}

type ExportReport struct {
	ExePath   string     `json:"exe_path"`
	Machine   string     `json:"machine"`
	Class     string     `json:"class"`
	Size      int        `json:"size"`
	Functions []Function `json:"functions"`
}

type ExportReportOption func(*ExportReport)

func NewExportReport(opts ...ExportReportOption) *ExportReport {
	report := new(ExportReport)
	report.Functions = make([]Function, 0)
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportExePath(exePath string) ExportReportOption {
	return func(o *ExportReport) {
		o.ExePath = exePath
	}
}

func WithReportMachine(machine, class string) ExportReportOption {
	return func(o *ExportReport) {
		o.Machine = machine
		o.Class = class
	}
}

func WithReportSize(size int) ExportReportOption {
	return func(o *ExportReport) {
		o.Size = size
	}
}

func WithReportFunctions(funcs []Function) ExportReportOption {
	return func(o *ExportReport) {
		o.Functions = funcs
	}
}

func (r *ExportReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
