package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	markerOK   = "[+]"
	markerFail = "[-]"
)

// Printer writes the progress lines of an export run. Markers are colored
// only when the destination is a terminal.
type Printer struct {
	w    io.Writer
	ok   *color.Color
	fail *color.Color
}

func NewPrinter(w io.Writer) *Printer {
	p := &Printer{
		w:    w,
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed),
	}
	if !IsTerminal(w) {
		p.ok.DisableColor()
		p.fail.DisableColor()
	}

	return p
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (p *Printer) InvalidSyntax() {
	fmt.Fprintf(p.w, "%s invalid syntax\n", p.fail.Sprint(markerFail))
}

func (p *Printer) Exporting(name string, addr uint64) {
	fmt.Fprintf(p.w, "%s exporting '%s' to %#x\n", p.ok.Sprint(markerOK), name, addr)
}

func (p *Printer) Writing(path string) {
	fmt.Fprintf(p.w, "%s writing shared object as '%s'\n", p.ok.Sprint(markerOK), path)
}

func (p *Printer) Done() {
	fmt.Fprintf(p.w, "%s done\n", p.ok.Sprint(markerOK))
}
