package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Style is an ANSI SGR parameter.
type Style string

const (
	StyleBold  Style = "1"
	StyleDim   Style = "2"
	StyleRed   Style = "31"
	StyleGreen Style = "32"
)

// Printer writes user-facing output, styling it only when that output is a terminal.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a [Printer] writing to STDERR.
func NewPrinter() *Printer {
	p := new(Printer)
	p.Redirect(os.Stderr)
	return p
}

// IsTerminal reports whether the writer is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Redirect changes where output is written.
// Styling is re-enabled only if the new writer is a terminal.
func (p *Printer) Redirect(writer io.Writer) {
	p.out = writer
	p.color = IsTerminal(writer)
}

// Writer returns the current output destination, so other writers like log handlers can share it.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// SetColor overrides terminal detection.
func (p *Printer) SetColor(enabled bool) {
	p.color = enabled
}

// Color reports whether output will be styled.
func (p *Printer) Color() bool {
	return p.color
}

// Style wraps the text in the styles, if styling is enabled.
func (p *Printer) Style(text string, styles ...Style) string {
	if !p.color || len(styles) == 0 {
		return text
	}
	var codes string
	for i, s := range styles {
		if i > 0 {
			codes += ";"
		}
		codes += string(s)
	}
	return "\x1b[" + codes + "m" + text + "\x1b[0m"
}

func (p *Printer) Print(msg ...any) {
	_, _ = fmt.Fprint(p.out, msg...)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *Printer) Println(msg ...any) {
	_, _ = fmt.Fprintln(p.out, msg...)
}
