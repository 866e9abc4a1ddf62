// Package diag provides diagnostic handlers: a terminal printer and a
// verifier that checks diagnostics against expectations written in the
// source.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/roach88/hwpipe/internal/ir"
)

// Printer writes diagnostics to a writer, one per line, with the offending
// source line and a caret when the source buffer is known. Colors are used
// only when the writer is a terminal (or when forced).
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	colors  bool
	sources map[string][]string
	sev     map[ir.Severity]func(a ...any) string
	bold    func(a ...any) string
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithColors forces colored output on or off.
func WithColors(enabled bool) PrinterOption {
	return func(p *Printer) { p.colors = enabled }
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{w: w, sources: make(map[string][]string)}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p.colors = true
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sev = map[ir.Severity]func(a ...any) string{
		ir.SeverityError:   p.colorFunc(color.FgRed, color.Bold),
		ir.SeverityWarning: p.colorFunc(color.FgYellow, color.Bold),
		ir.SeverityNote:    p.colorFunc(color.FgCyan),
		ir.SeverityRemark:  p.colorFunc(color.FgBlue),
	}
	p.bold = p.colorFunc(color.Bold)
	return p
}

func (p *Printer) colorFunc(attrs ...color.Attribute) func(a ...any) string {
	if !p.colors {
		return fmt.Sprint
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.SprintFunc()
}

// AddSource registers a buffer so that diagnostics located in it show the
// offending line.
func (p *Printer) AddSource(name, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[name] = strings.Split(text, "\n")
}

// Handle implements ir.Handler.
func (p *Printer) Handle(d ir.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print(d)
}

func (p *Printer) print(d ir.Diagnostic) {
	var sb strings.Builder
	if d.Loc.IsKnown() {
		sb.WriteString(p.bold(d.Loc.String() + ":"))
		sb.WriteString(" ")
	}
	sev, ok := p.sev[d.Severity]
	if !ok {
		sev = fmt.Sprint
	}
	sb.WriteString(sev(d.Severity.String() + ":"))
	sb.WriteString(" ")
	sb.WriteString(d.Message)
	sb.WriteString("\n")
	if line, ok := p.sourceLine(d.Loc); ok {
		fmt.Fprintf(&sb, "%s\n", line)
		col := d.Loc.Column
		if col < 1 {
			col = 1
		}
		if col > len(line)+1 {
			col = len(line) + 1
		}
		sb.WriteString(strings.Repeat(" ", col-1))
		sb.WriteString(sev("^"))
		sb.WriteString("\n")
	}
	_, _ = io.WriteString(p.w, sb.String())
	for _, n := range d.Notes {
		p.print(n)
	}
}

func (p *Printer) sourceLine(loc ir.Location) (string, bool) {
	if !loc.IsKnown() {
		return "", false
	}
	lines, ok := p.sources[loc.File]
	if !ok || loc.Line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[loc.Line-1], "\r"), true
}
