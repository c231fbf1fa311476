package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Printer writes streamed text and status lines to a terminal.
type Printer struct {
	w       io.Writer
	colored bool
	midLine bool // last write did not end with a newline
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, colored bool) *Printer {
	return &Printer{w: w, colored: colored}
}

// Print writes text immediately.
func (p *Printer) Print(text string) {
	if text == "" {
		return
	}
	io.WriteString(p.w, text)
	p.midLine = text[len(text)-1] != '\n'
}

// EnsureNewline ends the current line if text was left on it.
func (p *Printer) EnsureNewline() {
	if p.midLine {
		p.Print("\n")
	}
}

// Println writes a full line.
func (p *Printer) Println(text string) {
	p.EnsureNewline()
	p.Print(text + "\n")
}

func (p *Printer) styled(attr color.Attribute, format string, args ...interface{}) {
	p.EnsureNewline()
	s := fmt.Sprintf(format, args...)
	if p.colored {
		s = color.New(attr, color.Bold).Sprint(s)
	}
	p.Print(s + "\n")
}

// Command shows the final command.
func (p *Printer) Command(command string) {
	p.EnsureNewline()
	label := "Command:"
	if p.colored {
		label = color.New(color.FgCyan, color.Bold).Sprint(label)
	}
	p.Print(fmt.Sprintf("%s %s\n", label, command))
}

// Error writes a failure line.
func (p *Printer) Error(format string, args ...interface{}) {
	p.styled(color.FgRed, "✗ "+format, args...)
}

// Warning writes a warning line.
func (p *Printer) Warning(format string, args ...interface{}) {
	p.styled(color.FgYellow, "⚠ "+format, args...)
}

// Success writes a success line.
func (p *Printer) Success(format string, args ...interface{}) {
	p.styled(color.FgGreen, "✓ "+format, args...)
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✓ %s\n", message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintf(color.Error, "⚠ %s\n", message)
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	blue := color.New(color.FgBlue)
	blue.Println(message)
}
