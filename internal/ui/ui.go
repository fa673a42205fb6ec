// Package ui provides terminal output utilities for the CLI commands.
package ui

import (
	"fmt"
	"io"
	"os"
)

// Colors for terminal output
const (
	Reset = "\033[0m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Gray   = "\033[90m"
)

// Symbols for different message types
const (
	SymbolSuccess = "✔"
	SymbolError   = "✖"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"
)

// Output wraps an io.Writer with UI utilities.
type Output struct {
	w       io.Writer
	noColor bool
	quiet   bool
}

// NewOutput creates a new Output.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// DefaultOutput creates an Output for stdout.
func DefaultOutput() *Output {
	return NewOutput(os.Stdout)
}

// SetNoColor disables colors.
func (o *Output) SetNoColor(noColor bool) {
	o.noColor = noColor
}

// SetQuiet enables quiet mode (only errors).
func (o *Output) SetQuiet(quiet bool) {
	o.quiet = quiet
}

// color applies color if enabled.
func (o *Output) color(code, text string) string {
	if o.noColor {
		return text
	}
	return code + text + Reset
}

// Success prints a success message.
func (o *Output) Success(format string, args ...interface{}) {
	if o.quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(o.w, "%s %s\n", o.color(Green, SymbolSuccess), msg)
}

// Error prints an error message.
func (o *Output) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(o.w, "%s %s\n", o.color(Red, SymbolError), msg)
}

// Warning prints a warning message.
func (o *Output) Warning(format string, args ...interface{}) {
	if o.quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(o.w, "%s %s\n", o.color(Yellow, SymbolWarning), msg)
}

// Info prints an info message.
func (o *Output) Info(format string, args ...interface{}) {
	if o.quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(o.w, "%s %s\n", o.color(Blue, SymbolInfo), msg)
}

// Print prints a plain message.
func (o *Output) Print(format string, args ...interface{}) {
	if o.quiet {
		return
	}
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Field prints a labeled field.
func (o *Output) Field(label, value string) {
	if o.quiet {
		return
	}
	fmt.Fprintf(o.w, "  %s %s\n", o.color(Gray, label+":"), value)
}
