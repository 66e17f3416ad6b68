// Package textfmt renders container items as indented, commented text.
package textfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Appender is implemented by items that can describe themselves as text.
type Appender interface {
	AppendText(w *Writer) error
}

// Writer accumulates indented lines.
type Writer struct {
	sb      strings.Builder
	depth   int
	unit    string
	comment string
	midLine bool
}

// NewWriter creates a writer indenting by four spaces and commenting with "#".
func NewWriter() *Writer {
	return &Writer{unit: "    ", comment: "#"}
}

// SetIndentUnit changes the string written once per indentation level.
func (w *Writer) SetIndentUnit(unit string) {
	w.unit = unit
}

// Indent increases the indentation of following lines.
func (w *Writer) Indent() {
	w.depth++
}

// Dedent decreases the indentation of following lines.
func (w *Writer) Dedent() {
	if w.depth > 0 {
		w.depth--
	}
}

// Depth returns the current indentation level.
func (w *Writer) Depth() int {
	return w.depth
}

func (w *Writer) begin() {
	if !w.midLine {
		w.sb.WriteString(strings.Repeat(w.unit, w.depth))
		w.midLine = true
	}
}

// Print writes formatted text on the current line.
func (w *Writer) Print(format string, args ...any) {
	w.begin()
	fmt.Fprintf(&w.sb, format, args...)
}

// Line writes formatted text and ends the line.
func (w *Writer) Line(format string, args ...any) {
	w.Print(format, args...)
	w.Newline()
}

// Newline ends the current line.
func (w *Writer) Newline() {
	w.sb.WriteByte('\n')
	w.midLine = false
}

// Comment writes a comment, either trailing the current line or on its own line.
func (w *Writer) Comment(format string, args ...any) {
	if w.midLine {
		w.sb.WriteByte(' ')
	}
	w.Print("%s %s", w.comment, fmt.Sprintf(format, args...))
	w.Newline()
}

// Append renders a, indented one level deeper than the current line.
func (w *Writer) Append(a Appender) error {
	if w.midLine {
		w.Newline()
	}
	w.Indent()
	defer w.Dedent()

	return a.AppendText(w)
}

// String returns everything written so far.
func (w *Writer) String() string {
	return w.sb.String()
}

// WriteTo implements io.WriterTo.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	n, err := io.WriteString(out, w.sb.String())
	return int64(n), err
}

// Quote returns s as a double-quoted literal with Go escapes.
func Quote(s string) string {
	return strconv.Quote(s)
}

// Render returns the text of a at depth zero.
func Render(a Appender) (string, error) {
	w := NewWriter()
	if err := a.AppendText(w); err != nil {
		return "", err
	}

	return w.String(), nil
}
