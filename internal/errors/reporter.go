package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a diagnostic.
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
)

// Diagnostic is a positioned message with an error code.
type Diagnostic struct {
	Level   ErrorLevel
	Code    string
	Message string
	Line    int // 1-based; 0 means no position
	Column  int // 1-based
}

// Reporter formats diagnostics against a source file with caret-style
// context lines.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter for a file.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders a diagnostic with colored, Rust-like styling.
func (r *Reporter) Format(d Diagnostic) string {
	var result strings.Builder

	levelColor := r.levelColor(d.Level)
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if d.Code != "" {
		result.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message))
	} else {
		result.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(d.Level)), d.Message))
	}

	if d.Line <= 0 || d.Line > len(r.lines) {
		return result.String()
	}

	width := len(fmt.Sprintf("%d", d.Line))
	indent := strings.Repeat(" ", width)

	result.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, d.Line, d.Column))
	result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))
	result.WriteString(fmt.Sprintf("%s %s %s\n", bold(fmt.Sprintf("%*d", width, d.Line)), dim("│"), r.lines[d.Line-1]))

	if d.Column > 0 {
		caret := strings.Repeat(" ", d.Column-1) + "^"
		result.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), levelColor(caret)))
	}

	return result.String()
}

func (r *Reporter) levelColor(level ErrorLevel) func(a ...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgCyan, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
