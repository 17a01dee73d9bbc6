package errors

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestFormatWithPosition(t *testing.T) {
	color.NoColor = true

	src := "fn main {\n  block entry {\n  }\n}"
	r := NewReporter("bad.mir", src)

	out := r.Format(Diagnostic{
		Level:   Error,
		Code:    ErrorSyntax,
		Message: "unexpected token",
		Line:    2,
		Column:  9,
	})

	assert.Contains(t, out, "error[E0100]: unexpected token")
	assert.Contains(t, out, "bad.mir:2:9")
	assert.Contains(t, out, "block entry {")
	assert.Contains(t, out, "^")
}

func TestFormatWithoutPosition(t *testing.T) {
	color.NoColor = true

	r := NewReporter("x.mir", "")
	out := r.Format(Diagnostic{
		Level:   Error,
		Code:    ErrorBuild,
		Message: "unknown value %q",
	})

	assert.Contains(t, out, "error[E0200]: unknown value %q")
	assert.NotContains(t, out, "-->")
}

func TestLevels(t *testing.T) {
	color.NoColor = true

	r := NewReporter("x.mir", "line one")
	for _, level := range []ErrorLevel{Error, Warning, Note} {
		out := r.Format(Diagnostic{Level: level, Message: "msg", Line: 1, Column: 1})
		assert.Contains(t, out, string(level)+": msg")
	}
}
