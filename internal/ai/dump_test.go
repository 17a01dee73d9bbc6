package ai

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseDump(t *testing.T) {
	g := buildIR(t, `
fn main {
  block @entry {
    if #1 then @live else @dead
  }
  block @dead { return }
  block @live { return }
}`)

	var buf bytes.Buffer
	dump, err := NewPhaseDump(&buf)
	require.NoError(t, err)

	_, err = OptimizeOpts(g, Options{Dump: dump})
	require.NoError(t, err)
	require.NoError(t, dump.Close())

	dec, err := zstd.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer dec.Close()

	text, err := io.ReadAll(dec)
	require.NoError(t, err)

	// Every phase appears, in order, each followed by a printed IR.
	out := string(text)
	last := -1
	for _, name := range []string{"TRACE", "PROPAGATE", "PRUNE", "MARK SKIP", "THREAD", "FOLD", "REMOVE SKIP"} {
		idx := strings.Index(out, ";; ---- "+name+" ----")
		assert.Greater(t, idx, last, "phase %s in order", name)
		last = idx
	}
	assert.Contains(t, out, "fn main {")
}
