package ai

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"mosbol/internal/ir"
)

// PhaseDump streams the printed IR after every optimizer phase as one
// zstd-compressed text stream, for offline debugging of a run.
type PhaseDump struct {
	enc *zstd.Encoder
}

// NewPhaseDump wraps a writer. Close flushes the compressed stream.
func NewPhaseDump(w io.Writer) (*PhaseDump, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &PhaseDump{enc: enc}, nil
}

// Phase records the IR state after the named phase.
func (d *PhaseDump) Phase(name string, g *ir.IR) error {
	if _, err := fmt.Fprintf(d.enc, ";; ---- %s ----\n", name); err != nil {
		return err
	}
	_, err := io.WriteString(d.enc, ir.Print(g))
	return err
}

// Close flushes and finalizes the stream.
func (d *PhaseDump) Close() error {
	return d.enc.Close()
}
