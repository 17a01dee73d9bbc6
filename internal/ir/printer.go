package ir

import (
	"fmt"
	"strings"
)

// Printer renders an IR in the textual form accepted by the grammar
// package. Output is deterministic: blocks appear in handle order and
// values in the order of their block's node list.
type Printer struct {
	indent int
	output strings.Builder
}

func NewPrinter() *Printer {
	return &Printer{}
}

// Print returns the textual representation of an IR.
func Print(g *IR) string {
	p := NewPrinter()
	p.printIR(g)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printIR(g *IR) {
	p.writeLine("fn main {")
	p.indent++
	for h := g.CFGBegin(); h != Null; h = g.CFGNext(h) {
		p.printBlock(g, h)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(g *IR, h CFGHandle) {
	b := g.Block(h)
	p.writeLine("block @b%d {", h)
	p.indent++

	branch := Null
	if b.OutputSize() == 2 {
		branch = int(b.LastDaisy())
	}

	for _, sh := range b.SSA() {
		if int(sh) == branch {
			continue // printed as the terminator below
		}
		p.printNode(g, sh)
	}

	switch b.OutputSize() {
	case 0:
		// The return, if any, was printed as a node above.
	case 1:
		p.writeLine("jump @b%d", b.Output(0))
	case 2:
		n := g.Node(SSAHandle(branch))
		p.writeLine("if %s then @b%d else @b%d",
			p.value(n.Input(0)), b.Output(1), b.Output(0))
	default:
		p.writeLine("; unsupported: %d outputs", b.OutputSize())
	}

	p.indent--
	p.writeLine("}")
}

func (p *Printer) printNode(g *IR, h SSAHandle) {
	n := g.Node(h)
	switch n.Op() {
	case OpReturn:
		if n.InputSize() == 0 {
			p.writeLine("return")
		} else {
			p.writeLine("return %s", p.value(n.Input(0)))
		}
	case OpArg:
		p.writeLine("%%v%d: %s = arg #%d", h, n.Type(), n.ArgIndex())
	default:
		operands := make([]string, n.InputSize())
		for i := 0; i < n.InputSize(); i++ {
			operands[i] = p.value(n.Input(i))
		}
		p.writeLine("%%v%d: %s = %s %s", h, n.Type(), n.Op(), strings.Join(operands, ", "))
	}
}

func (p *Printer) value(v Value) string {
	if v.IsHandle() {
		return fmt.Sprintf("%%v%d", v.Handle())
	}
	f := v.Num()
	if uint64(f)&((1<<FixedShift)-1) == 0 {
		return fmt.Sprintf("#%d", f.Whole())
	}
	return fmt.Sprintf("#0x%x", uint64(f))
}
