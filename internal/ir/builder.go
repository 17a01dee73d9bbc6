package ir

import (
	"fmt"
	"strconv"
	"strings"

	"mosbol/grammar"
)

// Build constructs an IR from a parsed textual file. Edges are created
// before SSA nodes so phi arity can be checked against predecessor
// counts; value names may forward-reference definitions in later
// blocks.
func Build(f *grammar.File) (*IR, error) {
	if len(f.Funcs) != 1 {
		return nil, fmt.Errorf("expected exactly one fn, got %d", len(f.Funcs))
	}
	fn := f.Funcs[0]
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("fn %s has no blocks", fn.Name)
	}

	g := NewIR()
	b := &builder{g: g, blocks: map[string]CFGHandle{}, values: map[string]SSAHandle{}}

	for _, blk := range fn.Blocks {
		if _, dup := b.blocks[blk.Label]; dup {
			return nil, fmt.Errorf("duplicate block label @%s", blk.Label)
		}
		b.blocks[blk.Label] = g.EmplaceCFG()
	}

	if err := b.linkEdges(fn); err != nil {
		return nil, err
	}
	if err := b.createNodes(fn); err != nil {
		return nil, err
	}
	if err := b.fillInputs(fn); err != nil {
		return nil, err
	}
	return g, nil
}

type builder struct {
	g      *IR
	blocks map[string]CFGHandle
	values map[string]SSAHandle
	nodes  []SSAHandle // per created Assign, in file order
}

// linkEdges creates all CFG edges. For a branch, the false edge comes
// first: output 0 is the else target, output 1 the then target.
func (b *builder) linkEdges(fn *grammar.Func) error {
	for _, blk := range fn.Blocks {
		h := b.blocks[blk.Label]
		for _, in := range blk.Instrs {
			switch {
			case in.Jump != nil:
				t, ok := b.blocks[in.Jump.Target]
				if !ok {
					return fmt.Errorf("unknown block @%s", in.Jump.Target)
				}
				b.g.Block(h).LinkAppendOutput(t, nil)
			case in.If != nil:
				el, ok := b.blocks[in.If.Else]
				if !ok {
					return fmt.Errorf("unknown block @%s", in.If.Else)
				}
				th, ok := b.blocks[in.If.Then]
				if !ok {
					return fmt.Errorf("unknown block @%s", in.If.Then)
				}
				b.g.Block(h).LinkAppendOutput(el, nil)
				b.g.Block(h).LinkAppendOutput(th, nil)
			}
		}
	}
	return nil
}

// createNodes creates all SSA nodes with empty inputs, keeping branch
// nodes last in their block.
func (b *builder) createNodes(fn *grammar.Func) error {
	for _, blk := range fn.Blocks {
		h := b.blocks[blk.Label]
		var branch *grammar.If
		for _, in := range blk.Instrs {
			switch {
			case in.Assign != nil:
				a := in.Assign
				typ, ok := TypeByName(a.Type)
				if !ok {
					return fmt.Errorf("%%%s: unknown type %q", a.Name, a.Type)
				}
				op, ok := OpByName(a.Op)
				if !ok || op == OpTrace || op == OpIf || op == OpReturn {
					return fmt.Errorf("%%%s: unknown op %q", a.Name, a.Op)
				}
				if _, dup := b.values[a.Name]; dup {
					return fmt.Errorf("duplicate value %%%s", a.Name)
				}
				sh := b.g.Block(h).EmplaceSSA(op, typ)
				b.values[a.Name] = sh
				b.nodes = append(b.nodes, sh)
			case in.Ret != nil:
				sh := b.g.Block(h).EmplaceSSA(OpReturn, VoidType)
				b.nodes = append(b.nodes, sh)
			case in.If != nil:
				branch = in.If
			}
		}
		if branch != nil {
			sh := b.g.Block(h).EmplaceSSA(OpIf, VoidType)
			b.nodes = append(b.nodes, sh)
		}
	}
	return nil
}

// fillInputs resolves operands now that every definition exists.
func (b *builder) fillInputs(fn *grammar.Func) error {
	ni := 0
	for _, blk := range fn.Blocks {
		var branch *grammar.If
		for _, in := range blk.Instrs {
			switch {
			case in.Assign != nil:
				a := in.Assign
				n := b.g.Node(b.nodes[ni])
				ni++
				if n.Op() == OpArg {
					if len(a.Args) != 1 || a.Args[0].Num == nil {
						return fmt.Errorf("%%%s: arg takes one literal index", a.Name)
					}
					v, err := b.operand(a.Args[0])
					if err != nil {
						return err
					}
					n.SetArgIndex(int(v.Num().Whole()))
					continue
				}
				if err := checkArity(n.Op(), len(a.Args)); err != nil {
					return fmt.Errorf("%%%s: %w", a.Name, err)
				}
				n.AllocInput(len(a.Args))
				for i, arg := range a.Args {
					v, err := b.operand(arg)
					if err != nil {
						return fmt.Errorf("%%%s: %w", a.Name, err)
					}
					n.BuildSetInput(i, v)
				}
			case in.Ret != nil:
				n := b.g.Node(b.nodes[ni])
				ni++
				if in.Ret.Value != nil {
					v, err := b.operand(in.Ret.Value)
					if err != nil {
						return err
					}
					n.AllocInput(1)
					n.BuildSetInput(0, v)
				}
			case in.If != nil:
				branch = in.If
			}
		}
		if branch != nil {
			n := b.g.Node(b.nodes[ni])
			ni++
			v, err := b.operand(branch.Cond)
			if err != nil {
				return err
			}
			n.AllocInput(1)
			n.BuildSetInput(0, v)
		}
	}
	return nil
}

func checkArity(op Op, n int) error {
	ok := true
	switch op {
	case OpAdd, OpSub:
		ok = n == 2 || n == 3
	case OpAnd, OpOr, OpXor, OpReadArray:
		ok = n == 2
	case OpNot, OpCopy, OpCast:
		ok = n == 1
	case OpWriteArray:
		ok = n == 3
	case OpEq, OpNotEq, OpLt, OpLte:
		ok = n >= 2 && n%2 == 0
	case OpInitArray:
		ok = n >= 1
	}
	if !ok {
		return fmt.Errorf("op %s with %d operands", op, n)
	}
	return nil
}

func (b *builder) operand(o *grammar.Operand) (Value, error) {
	if o.Ref != nil {
		h, ok := b.values[*o.Ref]
		if !ok {
			return Value{}, fmt.Errorf("unknown value %%%s", *o.Ref)
		}
		return HandleValue(h), nil
	}
	lit := *o.Num
	if strings.HasPrefix(lit, "0x") {
		raw, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad literal #%s", lit)
		}
		return NumValue(Fixed(raw)), nil
	}
	whole, err := strconv.ParseUint(lit, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("bad literal #%s", lit)
	}
	return NumValue(FixedWhole(whole)), nil
}
