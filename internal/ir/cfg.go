package ir

// CFG edge editing. Input and output edges store reciprocal slot
// indices; the fixup helpers below renumber the remote side whenever a
// slot list shifts. Phi arity tracks the input list: removing or adding
// a block input removes or adds the matching operand of every phi.

// fixupOutputs renumbers the succ-side back references for output slots
// at positions >= from.
func (b *Block) fixupOutputs(from int) {
	for j := from; j < len(b.outputs); j++ {
		e := b.outputs[j]
		b.g.Block(e.Handle).inputs[e.Index].Index = j
	}
}

// fixupInputs renumbers the pred-side back references for input slots
// at positions >= from.
func (b *Block) fixupInputs(from int) {
	for j := from; j < len(b.inputs); j++ {
		e := b.inputs[j]
		b.g.Block(e.Handle).outputs[e.Index].Index = j
	}
}

// LinkAppendOutput adds an edge to target. phiFn is called once per phi
// in the target to produce its operand for the new edge; it may be nil
// when the target has no phis.
func (b *Block) LinkAppendOutput(target CFGHandle, phiFn func(phi SSAHandle) Value) {
	t := b.g.Block(target)
	b.outputs = append(b.outputs, CFGBckEdge{Handle: target, Index: len(t.inputs)})
	t.inputs = append(t.inputs, CFGFwdEdge{Handle: b.self, Index: len(b.outputs) - 1})
	for _, phi := range t.Phis() {
		b.g.Node(phi).LinkAppendInput(phiFn(phi))
	}
}

// LinkRemoveOutput removes output edge i. The matching input slot of
// the successor disappears, along with the corresponding operand of
// every phi in it.
func (b *Block) LinkRemoveOutput(i int) {
	e := b.outputs[i]
	t := b.g.Block(e.Handle)

	for _, phi := range t.Phis() {
		b.g.Node(phi).LinkRemoveInput(e.Index)
	}
	t.inputs = append(t.inputs[:e.Index], t.inputs[e.Index+1:]...)
	t.fixupInputs(e.Index)

	b.outputs = append(b.outputs[:i], b.outputs[i+1:]...)
	b.fixupOutputs(i)
}

// SplitEdge inserts a fresh empty block on the outIdx-th output edge of
// from. The new block has exactly one input and one output.
func (g *IR) SplitEdge(from CFGHandle, outIdx int) CFGHandle {
	t := g.EmplaceCFG()
	f := g.Block(from)
	old := f.outputs[outIdx]
	succ := g.Block(old.Handle)

	f.outputs[outIdx] = CFGBckEdge{Handle: t, Index: 0}
	mid := g.Block(t)
	mid.inputs = []CFGFwdEdge{{Handle: from, Index: outIdx}}
	mid.outputs = []CFGBckEdge{{Handle: old.Handle, Index: old.Index}}
	succ.inputs[old.Index] = CFGFwdEdge{Handle: t, Index: 0}
	return t
}

// MergeEdge splices out a block with one input, one output, and no SSA
// nodes, connecting its predecessor directly to its successor. It
// returns the next live block for iteration.
func (g *IR) MergeEdge(h CFGHandle) CFGHandle {
	b := g.Block(h)
	if len(b.inputs) != 1 || len(b.outputs) != 1 || len(b.ssa) != 0 {
		panic("ir: MergeEdge on unmergeable block")
	}
	in := b.inputs[0]
	out := b.outputs[0]

	pred := g.Block(in.Handle)
	succ := g.Block(out.Handle)
	pred.outputs[in.Index] = CFGBckEdge{Handle: out.Handle, Index: out.Index}
	succ.inputs[out.Index] = CFGFwdEdge{Handle: in.Handle, Index: in.Index}

	b.inputs = nil
	b.outputs = nil
	b.alive = false
	return g.CFGNext(h)
}

// PruneCFG removes a block and everything in it, returning the next
// live block for iteration. Uses of the block's nodes from other blocks
// may only come from blocks that are themselves about to be pruned.
func (g *IR) PruneCFG(h CFGHandle) CFGHandle {
	b := g.Block(h)

	for len(b.outputs) > 0 {
		b.LinkRemoveOutput(0)
	}
	for len(b.inputs) > 0 {
		in := b.inputs[0]
		g.Block(in.Handle).LinkRemoveOutput(in.Index)
	}

	for len(b.ssa) > 0 {
		g.Node(b.ssa[len(b.ssa)-1]).pruneDetached()
	}

	b.alive = false
	return g.CFGNext(h)
}
