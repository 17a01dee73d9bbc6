package ai

import (
	"mosbol/internal/ir"
)

// Trace insertion. At every two-way branch with a non-literal
// condition, each outgoing edge is split and a trace node is inserted
// into the fresh block, recording the assumption "this edge was taken".
// Uses of the condition (and, transitively, of its traced inputs) below
// the branch are redirected to the traces; the redirection rebuilds the
// SSA with on-demand phi construction. Relevant paper:
//   Simple and Efficient Construction of Static Single Assignment Form

// localLookup finds the value of ssaNode as seen from block, creating
// phis on demand. The phi is registered in the rebuild map before its
// operands are filled, which is what lets lookups cycle through loop
// back edges and terminate.
func (a *aiPass) localLookup(block ir.CFGHandle, ssaNode ir.SSAHandle) ir.SSAHandle {
	if a.g.Node(ssaNode).CFG() == block {
		return ssaNode
	}

	cd := a.cd(block)
	if m, ok := cd.rebuildMap[ssaNode]; ok {
		return m
	}

	switch a.g.Block(block).InputSize() {
	case 0:
		panic("local lookup failed")
	case 1:
		return a.localLookup(a.g.Block(block).Input(0), ssaNode)
	default:
		typ := a.g.Node(ssaNode).Type()
		phi := a.g.Block(block).EmplaceSSA(ir.OpPhi, typ)
		a.resizeData()

		a.sd(phi).rebuildMapping = ssaNode
		cd = a.cd(block) // the side tables may have moved
		if cd.rebuildMap == nil {
			cd.rebuildMap = map[ir.SSAHandle]ir.SSAHandle{}
		}
		cd.rebuildMap[ssaNode] = phi

		inputSize := a.g.Block(block).InputSize()
		a.g.Node(phi).AllocInput(inputSize)
		for i := 0; i < inputSize; i++ {
			v := a.localLookup(a.g.Block(block).Input(i), ssaNode)
			a.g.Node(phi).BuildSetInput(i, ir.HandleValue(v))
		}
		return phi
	}
}

// insertTrace adds a trace for original into the trace block. parent is
// either the branch-index literal (for the root trace) or the parent
// trace handle; argI is the operand position of original inside the
// parent's original expression.
func (a *aiPass) insertTrace(cfgTrace ir.CFGHandle, original ir.SSAHandle, parent ir.Value, argI int) {
	cd := a.cd(cfgTrace)

	// A node can appear several times in the condition expression; a
	// repeat only appends another (parent, argI) refinement pair.
	if h, ok := cd.rebuildMap[original]; ok {
		if parent.IsHandle() && h != parent.Handle() {
			n := a.g.Node(h)
			n.LinkAppendInput(parent)
			n.LinkAppendInput(ir.NumValue(ir.FixedWhole(uint64(argI))))
		}
		return
	}

	trace := a.g.Block(cfgTrace).EmplaceSSA(ir.OpTrace, a.g.Node(original).Type())
	a.resizeData()
	// Handles resolved before this point are stale now.

	cd = a.cd(cfgTrace)
	if cd.rebuildMap == nil {
		cd.rebuildMap = map[ir.SSAHandle]ir.SSAHandle{}
	}
	cd.rebuildMap[original] = trace
	a.sd(trace).rebuildMapping = original

	n := a.g.Node(trace)
	if parent.IsHandle() {
		// Derived trace: the original, then (parent, argI) pairs.
		n.AllocInput(3)
		n.BuildSetInput(0, ir.HandleValue(original))
		n.BuildSetInput(1, parent)
		n.BuildSetInput(2, ir.NumValue(ir.FixedWhole(uint64(argI))))
	} else {
		// Root trace: the original and the taken branch index.
		n.AllocInput(2)
		n.BuildSetInput(0, ir.HandleValue(original))
		n.BuildSetInput(1, parent)
	}

	if ir.SSAFlags(a.g.Node(original).Op())&ir.FlagTraceInputs != 0 {
		inputSize := a.g.Node(original).InputSize()
		for i := 0; i < inputSize; i++ {
			if in := a.g.Node(original).Input(i); in.IsHandle() {
				a.insertTrace(cfgTrace, in.Handle(), ir.HandleValue(trace), i)
			}
		}
	}

	a.needsRebuild = append(a.needsRebuild, original)
}

// insertTraces splits the outgoing edges of every two-way branch and
// populates the new blocks with traces, then redirects downstream uses
// of every traced original.
func (a *aiPass) insertTraces() {
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		if a.g.Block(h).OutputSize() != 2 { // TODO: handle switch
			continue
		}

		branch := a.g.Block(h).LastDaisy()
		condition := a.g.Condition(branch)

		// A literal condition makes a useless trace partition.
		if !condition.IsHandle() {
			continue
		}

		for i := 0; i < 2; i++ {
			cfgTrace := a.g.SplitEdge(h, i)
			a.resizeData()
			a.insertTrace(cfgTrace, condition.Handle(), ir.NumValue(ir.FixedWhole(uint64(i))), 0)
		}
	}

	// Redirect the uses of every original that spawned a trace.
	for _, h := range a.needsRebuild {
		lookFor := h
		if m := a.sd(h).rebuildMapping; m != ir.Null {
			lookFor = m
		}

		for i := 0; i < a.g.Node(h).OutputSize(); {
			edge := a.g.Node(h).OutputEdge(i)
			user := a.g.Node(edge.Handle)

			// Traces keep pointing at their original.
			if user.Op() == ir.OpTrace && edge.Index == 0 {
				i++
				continue
			}

			lookup := a.localLookup(user.InputCFG(edge.Index), lookFor)
			if !a.g.Node(edge.Handle).LinkChangeInput(edge.Index, ir.HandleValue(lookup)) {
				i++
			}
		}
	}

	a.needsRebuild = a.needsRebuild[:0]
}

// computeTraceConstraints evaluates a trace's abstract value: the root
// trace is the branch-index constant; a derived trace narrows each
// parent expression by the parent trace's value and intersects what
// that implies about this operand. The result unions into the previous
// value so the update stays monotone. Results are not normalized here;
// the visitor normalizes.
func (a *aiPass) computeTraceConstraints(exec execIndex, trace ir.SSAHandle) {
	n := a.g.Node(trace)

	if n.InputSize() == 2 {
		a.setActive(trace, exec)
		*a.sd(trace).constraints() = Def{
			Mask: largestFixedMask,
			Vec:  Vec{Const(n.Input(1).Num())},
		}
		return
	}

	// Give up until every parent has a usable value.
	inputSize := n.InputSize()
	for i := 1; i < inputSize; i += 2 {
		parent := n.Input(i).Handle()
		if AnyTop(a.sd(parent).constraints().Vec) {
			return
		}
	}

	td := a.sd(trace).constraints()
	narrowed := make(Vec, len(td.Vec))
	FillVec(narrowed, Bottom(td.Mask))

	for i := 1; i < inputSize; i += 2 {
		parentTrace := n.Input(i).Handle()
		parentOriginal := a.g.Node(parentTrace).Input(0).Handle()

		argI := int(n.Input(i + 1).Num().Whole())
		numArgs := a.g.Node(parentOriginal).InputSize()

		c := make([]Def, numArgs)
		for j := 0; j < numArgs; j++ {
			c[j] = a.copyConstraints(a.g.Node(parentOriginal).Input(j))
		}

		narrow := NarrowOp(a.g.Node(parentOriginal).Op())
		narrow(c, *a.sd(parentTrace).constraints())

		for j := range narrowed {
			if j < len(c[argI].Vec) {
				narrowed[j] = Intersect(narrowed[j], c[argI].Vec[j])
			}
		}
	}

	a.setActive(trace, exec)
	out := a.sd(trace).constraints()
	for j := range narrowed {
		out.Vec[j] = Union(out.Vec[j], narrowed[j])
	}
}
