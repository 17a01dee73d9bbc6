package ai

import (
	"mosbol/internal/ir"
)

// Range propagation: a monotone fixpoint over executable edges and
// value constraints, with widening driven by per-node visit counts.

// computeConstraints recomputes a node's constraint vector under the
// given context. Results are left unnormalized; callers normalize.
func (a *aiPass) computeConstraints(exec execIndex, h ir.SSAHandle) {
	n := a.g.Node(h)

	if n.Op() == ir.OpTrace {
		a.computeTraceConstraints(exec, h)
		return
	}

	inputSize := n.InputSize()
	c := make([]Def, inputSize)
	if n.Op() == ir.OpPhi {
		// Operands arriving over edges the context has not executed
		// contribute nothing: they read as Top.
		blk := a.g.Block(n.CFG())
		size := len(a.sd(h).constraints().Vec)
		for i := 0; i < inputSize; i++ {
			edge := blk.InputEdge(i)
			ed := a.cd(edge.Handle)
			if ed.outputExecutable[exec]&(1<<uint(edge.Index)) != 0 {
				c[i] = a.copyConstraints(n.Input(i))
			} else {
				vec := make(Vec, size)
				FillVec(vec, Top())
				c[i] = Def{Mask: a.sd(h).constraints().Mask, Vec: vec}
			}
		}
	} else {
		for i := 0; i < inputSize; i++ {
			c[i] = a.copyConstraints(n.Input(i))
		}
	}

	fn := AbstractOp(n.Op())
	a.setActive(h, exec)
	fn(c, a.sd(h).constraints())
}

// visit performs one range-propagation step on a node.
func (a *aiPass) visit(h ir.SSAHandle) {
	n := a.g.Node(h)

	if n.Op() == ir.OpIf {
		c := a.firstConstraint(a.g.Condition(h))

		switch {
		case c.IsTop():
			// The condition's defining edge is not executable yet.
		case !c.IsConst():
			a.queueEdge(n.CFG(), 0)
			a.queueEdge(n.CFG(), 1)
		case c.GetConst().Whole() != 0:
			a.queueEdge(n.CFG(), 1)
		default:
			a.queueEdge(n.CFG(), 0)
		}
		return
	}

	if !a.hasConstraints(h) {
		return
	}

	d := a.sd(h)
	old := CloneVec(d.constraints().Vec)

	if d.visitedCount >= widenOp {
		FillVec(d.constraints().Vec, Bottom(d.constraints().Mask))
	} else {
		a.computeConstraints(execPropagate, h)
		if d.visitedCount > widenOpBounds {
			for i := range d.constraints().Vec {
				if !d.constraints().Vec[i].IsTop() {
					d.constraints().Vec[i].Bounds = BottomBounds(d.constraints().Mask)
				}
			}
		}
		NormalizeVec(d.constraints().Vec)
	}

	if !VecEq(d.constraints().Vec, old) {
		// Traces advance twice as fast so loops over traced
		// conditions widen sooner.
		if n.Op() == ir.OpTrace {
			d.visitedCount += 2
		} else {
			d.visitedCount++
		}

		for i := 0; i < n.OutputSize(); i++ {
			a.queueNode(execPropagate, n.Output(i))
		}
	}
}

// rangePropagate seeds every node at Top, walks executable edges from
// the root, and runs the visitor to a fixpoint.
func (a *aiPass) rangePropagate() {
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		cd := a.cd(h)
		cd.skippable = false

		for _, sh := range a.g.Block(h).SSA() {
			sd := a.sd(sh)
			sd.touched = false

			def := sd.constraints()
			size := a.constraintsSize(sh)
			def.Vec = make(Vec, size)
			FillVec(def.Vec, Top())
			if size == 0 {
				continue
			}

			typ := a.g.Node(sh).Type()
			if ir.IsArrayLike(typ) {
				def.Mask = ir.ElemBitmask(typ)
			} else {
				def.Mask = ir.NumericBitmask(typ)
			}
		}
	}

	a.pushCFG(a.g.Root)

	for len(a.ssaWorklist) > 0 || len(a.cfgWorklist) > 0 {
		for len(a.ssaWorklist) > 0 {
			a.visit(a.popSSA())
		}

		for len(a.cfgWorklist) > 0 {
			h := a.popCFG()
			d := a.cd(h)

			if !d.executable[execPropagate] {
				d.executable[execPropagate] = true
				for _, sh := range a.g.Block(h).SSA() {
					a.queueNode(execPropagate, sh)
				}
			} else {
				// Re-reached over a new edge: only phis can change.
				for _, sh := range a.g.Block(h).Phis() {
					a.queueNode(execPropagate, sh)
				}
			}

			if a.g.Block(h).OutputSize() == 1 {
				a.queueEdge(h, 0)
			}
		}
	}
}
