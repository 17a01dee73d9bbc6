package ai

import (
	"mosbol/internal/ir"
)

// pruneUnreachableCode resolves branches whose condition settled to a
// constant, then deletes every block the propagation never reached.
func (a *aiPass) pruneUnreachableCode() {
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		if a.g.Block(h).OutputSize() != 2 { // TODO: handle switch
			continue
		}

		branch := a.g.Block(h).LastDaisy()
		c := a.firstConstraint(a.g.Condition(branch))
		if !c.IsConst() {
			continue
		}

		// Drop the branch, then the edge it can never take.
		pruneI := 1
		if c.GetConst().Whole() != 0 {
			pruneI = 0
		}

		a.g.Node(branch).Prune()
		a.g.Block(h).LinkRemoveOutput(pruneI)

		a.updated = true
	}

	for h := a.g.CFGBegin(); h != ir.Null; {
		if a.cd(h).executable[execPropagate] {
			h = a.g.CFGNext(h)
		} else {
			h = a.g.PruneCFG(h)
			a.updated = true
		}
	}
}

func (a *aiPass) hasNonTraceUse(h ir.SSAHandle) bool {
	n := a.g.Node(h)
	for i := 0; i < n.OutputSize(); i++ {
		if a.g.Node(n.Output(i)).Op() != ir.OpTrace {
			return true
		}
	}
	return false
}

// foldConsts rewrites values whose constraint collapsed to a single
// constant, and strips comparison operand pairs the constraints already
// decide.
func (a *aiPass) foldConsts() {
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		ssa := append([]ir.SSAHandle(nil), a.g.Block(h).SSA()...)
		for _, sh := range ssa {
			n := a.g.Node(sh)
			if n.OutputSize() == 0 || !a.hasConstraints(sh) {
				continue
			}

			op := n.Op()
			d := a.sd(sh)

			switch {
			case ir.IsNumeric(n.Type()) && d.constraints().Vec[0].IsConst():
				// Uses inside trace nodes are analysis bookkeeping;
				// folding is only worth reporting when a real use
				// changes, or root traces would re-fold every run.
				if !a.hasNonTraceUse(sh) {
					continue
				}
				constant := d.constraints().Vec[0].GetConst()
				if n.ReplaceWith(ir.NumValue(constant)) {
					a.updated = true
				}

			case op == ir.OpEq || op == ir.OpNotEq:
				// Drop operand pairs the sense of the comparison
				// already settles.
				for i := 0; i < n.InputSize(); {
					lhs := a.firstConstraint(n.Input(i))
					rhs := a.firstConstraint(n.Input(i + 1))

					if lhs.IsConst() && rhs.IsConst() &&
						(lhs.GetConst() == rhs.GetConst()) == (op == ir.OpEq) {
						n.LinkRemoveInput(i + 1)
						n.LinkRemoveInput(i)
						a.updated = true
						continue
					}
					i += 2
				}

			case op == ir.OpLt || op == ir.OpLte:
				// A trailing pair of equal constants never decides a
				// lexicographic comparison; shrink it away.
				for size := n.InputSize(); size >= 2; size = n.InputSize() {
					lhs := a.firstConstraint(n.Input(size - 2))
					rhs := a.firstConstraint(n.Input(size - 1))

					if lhs.IsConst() && rhs.IsConst() && lhs.GetConst() == rhs.GetConst() {
						n.LinkShrinkInputs(size - 2)
						a.updated = true
					} else {
						break
					}
				}
			}
		}
	}
}
