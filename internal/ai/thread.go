package ai

import (
	"mosbol/internal/ir"
)

// markSkippable flags blocks that jump threading may walk through: a
// block qualifies when every SSA node in it is either an analysis
// artifact (phi or trace from the SSA rebuild) or only used inside the
// block or by traces.
func (a *aiPass) markSkippable() {
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		skippable := true

	scan:
		for _, sh := range a.g.Block(h).SSA() {
			if a.sd(sh).rebuildMapping != ir.Null {
				continue
			}

			n := a.g.Node(sh)
			for i := 0; i < n.OutputSize(); i++ {
				out := a.g.Node(n.Output(i))
				if out.CFG() != h && out.Op() != ir.OpTrace {
					skippable = false
					break scan
				}
			}
		}

		a.cd(h).skippable = skippable
	}
}

// removeSkippable splices out skippable single-input, single-output
// blocks. Artifacts inside resolve to the original values they shadow;
// everything else is used only inside the block or by traces, and goes
// with the block. Blocks are visited in reverse handle order: trace
// blocks are split off after every other block exists, so the traces in
// them are removed before the blocks holding the values they read.
func (a *aiPass) removeSkippable() {
	var blocks []ir.CFGHandle
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		blocks = append(blocks, h)
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		h := blocks[i]
		if !a.cd(h).skippable ||
			a.g.Block(h).InputSize() != 1 || a.g.Block(h).OutputSize() != 1 {
			continue
		}

		for len(a.g.Block(h).SSA()) > 0 {
			progress := false
			ssa := append([]ir.SSAHandle(nil), a.g.Block(h).SSA()...)
			for _, sh := range ssa {
				n := a.g.Node(sh)
				if m := a.sd(sh).rebuildMapping; m != ir.Null {
					// Artifacts resolve back to the value they shadow.
					n.ReplaceWith(ir.HandleValue(m))
				}
				if n.OutputSize() == 0 {
					n.Prune()
					progress = true
				}
			}
			if !progress {
				panic("skippable block with externally used nodes")
			}
		}

		a.g.MergeEdge(h)
	}
}

// jumpThreadVisit recomputes a node's constraints under the jump-thread
// context and marks its users touched when the value tightened.
func (a *aiPass) jumpThreadVisit(h ir.SSAHandle) {
	if !a.hasConstraints(h) {
		return
	}

	d := a.sd(h)
	old := CloneVec(d.constraints().Vec)

	a.computeConstraints(execJumpThread, h)
	NormalizeVec(d.constraints().Vec)

	if !VecEq(d.constraints().Vec, old) {
		n := a.g.Node(h)
		for i := 0; i < n.OutputSize(); i++ {
			out := n.Output(i)
			a.sd(out).touched = true
			a.queueNode(execJumpThread, out)
		}
	}
}

// runJumpThread speculatively walks forced branches starting at the
// startBranchI-th output of start. When at least one downstream branch
// resolves, the walk's first trace block gets a direct edge to the
// final block, with reconciliation values supplied for its phis.
func (a *aiPass) runJumpThread(start ir.CFGHandle, startBranchI int) {
	// Reset the thread context. The loop check below relies on this:
	// "already executable" only means "on the current path" because
	// every walk starts clean.
	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		cd := a.cd(h)
		cd.executable[execJumpThread] = false
		cd.outputExecutable[execJumpThread] = 0

		for _, sh := range a.g.Block(h).SSA() {
			a.setActive(sh, execPropagate)
			a.sd(sh).touched = false
		}
	}

	a.cd(start).executable[execJumpThread] = true

	h := start
	branchI := startBranchI
	branchesSkipped := 0

	for {
		prior := a.cd(h)
		prior.outputExecutable[execJumpThread] |= 1 << uint(branchI)
		inputI := a.g.Block(h).OutputEdge(branchI).Index
		h = a.g.Block(h).Output(branchI)

		cd := a.cd(h)
		cd.inputTaken = inputI

		// A loop: abort.
		if cd.executable[execJumpThread] {
			break
		}
		cd.executable[execJumpThread] = true

		// Reached a block that would need duplicating, or a sink.
		if !cd.skippable {
			break
		}
		if a.g.Block(h).OutputSize() == 0 {
			break
		}

		for _, sh := range a.g.Block(h).SSA() {
			if a.g.Node(sh).Op() == ir.OpPhi || a.sd(sh).touched {
				a.queueNode(execJumpThread, sh)
			}
		}
		for len(a.ssaWorklist) > 0 {
			a.jumpThreadVisit(a.popSSA())
		}

		if a.g.Block(h).OutputSize() > 1 {
			branch := a.g.Block(h).LastDaisy()
			if branch == ir.Null || a.g.Node(branch).Op() != ir.OpIf {
				// A trace block another thread already rerouted.
				break
			}
			c := a.firstConstraint(a.g.Condition(branch))
			if !c.IsConst() {
				break
			}
			if c.GetConst().Whole() != 0 {
				branchI = 1
			} else {
				branchI = 0
			}
			branchesSkipped++
		} else {
			// Unconditional edges are always forced.
			branchI = 0
		}
	}

	if branchesSkipped == 0 {
		return
	}

	end := h
	trace := a.g.Block(start).Output(startBranchI)
	if a.g.Block(trace).OutputSize() != 1 {
		return
	}

	a.g.Block(trace).LinkAppendOutput(end, func(phi ir.SSAHandle) ir.Value {
		// The phi needs an operand for the new edge: walk the threaded
		// path backwards along the taken inputs until leaving the path
		// or hitting a constant.
		v := phi
		for {
			n := a.g.Node(v)
			if n.Op() != ir.OpPhi || n.CFG() == start {
				break
			}
			d := a.cd(n.CFG())
			if !d.executable[execJumpThread] {
				break
			}

			input := n.Input(d.inputTaken)
			if input.IsNum() {
				return input
			}
			v = input.Handle()
			if m := a.sd(v).rebuildMapping; m != ir.Null {
				v = m
			}
		}
		return ir.HandleValue(v)
	})

	a.threadedJumps = append(a.threadedJumps, trace)
}

// threadJumps finds every threadable origin branch, applies the found
// threads, and prunes blocks the rerouting disconnected.
func (a *aiPass) threadJumps() {
	a.threadedJumps = a.threadedJumps[:0]

	for h := a.g.CFGBegin(); h != ir.Null; h = a.g.CFGNext(h) {
		if !a.cd(h).skippable {
			continue
		}
		if a.g.Block(h).OutputSize() <= 1 {
			continue
		}

		// h is a thread target: walk each incoming edge back through
		// pass-through blocks to the controlling branch.
		inputSize := a.g.Block(h).InputSize()
		for i := 0; i < inputSize; i++ {
			input := a.g.Block(h).InputEdge(i)
			for {
				if !a.cd(input.Handle).skippable {
					break
				}
				b := a.g.Block(input.Handle)
				if b.InputSize() != 1 || b.OutputSize() != 1 {
					break
				}
				input = b.InputEdge(0)
			}

			if a.g.Block(input.Handle).OutputSize() != 2 { // TODO: handle switch
				continue
			}
			branch := a.g.Block(input.Handle).LastDaisy()
			if branch == ir.Null || a.g.Node(branch).Op() != ir.OpIf {
				continue
			}
			a.runJumpThread(input.Handle, input.Index)
		}
	}

	log.Debugf("threads found: %d", len(a.threadedJumps))

	if len(a.threadedJumps) == 0 {
		return
	}
	a.updated = true

	// Disconnect the bypassed chains.
	for _, jump := range a.threadedJumps {
		a.pushCFG(a.g.Block(jump).Output(0))
		a.g.Block(jump).LinkRemoveOutput(0)
	}

	// Rerouting can leave blocks with no inputs; prune them and
	// cascade.
	for len(a.cfgWorklist) > 0 {
		h := a.popCFG()

		if a.g.Block(h).InputSize() == 0 && h != a.g.Root {
			for i := 0; i < a.g.Block(h).OutputSize(); i++ {
				a.pushCFG(a.g.Block(h).Output(i))
			}
			a.g.PruneCFG(h)
		}
	}
}
