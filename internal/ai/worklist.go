package ai

import (
	"mosbol/internal/ir"
)

// LIFO worklists with membership flags kept in the side tables, so a
// node is queued at most once at a time.

func (a *aiPass) pushCFG(h ir.CFGHandle) {
	d := a.cd(h)
	if d.inWorklist {
		return
	}
	d.inWorklist = true
	a.cfgWorklist = append(a.cfgWorklist, h)
}

func (a *aiPass) popCFG() ir.CFGHandle {
	h := a.cfgWorklist[len(a.cfgWorklist)-1]
	a.cfgWorklist = a.cfgWorklist[:len(a.cfgWorklist)-1]
	a.cd(h).inWorklist = false
	return h
}

func (a *aiPass) pushSSA(h ir.SSAHandle) {
	d := a.sd(h)
	if d.inWorklist {
		return
	}
	d.inWorklist = true
	a.ssaWorklist = append(a.ssaWorklist, h)
}

func (a *aiPass) popSSA() ir.SSAHandle {
	h := a.ssaWorklist[len(a.ssaWorklist)-1]
	a.ssaWorklist = a.ssaWorklist[:len(a.ssaWorklist)-1]
	a.sd(h).inWorklist = false
	return h
}

// queueEdge marks an output edge executable under the propagate context
// and queues the successor the first time.
func (a *aiPass) queueEdge(h ir.CFGHandle, outI int) {
	d := a.cd(h)
	if d.outputExecutable[execPropagate]&(1<<uint(outI)) != 0 {
		return
	}
	d.outputExecutable[execPropagate] |= 1 << uint(outI)
	a.pushCFG(a.g.Block(h).Output(outI))
}

// queueNode queues an SSA node for revisiting, but only once its block
// has been reached by the given context.
func (a *aiPass) queueNode(exec execIndex, h ir.SSAHandle) {
	if a.cd(a.g.Node(h).CFG()).executable[exec] {
		a.pushSSA(h)
	}
}
