package ir

import (
	"errors"
	"fmt"
)

// ErrInvalid marks an IR consistency failure. Failing validation after
// a transformation is a compiler bug, not a user error.
var ErrInvalid = errors.New("invalid IR")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalid)...)
}

// AssertValid checks the structural invariants of the graph: edge
// reciprocity on both the CFG and SSA levels, phi arity and placement,
// branch placement, and SSA dominance for blocks reachable from the
// root.
func (g *IR) AssertValid() error {
	for h := g.CFGBegin(); h != Null; h = g.CFGNext(h) {
		b := g.Block(h)

		for i, e := range b.inputs {
			if !g.cfg[e.Handle].alive {
				return invalidf("block %d input %d: dead predecessor", h, i)
			}
			pred := g.Block(e.Handle)
			if e.Index >= len(pred.outputs) || pred.outputs[e.Index].Handle != h || pred.outputs[e.Index].Index != i {
				return invalidf("block %d input %d: edge not reciprocated", h, i)
			}
		}
		for i, e := range b.outputs {
			if !g.cfg[e.Handle].alive {
				return invalidf("block %d output %d: dead successor", h, i)
			}
			succ := g.Block(e.Handle)
			if e.Index >= len(succ.inputs) || succ.inputs[e.Index].Handle != h || succ.inputs[e.Index].Index != i {
				return invalidf("block %d output %d: edge not reciprocated", h, i)
			}
		}

		for i, sh := range b.ssa {
			n := &g.ssa[sh]
			if !n.alive {
				return invalidf("block %d: dead node %d in list", h, sh)
			}
			if n.cfg != h {
				return invalidf("node %d: owned by block %d, listed in %d", sh, n.cfg, h)
			}
			if (i < b.phis) != (n.op == OpPhi) {
				return invalidf("block %d: phi placement broken at %d", h, sh)
			}
			if n.op == OpPhi && len(n.inputs) != len(b.inputs) {
				return invalidf("phi %d: arity %d, block has %d inputs", sh, len(n.inputs), len(b.inputs))
			}
			if n.op == OpIf && (i != len(b.ssa)-1 || len(b.outputs) != 2) {
				return invalidf("branch %d: not last in a two-output block", sh)
			}
		}
		if len(b.outputs) == 2 {
			last := b.LastDaisy()
			if last == Null || g.Node(last).op != OpIf {
				return invalidf("block %d: two outputs without a branch", h)
			}
		}

		for _, sh := range b.ssa {
			n := g.Node(sh)
			for i, v := range n.inputs {
				if !v.IsHandle() {
					continue
				}
				def := &g.ssa[v.Handle()]
				if !def.alive {
					return invalidf("node %d input %d: dead operand", sh, i)
				}
				if !hasUse(def, sh, i) {
					return invalidf("node %d input %d: use edge missing", sh, i)
				}
			}
			for i, e := range n.outputs {
				user := &g.ssa[e.Handle]
				if !user.alive {
					return invalidf("node %d output %d: dead user", sh, i)
				}
				if e.Index >= len(user.inputs) || !user.inputs[e.Index].IsHandle() || user.inputs[e.Index].Handle() != sh {
					return invalidf("node %d output %d: input slot mismatch", sh, i)
				}
			}
		}
	}

	return g.checkDominance()
}

func hasUse(def *Node, user SSAHandle, idx int) bool {
	for _, e := range def.outputs {
		if e.Handle == user && e.Index == idx {
			return true
		}
	}
	return false
}

// checkDominance verifies that every operand definition dominates its
// use, for all blocks reachable from the root. Phi operands are checked
// against the matching predecessor. Traces are exempt from same-block
// ordering: derived traces may reference traces appended after them.
func (g *IR) checkDominance() error {
	if g.Root == Null {
		return nil
	}
	idx, order := g.reachableOrder()
	dom := g.dominators(idx, order)

	dominates := func(a, b CFGHandle) bool {
		ai, ok := idx[a]
		if !ok {
			return false
		}
		bi, ok := idx[b]
		if !ok {
			return false
		}
		return dom[bi][ai/64]&(1<<(ai%64)) != 0
	}

	for _, h := range order {
		b := g.Block(h)
		pos := make(map[SSAHandle]int, len(b.ssa))
		for i, sh := range b.ssa {
			pos[sh] = i
		}
		for i, sh := range b.ssa {
			n := g.Node(sh)
			for j, v := range n.inputs {
				if !v.IsHandle() {
					continue
				}
				def := g.Node(v.Handle())
				use := h
				if n.op == OpPhi {
					use = b.inputs[j].Handle
				}
				if def.cfg == use {
					if n.op != OpPhi && n.op != OpTrace && def.cfg == h {
						if p, ok := pos[def.self]; ok && p > i {
							return invalidf("node %d: operand %d defined later in block", sh, j)
						}
					}
					continue
				}
				if !dominates(def.cfg, use) {
					return invalidf("node %d input %d: definition does not dominate use", sh, j)
				}
			}
		}
	}
	return nil
}

// reachableOrder returns the blocks reachable from the root in reverse
// postorder, plus a handle-to-index map.
func (g *IR) reachableOrder() (map[CFGHandle]int, []CFGHandle) {
	var post []CFGHandle
	seen := map[CFGHandle]bool{}
	var walk func(CFGHandle)
	walk = func(h CFGHandle) {
		if seen[h] {
			return
		}
		seen[h] = true
		b := g.Block(h)
		for _, e := range b.outputs {
			walk(e.Handle)
		}
		post = append(post, h)
	}
	walk(g.Root)

	order := make([]CFGHandle, len(post))
	idx := make(map[CFGHandle]int, len(post))
	for i := range post {
		order[i] = post[len(post)-1-i]
		idx[order[i]] = i
	}
	return idx, order
}

// dominators computes per-block dominator sets with the classic
// iterative bitset dataflow.
func (g *IR) dominators(idx map[CFGHandle]int, order []CFGHandle) [][]uint64 {
	n := len(order)
	words := (n + 63) / 64
	dom := make([][]uint64, n)
	full := make([]uint64, words)
	for i := 0; i < n; i++ {
		full[i/64] |= 1 << (i % 64)
	}
	for i := range dom {
		dom[i] = make([]uint64, words)
		if i == 0 {
			dom[0][0] = 1
		} else {
			copy(dom[i], full)
		}
	}

	changed := true
	for changed {
		changed = false
		for i := 1; i < n; i++ {
			b := g.Block(order[i])
			tmp := make([]uint64, words)
			copy(tmp, full)
			any := false
			for _, e := range b.inputs {
				pi, ok := idx[e.Handle]
				if !ok {
					continue
				}
				any = true
				for w := 0; w < words; w++ {
					tmp[w] &= dom[pi][w]
				}
			}
			if !any {
				for w := range tmp {
					tmp[w] = 0
				}
			}
			tmp[i/64] |= 1 << (i % 64)
			for w := 0; w < words; w++ {
				if tmp[w] != dom[i][w] {
					dom[i] = tmp
					changed = true
					break
				}
			}
		}
	}
	return dom
}
