package ir

// SSA use-def link editing. Every operand that is a handle has a
// matching entry in the defining node's output list; the helpers below
// keep the two sides consistent.

func (g *IR) addUse(def SSAHandle, user SSAHandle, idx int) {
	d := g.Node(def)
	d.outputs = append(d.outputs, SSABckEdge{Handle: user, Index: idx})
}

func (g *IR) removeUse(def SSAHandle, user SSAHandle, idx int) {
	d := g.Node(def)
	for i, e := range d.outputs {
		if e.Handle == user && e.Index == idx {
			d.outputs = append(d.outputs[:i], d.outputs[i+1:]...)
			return
		}
	}
	panic("ir: use edge not found")
}

// shiftUses renumbers the use edges of operands at positions >= from
// after the input list shifted by delta.
func (n *Node) shiftUses(from, delta int) {
	for i := from; i < len(n.inputs); i++ {
		v := n.inputs[i]
		if !v.IsHandle() {
			continue
		}
		d := n.g.Node(v.Handle())
		for j := range d.outputs {
			if d.outputs[j].Handle == n.self && d.outputs[j].Index == i-delta {
				d.outputs[j].Index = i
				break
			}
		}
	}
}

// AllocInput sizes the input list. Slots must be filled with
// BuildSetInput before the node is used.
func (n *Node) AllocInput(size int) {
	n.inputs = make([]Value, size)
}

// BuildSetInput fills slot i of a freshly allocated input list.
func (n *Node) BuildSetInput(i int, v Value) {
	n.inputs[i] = v
	if v.IsHandle() {
		n.g.addUse(v.Handle(), n.self, i)
	}
}

// LinkAppendInput adds a new trailing operand.
func (n *Node) LinkAppendInput(v Value) {
	n.inputs = append(n.inputs, v)
	if v.IsHandle() {
		n.g.addUse(v.Handle(), n.self, len(n.inputs)-1)
	}
}

// LinkRemoveInput removes operand i, shifting later operands down.
func (n *Node) LinkRemoveInput(i int) {
	if v := n.inputs[i]; v.IsHandle() {
		n.g.removeUse(v.Handle(), n.self, i)
	}
	n.inputs = append(n.inputs[:i], n.inputs[i+1:]...)
	n.shiftUses(i, -1)
}

// LinkShrinkInputs drops all operands at positions >= size.
func (n *Node) LinkShrinkInputs(size int) {
	for i := len(n.inputs) - 1; i >= size; i-- {
		if v := n.inputs[i]; v.IsHandle() {
			n.g.removeUse(v.Handle(), n.self, i)
		}
	}
	n.inputs = n.inputs[:size]
}

// LinkChangeInput rewrites operand i. It reports whether a use edge was
// removed from the old operand's definition, which callers iterating
// that definition's output list use to keep their index stable.
func (n *Node) LinkChangeInput(i int, v Value) bool {
	old := n.inputs[i]
	if old.IsHandle() && v.IsHandle() && old.Handle() == v.Handle() {
		return false
	}
	if old.IsNum() && v.IsNum() && old.Num() == v.Num() {
		return false
	}
	if old.IsHandle() {
		n.g.removeUse(old.Handle(), n.self, i)
	}
	n.inputs[i] = v
	if v.IsHandle() {
		n.g.addUse(v.Handle(), n.self, i)
	}
	return old.IsHandle()
}

// ReplaceWith rewrites every use of the node with v. Reports whether
// anything changed.
func (n *Node) ReplaceWith(v Value) bool {
	if v.IsHandle() && v.Handle() == n.self {
		panic("ir: ReplaceWith self")
	}
	changed := false
	for len(n.outputs) > 0 {
		e := n.outputs[0]
		user := n.g.Node(e.Handle)
		user.inputs[e.Index] = v
		n.outputs = n.outputs[1:]
		if v.IsHandle() {
			n.g.addUse(v.Handle(), e.Handle, e.Index)
		}
		changed = true
	}
	return changed
}

// Prune removes a node with no remaining uses from the graph.
func (n *Node) Prune() {
	if len(n.outputs) != 0 {
		panic("ir: pruning node with uses")
	}
	n.detach()
}

// detach unlinks inputs and removes the node from its block.
func (n *Node) detach() {
	for i := len(n.inputs) - 1; i >= 0; i-- {
		if v := n.inputs[i]; v.IsHandle() {
			n.g.removeUse(v.Handle(), n.self, i)
		}
	}
	n.inputs = nil

	b := n.g.Block(n.cfg)
	for i, h := range b.ssa {
		if h == n.self {
			b.ssa = append(b.ssa[:i], b.ssa[i+1:]...)
			if i < b.phis {
				b.phis--
			}
			break
		}
	}
	n.alive = false
}

// pruneDetached force-prunes a node inside a dead block: remaining uses
// can only come from other dead blocks and are rewritten to zero.
func (n *Node) pruneDetached() {
	for len(n.outputs) > 0 {
		e := n.outputs[0]
		n.g.Node(e.Handle).inputs[e.Index] = NumValue(0)
		n.outputs = n.outputs[1:]
	}
	n.detach()
}
