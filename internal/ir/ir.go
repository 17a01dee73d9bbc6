package ir

// The IR is a control-flow graph of basic blocks, each owning an ordered
// list of SSA nodes. Blocks and nodes live in pools owned by the IR and
// are referred to by handle; all per-pass analysis state is kept in side
// tables indexed by handle and sized with CFGSize/SSASize. Pointers
// returned by Block and Node are only valid until the next node is
// created: creation can grow the pools.

// CFGHandle refers to a basic block. 0 is the null handle.
type CFGHandle uint32

// SSAHandle refers to an SSA node. 0 is the null handle.
type SSAHandle uint32

// Null is the zero handle of either kind.
const Null = 0

// Value is an SSA operand: either a node handle or a fixed-point literal.
type Value struct {
	h     SSAHandle
	num   Fixed
	isNum bool
}

// HandleValue wraps a node handle as an operand.
func HandleValue(h SSAHandle) Value { return Value{h: h} }

// NumValue wraps a fixed-point literal as an operand.
func NumValue(f Fixed) Value { return Value{num: f, isNum: true} }

func (v Value) IsHandle() bool    { return v.h != Null }
func (v Value) IsNum() bool       { return v.isNum }
func (v Value) Handle() SSAHandle { return v.h }
func (v Value) Num() Fixed        { return v.num }

// CFGFwdEdge is an input edge of a block: the predecessor block and the
// index of the matching output slot inside it.
type CFGFwdEdge struct {
	Handle CFGHandle
	Index  int
}

// CFGBckEdge is an output edge of a block: the successor block and the
// index of the matching input slot inside it.
type CFGBckEdge struct {
	Handle CFGHandle
	Index  int
}

// SSABckEdge is a use of an SSA node: the user and the operand index.
type SSABckEdge struct {
	Handle SSAHandle
	Index  int
}

// Block is a basic block. SSA nodes are ordered with phis first; a
// branch, when present, is last.
type Block struct {
	g       *IR
	self    CFGHandle
	alive   bool
	inputs  []CFGFwdEdge
	outputs []CFGBckEdge
	ssa     []SSAHandle
	phis    int // count of leading phi nodes in ssa
}

// Node is an SSA node.
type Node struct {
	g       *IR
	self    SSAHandle
	alive   bool
	op      Op
	typ     Type
	cfg     CFGHandle
	argIdx  int // OpArg only
	inputs  []Value
	outputs []SSABckEdge
}

// IR owns the block and node pools of one function body.
type IR struct {
	cfg  []Block
	ssa  []Node
	Root CFGHandle
}

// NewIR returns an empty IR. Blocks are added with EmplaceCFG; the
// first block becomes the root unless Root is reassigned.
func NewIR() *IR {
	return &IR{
		cfg: make([]Block, 1), // index 0 is the null handle
		ssa: make([]Node, 1),
	}
}

// CFGSize returns the block pool size, for sizing side tables.
func (g *IR) CFGSize() int { return len(g.cfg) }

// SSASize returns the node pool size, for sizing side tables.
func (g *IR) SSASize() int { return len(g.ssa) }

// Block resolves a handle. The pointer is invalidated by node creation.
func (g *IR) Block(h CFGHandle) *Block {
	b := &g.cfg[h]
	if !b.alive {
		panic("ir: dead block handle")
	}
	return b
}

// Node resolves a handle. The pointer is invalidated by node creation.
func (g *IR) Node(h SSAHandle) *Node {
	n := &g.ssa[h]
	if !n.alive {
		panic("ir: dead node handle")
	}
	return n
}

func (g *IR) ssaNode(h SSAHandle) *Node { return g.Node(h) }

// EmplaceCFG creates a new empty block.
func (g *IR) EmplaceCFG() CFGHandle {
	h := CFGHandle(len(g.cfg))
	g.cfg = append(g.cfg, Block{g: g, self: h, alive: true})
	if g.Root == Null {
		g.Root = h
	}
	return h
}

// CFGBegin returns the first live block, iterating in handle order.
func (g *IR) CFGBegin() CFGHandle {
	return g.CFGNext(Null)
}

// CFGNext returns the next live block after h, or Null.
func (g *IR) CFGNext(h CFGHandle) CFGHandle {
	for i := int(h) + 1; i < len(g.cfg); i++ {
		if g.cfg[i].alive {
			return CFGHandle(i)
		}
	}
	return Null
}

// NumBlocks counts live blocks.
func (g *IR) NumBlocks() int {
	n := 0
	for h := g.CFGBegin(); h != Null; h = g.CFGNext(h) {
		n++
	}
	return n
}

func (b *Block) Handle() CFGHandle { return b.self }
func (b *Block) InputSize() int    { return len(b.inputs) }
func (b *Block) OutputSize() int   { return len(b.outputs) }

func (b *Block) Input(i int) CFGHandle  { return b.inputs[i].Handle }
func (b *Block) Output(i int) CFGHandle { return b.outputs[i].Handle }

func (b *Block) InputEdge(i int) CFGFwdEdge  { return b.inputs[i] }
func (b *Block) OutputEdge(i int) CFGBckEdge { return b.outputs[i] }

// SSA returns the ordered node list. Callers must not mutate it.
func (b *Block) SSA() []SSAHandle { return b.ssa }

// Phis returns the leading phi nodes of the block.
func (b *Block) Phis() []SSAHandle { return b.ssa[:b.phis] }

// LastDaisy returns the last SSA node of the block, or Null. For a
// two-output block this is its branch.
func (b *Block) LastDaisy() SSAHandle {
	if len(b.ssa) == 0 {
		return Null
	}
	return b.ssa[len(b.ssa)-1]
}

func (n *Node) Handle() SSAHandle { return n.self }
func (n *Node) Op() Op            { return n.op }
func (n *Node) Type() Type        { return n.typ }
func (n *Node) CFG() CFGHandle    { return n.cfg }
func (n *Node) ArgIndex() int     { return n.argIdx }

func (n *Node) InputSize() int              { return len(n.inputs) }
func (n *Node) Input(i int) Value           { return n.inputs[i] }
func (n *Node) OutputSize() int             { return len(n.outputs) }
func (n *Node) Output(i int) SSAHandle      { return n.outputs[i].Handle }
func (n *Node) OutputEdge(i int) SSABckEdge { return n.outputs[i] }

// InputCFG returns the block where operand i is consumed. For a phi
// this is the matching predecessor; otherwise it is the node's own
// block.
func (n *Node) InputCFG(i int) CFGHandle {
	if n.op == OpPhi {
		return n.g.Block(n.cfg).inputs[i].Handle
	}
	return n.cfg
}

// EmplaceSSA creates a node inside the block. Phis are inserted before
// all non-phi nodes; everything else is appended. The returned handle
// invalidates previously resolved pointers.
func (b *Block) EmplaceSSA(op Op, typ Type) SSAHandle {
	g := b.g
	self := b.self
	h := SSAHandle(len(g.ssa))
	g.ssa = append(g.ssa, Node{g: g, self: h, alive: true, op: op, typ: typ, cfg: self})
	blk := &g.cfg[self]
	if op == OpPhi {
		blk.ssa = append(blk.ssa, Null)
		copy(blk.ssa[blk.phis+1:], blk.ssa[blk.phis:])
		blk.ssa[blk.phis] = h
		blk.phis++
	} else {
		blk.ssa = append(blk.ssa, h)
	}
	return h
}

// SetArgIndex records the argument index of an OpArg node.
func (n *Node) SetArgIndex(i int) { n.argIdx = i }
