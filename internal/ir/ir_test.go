package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds entry -> (a | b) -> join with a branch in entry and a
// phi in the join.
func diamond(t *testing.T) (*IR, CFGHandle, CFGHandle, CFGHandle, CFGHandle) {
	t.Helper()
	g := NewIR()
	entry := g.EmplaceCFG()
	a := g.EmplaceCFG()
	b := g.EmplaceCFG()
	join := g.EmplaceCFG()

	g.Block(entry).LinkAppendOutput(a, nil)
	g.Block(entry).LinkAppendOutput(b, nil)
	g.Block(a).LinkAppendOutput(join, nil)
	g.Block(b).LinkAppendOutput(join, nil)

	arg := g.Block(entry).EmplaceSSA(OpArg, NewType(TypeByte))
	g.Node(arg).SetArgIndex(0)

	cond := g.Block(entry).EmplaceSSA(OpLt, NewType(TypeBool))
	g.Node(cond).AllocInput(2)
	g.Node(cond).BuildSetInput(0, HandleValue(arg))
	g.Node(cond).BuildSetInput(1, NumValue(FixedWhole(10)))

	branch := g.Block(entry).EmplaceSSA(OpIf, VoidType)
	g.Node(branch).AllocInput(1)
	g.Node(branch).BuildSetInput(0, HandleValue(cond))

	phi := g.Block(join).EmplaceSSA(OpPhi, NewType(TypeByte))
	g.Node(phi).AllocInput(2)
	g.Node(phi).BuildSetInput(0, NumValue(FixedWhole(1)))
	g.Node(phi).BuildSetInput(1, NumValue(FixedWhole(2)))

	ret := g.Block(join).EmplaceSSA(OpReturn, VoidType)
	g.Node(ret).AllocInput(1)
	g.Node(ret).BuildSetInput(0, HandleValue(phi))

	require.NoError(t, g.AssertValid())
	return g, entry, a, b, join
}

func TestDiamondIsValid(t *testing.T) {
	g, entry, _, _, join := diamond(t)
	assert.Equal(t, 4, g.NumBlocks())
	assert.Equal(t, 2, g.Block(entry).OutputSize())
	assert.Equal(t, 2, g.Block(join).InputSize())
}

func TestSplitEdge(t *testing.T) {
	g, entry, a, _, _ := diamond(t)

	mid := g.SplitEdge(entry, 0)
	require.NoError(t, g.AssertValid())

	assert.Equal(t, mid, g.Block(entry).Output(0))
	assert.Equal(t, 1, g.Block(mid).InputSize())
	assert.Equal(t, 1, g.Block(mid).OutputSize())
	assert.Equal(t, a, g.Block(mid).Output(0))
	assert.Equal(t, mid, g.Block(a).Input(0))
}

func TestMergeEdge(t *testing.T) {
	g, entry, a, _, join := diamond(t)

	g.MergeEdge(a)
	require.NoError(t, g.AssertValid())

	assert.Equal(t, join, g.Block(entry).Output(0))
	assert.Equal(t, entry, g.Block(join).Input(0))
	// The phi kept its arity.
	phi := g.Block(join).Phis()[0]
	assert.Equal(t, 2, g.Node(phi).InputSize())
}

func TestLinkRemoveOutputDropsPhiOperand(t *testing.T) {
	g, _, _, _, join := diamond(t)

	phi := g.Block(join).Phis()[0]
	require.Equal(t, 2, g.Node(phi).InputSize())

	// Cutting an edge into the join shrinks its phis along with the
	// input list.
	in := g.Block(join).InputEdge(0)
	g.Block(in.Handle).LinkRemoveOutput(in.Index)

	assert.Equal(t, 1, g.Node(phi).InputSize())
	assert.Equal(t, 1, g.Block(join).InputSize())
	assert.Equal(t, FixedWhole(2), g.Node(phi).Input(0).Num())
}

func TestReplaceWith(t *testing.T) {
	g, entry, _, _, _ := diamond(t)

	var arg, cond SSAHandle
	for _, sh := range g.Block(entry).SSA() {
		switch g.Node(sh).Op() {
		case OpArg:
			arg = sh
		case OpLt:
			cond = sh
		}
	}

	require.True(t, g.Node(arg).ReplaceWith(NumValue(FixedWhole(7))))
	assert.Equal(t, 0, g.Node(arg).OutputSize())
	assert.True(t, g.Node(cond).Input(0).IsNum())
	assert.Equal(t, FixedWhole(7), g.Node(cond).Input(0).Num())

	g.Node(arg).Prune()
	require.NoError(t, g.AssertValid())
}

func TestLinkChangeInput(t *testing.T) {
	g, entry, _, _, _ := diamond(t)

	var arg, cond SSAHandle
	for _, sh := range g.Block(entry).SSA() {
		switch g.Node(sh).Op() {
		case OpArg:
			arg = sh
		case OpLt:
			cond = sh
		}
	}

	// Unchanged operand: no edge removed.
	assert.False(t, g.Node(cond).LinkChangeInput(0, HandleValue(arg)))
	assert.Equal(t, 1, g.Node(arg).OutputSize())

	// A real change removes the use edge from the old definition.
	assert.True(t, g.Node(cond).LinkChangeInput(0, NumValue(FixedWhole(3))))
	assert.Equal(t, 0, g.Node(arg).OutputSize())
	require.NoError(t, g.AssertValid())
}

func TestLinkEditing(t *testing.T) {
	g := NewIR()
	b := g.EmplaceCFG()

	x := g.Block(b).EmplaceSSA(OpArg, NewType(TypeByte))
	eq := g.Block(b).EmplaceSSA(OpEq, NewType(TypeBool))
	g.Node(eq).AllocInput(4)
	g.Node(eq).BuildSetInput(0, NumValue(FixedWhole(5)))
	g.Node(eq).BuildSetInput(1, NumValue(FixedWhole(5)))
	g.Node(eq).BuildSetInput(2, HandleValue(x))
	g.Node(eq).BuildSetInput(3, HandleValue(x))
	require.NoError(t, g.AssertValid())

	// Remove the leading pair; the handle operands shift down and the
	// use edges follow.
	g.Node(eq).LinkRemoveInput(1)
	g.Node(eq).LinkRemoveInput(0)
	require.NoError(t, g.AssertValid())
	assert.Equal(t, 2, g.Node(eq).InputSize())
	assert.Equal(t, x, g.Node(eq).Input(0).Handle())

	g.Node(eq).LinkShrinkInputs(0)
	require.NoError(t, g.AssertValid())
	assert.Equal(t, 0, g.Node(x).OutputSize())

	g.Node(eq).LinkAppendInput(HandleValue(x))
	require.NoError(t, g.AssertValid())
	assert.Equal(t, 1, g.Node(x).OutputSize())
}

func TestPruneCFG(t *testing.T) {
	g, entry, a, b, join := diamond(t)
	_ = a

	// Resolve the branch first, as the prune phase does, then drop
	// the dead arm; the phi loses the operand for its edge.
	g.Node(g.Block(entry).LastDaisy()).Prune()
	g.Block(entry).LinkRemoveOutput(1)
	g.PruneCFG(b)
	require.NoError(t, g.AssertValid())

	assert.Equal(t, 1, g.Block(entry).OutputSize())
	assert.Equal(t, 1, g.Block(join).InputSize())
	phi := g.Block(join).Phis()[0]
	assert.Equal(t, 1, g.Node(phi).InputSize())
}

func TestPhiPlacement(t *testing.T) {
	g := NewIR()
	b := g.EmplaceCFG()

	ret := g.Block(b).EmplaceSSA(OpReturn, VoidType)
	phi := g.Block(b).EmplaceSSA(OpPhi, NewType(TypeByte))
	g.Node(phi).AllocInput(0)

	// Phis insert ahead of non-phi nodes regardless of creation order.
	assert.Equal(t, []SSAHandle{phi, ret}, g.Block(b).SSA())
	assert.Equal(t, []SSAHandle{phi}, g.Block(b).Phis())
	assert.Equal(t, ret, g.Block(b).LastDaisy())
}

func TestValidateCatchesBadPhiArity(t *testing.T) {
	g, _, _, _, join := diamond(t)

	phi := g.Block(join).Phis()[0]
	g.Node(phi).LinkAppendInput(NumValue(0))
	assert.Error(t, g.AssertValid())
}
