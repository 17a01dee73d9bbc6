package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mosbol/internal/ir"
)

var boolMask = ir.NumericBitmask(ir.NewType(ir.TypeBool))

func scalarDef(mask uint64, c Constraint) Def {
	return Def{Mask: mask, Vec: Vec{c}}
}

func run(op ir.Op, mask uint64, size int, inputs ...Def) Def {
	out := Def{Mask: mask, Vec: make(Vec, size)}
	fn := AbstractOp(op)
	fn(inputs, &out)
	NormalizeVec(out.Vec)
	return out
}

// R3: top inputs produce top outputs.
func TestAbstractTopInputsYieldTop(t *testing.T) {
	top := scalarDef(byteMask, Top())
	for _, op := range []ir.Op{
		ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpNot, ir.OpEq, ir.OpNotEq, ir.OpLt, ir.OpLte, ir.OpCast,
	} {
		size := 1
		if op == ir.OpAdd || op == ir.OpSub {
			size = 2
		}
		out := run(op, byteMask, size, top, top)
		assert.True(t, AnyTop(out.Vec), "op %s", op)
	}
}

func TestAbstractAddConstants(t *testing.T) {
	a := scalarDef(byteMask, Const(ir.FixedWhole(3)))
	b := scalarDef(byteMask, Const(ir.FixedWhole(4)))
	out := run(ir.OpAdd, byteMask, 2, a, b)

	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, uint64(7), out.Vec[0].GetConst().Whole())
	// In range: no carry.
	require.True(t, out.Vec[1].IsConst())
	assert.Equal(t, ir.Fixed(0), out.Vec[1].GetConst())
}

func TestAbstractAddWraps(t *testing.T) {
	a := scalarDef(byteMask, Const(ir.FixedWhole(200)))
	b := scalarDef(byteMask, Const(ir.FixedWhole(100)))
	out := run(ir.OpAdd, byteMask, 2, a, b)

	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, uint64(44), out.Vec[0].GetConst().Whole())
	require.True(t, out.Vec[1].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[1].GetConst())
}

func TestAbstractSubNoBorrow(t *testing.T) {
	a := scalarDef(byteMask, Const(ir.FixedWhole(9)))
	b := scalarDef(byteMask, Const(ir.FixedWhole(4)))
	out := run(ir.OpSub, byteMask, 2, a, b)

	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, uint64(5), out.Vec[0].GetConst().Whole())
	// No wrap: the no-borrow carry is set.
	require.True(t, out.Vec[1].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[1].GetConst())
}

func TestAbstractLtDecides(t *testing.T) {
	lo := scalarDef(byteMask, Normalize(Constraint{
		Bounds: Bounds{Min: 0, Max: ir.FixedWhole(9)},
		Bits:   Known{Zero: ^byteMask},
	}))
	bound := scalarDef(largestFixedMask, Const(ir.FixedWhole(20)))

	out := run(ir.OpLt, boolMask, 1, lo, bound)
	require.True(t, out.Vec[0].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[0].GetConst())

	// Flipped, certainly false.
	out = run(ir.OpLt, boolMask, 1, bound, lo)
	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, ir.Fixed(0), out.Vec[0].GetConst())

	// Overlapping: unknown.
	hi := scalarDef(byteMask, Bottom(byteMask))
	out = run(ir.OpLt, boolMask, 1, hi, bound)
	assert.False(t, out.Vec[0].IsConst())
	assert.False(t, out.Vec[0].IsTop())
}

func TestAbstractLexChain(t *testing.T) {
	eq := scalarDef(byteMask, Const(ir.FixedWhole(7)))
	lo := scalarDef(byteMask, Const(ir.FixedWhole(1)))
	hi := scalarDef(byteMask, Const(ir.FixedWhole(2)))

	// (7,7) then (1,2): equal high pair defers to the low pair.
	out := run(ir.OpLt, boolMask, 1, eq, eq, lo, hi)
	require.True(t, out.Vec[0].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[0].GetConst())

	// (7,7) then (2,1): false.
	out = run(ir.OpLt, boolMask, 1, eq, eq, hi, lo)
	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, ir.Fixed(0), out.Vec[0].GetConst())

	// Lte over identical pairs holds.
	out = run(ir.OpLte, boolMask, 1, eq, eq, eq, eq)
	require.True(t, out.Vec[0].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[0].GetConst())
}

func TestAbstractEqPairs(t *testing.T) {
	k := scalarDef(byteMask, Const(ir.FixedWhole(5)))
	other := scalarDef(byteMask, Const(ir.FixedWhole(6)))
	unknown := scalarDef(byteMask, Bottom(byteMask))

	out := run(ir.OpEq, boolMask, 1, k, k)
	require.True(t, out.Vec[0].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[0].GetConst())

	out = run(ir.OpEq, boolMask, 1, k, other, unknown, unknown)
	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, ir.Fixed(0), out.Vec[0].GetConst())

	out = run(ir.OpNotEq, boolMask, 1, k, other)
	require.True(t, out.Vec[0].IsConst())
	assert.NotEqual(t, ir.Fixed(0), out.Vec[0].GetConst())

	out = run(ir.OpEq, boolMask, 1, k, unknown)
	assert.False(t, out.Vec[0].IsConst())
}

// Narrowing an lt result to true tightens both sides, the heart of the
// trace refinement: a byte known less than 10 reads as [0, 9].
func TestNarrowLtTrue(t *testing.T) {
	inputs := []Def{
		scalarDef(byteMask, Bottom(byteMask)),
		scalarDef(largestFixedMask, Const(ir.FixedWhole(10))),
	}
	out := scalarDef(boolMask, ConstBool(true))

	NarrowOp(ir.OpLt)(inputs, out)
	got := Normalize(inputs[0].Vec[0])

	assert.Equal(t, uint64(0), got.Bounds.Min.Whole())
	assert.Equal(t, uint64(9), got.Bounds.Max.Whole())
}

func TestNarrowLtFalse(t *testing.T) {
	inputs := []Def{
		scalarDef(byteMask, Bottom(byteMask)),
		scalarDef(largestFixedMask, Const(ir.FixedWhole(10))),
	}
	out := scalarDef(boolMask, ConstBool(false))

	NarrowOp(ir.OpLt)(inputs, out)
	got := Normalize(inputs[0].Vec[0])

	assert.Equal(t, uint64(10), got.Bounds.Min.Whole())
}

func TestNarrowEqTrue(t *testing.T) {
	inputs := []Def{
		scalarDef(byteMask, Bottom(byteMask)),
		scalarDef(largestFixedMask, Const(ir.FixedWhole(3))),
	}
	out := scalarDef(boolMask, ConstBool(true))

	NarrowOp(ir.OpEq)(inputs, out)
	got := Normalize(inputs[0].Vec[0])

	require.True(t, got.IsConst())
	assert.Equal(t, uint64(3), got.GetConst().Whole())
}

func TestNarrowNot(t *testing.T) {
	inputs := []Def{scalarDef(boolMask, Bottom(boolMask))}
	out := scalarDef(boolMask, ConstBool(true))

	NarrowOp(ir.OpNot)(inputs, out)
	got := Normalize(inputs[0].Vec[0])

	require.True(t, got.IsConst())
	assert.Equal(t, ir.Fixed(0), got.GetConst())
}

func TestAbstractArrayOps(t *testing.T) {
	arr := Def{Mask: byteMask, Vec: Vec{
		Const(ir.FixedWhole(10)),
		Const(ir.FixedWhole(20)),
		Const(ir.FixedWhole(30)),
	}}

	// Constant index reads one slot.
	out := run(ir.OpReadArray, byteMask, 1, arr, scalarDef(largestFixedMask, Const(ir.FixedWhole(1))))
	require.True(t, out.Vec[0].IsConst())
	assert.Equal(t, uint64(20), out.Vec[0].GetConst().Whole())

	// A ranged index unions the covered slots.
	idx := scalarDef(largestFixedMask, Normalize(Constraint{
		Bounds: Bounds{Min: ir.FixedWhole(0), Max: ir.FixedWhole(1)},
		Bits:   Known{Zero: ^largestFixedMask},
	}))
	out = run(ir.OpReadArray, byteMask, 1, arr, idx)
	assert.False(t, out.Vec[0].IsConst())
	assert.Equal(t, uint64(10), out.Vec[0].Bounds.Min.Whole())
	assert.Equal(t, uint64(20), out.Vec[0].Bounds.Max.Whole())

	// A constant-index write replaces exactly one slot.
	out = run(ir.OpWriteArray, byteMask, 3, arr,
		scalarDef(largestFixedMask, Const(ir.FixedWhole(2))),
		scalarDef(byteMask, Const(ir.FixedWhole(7))))
	require.True(t, out.Vec[2].IsConst())
	assert.Equal(t, uint64(7), out.Vec[2].GetConst().Whole())
	assert.Equal(t, uint64(10), out.Vec[0].GetConst().Whole())

	// Init gathers its operands.
	out = run(ir.OpInitArray, byteMask, 2,
		scalarDef(byteMask, Const(ir.FixedWhole(1))),
		scalarDef(byteMask, Const(ir.FixedWhole(2))))
	assert.Equal(t, uint64(2), out.Vec[1].GetConst().Whole())
}

func TestAbstractCast(t *testing.T) {
	// A short value that fits a byte keeps its bounds.
	in := scalarDef(ir.NumericBitmask(ir.NewType(ir.TypeShort)), Normalize(Constraint{
		Bounds: Bounds{Min: ir.FixedWhole(1), Max: ir.FixedWhole(9)},
		Bits:   Known{Zero: ^byteMask},
	}))
	out := run(ir.OpCast, byteMask, 1, in)
	assert.Equal(t, uint64(9), out.Vec[0].Bounds.Max.Whole())

	// One that may not fit loses them.
	wide := scalarDef(ir.NumericBitmask(ir.NewType(ir.TypeShort)), Bottom(ir.NumericBitmask(ir.NewType(ir.TypeShort))))
	out = run(ir.OpCast, byteMask, 1, wide)
	assert.Equal(t, ir.Fixed(byteMask), out.Vec[0].Bounds.Max)
}

// Monotonicity spot check: refining an input never loosens the output.
func TestAbstractMonotone(t *testing.T) {
	wide := scalarDef(byteMask, Bottom(byteMask))
	narrow := scalarDef(byteMask, Normalize(Constraint{
		Bounds: Bounds{Min: ir.FixedWhole(1), Max: ir.FixedWhole(3)},
		Bits:   Known{Zero: ^byteMask},
	}))
	b := scalarDef(byteMask, Const(ir.FixedWhole(2)))

	for _, op := range []ir.Op{ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpLt, ir.OpLte, ir.OpEq} {
		size := 1
		mask := boolMask
		if op == ir.OpAdd || op == ir.OpSub || op == ir.OpAnd || op == ir.OpOr || op == ir.OpXor {
			size = 2
			mask = byteMask
		}
		if op == ir.OpAnd || op == ir.OpOr || op == ir.OpXor {
			size = 1
		}
		outNarrow := run(op, mask, size, narrow, b)
		outWide := run(op, mask, size, wide, b)
		assert.True(t, AllSubset(outNarrow.Vec, outWide.Vec), "op %s", op)
	}
}
