package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mosbol/internal/ir"
)

var byteMask = ir.NumericBitmask(ir.NewType(ir.TypeByte))

func TestConstElement(t *testing.T) {
	c := Const(ir.FixedWhole(42))

	require.True(t, c.IsConst())
	require.False(t, c.IsTop())
	assert.Equal(t, ir.FixedWhole(42), c.GetConst())

	// Bits are fully determined and agree with the value.
	assert.Equal(t, uint64(ir.FixedWhole(42)), c.Bits.One)
	assert.Equal(t, ^uint64(ir.FixedWhole(42)), c.Bits.Zero)
}

func TestTopAndBottom(t *testing.T) {
	assert.True(t, Top().IsTop())
	assert.False(t, Top().IsConst())

	b := Bottom(byteMask)
	assert.False(t, b.IsTop())
	assert.False(t, b.IsConst())
	assert.Equal(t, ir.Fixed(0), b.Bounds.Min)
	assert.Equal(t, ir.Fixed(byteMask), b.Bounds.Max)
}

func TestIntersectContradictionIsTop(t *testing.T) {
	a := Const(ir.FixedWhole(1))
	b := Const(ir.FixedWhole(2))
	assert.True(t, Intersect(a, b).IsTop())
}

func TestIntersectAndUnionWithTop(t *testing.T) {
	c := Const(ir.FixedWhole(7))
	assert.True(t, Intersect(c, Top()).IsTop())
	assert.Equal(t, c, Union(c, Top()))
	assert.Equal(t, c, Union(Top(), c))
}

// R1: normalize is idempotent.
func TestNormalizeIdempotent(t *testing.T) {
	cases := []Constraint{
		Const(ir.FixedWhole(9)),
		Bottom(byteMask),
		{Bounds: Bounds{Min: ir.FixedWhole(3), Max: ir.FixedWhole(9)}, Bits: Known{Zero: ^byteMask}},
		{Bounds: Bounds{Min: 0, Max: ir.Fixed(byteMask)}, Bits: Known{Zero: ^byteMask, One: 1 << ir.FixedShift}},
		Top(),
	}
	for _, c := range cases {
		once := Normalize(c)
		assert.Equal(t, once, Normalize(once), "normalize(normalize(c)) == normalize(c) for %v", c)
	}
}

// R2: self-union and self-intersection are identities up to
// normalization.
func TestSelfUnionAndIntersect(t *testing.T) {
	cases := []Constraint{
		Const(ir.FixedWhole(5)),
		Bottom(byteMask),
		{Bounds: Bounds{Min: ir.FixedWhole(1), Max: ir.FixedWhole(200)}, Bits: Known{Zero: ^byteMask}},
	}
	for _, c := range cases {
		n := Normalize(c)
		assert.Equal(t, n, Normalize(Union(c, c)))
		assert.Equal(t, n, Normalize(Intersect(c, c)))
	}
}

func TestNormalizeDerivesBitsFromBounds(t *testing.T) {
	// A constant interval makes all bits known.
	c := Normalize(Constraint{
		Bounds: Bounds{Min: ir.FixedWhole(6), Max: ir.FixedWhole(6)},
		Bits:   Known{Zero: ^byteMask},
	})
	require.True(t, c.IsConst())
	assert.Equal(t, uint64(ir.FixedWhole(6)), c.Bits.One)
}

func TestNormalizeDerivesBoundsFromBits(t *testing.T) {
	// Bit 24 known one lifts the minimum to at least 1<<24.
	c := Normalize(Constraint{
		Bounds: BottomBounds(byteMask),
		Bits:   Known{Zero: ^byteMask, One: 1 << ir.FixedShift},
	})
	assert.GreaterOrEqual(t, uint64(c.Bounds.Min), uint64(1)<<ir.FixedShift)
}

func TestSubset(t *testing.T) {
	small := Normalize(Constraint{
		Bounds: Bounds{Min: ir.FixedWhole(2), Max: ir.FixedWhole(5)},
		Bits:   Known{Zero: ^byteMask},
	})
	big := Bottom(byteMask)

	assert.True(t, Subset(small, big))
	assert.False(t, Subset(big, small))
	assert.True(t, Subset(Top(), small))
	assert.False(t, Subset(small, Top()))
	assert.True(t, Subset(small, small))
}

func TestVecHelpers(t *testing.T) {
	v := Vec{Const(ir.FixedWhole(1)), Bottom(byteMask)}
	w := CloneVec(v)
	assert.True(t, VecEq(v, w))

	w[0] = Const(ir.FixedWhole(2))
	assert.False(t, VecEq(v, w))

	assert.True(t, AllSubset(Vec{Const(ir.FixedWhole(1))}, Vec{Bottom(byteMask)}))
	assert.False(t, AllSubset(Vec{Bottom(byteMask)}, Vec{Const(ir.FixedWhole(1))}))

	assert.False(t, AnyTop(v))
	assert.True(t, AnyTop(Vec{Top()}))
}
