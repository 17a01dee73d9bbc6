package ai

import (
	"math/bits"

	"mosbol/internal/ir"
)

// Per-opcode transfer functions. AbstractFn computes the result
// constraints of a node from its input constraints; it must be
// monotone. NarrowFn refines the inputs in place given a refinement of
// the result; it is only invoked through traces, and only for ops
// carrying FlagTraceInputs.
//
// The comparison ops take their operands in (lhs, rhs) pairs forming a
// lexicographic multi-word comparison, most significant pair first.

// AbstractFn fills out.Vec from the inputs. out.Vec is pre-sized to
// ConstraintsSize and out.Mask is set by the engine; results are not
// normalized here.
type AbstractFn func(inputs []Def, out *Def)

// NarrowFn tightens inputs given the refined result constraints.
type NarrowFn func(inputs []Def, out Def)

// AbstractOp returns the transfer function of an op, or nil.
func AbstractOp(op ir.Op) AbstractFn {
	switch op {
	case ir.OpArg:
		return abstractArg
	case ir.OpPhi:
		return abstractPhi
	case ir.OpAdd:
		return abstractAdd
	case ir.OpSub:
		return abstractSub
	case ir.OpAnd:
		return abstractAnd
	case ir.OpOr:
		return abstractOr
	case ir.OpXor:
		return abstractXor
	case ir.OpNot:
		return abstractNot
	case ir.OpEq, ir.OpNotEq:
		return abstractEqFor(op)
	case ir.OpLt, ir.OpLte:
		return abstractCmpFor(op)
	case ir.OpCopy:
		return abstractCopy
	case ir.OpCast:
		return abstractCast
	case ir.OpInitArray:
		return abstractInitArray
	case ir.OpReadArray:
		return abstractReadArray
	case ir.OpWriteArray:
		return abstractWriteArray
	}
	return nil
}

// NarrowOp returns the narrowing function of an op, or nil.
func NarrowOp(op ir.Op) NarrowFn {
	switch op {
	case ir.OpAnd:
		return narrowAnd
	case ir.OpOr:
		return narrowOr
	case ir.OpNot:
		return narrowNot
	case ir.OpEq, ir.OpNotEq:
		return narrowEqFor(op)
	case ir.OpLt, ir.OpLte:
		return narrowCmpFor(op)
	}
	return nil
}

func first(d Def) Constraint {
	if len(d.Vec) == 0 {
		return Top()
	}
	return d.Vec[0]
}

func anyInputTop(inputs []Def) bool {
	for _, d := range inputs {
		if AnyTop(d.Vec) {
			return true
		}
	}
	return false
}

func abstractArg(inputs []Def, out *Def) {
	FillVec(out.Vec, Bottom(out.Mask))
}

func abstractPhi(inputs []Def, out *Def) {
	FillVec(out.Vec, Top())
	for _, in := range inputs {
		for i := range out.Vec {
			if i < len(in.Vec) {
				out.Vec[i] = Union(out.Vec[i], in.Vec[i])
			}
		}
	}
}

// lowBit is the smallest representable step of a mask.
func lowBit(mask uint64) uint64 { return mask & -mask }

// span is the wrap-around modulus of a mask: one past its highest
// representable value.
func span(mask uint64) uint64 {
	if mask == 0 {
		return 0
	}
	return 1 << uint(64-bits.LeadingZeros64(mask))
}

func abstractAdd(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		FillVec(out.Vec, Top())
		return
	}
	a, b := first(inputs[0]), first(inputs[1])
	lo := ir.Fixed(lowBit(out.Mask))
	minSum := uint64(a.Bounds.Min) + uint64(b.Bounds.Min)
	maxSum := uint64(a.Bounds.Max) + uint64(b.Bounds.Max)
	if len(inputs) > 2 {
		carry := first(inputs[2])
		if carry.Bounds.Min != 0 {
			minSum += uint64(lo)
		}
		if carry.Bounds.Max != 0 {
			maxSum += uint64(lo)
		}
	}

	wrap := span(out.Mask)
	switch {
	case maxSum < wrap:
		out.Vec[0] = Constraint{Bounds: Bounds{Min: ir.Fixed(minSum), Max: ir.Fixed(maxSum)}, Bits: Known{Zero: ^out.Mask}}
		out.Vec[1] = ConstBool(false)
	case minSum >= wrap:
		out.Vec[0] = Constraint{Bounds: Bounds{Min: ir.Fixed(minSum - wrap), Max: ir.Fixed(maxSum - wrap)}, Bits: Known{Zero: ^out.Mask}}
		out.Vec[1] = ConstBool(true)
	default:
		out.Vec[0] = Bottom(out.Mask)
		out.Vec[1] = Bottom(uint64(ir.FixedWhole(1)))
	}
}

// abstractSub models a - b with a no-borrow carry: the carry output is
// set when the subtraction does not wrap.
func abstractSub(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		FillVec(out.Vec, Top())
		return
	}
	a, b := first(inputs[0]), first(inputs[1])
	if len(inputs) > 2 {
		if c := first(inputs[2]); !(c.IsConst() && c.GetConst() != 0) {
			// A possible incoming borrow; give up on precision.
			out.Vec[0] = Bottom(out.Mask)
			out.Vec[1] = Bottom(uint64(ir.FixedWhole(1)))
			return
		}
	}
	wrap := span(out.Mask)
	switch {
	case a.Bounds.Min >= b.Bounds.Max:
		out.Vec[0] = Constraint{
			Bounds: Bounds{Min: a.Bounds.Min - b.Bounds.Max, Max: a.Bounds.Max - b.Bounds.Min},
			Bits:   Known{Zero: ^out.Mask},
		}
		out.Vec[1] = ConstBool(true)
	case a.Bounds.Max < b.Bounds.Min:
		out.Vec[0] = Constraint{
			Bounds: Bounds{
				Min: a.Bounds.Min + ir.Fixed(wrap) - b.Bounds.Max,
				Max: a.Bounds.Max + ir.Fixed(wrap) - b.Bounds.Min,
			},
			Bits: Known{Zero: ^out.Mask},
		}
		out.Vec[1] = ConstBool(false)
	default:
		out.Vec[0] = Bottom(out.Mask)
		out.Vec[1] = Bottom(uint64(ir.FixedWhole(1)))
	}
}

func abstractAnd(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		FillVec(out.Vec, Top())
		return
	}
	a, b := first(inputs[0]), first(inputs[1])
	out.Vec[0] = Constraint{
		Bounds: Bounds{Min: 0, Max: minFixed(a.Bounds.Max, b.Bounds.Max)},
		Bits:   Known{Zero: a.Bits.Zero | b.Bits.Zero | ^out.Mask, One: a.Bits.One & b.Bits.One & out.Mask},
	}
}

func abstractOr(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		FillVec(out.Vec, Top())
		return
	}
	a, b := first(inputs[0]), first(inputs[1])
	out.Vec[0] = Constraint{
		Bounds: Bounds{Min: maxFixed(a.Bounds.Min, b.Bounds.Min), Max: ir.Fixed(out.Mask)},
		Bits:   Known{Zero: (a.Bits.Zero & b.Bits.Zero) | ^out.Mask, One: (a.Bits.One | b.Bits.One) & out.Mask},
	}
}

func abstractXor(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		FillVec(out.Vec, Top())
		return
	}
	a, b := first(inputs[0]), first(inputs[1])
	out.Vec[0] = Constraint{
		Bounds: BottomBounds(out.Mask),
		Bits: Known{
			Zero: ((a.Bits.Zero & b.Bits.Zero) | (a.Bits.One & b.Bits.One)) | ^out.Mask,
			One:  ((a.Bits.One & b.Bits.Zero) | (a.Bits.Zero & b.Bits.One)) & out.Mask,
		},
	}
}

func abstractNot(inputs []Def, out *Def) {
	c := first(inputs[0])
	switch {
	case c.IsTop():
		out.Vec[0] = Top()
	case c.IsConst():
		out.Vec[0] = ConstBool(c.GetConst() == 0)
	default:
		out.Vec[0] = Bottom(out.Mask)
	}
}

// Tristate comparison outcomes.
type tri int8

const (
	triUnknown tri = iota
	triTrue
	triFalse
)

func triConst(t tri, mask uint64) Constraint {
	switch t {
	case triTrue:
		return ConstBool(true)
	case triFalse:
		return ConstBool(false)
	default:
		return Bottom(mask)
	}
}

func triEq(a, b Constraint) tri {
	if a.IsTop() || b.IsTop() {
		return triUnknown
	}
	if a.IsConst() && b.IsConst() {
		if a.GetConst() == b.GetConst() {
			return triTrue
		}
		return triFalse
	}
	if a.Bounds.Max < b.Bounds.Min || b.Bounds.Max < a.Bounds.Min {
		return triFalse
	}
	if a.Bits.One&b.Bits.Zero != 0 || a.Bits.Zero&b.Bits.One != 0 {
		return triFalse
	}
	return triUnknown
}

func triLt(a, b Constraint) tri {
	if a.IsTop() || b.IsTop() {
		return triUnknown
	}
	if a.Bounds.Max < b.Bounds.Min {
		return triTrue
	}
	if a.Bounds.Min >= b.Bounds.Max {
		return triFalse
	}
	return triUnknown
}

func triLte(a, b Constraint) tri {
	if a.IsTop() || b.IsTop() {
		return triUnknown
	}
	if a.Bounds.Max <= b.Bounds.Min {
		return triTrue
	}
	if a.Bounds.Min > b.Bounds.Max {
		return triFalse
	}
	return triUnknown
}

func abstractEqFor(op ir.Op) AbstractFn {
	return func(inputs []Def, out *Def) {
		if anyInputTop(inputs) {
			out.Vec[0] = Top()
			return
		}
		// Conjunction over pairs: eq holds when every pair is equal,
		// ne when every pair differs.
		result := triTrue
		for i := 0; i+1 < len(inputs); i += 2 {
			e := triEq(first(inputs[i]), first(inputs[i+1]))
			if op == ir.OpNotEq {
				switch e {
				case triTrue:
					e = triFalse
				case triFalse:
					e = triTrue
				}
			}
			if e == triFalse {
				result = triFalse
				break
			}
			if e == triUnknown {
				result = triUnknown
			}
		}
		out.Vec[0] = triConst(result, out.Mask)
	}
}

// lexCompare evaluates a lexicographic comparison over pairs, with the
// final pair compared strictly (lt) or not (lte).
func lexCompare(inputs []Def, i int, strict bool) tri {
	if i+1 >= len(inputs) {
		if strict {
			return triFalse // a < a
		}
		return triTrue
	}
	a, b := first(inputs[i]), first(inputs[i+1])
	last := i+3 >= len(inputs)

	var lt tri
	if last && !strict {
		lt = triLte(a, b)
	} else {
		lt = triLt(a, b)
	}
	if last {
		return lt
	}

	switch triEq(a, b) {
	case triTrue:
		return lexCompare(inputs, i+2, strict)
	case triFalse:
		return lt
	default:
		rest := lexCompare(inputs, i+2, strict)
		if lt == triTrue {
			return triTrue
		}
		if lt == triFalse && rest == triFalse {
			return triFalse
		}
		return triUnknown
	}
}

func abstractCmpFor(op ir.Op) AbstractFn {
	return func(inputs []Def, out *Def) {
		if anyInputTop(inputs) {
			out.Vec[0] = Top()
			return
		}
		out.Vec[0] = triConst(lexCompare(inputs, 0, op == ir.OpLt), out.Mask)
	}
}

func abstractCopy(inputs []Def, out *Def) {
	for i := range out.Vec {
		if i < len(inputs[0].Vec) {
			out.Vec[i] = inputs[0].Vec[i]
		}
	}
}

func abstractCast(inputs []Def, out *Def) {
	c := first(inputs[0])
	if c.IsTop() {
		out.Vec[0] = Top()
		return
	}
	res := Constraint{
		Bounds: c.Bounds,
		Bits: Known{
			Zero: (c.Bits.Zero & out.Mask) | ^out.Mask,
			One:  c.Bits.One & out.Mask,
		},
	}
	// Truncation drops bits: bounds survive only when every dropped
	// bit is known zero.
	if ^c.Bits.Zero&^out.Mask != 0 {
		res.Bounds = BottomBounds(out.Mask)
	}
	out.Vec[0] = res
}

func abstractInitArray(inputs []Def, out *Def) {
	for i := range out.Vec {
		if i < len(inputs) {
			out.Vec[i] = first(inputs[i])
		} else {
			out.Vec[i] = Bottom(out.Mask)
		}
	}
}

// indexRange converts an index constraint to whole-number slot bounds,
// clamped to the array size.
func indexRange(idx Constraint, size int) (int, int) {
	lo := int(idx.Bounds.Min.Whole())
	hi := int(idx.Bounds.Max.Whole())
	if lo < 0 {
		lo = 0
	}
	if hi >= size {
		hi = size - 1
	}
	return lo, hi
}

func abstractReadArray(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		out.Vec[0] = Top()
		return
	}
	arr := inputs[0].Vec
	idx := first(inputs[1])
	lo, hi := indexRange(idx, len(arr))
	if lo > hi {
		out.Vec[0] = Bottom(out.Mask)
		return
	}
	acc := Top()
	for i := lo; i <= hi; i++ {
		acc = Union(acc, arr[i])
	}
	out.Vec[0] = acc
}

func abstractWriteArray(inputs []Def, out *Def) {
	if anyInputTop(inputs) {
		FillVec(out.Vec, Top())
		return
	}
	arr := inputs[0].Vec
	idx := first(inputs[1])
	val := first(inputs[2])
	for i := range out.Vec {
		if i < len(arr) {
			out.Vec[i] = arr[i]
		} else {
			out.Vec[i] = Bottom(out.Mask)
		}
	}
	if idx.IsConst() {
		slot := int(idx.GetConst().Whole())
		if slot >= 0 && slot < len(out.Vec) {
			out.Vec[slot] = val
		}
		return
	}
	lo, hi := indexRange(idx, len(out.Vec))
	for i := lo; i <= hi; i++ {
		out.Vec[i] = Union(out.Vec[i], val)
	}
}

// Narrowing functions. Each refines inputs[i].Vec[0] by intersecting;
// refinements must only shrink the represented sets.

func refine(d *Def, c Constraint) {
	if len(d.Vec) > 0 {
		d.Vec[0] = Intersect(d.Vec[0], c)
	}
}

func narrowNot(inputs []Def, out Def) {
	c := first(out)
	if !c.IsConst() {
		return
	}
	refine(&inputs[0], ConstBool(c.GetConst() == 0))
}

func narrowAnd(inputs []Def, out Def) {
	c := first(out)
	if !c.IsConst() {
		return
	}
	if c.GetConst() != 0 {
		refine(&inputs[0], ConstBool(true))
		refine(&inputs[1], ConstBool(true))
		return
	}
	// False: one side known true pins the other false.
	a, b := first(inputs[0]), first(inputs[1])
	if a.IsConst() && a.GetConst() != 0 {
		refine(&inputs[1], ConstBool(false))
	}
	if b.IsConst() && b.GetConst() != 0 {
		refine(&inputs[0], ConstBool(false))
	}
}

func narrowOr(inputs []Def, out Def) {
	c := first(out)
	if !c.IsConst() {
		return
	}
	if c.GetConst() == 0 {
		refine(&inputs[0], ConstBool(false))
		refine(&inputs[1], ConstBool(false))
		return
	}
	a, b := first(inputs[0]), first(inputs[1])
	if a.IsConst() && a.GetConst() == 0 {
		refine(&inputs[1], ConstBool(true))
	}
	if b.IsConst() && b.GetConst() == 0 {
		refine(&inputs[0], ConstBool(true))
	}
}

func narrowEqFor(op ir.Op) NarrowFn {
	return func(inputs []Def, out Def) {
		c := first(out)
		if !c.IsConst() {
			return
		}
		holds := c.GetConst() != 0
		if op == ir.OpNotEq {
			holds = !holds
		}
		if holds {
			// Every pair is equal: both sides take the meet.
			for i := 0; i+1 < len(inputs); i += 2 {
				m := Intersect(first(inputs[i]), first(inputs[i+1]))
				refine(&inputs[i], m)
				refine(&inputs[i+1], m)
			}
			return
		}
		// With a single pair, inequality at an interval edge trims it.
		if len(inputs) == 2 {
			narrowNeqPair(&inputs[0], &inputs[1])
			narrowNeqPair(&inputs[1], &inputs[0])
		}
	}
}

func narrowNeqPair(a, b *Def) {
	bc := first(*b)
	if !bc.IsConst() {
		return
	}
	ac := first(*a)
	if ac.IsTop() {
		return
	}
	lo := ir.Fixed(lowBit(a.Mask))
	bounds := ac.Bounds
	if bounds.Min == bc.GetConst() {
		bounds.Min += lo
	}
	if bounds.Max == bc.GetConst() {
		bounds.Max -= lo
	}
	refine(a, Constraint{Bounds: bounds, Bits: ac.Bits})
}

func narrowCmpFor(op ir.Op) NarrowFn {
	return func(inputs []Def, out Def) {
		c := first(out)
		if !c.IsConst() || len(inputs) != 2 {
			return
		}
		a, b := first(inputs[0]), first(inputs[1])
		if a.IsTop() || b.IsTop() {
			return
		}
		loA := ir.Fixed(lowBit(inputs[0].Mask))
		loB := ir.Fixed(lowBit(inputs[1].Mask))
		holds := c.GetConst() != 0
		strict := op == ir.OpLt

		if holds {
			// a < b or a <= b.
			maxA := b.Bounds.Max
			minB := a.Bounds.Min
			if strict {
				if maxA == 0 {
					refine(&inputs[0], Top())
					return
				}
				maxA -= loB
				minB += loA
			}
			refine(&inputs[0], rangeAtMost(maxA, inputs[0].Mask))
			refine(&inputs[1], rangeAtLeast(minB, inputs[1].Mask))
			return
		}

		// a < b false means b <= a; a <= b false means b < a.
		maxB := a.Bounds.Max
		minA := b.Bounds.Min
		if !strict {
			if maxB == 0 {
				refine(&inputs[1], Top())
				return
			}
			maxB -= loA
			minA += loB
		}
		refine(&inputs[1], rangeAtMost(maxB, inputs[1].Mask))
		refine(&inputs[0], rangeAtLeast(minA, inputs[0].Mask))
	}
}

func rangeAtMost(max ir.Fixed, mask uint64) Constraint {
	return Constraint{Bounds: Bounds{Min: 0, Max: max}, Bits: Known{Zero: ^mask}}
}

func rangeAtLeast(min ir.Fixed, mask uint64) Constraint {
	return Constraint{Bounds: Bounds{Min: min, Max: ir.Fixed(mask)}, Bits: Known{Zero: ^mask}}
}
