// Package ai implements the abstract-interpretation optimizer: range
// propagation over a constraint lattice, unreachable-code pruning and
// constant folding, and jump threading via trace partitioning.
package ai

import (
	"fmt"

	"github.com/tliron/commonlog"

	"mosbol/internal/ir"
)

var log = commonlog.GetLogger("mosbol.ai")

// Widening thresholds, in visit counts. Keep these in ascending order.
const (
	widenOpBounds = 16
	widenOp       = 24
)

// maxOutputSize bounds block successor counts: edge executability is a
// 64-bit set per block.
const maxOutputSize = 64

// ErrCapacity is returned when a block exceeds maxOutputSize
// successors. The IR is left untouched.
var ErrCapacity = fmt.Errorf("block exceeds %d successors", maxOutputSize)

// Analysis contexts. The range propagation and the jump threading walks
// keep independent executability and constraint state.
type execIndex int

const (
	execPropagate  execIndex = 0
	execJumpThread execIndex = 1
)

// Per-block analysis state, indexed by CFG handle.
type cfgData struct {
	// Which output edges each context has executed along.
	outputExecutable [2]uint64

	// Whether each context reached the block at all.
	executable [2]bool

	// Which input edge the current thread walk arrived over.
	inputTaken int

	// Original SSA handle -> the phi or trace standing in for it
	// inside this block.
	rebuildMap map[ir.SSAHandle]ir.SSAHandle

	// The block holds nothing that would need duplicating along a
	// threaded jump.
	skippable bool

	inWorklist bool
}

// Per-node analysis state, indexed by SSA handle.
type ssaData struct {
	// One constraint vector per context; constraintsI selects the
	// active one.
	constraintsArray [2]Def
	constraintsI     execIndex

	// For traces and synthetic phis: the original value shadowed.
	rebuildMapping ir.SSAHandle

	// Visit count in the current fixpoint; drives widening. Traces
	// advance twice per visit.
	visitedCount int

	// Set when a thread walk changed one of the node's operands.
	touched bool

	inWorklist bool
}

func (d *ssaData) constraints() *Def {
	return &d.constraintsArray[d.constraintsI]
}

type aiPass struct {
	g *ir.IR

	cfgData []cfgData
	ssaData []ssaData

	cfgWorklist []ir.CFGHandle
	ssaWorklist []ir.SSAHandle

	needsRebuild  []ir.SSAHandle
	threadedJumps []ir.CFGHandle

	dump *PhaseDump

	updated bool
}

// Options configures an optimizer run.
type Options struct {
	// Dump, when set, receives the printed IR after every phase.
	Dump *PhaseDump
}

// Optimize runs the full pass sequence over one function body and
// reports whether anything changed. Side tables live only for the
// duration of the call.
func Optimize(g *ir.IR) (bool, error) {
	return OptimizeOpts(g, Options{})
}

func OptimizeOpts(g *ir.IR, opts Options) (updated bool, err error) {
	if g.Root == ir.Null {
		return false, nil
	}

	// Bail before touching anything if a block has more successors
	// than the edge bitset can track.
	for h := g.CFGBegin(); h != ir.Null; h = g.CFGNext(h) {
		if g.Block(h).OutputSize() > maxOutputSize {
			return false, ErrCapacity
		}
	}
	if err := g.AssertValid(); err != nil {
		return false, err
	}

	// The IR package panics on misuse; so does a failed local lookup.
	// Either one is a compiler bug surfaced as an error here.
	defer func() {
		if r := recover(); r != nil {
			updated = false
			err = fmt.Errorf("optimizer invariant violated: %v: %w", r, ir.ErrInvalid)
		}
	}()

	a := &aiPass{g: g, dump: opts.Dump}
	a.resizeData()

	phases := []struct {
		name string
		run  func()
	}{
		{"TRACE", a.insertTraces},
		{"PROPAGATE", a.rangePropagate},
		{"PRUNE", a.pruneUnreachableCode},
		{"MARK SKIP", a.markSkippable},
		{"THREAD", a.threadJumps},
		{"FOLD", a.foldConsts},
		{"REMOVE SKIP", a.removeSkippable},
	}
	for _, p := range phases {
		log.Debugf("phase %s", p.name)
		p.run()
		if err := g.AssertValid(); err != nil {
			return false, fmt.Errorf("after phase %s: %w", p.name, err)
		}
		if a.dump != nil {
			if err := a.dump.Phase(p.name, g); err != nil {
				return false, err
			}
		}
	}

	return a.updated, nil
}

// resizeData grows the side tables to the current pool sizes. It must
// be called after every node creation, before any handle is used to
// index the tables again.
func (a *aiPass) resizeData() {
	for len(a.cfgData) < a.g.CFGSize() {
		a.cfgData = append(a.cfgData, cfgData{})
	}
	for len(a.ssaData) < a.g.SSASize() {
		a.ssaData = append(a.ssaData, ssaData{})
	}
}

func (a *aiPass) cd(h ir.CFGHandle) *cfgData { return &a.cfgData[h] }
func (a *aiPass) sd(h ir.SSAHandle) *ssaData { return &a.ssaData[h] }

// setActive switches a node's active constraint vector. The thread
// context starts out as a copy of the propagate result the first time
// it is activated.
func (a *aiPass) setActive(h ir.SSAHandle, e execIndex) {
	d := a.sd(h)
	if e == execJumpThread {
		t := &d.constraintsArray[execJumpThread]
		if t.Vec == nil {
			p := &d.constraintsArray[execPropagate]
			t.Mask = p.Mask
			t.Vec = CloneVec(p.Vec)
		}
	}
	d.constraintsI = e
}

// constraintsSize gives the constraint vector length of a node: value
// and carry for arithmetic, one element per slot for array-likes, one
// for scalars, none otherwise.
func (a *aiPass) constraintsSize(h ir.SSAHandle) int {
	n := a.g.Node(h)
	switch n.Op() {
	case ir.OpAdd, ir.OpSub:
		return 2
	case ir.OpTrace:
		return a.constraintsSize(n.Input(0).Handle())
	default:
		t := n.Type()
		if ir.IsArrayLike(t) {
			return t.Size()
		}
		if ir.IsNumeric(t) {
			return 1
		}
		return 0
	}
}

func (a *aiPass) hasConstraints(h ir.SSAHandle) bool {
	return len(a.sd(h).constraints().Vec) > 0
}

func (a *aiPass) hasConstraintsValue(v ir.Value) bool {
	if v.IsHandle() {
		return a.hasConstraints(v.Handle())
	}
	return v.IsNum()
}

var largestFixedMask = ir.NumericBitmask(ir.NewType(ir.TypeLargestFixed))

// copyConstraints materializes the constraint def of an operand.
// Literals carry the widest fixed-point mask.
func (a *aiPass) copyConstraints(v ir.Value) Def {
	if v.IsHandle() {
		src := a.sd(v.Handle()).constraints()
		return Def{Mask: src.Mask, Vec: CloneVec(src.Vec)}
	}
	if v.IsNum() {
		return Def{Mask: largestFixedMask, Vec: Vec{Const(v.Num())}}
	}
	return Def{}
}

// firstConstraint reads the first constraint of an operand.
func (a *aiPass) firstConstraint(v ir.Value) Constraint {
	if v.IsHandle() {
		return a.sd(v.Handle()).constraints().Vec[0]
	}
	if v.IsNum() {
		return Const(v.Num())
	}
	panic("ai: constraint of empty value")
}
