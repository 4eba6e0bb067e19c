// Package property implements the bounded-until property AST and the
// min/max rewriter of spec.md §4.7, narrowed from the teacher's full CTL
// formula family (kripke/ctl.go's Formula/Sat variants) down to the single
// constructor the external contract actually requires: bounded-until over
// state predicates.
package property

import "math"

// Predicate is a state predicate. AtomicPredicate wraps an opaque,
// generator-specific expression; the boolean combinators below are
// produced only by Rewrite, to build the composite "(not absorbing and
// right)" / "(absorbing or right)" right-hand sides of spec.md §4.7 — user
// formulas arriving at Rewrite must have Atomic Left/Right, per the open
// question on nested path subformulas (SPEC_FULL.md §9).
type Predicate interface {
	predicateNode()
}

// AtomicPredicate is a leaf predicate whose truth the external Generator
// decides (generator.EvaluateAsBool), since the predicate language itself
// is out of scope for this engine.
type AtomicPredicate struct {
	Expr any
}

func (AtomicPredicate) predicateNode() {}

// AbsorbingPredicate is the distinguished atomic predicate that holds
// exactly when the reserved Absorbing bit is set (spec.md §4.7). It never
// reaches Generator.EvaluateAsBool: the transient solver resolves it
// directly against the Labeling produced by Generator.Label, which always
// includes the absorbing label (internal/absorbing.Label).
type AbsorbingPredicate struct{}

func (AbsorbingPredicate) predicateNode() {}

// NotPredicate, AndPredicate, OrPredicate are the boolean combinators used
// to build composite right-hand sides. They are never handed to
// Generator.EvaluateAsBool directly; only the external transient solver
// evaluates them, against the built Labeling.
type NotPredicate struct{ Inner Predicate }

func (NotPredicate) predicateNode() {}

type AndPredicate struct{ Left, Right Predicate }

func (AndPredicate) predicateNode() {}

type OrPredicate struct{ Left, Right Predicate }

func (OrPredicate) predicateNode() {}

// Not, And, Or are convenience constructors mirroring the teacher's
// kripke/ctl.go free-function style (Not(...), And(...), Or(...)).
func Not(p Predicate) Predicate        { return NotPredicate{Inner: p} }
func And(l, r Predicate) Predicate     { return AndPredicate{Left: l, Right: r} }
func Or(l, r Predicate) Predicate      { return OrPredicate{Left: l, Right: r} }
func Atom(expr any) Predicate          { return AtomicPredicate{Expr: expr} }
func Absorbing() Predicate             { return AbsorbingPredicate{} }
func isAtomic(p Predicate) bool        { _, ok := p.(AtomicPredicate); return ok }
func timeBoundInf() float64            { return math.Inf(1) }

// TimeBound is the [lo, hi] window of a bounded-until; Hi may be +Inf for
// an unbounded until (spec.md scenario 3).
type TimeBound struct {
	Lo, Hi float64
}

// UnboundedAbove returns a TimeBound with the given lower bound and no
// upper bound, the U[lo, infinity) form used by spec.md scenario 3.
func UnboundedAbove(lo float64) TimeBound {
	return TimeBound{Lo: lo, Hi: timeBoundInf()}
}

// Formula is the property AST handed to the external transient solver.
// Until is the only constructor required by the external contract (spec.md
// §1: "only bounded-until with a left and right state-predicate is
// required").
type Formula interface {
	formulaNode()
}

// Until is "P=?[ Left U[Lo,Hi] Right ]".
type Until struct {
	Left  Predicate
	Right Predicate
	Bound TimeBound
}

func (Until) formulaNode() {}
