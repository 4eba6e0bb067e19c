package solver

import (
	"context"
	"math"

	"github.com/rfielding/stamina-go/internal/absorbing"
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/errs"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/transition"
)

// ReferenceUniformization is a small, test-only transient-probability
// solver over the finite sparse Matrix the explorer builds. It is adapted
// from the teacher's model_checker.go checkEU/checkAU fixed-point shape:
// where the teacher iterates a boolean fixpoint over a Kripke graph, this
// solver iterates a numeric one over a CTMC's embedded jump chain,
// optionally weighted by Poisson probabilities for a time-bounded until.
//
// It supports only Bound.Lo == 0 (the form every scenario in spec.md §8
// uses); a nonzero lower bound returns errs.InvalidInput, since
// implementing full two-phase CSL bounded-until is out of scope for a test
// fixture. Production deployments go through solver.Transient, which this
// type also implements, backed by whatever real numerical package the
// caller wires in.
type ReferenceUniformization struct {
	// MaxPoissonTerms bounds the truncated Poisson sum used for the
	// finite-horizon case. Zero selects a reasonable default.
	MaxPoissonTerms int
}

func (r ReferenceUniformization) Solve(_ context.Context, m *transition.Matrix, l generator.Labeling, formula property.Formula) ([]float64, error) {
	u, ok := formula.(property.Until)
	if !ok {
		return nil, errs.New(errs.InvalidInput, "ReferenceUniformization only supports Until formulas")
	}
	if u.Bound.Lo != 0 {
		return nil, errs.New(errs.InvalidInput, "ReferenceUniformization only supports a zero lower time bound")
	}

	states := m.States()
	idx := make(map[bitstate.StateID]int, len(states))
	for i, s := range states {
		idx[s] = i
	}
	n := len(states)

	goal := make([]bool, n)
	dead := make([]bool, n)
	for i, s := range states {
		labels := l[s]
		right := satisfies(u.Right, labels)
		left := satisfies(u.Left, labels)
		goal[i] = right
		dead[i] = !left && !right
	}

	// Embedded jump chain: P[i][j] = rate(i,j) / totalRate(i). A state
	// with zero total outgoing rate (shouldn't occur once the absorbing
	// state exists, but guarded here) is treated as absorbing to itself.
	jump := make([][]weightedEdge, n)
	exitRate := make([]float64, n)
	maxExitRate := 0.0
	for i, s := range states {
		total := m.OutgoingRateSum(s)
		exitRate[i] = total
		if total > maxExitRate {
			maxExitRate = total
		}
		if total == 0 {
			jump[i] = []weightedEdge{{to: i, p: 1}}
			continue
		}
		for _, e := range m.Row(s) {
			j, ok := idx[e.Dst]
			if !ok {
				continue
			}
			jump[i] = append(jump[i], weightedEdge{to: j, p: e.Rate / total})
		}
	}

	var x []float64
	if math.IsInf(u.Bound.Hi, 1) {
		x = solveUnboundedReachability(jump, goal, dead, n)
	} else {
		x = solveTimeBoundedReachability(jump, exitRate, goal, dead, maxExitRate, u.Bound.Hi, r.maxTerms())
	}

	return mapBackToStateIDs(states, x), nil
}

func (r ReferenceUniformization) maxTerms() int {
	if r.MaxPoissonTerms > 0 {
		return r.MaxPoissonTerms
	}
	return 200
}

type weightedEdge struct {
	to int
	p  float64
}

// solveUnboundedReachability computes, for every state i, the probability
// of eventually reaching a goal state before (or without ever) reaching a
// dead state, via value iteration -- the numeric analogue of the teacher's
// checkEU least-fixpoint loop.
func solveUnboundedReachability(jump [][]weightedEdge, goal, dead []bool, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		if goal[i] {
			x[i] = 1
		}
	}
	for iter := 0; iter < 10000; iter++ {
		maxDelta := 0.0
		next := make([]float64, n)
		copy(next, x)
		for i := 0; i < n; i++ {
			if goal[i] || dead[i] {
				continue
			}
			var sum float64
			for _, e := range jump[i] {
				sum += e.p * x[e.to]
			}
			if d := math.Abs(sum - x[i]); d > maxDelta {
				maxDelta = d
			}
			next[i] = sum
		}
		x = next
		if maxDelta < 1e-12 {
			break
		}
	}
	return x
}

// solveTimeBoundedReachability computes the probability of being absorbed
// into a goal state by time hi, via uniformization: the CTMC is
// discretized at rate lambda = maxExitRate (with self-loop slack added to
// every state so all rows sum to lambda), and the transient vector is the
// Poisson(lambda*hi)-weighted sum of the embedded chain's powers applied to
// the initial indicator vectors.
func solveTimeBoundedReachability(jump [][]weightedEdge, exitRate []float64, goal, dead []bool, maxExitRate, hi float64, maxTerms int) []float64 {
	n := len(jump)
	if maxExitRate == 0 {
		maxExitRate = 1
	}
	lambda := maxExitRate

	// uniformized[i] holds the embedded-chain row scaled by exitRate[i]/lambda,
	// plus a self-loop carrying the remaining 1 - exitRate[i]/lambda
	// (goal/dead states are absorbing).
	uniformized := make([][]weightedEdge, n)
	for i := range uniformized {
		if goal[i] || dead[i] {
			uniformized[i] = []weightedEdge{{to: i, p: 1}}
			continue
		}
		scale := exitRate[i] / lambda
		row := make([]weightedEdge, 0, len(jump[i])+1)
		for _, e := range jump[i] {
			row = append(row, weightedEdge{to: e.to, p: e.p * scale})
		}
		uniformized[i] = append(row, weightedEdge{to: i, p: 1 - scale})
	}

	poisson := poissonWeights(lambda*hi, maxTerms)

	acc := make([]float64, n)
	// dist[i] tracks, per starting state i, the probability of being in
	// each state after k uniformized steps; we fold the Poisson weight
	// in per step rather than materializing P^k explicitly.
	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
		dist[i][i] = 1
	}
	for k := 0; k < len(poisson); k++ {
		for i := 0; i < n; i++ {
			w := poisson[k]
			if w > 0 {
				for j := 0; j < n; j++ {
					if goal[j] {
						acc[i] += w * dist[i][j]
					}
				}
			}
		}
		if k == len(poisson)-1 {
			break
		}
		next := make([][]float64, n)
		for i := 0; i < n; i++ {
			next[i] = make([]float64, n)
			for j := 0; j < n; j++ {
				if dist[i][j] == 0 {
					continue
				}
				for _, e := range uniformized[j] {
					next[i][e.to] += dist[i][j] * e.p
				}
			}
		}
		dist = next
	}
	return acc
}

// poissonWeights returns the Poisson(mean) pmf, stopping at the first term
// past the mean at which the accumulated weight exceeds 1-1e-12, or after
// maxTerms terms, whichever comes first. The weights are not renormalized: mass beyond the last term
// is dropped. A simple alternative to the Fox-Glynn algorithm adequate for
// the small fixture models this reference solver is exercised against.
func poissonWeights(mean float64, maxTerms int) []float64 {
	if mean <= 0 {
		return []float64{1}
	}
	weights := make([]float64, 0, maxTerms)
	logP := -mean
	p := math.Exp(logP)
	sum := 0.0
	for k := 0; k < maxTerms; k++ {
		weights = append(weights, p)
		sum += p
		p = p * mean / float64(k+1)
		if sum > 1-1e-12 && k > int(mean) {
			break
		}
	}
	return weights
}

func mapBackToStateIDs(states []bitstate.StateID, x []float64) []float64 {
	maxID := bitstate.StateID(0)
	for _, s := range states {
		if s > maxID {
			maxID = s
		}
	}
	out := make([]float64, maxID+1)
	for i, s := range states {
		out[s] = x[i]
	}
	return out
}

// satisfies evaluates a property.Predicate against a state's labels. Leaf
// AtomicPredicate values are compared by their Expr, which by convention in
// this engine's fixture models (internal/models/...) is a plain label
// string, except "true", which holds in every state; AbsorbingPredicate
// checks for internal/absorbing.Label.
func satisfies(p property.Predicate, labels []string) bool {
	switch v := p.(type) {
	case property.AtomicPredicate:
		name, _ := v.Expr.(string)
		return name == "true" || hasLabel(labels, name)
	case property.AbsorbingPredicate:
		return hasLabel(labels, absorbing.Label)
	case property.NotPredicate:
		return !satisfies(v.Inner, labels)
	case property.AndPredicate:
		return satisfies(v.Left, labels) && satisfies(v.Right, labels)
	case property.OrPredicate:
		return satisfies(v.Left, labels) || satisfies(v.Right, labels)
	default:
		return false
	}
}

func hasLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}
