// Package mm1 is a Generator over an M/M/1/infinity queue: arrivals at rate
// Lambda, service at rate Mu, queue length unbounded above. It replaces the
// teacher's models/mm1/model.go stub (a hand-written comment said as much:
// "intentionally trivial... extend BuildGraph... later") with the model that
// stub was reserved for, and gives spec.md §8's infinite-state truncation
// scenario an actual fixture: kappa pruning is not optional window-dressing
// here, since the reachable state space genuinely has no upper bound.
package mm1

import (
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/property"
)

// defaultBitWidth caps the encoded queue length at 2^24-1. This is not a
// model truncation (the generator will happily expand a state at that
// boundary like any other) -- it only bounds how large a queue length can
// be addressed by the bit-packed encoding, far past anything kappa pruning
// should ever let the explorer reach in practice.
const defaultBitWidth = 24

// Model is a Generator for an M/M/1/infinity queue. The encoded state is
// just the queue length n; Load/Expand decode and re-encode it directly
// rather than going through a name table the way internal/models/twostate
// does, since the state space here is a plain integer rather than a fixed
// enumerated set.
type Model struct {
	Lambda, Mu float64
	bitWidth   int
	current    uint64

	// lengths records the queue length each StateID this Model has ever
	// resolved decodes to, since Label only receives StateIDs and needs
	// to recover "is this the n==0 state" without a name table to consult
	// (unlike internal/models/twostate, whose states are drawn from a
	// small fixed set known up front).
	lengths map[generator.StateID]uint64
}

// New builds a Model for the given arrival/service rates. It panics on a
// non-positive rate, since a queue with zero or negative arrival or service
// rate is a malformed fixture, not a runtime condition.
func New(lambda, mu float64) *Model {
	if lambda <= 0 || mu <= 0 {
		panic("mm1: lambda and mu must both be positive")
	}
	return &Model{Lambda: lambda, Mu: mu, bitWidth: defaultBitWidth, lengths: make(map[generator.StateID]uint64)}
}

// resolve wraps cb so every resolved StateID gets remembered against the
// queue length it was encoded from.
func (m *Model) resolve(cb generator.StateIDCallback, n uint64) generator.StateID {
	id := cb(m.encode(n))
	m.lengths[id] = n
	return id
}

func (m *Model) encode(n uint64) bitstate.CompressedState {
	return bitstate.NewCompressedState(m.bitWidth).SetBits(0, m.bitWidth, n)
}

func (m *Model) decode(s bitstate.CompressedState) uint64 {
	return s.GetBits(0, m.bitWidth)
}

func (m *Model) InitialStates(cb generator.StateIDCallback) []generator.StateID {
	return []generator.StateID{m.resolve(cb, 0)}
}

func (m *Model) Load(state bitstate.CompressedState) {
	m.current = m.decode(state)
}

// Expand reports the one or two Markovian transitions enabled at the
// current queue length: arrival always fires (queue is unbounded), service
// only fires for n > 0 (an empty queue has nothing to serve).
func (m *Model) Expand(cb generator.StateIDCallback) generator.Behavior {
	n := m.current
	edges := make([]generator.RateEdge, 0, 2)
	edges = append(edges, generator.RateEdge{Dst: m.resolve(cb, n+1), Rate: m.Lambda})
	if n > 0 {
		edges = append(edges, generator.RateEdge{Dst: m.resolve(cb, n-1), Rate: m.Mu})
	}
	return generator.Behavior{
		WasExpanded: true,
		Choices:     []generator.Choice{{Markovian: true, Transitions: edges}},
	}
}

func (m *Model) VariableInfo() generator.VariableInfo {
	return generator.VariableInfo{
		Ints: []generator.VarLayout{{Name: "n", Offset: 0, Width: m.bitWidth}},
	}
}

// EvaluateAsBool treats expr as one of the two conventional predicate
// names this fixture supports: "empty" (n == 0) and "true" (always).
// Anything else evaluates false rather than panicking, since a test
// property typed against the wrong fixture is a test bug the fixture
// shouldn't escalate into a crash.
func (m *Model) EvaluateAsBool(expr property.Predicate, s bitstate.CompressedState) bool {
	atom, ok := expr.(property.AtomicPredicate)
	if !ok {
		return false
	}
	name, _ := atom.Expr.(string)
	switch name {
	case "true":
		return true
	case "empty":
		return m.decode(s) == 0
	default:
		return false
	}
}

// Label attaches "empty" to the zero-length queue state, if it was ever
// discovered, alongside the caller-supplied initial/deadlock/extra labels.
func (m *Model) Label(initialIDs, deadlockIDs []generator.StateID, extra map[generator.StateID][]string) generator.Labeling {
	out := make(generator.Labeling, len(m.lengths))
	for id, n := range m.lengths {
		if n == 0 {
			out[id] = append(out[id], "empty")
		}
	}
	for _, id := range initialIDs {
		out[id] = append(out[id], "init")
	}
	for _, id := range deadlockIDs {
		out[id] = append(out[id], "deadlock")
	}
	for id, labels := range extra {
		out[id] = append(out[id], labels...)
	}
	return out
}
