// Package twostate is a small, fully in-memory Generator fixture used by
// the explorer, refinement, and solver tests. It generalizes the teacher's
// root kripke.go KripkeStructure (named states, string transitions, string
// propositions) from a graph of simple successor lists into a weighted CTMC
// with rates, while keeping the same "named state, named label" feel.
package twostate

import (
	"math/bits"
	"sort"

	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/property"
)

// Edge is one outgoing rate transition from a named state.
type Edge struct {
	To   string
	Rate float64
}

// Def describes a small fixed chain: named states, their outgoing rate
// edges, and the atomic-proposition labels that hold at each. A state with
// no entry in Edges (or an explicit empty slice) has no enabled commands
// and is reported as a deadlock, matching spec.md §8 scenario 6.
type Def struct {
	Initial string
	Edges   map[string][]Edge
	Labels  map[string][]string
}

// Model is a Generator over a Def. Every state name in the Def (initial,
// edge endpoints, label keys) is numbered in alphabetical order and packed
// into a bit width wide enough to hold the count.
type Model struct {
	def      Def
	order    []string
	index    map[string]int
	bitWidth int
	current  string

	// ids caches the real, dedup-assigned StateID (offset by the reserved
	// absorbing id and ordered by discovery order, not by m.index's
	// alphabetical ordering) for every name resolved so far through cb.
	// Label needs these, not m.index's local ordering, to key its output.
	ids map[string]generator.StateID
}

// New builds a Model from def. It panics on an unknown initial state name,
// since a fixture model with a broken definition is a test-authoring bug,
// not a runtime condition callers need to recover from.
func New(def Def) *Model {
	names := make(map[string]struct{})
	names[def.Initial] = struct{}{}
	for from, edges := range def.Edges {
		names[from] = struct{}{}
		for _, e := range edges {
			names[e.To] = struct{}{}
		}
	}
	for s := range def.Labels {
		names[s] = struct{}{}
	}

	order := make([]string, 0, len(names))
	for n := range names {
		order = append(order, n)
	}
	sort.Strings(order)

	index := make(map[string]int, len(order))
	for i, n := range order {
		index[n] = i
	}
	if _, ok := index[def.Initial]; !ok {
		panic("twostate: initial state " + def.Initial + " not found in definition")
	}

	width := bits.Len(uint(len(order)))
	if width == 0 {
		width = 1
	}

	return &Model{def: def, order: order, index: index, bitWidth: width, ids: make(map[string]generator.StateID)}
}

func (m *Model) encode(name string) bitstate.CompressedState {
	s := bitstate.NewCompressedState(m.bitWidth)
	return s.SetBits(0, m.bitWidth, uint64(m.index[name]))
}

func (m *Model) decode(s bitstate.CompressedState) string {
	v := s.GetBits(0, m.bitWidth)
	if int(v) >= len(m.order) {
		return ""
	}
	return m.order[v]
}

// Encode exposes the model's bit-packing for a named state, for tests and
// tooling that need to look a state up in the dedup map without going
// through Expand/InitialStates first.
func (m *Model) Encode(name string) bitstate.CompressedState {
	return m.encode(name)
}

// resolve wraps cb so that every name this model ever encodes gets its real
// dedup-assigned StateID cached under its name, for Label to use later.
func (m *Model) resolve(cb generator.StateIDCallback, name string) generator.StateID {
	id := cb(m.encode(name))
	m.ids[name] = id
	return id
}

func (m *Model) InitialStates(cb generator.StateIDCallback) []generator.StateID {
	return []generator.StateID{m.resolve(cb, m.def.Initial)}
}

func (m *Model) Load(state bitstate.CompressedState) {
	m.current = m.decode(state)
}

func (m *Model) Expand(cb generator.StateIDCallback) generator.Behavior {
	edges := m.def.Edges[m.current]
	if len(edges) == 0 {
		return generator.Behavior{WasExpanded: true}
	}
	rates := make([]generator.RateEdge, 0, len(edges))
	for _, e := range edges {
		rates = append(rates, generator.RateEdge{Dst: m.resolve(cb, e.To), Rate: e.Rate})
	}
	return generator.Behavior{
		WasExpanded: true,
		Choices:     []generator.Choice{{Markovian: true, Transitions: rates}},
	}
}

func (m *Model) VariableInfo() generator.VariableInfo {
	return generator.VariableInfo{
		Locations: []generator.VarLayout{{Name: "state", Offset: 0, Width: m.bitWidth}},
	}
}

// EvaluateAsBool treats expr as a label name by convention (see
// internal/solver's satisfies helper for the same convention).
func (m *Model) EvaluateAsBool(expr property.Predicate, s bitstate.CompressedState) bool {
	atom, ok := expr.(property.AtomicPredicate)
	if !ok {
		return false
	}
	name, _ := atom.Expr.(string)
	if name == "true" {
		return true
	}
	for _, l := range m.def.Labels[m.decode(s)] {
		if l == name {
			return true
		}
	}
	return false
}

func (m *Model) Label(initialIDs, deadlockIDs []generator.StateID, extra map[generator.StateID][]string) generator.Labeling {
	out := make(generator.Labeling)
	for name, labels := range m.def.Labels {
		id, ok := m.ids[name]
		if !ok {
			continue
		}
		out[id] = append(out[id], labels...)
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
