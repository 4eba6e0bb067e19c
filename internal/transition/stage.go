// Package transition implements the per-source pending-edge stage and the
// sparse matrix it is flushed into, per spec.md §3's TransitionStage and
// §4's "stage then flush" standardization of the source's two coexisting
// transition paths (see SPEC_FULL.md §9 open questions).
package transition

import "github.com/rfielding/stamina-go/internal/bitstate"

// StateID is a local alias so callers don't need to import bitstate
// directly for the common case.
type StateID = bitstate.StateID

// Triple is one pending (src, dst, rate) edge.
type Triple struct {
	Dst  StateID
	Rate float64
}

// Stage is a per-source bucket of pending transitions, flushed to a
// Builder after each build pass. A deadlocked source is represented by the
// self-loop its caller stages for it; Flush adds nothing for an empty or
// absent bucket.
type Stage struct {
	bySource map[StateID][]Triple
}

// NewStage constructs an empty stage.
func NewStage() *Stage {
	return &Stage{bySource: make(map[StateID][]Triple)}
}

// Add stages one edge from src to dst with the given rate.
func (s *Stage) Add(src, dst StateID, rate float64) {
	s.bySource[src] = append(s.bySource[src], Triple{Dst: dst, Rate: rate})
}

// Has reports whether src already has at least one staged edge.
func (s *Stage) Has(src StateID) bool {
	edges, ok := s.bySource[src]
	return ok && len(edges) > 0
}

// Edges returns the staged edges for src, or nil if none are staged.
func (s *Stage) Edges(src StateID) []Triple {
	return s.bySource[src]
}

// Sources returns every source id with at least one staged edge.
func (s *Stage) Sources() []StateID {
	out := make([]StateID, 0, len(s.bySource))
	for src := range s.bySource {
		out = append(out, src)
	}
	return out
}

// Flush moves every staged edge into b and empties the stage. Callers that
// also need the matrix-builder-level deadlock handling (an empty bucket is
// NOT implied for states that never staged into this Stage at all - that is
// the explorer's responsibility per spec.md §4.4.e) should add the self-loop
// before calling Flush.
func (s *Stage) Flush(b *Builder) {
	for src, edges := range s.bySource {
		for _, e := range edges {
			b.AddEdge(src, e.Dst, e.Rate)
		}
	}
	s.bySource = make(map[StateID][]Triple)
}
