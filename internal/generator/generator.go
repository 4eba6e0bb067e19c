// Package generator declares the external Generator contract (spec.md §6):
// the model-description parser and next-state expansion oracle are out of
// scope for this engine, but the explorer depends on their shape. Anything
// implementing Generator can be dropped in, including the fixture models
// under internal/models for tests.
package generator

import (
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/property"
)

// StateID is a local alias so generator implementations don't need to
// import bitstate directly for the common case.
type StateID = bitstate.StateID

// StateIDCallback is invoked by Generator.Expand/InitialStates for every
// destination state it discovers while expanding the currently loaded
// state. The explorer supplies one of two variants (spec.md §4.4):
// an "exploring" callback that allocates ids and enqueues new frontier
// states, or a "terminal" callback used during perimeter wiring that never
// creates new states and maps unknown successors to the absorbing id.
type StateIDCallback func(dst bitstate.CompressedState) StateID

// Choice is one enabled command's outcome: a distribution over successor
// states (as rates, for CTMCs) plus any labels/rewards attached to it.
type Choice struct {
	Labels       []string
	OriginData   string
	Markovian    bool
	Transitions  []RateEdge
	ActionReward []float64
}

// RateEdge is one (destination, rate) pair within a Choice. The
// destination is already resolved to a StateID via the StateIDCallback
// passed to Expand.
type RateEdge struct {
	Dst  StateID
	Rate float64
}

// Behavior is the result of expanding the currently loaded state.
type Behavior struct {
	WasExpanded   bool
	StateRewards  []float64
	Choices       []Choice
}

// VariableInfo describes the bit-offset/bit-width layout of every model
// variable, as reported by Generator.VariableInfo (spec.md §6).
type VariableInfo struct {
	Bools     []VarLayout
	Ints      []VarLayout
	Locations []VarLayout
}

// VarLayout is the bit-packing layout of a single model variable.
type VarLayout struct {
	Name   string
	Offset int
	Width  int
}

// Labeling maps StateIDs to the atomic propositions that hold there, as
// produced by Generator.Label for the external transient solver.
type Labeling map[StateID][]string

// Generator is the external next-state expansion oracle. Implementations
// own the model-specific semantics entirely; the explorer only calls
// through this interface.
type Generator interface {
	// InitialStates reports the model's initial states, resolving each
	// through cb so that ids get allocated exactly as for any other
	// newly discovered state.
	InitialStates(cb StateIDCallback) []StateID

	// Load sets the "current" state used by the next Expand call.
	Load(state bitstate.CompressedState)

	// Expand returns the Behavior of the currently loaded state,
	// resolving every successor through cb.
	Expand(cb StateIDCallback) Behavior

	// VariableInfo reports the bit-packing layout of every model
	// variable (not including the reserved Absorbing bit, which
	// internal/absorbing owns).
	VariableInfo() VariableInfo

	// EvaluateAsBool evaluates an atomic state predicate against a
	// state, for the property short-circuit rule (spec.md §4.4.b). It
	// is only ever called with property.AtomicPredicate values; the
	// composite predicates introduced by property.Rewrite are resolved
	// by the external transient solver against the Labeling, not here.
	EvaluateAsBool(expr property.Predicate, current bitstate.CompressedState) bool

	// Label produces the full state labeling handed to the external
	// transient solver, including the given extra per-state labels
	// (which always includes the absorbing label for id 0).
	Label(initialIDs, deadlockIDs []StateID, extra map[StateID][]string) Labeling
}
