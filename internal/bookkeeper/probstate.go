// Package bookkeeper implements the reachability bookkeeper from spec.md
// §3-4.2: a per-state ProbabilityState record, owned exclusively by a
// blockwise Index and keyed by bitstate.StateID everywhere else, matching
// §9's "arena + 32-bit indices" rewrite of the source's raw/shared pointer
// graph.
package bookkeeper

import "github.com/rfielding/stamina-go/internal/bitstate"

// ProbabilityState is the per-state record of spec.md §3. Field names
// follow Go camelCase but are exported because other packages (explorer,
// refine, threaded) need direct field access on the hot path; this package
// is the sole owner of the backing memory, so there is no aliasing hazard
// in giving out field access the way there would be for a shared pointer.
type ProbabilityState struct {
	ID StateID

	// Pi is the current estimate of cumulative path probability from the
	// initial states. It is only a pruning heuristic (spec.md §4.4): the
	// only formal guarantee is on the transient solution of the matrix
	// this estimate helped build.
	Pi float64

	// Terminal is true iff this state's successors have not yet been
	// committed to the transition matrix under the current kappa regime.
	Terminal bool

	// IterationLastSeen is the build-pass generation counter used to
	// decide, without a separate visited set, whether to enqueue a
	// successor during the current pass.
	IterationLastSeen uint8

	// WasPutInTerminalQueue distinguishes "queued as frontier" states
	// from "queued for exploration" states during perimeter wiring.
	WasPutInTerminalQueue bool

	// PreTerminated is true for states truncated by the property
	// short-circuit rule (absorbed without ever being expanded).
	PreTerminated bool

	// Deadlock is true iff the generator returned empty behavior for
	// this state; it is wired as a self-loop.
	Deadlock bool

	// IsNew is true until this state's transitions have been flushed
	// into the matrix for the first time.
	IsNew bool

	// WasPerimeterWired is true once a provisional absorbing redirect has
	// been staged for this state during perimeter wiring. A state stays
	// Terminal and gets re-admitted every pass for a fresh kappa check,
	// but its redirect is only staged once: re-staging it on a later pass
	// where it is still truncated would double-count the same rate, since
	// the builder accumulates onto an existing (src, dst) edge rather than
	// replacing it.
	WasPerimeterWired bool
}

// StateID is a local alias so callers that only need bookkeeper types don't
// have to import bitstate directly for the common case.
type StateID = bitstate.StateID

// NewFrontierState constructs the ProbabilityState for a newly discovered
// state: terminal, new, carrying the given probability mass.
func NewFrontierState(id StateID, pi float64) *ProbabilityState {
	return &ProbabilityState{
		ID:       id,
		Pi:       pi,
		Terminal: true,
		IsNew:    true,
	}
}
