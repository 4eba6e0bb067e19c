// Package explorer implements the central frontier loop of spec.md §4.4:
// dequeue a frontier state, ask the external Generator to expand it, apply
// the kappa-truncation and property-short-circuit rules, insert
// next-states and transitions, and update pi. It is adapted from the
// teacher's kripke/engine.go World.StepRandom/RunSteps loop, generalized
// from "take one random enabled step" to "drain the whole frontier,
// deterministically, under a truncation budget."
package explorer

import (
	"go.uber.org/zap"

	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/bookkeeper"
	"github.com/rfielding/stamina-go/internal/errs"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/transition"
)

// Config carries the per-pass tuning knobs the explorer needs. It is
// supplied fresh to every RunPass call by the refinement controller, which
// owns kappa's geometric reduction across passes (spec.md §4.6).
type Config struct {
	Kappa                          float64
	CTMC                           bool
	Formula                        *property.Until
	NoPropRefine                   bool
	ReachabilityOvershootTolerance float64
}

func (c Config) tolerance() float64 {
	if c.ReachabilityOvershootTolerance > 0 {
		return c.ReachabilityOvershootTolerance
	}
	return 1e-9
}

// PassStats summarizes one RunPass call, recorded by the refinement
// controller in its pass trace and metrics, and used by tests.
type PassStats struct {
	StatesDiscovered int
	StatesExpanded   int
	TerminalAtWiring int
}

type item struct {
	ps    *bookkeeper.ProbabilityState
	state bitstate.CompressedState
}

// Explorer is the single-threaded iterative variant of spec.md §4.4.
type Explorer struct {
	gen           generator.Generator
	ids           *bitstate.StateIDMap
	index         *bookkeeper.Index
	stage         *transition.Stage
	builder       *transition.Builder
	modelBitWidth int
	logger        *zap.SugaredLogger

	pass      uint8
	frontier  []*item
	carryOver []*item

	cfg   Config
	stats *PassStats
}

// New constructs an Explorer over the given shared components. The caller
// owns ids/index/stage/builder and is expected to have already run
// absorbing.Setup on them before the first pass.
func New(gen generator.Generator, ids *bitstate.StateIDMap, index *bookkeeper.Index, stage *transition.Stage, builder *transition.Builder, modelBitWidth int, logger *zap.SugaredLogger) *Explorer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Explorer{
		gen:           gen,
		ids:           ids,
		index:         index,
		stage:         stage,
		builder:       builder,
		modelBitWidth: modelBitWidth,
		logger:        logger,
	}
}

// RunPass drains the frontier once under cfg and returns statistics about
// the pass. It implements spec.md §4.4's main loop plus §4.5's perimeter
// wiring and end-of-pass flush.
func (e *Explorer) RunPass(cfg Config) (PassStats, error) {
	e.cfg = cfg
	stats := &PassStats{}
	e.stats = stats

	if e.pass == 0 {
		if err := e.initPass0(); err != nil {
			return *stats, err
		}
	} else {
		e.frontier = append(e.frontier, e.carryOver...)
		e.carryOver = nil
	}

	for len(e.frontier) > 0 {
		it := e.frontier[0]
		e.frontier = e.frontier[1:]
		if err := e.processItem(it); err != nil {
			return *stats, err
		}
	}

	stats.TerminalAtWiring = len(e.carryOver)
	e.perimeterWiring()
	e.stage.Flush(e.builder)
	e.pass++

	return *stats, nil
}

func (e *Explorer) initPass0() error {
	ids := e.gen.InitialStates(e.exploringCallback)
	if len(ids) == 0 {
		return errs.New(errs.TruncationArtifact, "generator reported no initial states")
	}
	for _, id := range ids {
		ps := e.index.Get(id)
		if ps == nil {
			return errs.New(errs.Inconsistent, "initial state callback did not register a ProbabilityState")
		}
		ps.Pi = 1
		e.index.MarkInitial(id)
	}
	return nil
}

func (e *Explorer) processItem(it *item) error {
	ps := it.ps
	state := it.state
	id := ps.ID

	if e.cfg.Formula != nil && !e.cfg.NoPropRefine {
		left := e.gen.EvaluateAsBool(e.cfg.Formula.Left, state)
		right := e.gen.EvaluateAsBool(e.cfg.Formula.Right, state)
		if !left || right {
			if !e.stage.Has(id) {
				e.stage.Add(id, id, 1.0)
			}
			ps.Terminal = true
			ps.PreTerminated = true
			return nil
		}
	}

	if ps.Terminal && ps.Pi < e.cfg.Kappa {
		ps.WasPutInTerminalQueue = true
		e.carryOver = append(e.carryOver, it)
		return nil
	}

	ps.WasPutInTerminalQueue = false
	if ps.WasPerimeterWired {
		e.builder.ClearRow(id)
		ps.WasPerimeterWired = false
	}
	e.gen.Load(state)
	behavior := e.gen.Expand(e.exploringCallback)

	if len(behavior.Choices) == 0 {
		if !ps.Deadlock {
			ps.Deadlock = true
			e.index.MarkDeadlock(id)
		}
		if !e.stage.Has(id) {
			e.stage.Add(id, id, 1.0)
		}
		ps.Terminal = false
		ps.IsNew = false
		ps.Pi = 0
		return nil
	}
	if len(behavior.Choices) != 1 {
		return errs.New(errs.Inconsistent, "generator returned nondeterministic behavior for a deterministic model")
	}

	choice := behavior.Choices[0]
	var sum float64
	for _, edge := range choice.Transitions {
		sum += edge.Rate
	}
	if sum == 0 {
		e.logger.Warnw("skipping choice with zero-sum rates", "state", id)
	} else {
		for _, edge := range choice.Transitions {
			if ps.IsNew {
				e.stage.Add(id, edge.Dst, edge.Rate)
			}
			if ps.Pi > 0 {
				e.propagate(ps, edge, sum)
			}
		}
		e.stats.StatesExpanded++
	}

	ps.Terminal = false
	ps.IsNew = false
	ps.Pi = 0
	return nil
}

func (e *Explorer) propagate(ps *bookkeeper.ProbabilityState, edge generator.RateEdge, sum float64) {
	var delta float64
	if e.cfg.CTMC {
		delta = ps.Pi * edge.Rate / sum
	} else {
		delta = ps.Pi * edge.Rate
	}
	dst := e.index.Get(edge.Dst)
	if dst == nil {
		return
	}
	dst.Pi += delta
	tol := e.cfg.tolerance()
	if dst.Pi > 1+tol {
		e.logger.Warnw("pi exceeded 1 beyond tolerance, clamping", "state", dst.ID, "pi", dst.Pi)
		dst.Pi = 1
	} else if dst.Pi > 1 {
		dst.Pi = 1
	}
}

// exploringCallback is the "Exploring callback" of spec.md §4.4: if dst is
// new, allocate a ProbabilityState, mark it terminal, and enqueue it in the
// main frontier; if dst exists and hasn't been touched this pass yet,
// enqueue and bump its generation; otherwise do nothing.
func (e *Explorer) exploringCallback(dst bitstate.CompressedState) bitstate.StateID {
	candidate := e.ids.NextCandidateID()
	id, inserted := e.ids.FindOrInsert(dst, candidate)
	if inserted {
		ps := bookkeeper.NewFrontierState(id, 0)
		ps.IterationLastSeen = e.pass
		e.index.Put(id, ps)
		e.frontier = append(e.frontier, &item{ps: ps, state: dst})
		if e.stats != nil {
			e.stats.StatesDiscovered++
		}
		return id
	}
	ps := e.index.Get(id)
	if ps != nil && ps.IterationLastSeen < e.pass {
		ps.IterationLastSeen = e.pass
		e.frontier = append(e.frontier, &item{ps: ps, state: dst})
	}
	return id
}

// terminalCallback is the "Terminal callback" of spec.md §4.4: never
// creates new states, returns the existing id or the absorbing id (0) for
// unknown successors. Used during perimeter wiring (§4.5), where the
// current state is being connected out as a perimeter state rather than
// explored.
func (e *Explorer) terminalCallback(dst bitstate.CompressedState) bitstate.StateID {
	if id, ok := e.ids.Get(dst); ok {
		return id
	}
	return bitstate.AbsorbingID
}

// perimeterWiring implements spec.md §4.5: every state still marked
// terminal and was_put_in_terminal_queue gets its successors resolved
// through the terminal callback, with unknown successors aggregated into
// one edge to the absorbing state. The state stays Terminal so the next
// pass's carry-over flush re-admits it for a fresh kappa check against the
// next, smaller threshold -- otherwise geometric kappa reduction across
// passes would never let the frontier go any deeper than the very first
// truncation point. The redirect itself is staged at most once per state
// (WasPerimeterWired), since the builder accumulates onto an existing edge
// rather than replacing it; re-staging an unchanged redirect every pass
// would double- and triple-count the same rate.
func (e *Explorer) perimeterWiring() {
	carry := e.carryOver
	e.carryOver = nil
	for _, it := range carry {
		ps := it.ps
		if !ps.Terminal || !ps.WasPutInTerminalQueue {
			continue
		}
		ps.WasPutInTerminalQueue = false

		if !ps.WasPerimeterWired {
			e.gen.Load(it.state)
			behavior := e.gen.Expand(e.terminalCallback)

			var rateToAbsorbing float64
			if len(behavior.Choices) > 0 {
				for _, edge := range behavior.Choices[0].Transitions {
					if edge.Dst != bitstate.AbsorbingID {
						e.stage.Add(ps.ID, edge.Dst, edge.Rate)
					} else {
						rateToAbsorbing += edge.Rate
					}
				}
			}
			if rateToAbsorbing > 0 {
				e.stage.Add(ps.ID, bitstate.AbsorbingID, rateToAbsorbing)
			}
			ps.WasPerimeterWired = true
		}

		e.carryOver = append(e.carryOver, it)
	}
}

// PassNumber reports the next pass index that RunPass will execute,
// useful for tests and the refinement controller's logging.
func (e *Explorer) PassNumber() uint8 { return e.pass }
