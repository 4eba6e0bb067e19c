// Package refine implements the refinement controller of spec.md §4.6: it
// drives the explorer through repeated passes with geometric kappa
// reduction until the probability window closes or max_refine is reached.
// It is grounded on the teacher's model_checker.go top-level Check
// dispatch, which runs a fixed-point CTL algorithm to convergence the same
// way this controller runs probability bounds to convergence.
package refine

import (
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"

	"github.com/rfielding/stamina-go/internal/absorbing"
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/bookkeeper"
	"github.com/rfielding/stamina-go/internal/errs"
	"github.com/rfielding/stamina-go/internal/explorer"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/metrics"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/solver"
	"github.com/rfielding/stamina-go/internal/transition"
)

// Config is the tuning surface of spec.md §4.6. cmd/stamina fills the kappa,
// window, refinement-count, no-prop-refine and property fields from
// internal/config's flags; CTMC and OvershootTolerance have no flag.
type Config struct {
	KappaInitial         float64
	KappaReductionFactor float64
	Window               float64
	MaxRefine            int
	CTMC                 bool
	NoPropRefine         bool
	OvershootTolerance   float64
	// Formula is optional: if nil, the controller runs MaxRefine explorer
	// passes with kappa reduction between them and reports no probability
	// bounds (Converged stays false).
	Formula *property.Until
}

// PassRecord captures one pass's measurements, for callers that want a
// trace of the refinement's convergence (e.g. a --quiet=false CLI).
type PassRecord struct {
	Pass     int
	Kappa    float64
	PMin     float64
	PMax     float64
	Window   float64
	Explorer explorer.PassStats
}

// Result is the outcome of Run.
type Result struct {
	PMin         float64
	PMax         float64
	Passes       []PassRecord
	Converged    bool
	ApproxFactor float64
	Committed    *roaring.Bitmap
}

// Controller owns the shared explorer/bookkeeping state across passes and
// drives it according to Config.
type Controller struct {
	gen     generator.Generator
	ids     *bitstate.StateIDMap
	index   *bookkeeper.Index
	builder *transition.Builder
	ex      *explorer.Explorer
	solve   solver.Transient
	logger  *zap.SugaredLogger
	metrics *metrics.Collector

	phiMin, phiMax *property.Until
}

// SetMetrics attaches a Collector that Run updates after every pass. Passing
// nil (the default) disables metrics reporting entirely.
func (c *Controller) SetMetrics(m *metrics.Collector) { c.metrics = m }

// New wires a fresh Controller over a Generator. It runs absorbing.Setup
// once, up front, matching spec.md §4.3's "exactly once, before the first
// exploration pass."
func New(gen generator.Generator, solve solver.Transient, logger *zap.SugaredLogger, cfg Config) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ids := bitstate.NewStateIDMap(1024)
	index := bookkeeper.NewIndex()
	stage := transition.NewStage()
	builder := transition.NewBuilder()

	modelWidth := 0
	for _, group := range [][]generator.VarLayout{gen.VariableInfo().Bools, gen.VariableInfo().Ints, gen.VariableInfo().Locations} {
		for _, v := range group {
			if v.Offset+v.Width > modelWidth {
				modelWidth = v.Offset + v.Width
			}
		}
	}

	if _, err := absorbing.Setup(ids, index, stage, modelWidth); err != nil {
		return nil, err
	}

	ex := explorer.New(gen, ids, index, stage, builder, modelWidth, logger)

	c := &Controller{
		gen:     gen,
		ids:     ids,
		index:   index,
		builder: builder,
		ex:      ex,
		solve:   solve,
		logger:  logger,
	}

	if cfg.Formula != nil {
		phiMin, phiMax, err := property.Rewrite(*cfg.Formula)
		if err != nil {
			return nil, err
		}
		c.phiMin, c.phiMax = &phiMin, &phiMax
	}

	return c, nil
}

// Run drives the refinement loop to convergence or MaxRefine, whichever
// comes first, and returns the accumulated trace plus final bounds.
func (c *Controller) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.MaxRefine <= 0 {
		return nil, errs.New(errs.InvalidInput, "max_refine must be positive")
	}
	if cfg.KappaReductionFactor <= 1 {
		return nil, errs.New(errs.InvalidInput, "kappa reduction factor must be > 1")
	}

	result := &Result{ApproxFactor: 1.0}
	kappaLocal := cfg.KappaInitial
	var prevCommitted *roaring.Bitmap

	for pass := 0; pass < cfg.MaxRefine; pass++ {
		select {
		case <-ctx.Done():
			return result, errs.Wrap(errs.Aborted, "refinement cancelled", ctx.Err())
		default:
		}

		stats, err := c.ex.RunPass(explorer.Config{
			Kappa:                          kappaLocal,
			CTMC:                           cfg.CTMC,
			Formula:                        cfg.Formula,
			NoPropRefine:                   cfg.NoPropRefine,
			ReachabilityOvershootTolerance: cfg.OvershootTolerance,
		})
		if err != nil {
			return result, err
		}

		committed := CommittedSet(c.ids)
		if prevCommitted != nil && !IsSupersetOf(committed, prevCommitted) {
			c.logger.Warnw("committed state set shrank across passes, expected monotone growth", "pass", pass)
		}
		prevCommitted = committed
		result.Committed = committed

		if c.metrics != nil {
			c.metrics.SetCommittedStates(int(committed.GetCardinality()))
			c.metrics.SetKappa(kappaLocal)
			c.metrics.ObservePass(stats.StatesExpanded, stats.TerminalAtWiring)
		}

		record := PassRecord{Pass: pass, Kappa: kappaLocal, Explorer: stats}

		if cfg.Formula != nil {
			pmin, pmax, err := c.solveBounds(ctx)
			if err != nil {
				return result, err
			}
			record.PMin, record.PMax = pmin, pmax
			record.Window = pmax - pmin
			result.PMin, result.PMax = pmin, pmax
			if c.metrics != nil {
				c.metrics.SetWindow(record.Window)
			}

			result.Passes = append(result.Passes, record)

			if record.Window <= cfg.Window {
				result.Converged = true
				return result, nil
			}

			result.ApproxFactor *= clamp(record.Window*4/cfg.Window, 0, 1)
		} else {
			result.Passes = append(result.Passes, record)
		}

		kappaLocal /= cfg.KappaReductionFactor
	}

	return result, nil
}

func (c *Controller) solveBounds(ctx context.Context) (pmin, pmax float64, err error) {
	m := c.builder.Build()
	extra := map[generator.StateID][]string{bitstate.AbsorbingID: {absorbing.Label}}
	labeling := c.gen.Label(c.index.InitialIDs(), c.index.DeadlockIDs(), extra)

	initialIDs := c.index.InitialIDs()
	if len(initialIDs) == 0 {
		return 0, 0, errs.New(errs.Inconsistent, "no initial state recorded before solving")
	}
	initial := initialIDs[0]

	minResult, err := c.solve.Solve(ctx, m, labeling, *c.phiMin)
	if err != nil {
		return 0, 0, err
	}
	maxResult, err := c.solve.Solve(ctx, m, labeling, *c.phiMax)
	if err != nil {
		return 0, 0, err
	}

	pmin = valueAt(minResult, initial)
	pmax = valueAt(maxResult, initial)
	return pmin, pmax, nil
}

func valueAt(v []float64, id bitstate.StateID) float64 {
	if int(id) >= len(v) {
		return 0
	}
	return v[id]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
