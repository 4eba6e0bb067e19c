package refine

import (
	"context"
	"math"
	"testing"

	"github.com/rfielding/stamina-go/internal/metrics"
	"github.com/rfielding/stamina-go/internal/models/twostate"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/solver"
)

// TestTwoStateChainConverges is spec.md scenario 1 run through the full
// refinement loop: with kappa already at 0, the very first pass should
// produce the exact closed-form bound P_min = P_max = 1 - e^-1.
func TestTwoStateChainConverges(t *testing.T) {
	model := twostate.New(twostate.Def{
		Initial: "A",
		Edges: map[string][]twostate.Edge{
			"A": {{To: "B", Rate: 1}},
			"B": {{To: "B", Rate: 1}},
		},
		Labels: map[string][]string{"B": {"b_label"}},
	})

	formula := property.Until{
		Left:  property.Atom("true"),
		Right: property.Atom("b_label"),
		Bound: property.TimeBound{Lo: 0, Hi: 1},
	}

	cfg := Config{
		KappaInitial:         0,
		KappaReductionFactor: 2,
		Window:               1e-6,
		MaxRefine:            1,
		CTMC:                 true,
		Formula:              &formula,
	}

	ctrl, err := New(model, solver.ReferenceUniformization{}, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := ctrl.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence in one pass at kappa=0, got %+v", result.Passes)
	}

	want := 1 - math.Exp(-1)
	if math.Abs(result.PMin-want) > 1e-3 || math.Abs(result.PMax-want) > 1e-3 {
		t.Fatalf("PMin=%v PMax=%v, want approximately %v", result.PMin, result.PMax, want)
	}
	if result.PMax < result.PMin {
		t.Fatalf("PMax (%v) < PMin (%v)", result.PMax, result.PMin)
	}
}

// TestRefinementClosesWindow is spec.md scenario 4: a chain diluting its own
// reachability probability by half at every step (continue vs. leak to a
// dead end) needs several passes of geometric kappa reduction before the
// probability window closes under 0.01. Unlike a single-branch chain, this
// model actually exercises re-admission: a state truncated at one kappa
// must be re-queued and, once pi clears the next, smaller kappa, expanded
// for real -- the whole point of the refinement loop.
func TestRefinementClosesWindow(t *testing.T) {
	const chainLen = 14
	edges := map[string][]twostate.Edge{}
	for i := 0; i < chainLen; i++ {
		next := state(i + 1)
		if i == chainLen-1 {
			next = "goal"
		}
		leak := "leak" + itoa(i)
		edges[state(i)] = []twostate.Edge{{To: next, Rate: 0.5}, {To: leak, Rate: 0.5}}
		edges[leak] = []twostate.Edge{{To: leak, Rate: 1}}
	}
	edges["goal"] = []twostate.Edge{{To: "goal", Rate: 1}}

	model := twostate.New(twostate.Def{
		Initial: "S0",
		Edges:   edges,
		Labels:  map[string][]string{"goal": {"goal"}},
	})

	formula := property.Until{
		Left:  property.Atom("true"),
		Right: property.Atom("goal"),
		Bound: property.UnboundedAbove(0),
	}

	cfg := Config{
		KappaInitial:         0.6,
		KappaReductionFactor: 2,
		Window:               0.01,
		MaxRefine:            12,
		CTMC:                 true,
		Formula:              &formula,
	}

	ctrl, err := New(model, solver.ReferenceUniformization{}, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := ctrl.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence within %d passes, got %+v", cfg.MaxRefine, result.Passes)
	}
	if len(result.Passes) < 2 {
		t.Fatalf("expected refinement to take more than one pass from a loose initial kappa, took %d", len(result.Passes))
	}

	for i := 1; i < len(result.Passes); i++ {
		if result.Passes[i].PMax > result.Passes[i-1].PMax+1e-9 {
			t.Fatalf("pass %d: PMax grew from %v to %v", i, result.Passes[i-1].PMax, result.Passes[i].PMax)
		}
		if result.Passes[i].PMin < result.Passes[i-1].PMin-1e-9 {
			t.Fatalf("pass %d: PMin shrank from %v to %v", i, result.Passes[i-1].PMin, result.Passes[i].PMin)
		}
	}
}

// TestControllerReportsMetrics exercises the SetMetrics wiring: after a run,
// the attached collector must reflect the pass count, the final pass's
// window, and the committed-state count.
func TestControllerReportsMetrics(t *testing.T) {
	model := twostate.New(twostate.Def{
		Initial: "A",
		Edges: map[string][]twostate.Edge{
			"A": {{To: "B", Rate: 1}},
			"B": {{To: "B", Rate: 1}},
		},
		Labels: map[string][]string{"B": {"b_label"}},
	})

	formula := property.Until{
		Left:  property.Atom("true"),
		Right: property.Atom("b_label"),
		Bound: property.TimeBound{Lo: 0, Hi: 1},
	}

	cfg := Config{
		KappaInitial:         0,
		KappaReductionFactor: 2,
		Window:               1e-6,
		MaxRefine:            1,
		CTMC:                 true,
		Formula:              &formula,
	}

	ctrl, err := New(model, solver.ReferenceUniformization{}, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mc := metrics.New()
	ctrl.SetMetrics(mc)

	if _, err := ctrl.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	families, err := mc.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := make(map[string]float64, len(families))
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[fam.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[fam.GetName()] = m.GetCounter().GetValue()
			}
		}
	}

	if got := values["stamina_passes_total"]; got != 1 {
		t.Fatalf("stamina_passes_total = %v, want 1", got)
	}
	if got := values["stamina_committed_states"]; got != 3 {
		t.Fatalf("stamina_committed_states = %v, want 3 (absorbing, A, B)", got)
	}
	if got := values["stamina_probability_window"]; got < 0 {
		t.Fatalf("stamina_probability_window = %v, want >= 0", got)
	}
}

func state(i int) string {
	return "S" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
