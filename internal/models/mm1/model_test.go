package mm1

import (
	"testing"

	"github.com/rfielding/stamina-go/internal/absorbing"
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/bookkeeper"
	"github.com/rfielding/stamina-go/internal/explorer"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/transition"
)

func newHarness(t *testing.T, m *Model) (*explorer.Explorer, *bitstate.StateIDMap, *transition.Builder) {
	t.Helper()
	ids := bitstate.NewStateIDMap(64)
	index := bookkeeper.NewIndex()
	stage := transition.NewStage()
	builder := transition.NewBuilder()

	modelWidth := m.VariableInfo().Ints[0].Width
	if _, err := absorbing.Setup(ids, index, stage, modelWidth); err != nil {
		t.Fatalf("absorbing.Setup: %v", err)
	}
	return explorer.New(m, ids, index, stage, builder, modelWidth, nil), ids, builder
}

// TestUnstableQueueTruncatesUnderKappa is the infinite-state showcase
// spec.md §8 calls for: lambda > mu means the queue length has no
// stationary bound, so a positive kappa must eventually stop discovery
// even though the model itself has no boundary to hit.
func TestUnstableQueueTruncatesUnderKappa(t *testing.T) {
	m := New(0.9, 0.1)
	ex, ids, builder := newHarness(t, m)

	stats, err := ex.RunPass(explorer.Config{Kappa: 1e-6, CTMC: true})
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if stats.StatesDiscovered == 0 {
		t.Fatal("expected at least one state to be discovered")
	}
	if ids.Len() >= 1<<20 {
		t.Fatalf("exploration did not truncate: %d states discovered", ids.Len())
	}
	mat := builder.Build()
	if mat == nil {
		t.Fatal("expected a non-nil built matrix")
	}
}

// TestStableQueueEmptyLabel checks that the n==0 state is the one and only
// state labeled "empty", regardless of how many states get discovered.
func TestStableQueueEmptyLabel(t *testing.T) {
	m := New(0.2, 0.8)
	ex, _, builder := newHarness(t, m)

	if _, err := ex.RunPass(explorer.Config{Kappa: 1e-9, CTMC: true}); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	_ = builder.Build()

	labeling := m.Label(nil, nil, nil)
	emptyCount := 0
	for _, labels := range labeling {
		for _, l := range labels {
			if l == "empty" {
				emptyCount++
			}
		}
	}
	if emptyCount != 1 {
		t.Fatalf("expected exactly one state labeled empty, got %d", emptyCount)
	}
}

// TestEvaluateAsBoolUnknownPredicateIsFalse guards against a fixture
// escalating a test-authoring mistake (a property built for some other
// model) into a panic.
func TestEvaluateAsBoolUnknownPredicateIsFalse(t *testing.T) {
	m := New(1, 1)
	if m.EvaluateAsBool(property.Atom("not-a-real-label"), m.encode(0)) {
		t.Fatal("expected an unrecognized atom to evaluate false")
	}
	if !m.EvaluateAsBool(property.Atom("true"), m.encode(5)) {
		t.Fatal("expected the \"true\" atom to always evaluate true")
	}
}

func TestPanicsOnNonPositiveRates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected New to panic on a non-positive rate")
		}
	}()
	New(0, 1)
}
