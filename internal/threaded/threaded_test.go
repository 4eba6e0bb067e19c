package threaded

import (
	"context"
	"testing"

	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/models/twostate"
)

func twoStateDef() twostate.Def {
	return twostate.Def{
		Initial: "A",
		Edges: map[string][]twostate.Edge{
			"A": {{To: "B", Rate: 1}},
			"B": {{To: "B", Rate: 1}},
		},
		Labels: map[string][]string{"B": {"b_label"}},
	}
}

func TestSingleWorkerMatchesSequentialExploration(t *testing.T) {
	def := twoStateDef()
	bitWidth := twostate.New(def).VariableInfo().Locations[0].Width

	coord, err := New(func(string) generator.Generator { return twostate.New(def) }, 1, bitWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m, err := coord.Run(context.Background(), Config{Kappa: 0, CTMC: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.NumStates() == 0 {
		t.Fatal("expected a non-empty matrix")
	}
}

func TestMultipleWorkersConverge(t *testing.T) {
	def := twoStateDef()
	bitWidth := twostate.New(def).VariableInfo().Locations[0].Width

	coord, err := New(func(string) generator.Generator { return twostate.New(def) }, 4, bitWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m, err := coord.Run(context.Background(), Config{Kappa: 0, CTMC: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.NumStates() == 0 {
		t.Fatal("expected a non-empty matrix with 4 workers")
	}
}

func TestOwnerOfIsDeterministic(t *testing.T) {
	def := twoStateDef()
	bitWidth := twostate.New(def).VariableInfo().Locations[0].Width
	model := twostate.New(def)

	coord, err := New(func(string) generator.Generator { return twostate.New(def) }, 3, bitWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state := model.Encode("A")
	first := coord.ownerOf(state)
	for i := 0; i < 10; i++ {
		if got := coord.ownerOf(state); got != first {
			t.Fatalf("ownerOf is not deterministic: got %q and %q for the same state", first, got)
		}
	}
}
