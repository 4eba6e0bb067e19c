package transition

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestStageFlushIntoBuilder(t *testing.T) {
	stage := NewStage()
	stage.Add(1, 2, 5.0)
	stage.Add(1, 3, 0.5)
	stage.Add(2, 2, 1.0)

	b := NewBuilder()
	stage.Flush(b)

	if stage.Has(1) {
		t.Fatal("expected Flush to empty the stage")
	}

	m := b.Build()
	got := m.Row(1)
	want := []Triple{{Dst: 2, Rate: 5.0}, {Dst: 3, Rate: 0.5}}
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b Triple) bool { return a.Dst < b.Dst })); diff != "" {
		t.Fatalf("row(1) mismatch (-want +got):\n%s", diff)
	}

	if sum := m.OutgoingRateSum(1); sum != 5.5 {
		t.Fatalf("expected outgoing rate sum 5.5, got %v", sum)
	}
}

func TestBuilderAccumulatesRepeatedEdges(t *testing.T) {
	b := NewBuilder()
	b.AddEdge(1, 0, 0.1)
	b.AddEdge(1, 0, 0.2)

	m := b.Build()
	row := m.Row(1)
	if len(row) != 1 || math.Abs(row[0].Rate-0.3) > 1e-12 {
		t.Fatalf("expected a single accumulated edge with rate 0.3, got %v", row)
	}
}

func TestAbsorbingSelfLoop(t *testing.T) {
	b := NewBuilder()
	b.AddEdge(0, 0, 1.0)
	m := b.Build()
	row := m.Row(0)
	if len(row) != 1 || row[0].Dst != 0 || row[0].Rate != 1.0 {
		t.Fatalf("expected absorbing state to have exactly one self-loop of rate 1, got %v", row)
	}
}
