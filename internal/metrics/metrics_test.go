package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorReportsObservations(t *testing.T) {
	c := New()
	c.SetCommittedStates(42)
	c.SetFrontierSize(7)
	c.SetKappa(0.01)
	c.SetWindow(0.003)
	c.ObservePass(10, 3)
	c.ObservePass(5, 1)

	if got := testutil.ToFloat64(c.committedStates); got != 42 {
		t.Fatalf("committedStates = %v, want 42", got)
	}
	if got := testutil.ToFloat64(c.frontierSize); got != 7 {
		t.Fatalf("frontierSize = %v, want 7", got)
	}
	if got := testutil.ToFloat64(c.kappa); got != 0.01 {
		t.Fatalf("kappa = %v, want 0.01", got)
	}
	if got := testutil.ToFloat64(c.window); got != 0.003 {
		t.Fatalf("window = %v, want 0.003", got)
	}
	if got := testutil.ToFloat64(c.passesRun); got != 2 {
		t.Fatalf("passesRun = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.statesExpanded); got != 15 {
		t.Fatalf("statesExpanded = %v, want 15", got)
	}
	if got := testutil.ToFloat64(c.statesPruned); got != 4 {
		t.Fatalf("statesPruned = %v, want 4", got)
	}
}

func TestNewRegistersAllInstruments(t *testing.T) {
	c := New()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 7 {
		t.Fatalf("got %d metric families, want 7", len(families))
	}
}
