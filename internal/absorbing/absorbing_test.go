package absorbing

import (
	"testing"

	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/bookkeeper"
	"github.com/rfielding/stamina-go/internal/transition"
)

func TestSetupAssignsIDZero(t *testing.T) {
	ids := bitstate.NewStateIDMap(8)
	ix := bookkeeper.NewIndex()
	stage := transition.NewStage()

	total, err := Setup(ids, ix, stage, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total bit width 5, got %d", total)
	}

	ps := ix.Get(bitstate.AbsorbingID)
	if ps == nil {
		t.Fatal("expected absorbing state to be committed")
	}
	if !ps.Deadlock {
		t.Fatal("expected absorbing state to be marked deadlock")
	}

	edges := stage.Edges(bitstate.AbsorbingID)
	if len(edges) != 1 || edges[0].Dst != bitstate.AbsorbingID || edges[0].Rate != 1.0 {
		t.Fatalf("expected single self-loop rate 1, got %v", edges)
	}
}

func TestSetupFailsIfNotIDZero(t *testing.T) {
	ids := bitstate.NewStateIDMap(8)
	// Pre-occupy id 0 with some other state so the absorbing insert can't
	// land there.
	occupied := bitstate.NewCompressedState(5).SetBits(0, 4, 3)
	ids.FindOrInsert(occupied, 0)

	ix := bookkeeper.NewIndex()
	stage := transition.NewStage()

	_, err := Setup(ids, ix, stage, 4)
	if err == nil {
		t.Fatal("expected an error when id 0 is already taken")
	}
}

func TestIsAbsorbing(t *testing.T) {
	s := bitstate.NewCompressedState(5).SetBits(4, 1, 1)
	if !IsAbsorbing(s, 4) {
		t.Fatal("expected IsAbsorbing to detect the set bit")
	}
	notAbsorbing := bitstate.NewCompressedState(5)
	if IsAbsorbing(notAbsorbing, 4) {
		t.Fatal("expected IsAbsorbing to be false when bit unset")
	}
}
