package bookkeeper

import "testing"

func TestIndexPutGetAcrossBlocks(t *testing.T) {
	ix := NewIndex()

	if ix.Get(0) != nil {
		t.Fatal("expected unknown id to read as absent")
	}

	// Exceed one block (blockSize == 4096) to exercise growth.
	ids := []StateID{0, 1, 4095, 4096, 8193}
	for _, id := range ids {
		ix.Put(id, NewFrontierState(id, 1.0))
	}

	for _, id := range ids {
		ps := ix.Get(id)
		if ps == nil {
			t.Fatalf("expected id %d to be present", id)
		}
		if ps.ID != id {
			t.Fatalf("expected id %d, got %d", id, ps.ID)
		}
	}

	if ix.Get(2) != nil {
		t.Fatal("expected unoccupied slot in an occupied block to read as absent")
	}
}

func TestPerimeterAndTerminalCounts(t *testing.T) {
	ix := NewIndex()
	a := NewFrontierState(1, 0.5)
	b := NewFrontierState(2, 0.3)
	b.Terminal = false
	ix.Put(1, a)
	ix.Put(2, b)

	if got := ix.CountTerminal(); got != 1 {
		t.Fatalf("expected 1 terminal state, got %d", got)
	}
	perimeter := ix.PerimeterStates()
	if len(perimeter) != 1 || perimeter[0].ID != 1 {
		t.Fatalf("expected perimeter to contain only state 1, got %v", perimeter)
	}
}

func TestDeadlockAndInitialBookkeeping(t *testing.T) {
	ix := NewIndex()
	ix.MarkInitial(0)
	ix.MarkInitial(3)
	ix.MarkDeadlock(3)

	if got := ix.InitialIDs(); len(got) != 2 {
		t.Fatalf("expected 2 initial ids, got %v", got)
	}
	deadlocks := ix.DeadlockIDs()
	if len(deadlocks) != 1 || deadlocks[0] != 3 {
		t.Fatalf("expected deadlock ids [3], got %v", deadlocks)
	}
}
