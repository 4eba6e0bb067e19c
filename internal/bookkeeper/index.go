package bookkeeper

import (
	mapset "github.com/deckarep/golang-set/v2"
)

const blockSize = 4096

// Index is the StateIndexArray of spec.md §4.2: a two-level array of
// *ProbabilityState indexed by StateID, growing in fixed power-of-two-sized
// blocks. Absence of a block, or a nil slot within one, means the state is
// currently unknown; no implicit zero-fill is assumed between blocks.
//
// Index is the sole owner of every ProbabilityState it hands out: all other
// packages hold only the StateID and look records up through here, per
// §3's ownership rule and §9's block-pool-arena rewrite note.
type Index struct {
	blocks [][]*ProbabilityState

	// deadlockIDs and initialIDs are tracked here because they are
	// discovered incrementally alongside ProbabilityState allocation and
	// are needed, unmodified, by the generator's Label call (§6).
	deadlockIDs mapset.Set[StateID]
	initialIDs  []StateID
}

// NewIndex constructs an empty bookkeeper.
func NewIndex() *Index {
	return &Index{
		deadlockIDs: mapset.NewThreadUnsafeSet[StateID](),
	}
}

func (ix *Index) ensureBlock(blockIdx int) {
	for len(ix.blocks) <= blockIdx {
		ix.blocks = append(ix.blocks, nil)
	}
	if ix.blocks[blockIdx] == nil {
		ix.blocks[blockIdx] = make([]*ProbabilityState, blockSize)
	}
}

// Get returns the record for id, or nil if id is currently unknown.
func (ix *Index) Get(id StateID) *ProbabilityState {
	blockIdx := int(id) / blockSize
	if blockIdx >= len(ix.blocks) || ix.blocks[blockIdx] == nil {
		return nil
	}
	return ix.blocks[blockIdx][int(id)%blockSize]
}

// Put installs ps at id, growing blocks lazily as needed.
func (ix *Index) Put(id StateID, ps *ProbabilityState) {
	blockIdx := int(id) / blockSize
	ix.ensureBlock(blockIdx)
	ix.blocks[blockIdx][int(id)%blockSize] = ps
}

// MarkInitial records id as an initial state.
func (ix *Index) MarkInitial(id StateID) {
	ix.initialIDs = append(ix.initialIDs, id)
}

// InitialIDs returns the recorded initial-state ids.
func (ix *Index) InitialIDs() []StateID {
	out := make([]StateID, len(ix.initialIDs))
	copy(out, ix.initialIDs)
	return out
}

// MarkDeadlock records id as a deadlock state (generator returned empty
// behavior for it).
func (ix *Index) MarkDeadlock(id StateID) {
	ix.deadlockIDs.Add(id)
}

// DeadlockIDs returns the recorded deadlock-state ids.
func (ix *Index) DeadlockIDs() []StateID {
	return ix.deadlockIDs.ToSlice()
}

// PerimeterStates returns every currently-known state whose Terminal flag
// is set: the frontier as of the call, per spec.md §4.2.
func (ix *Index) PerimeterStates() []*ProbabilityState {
	var out []*ProbabilityState
	ix.forEach(func(ps *ProbabilityState) {
		if ps.Terminal {
			out = append(out, ps)
		}
	})
	return out
}

// CountTerminal counts currently-known terminal states.
func (ix *Index) CountTerminal() int {
	count := 0
	ix.forEach(func(ps *ProbabilityState) {
		if ps.Terminal {
			count++
		}
	})
	return count
}

// Len returns the number of committed (non-nil) records.
func (ix *Index) Len() int {
	count := 0
	ix.forEach(func(*ProbabilityState) { count++ })
	return count
}

func (ix *Index) forEach(fn func(*ProbabilityState)) {
	for _, block := range ix.blocks {
		if block == nil {
			continue
		}
		for _, ps := range block {
			if ps != nil {
				fn(ps)
			}
		}
	}
}
