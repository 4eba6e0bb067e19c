// Package absorbing implements the one-time absorbing-state setup of
// spec.md §4.3: it appends a reserved "Absorbing" bit to the state
// encoding, inserts the absorbing CompressedState expecting id 0, records
// it as a deadlock state, and stages its self-loop.
package absorbing

import (
	"github.com/rfielding/stamina-go/internal/bitstate"
	"github.com/rfielding/stamina-go/internal/bookkeeper"
	"github.com/rfielding/stamina-go/internal/errs"
	"github.com/rfielding/stamina-go/internal/transition"
)

// Label is the atomic proposition the property rewriter (internal/property)
// uses to identify the absorbing state.
const Label = "absorbing"

// Setup runs exactly once, before the first exploration pass. modelBitWidth
// is the packed width of the user model's own variables, not counting the
// reserved Absorbing bit; Setup appends that bit itself and returns the
// total bit width successor CompressedStates must use.
func Setup(ids *bitstate.StateIDMap, ix *bookkeeper.Index, stage *transition.Stage, modelBitWidth int) (totalBitWidth int, err error) {
	totalBitWidth = modelBitWidth + 1
	absorbingBitOffset := modelBitWidth

	absorbingState := bitstate.NewCompressedState(totalBitWidth).SetBits(absorbingBitOffset, 1, 1)

	id, inserted := ids.FindOrInsert(absorbingState, ids.NextCandidateID())
	if !inserted || id != bitstate.AbsorbingID {
		return 0, errs.New(errs.Inconsistent, "absorbing state did not receive id 0")
	}

	ps := bookkeeper.NewFrontierState(id, 1.0)
	ps.Terminal = false
	ps.IsNew = false
	ps.Deadlock = true
	ix.Put(id, ps)
	ix.MarkDeadlock(id)

	stage.Add(id, id, 1.0)

	return totalBitWidth, nil
}

// AbsorbingBitOffset returns the bit offset of the reserved Absorbing flag
// given the user model's own (unextended) bit width.
func AbsorbingBitOffset(modelBitWidth int) int { return modelBitWidth }

// IsAbsorbing reports whether the reserved Absorbing bit is set in s, using
// the given model bit width to locate it.
func IsAbsorbing(s bitstate.CompressedState, modelBitWidth int) bool {
	return s.GetBits(modelBitWidth, 1) == 1
}
