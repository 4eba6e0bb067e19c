package refine

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/rfielding/stamina-go/internal/bitstate"
)

// CommittedSet snapshots every state id currently known to ids as a roaring
// bitmap, used to check the monotone-shrinkage testable property of
// spec.md §8: across two consecutive passes with κ₁ > κ₂, pass 2's
// committed set must be a superset of pass 1's. A bitmap makes that
// containment check, run once per pass, cheap even for large state spaces
// without materializing an O(n^2) comparison.
func CommittedSet(ids *bitstate.StateIDMap) *roaring.Bitmap {
	b := roaring.New()
	ids.Each(func(_ bitstate.CompressedState, id bitstate.StateID) {
		b.Add(uint32(id))
	})
	return b
}

// IsSupersetOf reports whether cur contains every id in prev, the
// containment direction the monotone-shrinkage property requires pass over
// pass.
func IsSupersetOf(cur, prev *roaring.Bitmap) bool {
	return prev.AndCardinality(cur) == prev.GetCardinality()
}
