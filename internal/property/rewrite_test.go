package property

import (
	"testing"

	"github.com/rfielding/stamina-go/internal/errs"
)

func TestRewriteProducesMinMax(t *testing.T) {
	u := Until{Left: Atom("true"), Right: Atom("b_label"), Bound: UnboundedAbove(0)}
	min, max, err := Rewrite(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantMinRight := And(Not(Absorbing()), Atom("b_label"))
	if !predicateEqual(min.Right, wantMinRight) {
		t.Fatalf("phiMin.Right mismatch: got %#v", min.Right)
	}

	wantMaxRight := Or(Absorbing(), Atom("b_label"))
	if !predicateEqual(max.Right, wantMaxRight) {
		t.Fatalf("phiMax.Right mismatch: got %#v", max.Right)
	}

	if min.Bound != u.Bound || max.Bound != u.Bound {
		t.Fatal("expected bound to be carried unchanged")
	}
}

func TestRewriteRejectsCompositeSubformula(t *testing.T) {
	u := Until{Left: And(Atom("a"), Atom("b")), Right: Atom("c"), Bound: UnboundedAbove(0)}
	_, _, err := Rewrite(u)
	if !errs.Is(err, errs.InvalidInput) {
		t.Fatalf("expected InvalidInput for composite left subformula, got %v", err)
	}
}

// predicateEqual does a structural comparison sufficient for these tests;
// it avoids depending on reflect.DeepEqual's exact behavior across the
// interface-typed Predicate fields.
func predicateEqual(a, b Predicate) bool {
	switch av := a.(type) {
	case AtomicPredicate:
		bv, ok := b.(AtomicPredicate)
		return ok && av.Expr == bv.Expr
	case AbsorbingPredicate:
		_, ok := b.(AbsorbingPredicate)
		return ok
	case NotPredicate:
		bv, ok := b.(NotPredicate)
		return ok && predicateEqual(av.Inner, bv.Inner)
	case AndPredicate:
		bv, ok := b.(AndPredicate)
		return ok && predicateEqual(av.Left, bv.Left) && predicateEqual(av.Right, bv.Right)
	case OrPredicate:
		bv, ok := b.(OrPredicate)
		return ok && predicateEqual(av.Left, bv.Left) && predicateEqual(av.Right, bv.Right)
	default:
		return false
	}
}
