package property

import "github.com/rfielding/stamina-go/internal/errs"

// Rewrite produces the phiMin and phiMax forms of spec.md §4.7 from a user
// Until formula:
//
//	phiMin: P=?[ Left U[lo,hi] (not absorbing and Right) ]  -- excludes absorbing mass, lower bound
//	phiMax: P=?[ Left U[lo,hi] (absorbing or Right) ]       -- includes absorbing mass, upper bound
//
// Rewrite rejects (rather than silently mishandling) a formula whose Left
// or Right is not an atomic state predicate: property short-circuit and
// this rewrite are only defined for bounded-until over state predicates
// (SPEC_FULL.md §9 open question on nested path subformulas).
func Rewrite(u Until) (phiMin, phiMax Until, err error) {
	if !isAtomic(u.Left) {
		return Until{}, Until{}, errs.New(errs.InvalidInput, "until's left subformula must be an atomic state predicate")
	}
	if !isAtomic(u.Right) {
		return Until{}, Until{}, errs.New(errs.InvalidInput, "until's right subformula must be an atomic state predicate")
	}

	phiMin = Until{
		Left:  u.Left,
		Right: And(Not(Absorbing()), u.Right),
		Bound: u.Bound,
	}
	phiMax = Until{
		Left:  u.Left,
		Right: Or(Absorbing(), u.Right),
		Bound: u.Bound,
	}
	return phiMin, phiMax, nil
}
