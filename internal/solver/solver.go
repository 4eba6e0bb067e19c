// Package solver declares the external transient-probability oracle
// contract (spec.md §6) and, for test tooling only, a reference
// uniformization-based implementation adapted from the teacher's
// model_checker.go fixed-point CTL algorithms.
package solver

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/rfielding/stamina-go/internal/generator"
	"github.com/rfielding/stamina-go/internal/property"
	"github.com/rfielding/stamina-go/internal/transition"
)

// Transient is the external black-box transient-probability oracle: given
// the built sparse matrix, its labeling, and a property formula, it returns
// a vector of per-state probabilities. The core only reads the value at a
// single initial state (spec.md §6).
type Transient interface {
	Solve(ctx context.Context, m *transition.Matrix, l generator.Labeling, formula property.Formula) ([]float64, error)
}

// WithRetry wraps a Transient so that a transient (pun intended) failure
// from a solver backed by a subprocess or RPC call gets bounded
// exponential-backoff retry before the refinement controller treats it as
// fatal, per SPEC_FULL.md's domain-stack wiring of cenkalti/backoff.
func WithRetry(inner Transient, maxElapsed backoff.BackOff) Transient {
	return &retrying{inner: inner, policy: maxElapsed}
}

type retrying struct {
	inner  Transient
	policy backoff.BackOff
}

func (r *retrying) Solve(ctx context.Context, m *transition.Matrix, l generator.Labeling, formula property.Formula) ([]float64, error) {
	var result []float64
	op := func() error {
		var err error
		result, err = r.inner.Solve(ctx, m, l, formula)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(r.policy, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}
