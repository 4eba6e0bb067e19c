package transition

import "sort"

// Matrix is the finite sparse CTMC built by repeated Stage flushes: a CSR-ish
// representation, rows keyed by source StateID. It is the only artifact the
// external transient solver ever sees (spec.md §6).
type Matrix struct {
	rows map[StateID][]Triple
}

// Builder accumulates edges across build passes into a Matrix. A given
// (src, dst) pair accumulates additively across calls, matching the
// explorer's "residual aggregate edge" behavior in perimeter wiring
// (spec.md §4.5): staging a second edge to the same destination adds to the
// rate already recorded rather than creating a duplicate row entry.
type Builder struct {
	m *Matrix
}

// NewBuilder constructs an empty builder.
func NewBuilder() *Builder {
	return &Builder{m: &Matrix{rows: make(map[StateID][]Triple)}}
}

// AddEdge records (or accumulates onto) one outgoing edge.
func (b *Builder) AddEdge(src, dst StateID, rate float64) {
	row := b.m.rows[src]
	for i := range row {
		if row[i].Dst == dst {
			row[i].Rate += rate
			b.m.rows[src] = row
			return
		}
	}
	b.m.rows[src] = append(row, Triple{Dst: dst, Rate: rate})
}

// Build returns the accumulated matrix. The builder remains usable
// afterwards; later passes keep accumulating into the same Matrix.
func (b *Builder) Build() *Matrix {
	return b.m
}

// ClearRow discards every edge recorded for src. The explorer uses this to
// retract a perimeter-wired state's provisional absorbing edge the moment
// that state is finally expanded for real, so the stale redirect isn't left
// double-counted alongside the real edges.
func (b *Builder) ClearRow(src StateID) {
	delete(b.m.rows, src)
}

// OutgoingRateSum returns the sum of outgoing rates recorded for src, used
// by the conservation-of-mass testable property (spec.md §8).
func (m *Matrix) OutgoingRateSum(src StateID) float64 {
	var sum float64
	for _, t := range m.rows[src] {
		sum += t.Rate
	}
	return sum
}

// Row returns a defensive copy of the outgoing edges recorded for src.
func (m *Matrix) Row(src StateID) []Triple {
	row := m.rows[src]
	out := make([]Triple, len(row))
	copy(out, row)
	return out
}

// States returns every source id with at least one row, sorted ascending
// for deterministic iteration in tests and diagnostics.
func (m *Matrix) States() []StateID {
	out := make([]StateID, 0, len(m.rows))
	for src := range m.rows {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NumStates returns the number of distinct sources with at least one row.
func (m *Matrix) NumStates() int { return len(m.rows) }
