// Package accumulate implements the scheduler's per-operation combiners
// (spec.md §4.3, §4.6): sum, argmax with tie-break to the lowest index, and
// the trsv/tbsv residual/norm pair.
package accumulate

import "github.com/scyllablas/scyllablas/internal/numeric"

// Sum accumulates a running total across per-primary partials (dot, asum,
// nrm2² before sqrt).
type Sum[T numeric.Real] struct {
	Total T
}

func (s *Sum[T]) Add(partial T) { s.Total += partial }

// ArgMax accumulates the (index, value) pair with the largest absolute
// value seen so far, breaking ties toward the lowest index (iamax). The
// tie-break holds in any fold order: an equal-magnitude entry displaces the
// current one only when its index is lower.
type ArgMax[T numeric.Real] struct {
	set   bool
	Index int64
	Value T
}

func (a *ArgMax[T]) Add(index int64, value T) {
	av := numeric.Abs(value)
	if !a.set {
		a.set = true
		a.Index, a.Value = index, value
		return
	}
	cur := numeric.Abs(a.Value)
	if av > cur || (av == cur && index < a.Index) {
		a.Index, a.Value = index, value
	}
}

// ResidualNorm accumulates the trsv/tbsv (residual, norm) pair across
// primaries within one Jacobi sweep; Converged reports whether the ratio
// has fallen below numeric.Epsilon.
type ResidualNorm[T numeric.Real] struct {
	Residual T
	Norm     T
}

func (r *ResidualNorm[T]) Add(residual, norm T) {
	r.Residual += residual
	r.Norm += norm
}

// Converged reports residual/norm < epsilon. A zero norm (e.g. a zero RHS)
// is treated as converged to avoid dividing by zero.
func (r *ResidualNorm[T]) Converged() bool {
	if r.Norm == 0 {
		return true
	}
	return float64(numeric.Abs(r.Residual))/float64(numeric.Abs(r.Norm)) < numeric.Epsilon
}
