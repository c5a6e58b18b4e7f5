// Package numeric holds the small numeric vocabulary shared by the block,
// segment, accumulate and genvalue packages: the element-type constraint and
// the sparsity/convergence epsilon.
package numeric

// Real is the capability set operands are generic over: float32 and
// float64, per spec.md §9 "generic containers with the arithmetic behavior
// captured in a small capability set".
type Real interface {
	~float32 | ~float64
}

// Epsilon is the sparsity cutoff for stored matrix/vector entries and the
// convergence tolerance for iterative routines (spec.md glossary "ε").
const Epsilon = 1e-9

// Abs returns the absolute value of v for either Real type.
func Abs[T Real](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// IsNegligible reports whether v falls below the sparsity/convergence
// threshold and should be treated as zero.
func IsNegligible[T Real](v T) bool {
	return float64(Abs(v)) < Epsilon
}
