// Package block implements the purely in-memory block algebra of spec.md
// §4.1: multiply, add-scaled, scale, and transposition of a matrix tile.
// Blocks are sparse: entries whose magnitude falls below
// numeric.Epsilon are never stored.
package block

import (
	"sort"

	"github.com/scyllablas/scyllablas/internal/numeric"
)

// Entry is one non-zero value at block-local coordinates.
type Entry[T numeric.Real] struct {
	Row int64
	Col int64
	V   T
}

// Block is a dense-sparse tile of a matrix, addressed in block-local
// coordinates. MatrixID/BlockRow/BlockCol/Transposed are carried only as
// metadata for writing the block back to its owning operand (spec.md §4.1).
type Block[T numeric.Real] struct {
	MatrixID   int64
	BlockRow   int64
	BlockCol   int64
	Transposed bool
	Entries    []Entry[T]
}

// New returns an empty block addressed at (blockRow, blockCol) of matrix id.
func New[T numeric.Real](matrixID, blockRow, blockCol int64) Block[T] {
	return Block[T]{MatrixID: matrixID, BlockRow: blockRow, BlockCol: blockCol}
}

// index builds a map keyed by (row, col) for O(1) lookups during merges.
func (b Block[T]) index() map[[2]int64]T {
	m := make(map[[2]int64]T, len(b.Entries))
	for _, e := range b.Entries {
		m[[2]int64{e.Row, e.Col}] = e.V
	}
	return m
}

// Transpose returns a new block with rows and columns swapped; Transposed is
// flipped so callers can tell a block was read transposed at write time.
func (b Block[T]) Transpose() Block[T] {
	out := Block[T]{
		MatrixID:   b.MatrixID,
		BlockRow:   b.BlockCol,
		BlockCol:   b.BlockRow,
		Transposed: !b.Transposed,
		Entries:    make([]Entry[T], len(b.Entries)),
	}
	for i, e := range b.Entries {
		out.Entries[i] = Entry[T]{Row: e.Col, Col: e.Row, V: e.V}
	}
	return out
}

// Scale multiplies every entry by alpha; alpha == 0 yields an empty block.
func (b Block[T]) Scale(alpha T) Block[T] {
	out := Block[T]{MatrixID: b.MatrixID, BlockRow: b.BlockRow, BlockCol: b.BlockCol, Transposed: b.Transposed}
	if alpha == 0 {
		return out
	}
	for _, e := range b.Entries {
		v := e.V * alpha
		if numeric.IsNegligible(v) {
			continue
		}
		out.Entries = append(out.Entries, Entry[T]{Row: e.Row, Col: e.Col, V: v})
	}
	return out
}

// Add merges two blocks sharing the same coordinates, summing overlapping
// entries and dropping any result whose magnitude falls below epsilon.
// Insertion order follows a: a's entries first (in a's order), then b's
// entries not present in a, so round-off is reproducible (spec.md §4.1
// "implementations should document their reduction order").
func Add[T numeric.Real](a, b Block[T]) Block[T] {
	out := Block[T]{MatrixID: a.MatrixID, BlockRow: a.BlockRow, BlockCol: a.BlockCol}
	bIdx := b.index()
	seen := make(map[[2]int64]bool, len(a.Entries))
	for _, e := range a.Entries {
		key := [2]int64{e.Row, e.Col}
		seen[key] = true
		v := e.V
		if bv, ok := bIdx[key]; ok {
			v += bv
		}
		if numeric.IsNegligible(v) {
			continue
		}
		out.Entries = append(out.Entries, Entry[T]{Row: e.Row, Col: e.Col, V: v})
	}
	for _, e := range b.Entries {
		key := [2]int64{e.Row, e.Col}
		if seen[key] {
			continue
		}
		if numeric.IsNegligible(e.V) {
			continue
		}
		out.Entries = append(out.Entries, Entry[T]{Row: e.Row, Col: e.Col, V: e.V})
	}
	return out
}

// Multiply computes left · right, both already in block-local coordinates
// with right addressed so that left's column axis matches right's row axis.
// Result entries are emitted in (row, col) order with |v| >= epsilon only.
func Multiply[T numeric.Real](left, right Block[T]) Block[T] {
	out := Block[T]{MatrixID: left.MatrixID, BlockRow: left.BlockRow, BlockCol: right.BlockCol}

	leftRows := make(map[int64][]Entry[T])
	for _, e := range left.Entries {
		leftRows[e.Row] = append(leftRows[e.Row], e)
	}
	rightCols := make(map[int64][]Entry[T])
	for _, e := range right.Entries {
		rightCols[e.Col] = append(rightCols[e.Col], e)
	}

	var rowKeys []int64
	for r := range leftRows {
		rowKeys = append(rowKeys, r)
	}
	sort.Slice(rowKeys, func(i, j int) bool { return rowKeys[i] < rowKeys[j] })

	var colKeys []int64
	for c := range rightCols {
		colKeys = append(colKeys, c)
	}
	sort.Slice(colKeys, func(i, j int) bool { return colKeys[i] < colKeys[j] })

	for _, r := range rowKeys {
		// index left's row r by column for the inner merge.
		leftRow := make(map[int64]T, len(leftRows[r]))
		for _, e := range leftRows[r] {
			leftRow[e.Col] = e.V
		}
		for _, c := range colKeys {
			var dot T
			for _, e := range rightCols[c] {
				if lv, ok := leftRow[e.Row]; ok {
					dot += lv * e.V
				}
			}
			if numeric.IsNegligible(dot) {
				continue
			}
			out.Entries = append(out.Entries, Entry[T]{Row: r, Col: c, V: dot})
		}
	}
	return out
}

// AddScaled returns c + alpha*(left·right), the running accumulation used by
// the gemm/syrk/syr2k kernels across the K contraction dimension.
func AddScaled[T numeric.Real](c Block[T], alpha T, left, right Block[T]) Block[T] {
	return Add(c, Multiply(left, right).Scale(alpha))
}
