package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/scyllablas/scyllablas/internal/accumulate"
	"github.com/scyllablas/scyllablas/internal/block"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/numeric"
	"github.com/scyllablas/scyllablas/internal/queue"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

type kernel2 int

const (
	kernGemv kernel2 = iota
	kernGbmv
	kernGer
	kernTrsv
	kernTbsv
)

func level2Kernel(op wire.OpKind) kernel2 {
	switch op {
	case wire.OpSGEMV, wire.OpDGEMV:
		return kernGemv
	case wire.OpSGBMV, wire.OpDGBMV:
		return kernGbmv
	case wire.OpSGER, wire.OpDGER:
		return kernGer
	case wire.OpSTRSV, wire.OpDTRSV:
		return kernTrsv
	case wire.OpSTBSV, wire.OpDTBSV:
		return kernTbsv
	default:
		return -1
	}
}

func (w *Worker) runMixedOp(ctx context.Context, v wire.MixedOp) (wire.Response, error) {
	if v.Op.IsDouble() {
		return runMixedOpGeneric[float64](ctx, w.sess, v)
	}
	return runMixedOpGeneric[float32](ctx, w.sess, v)
}

func runMixedOpGeneric[T numeric.Real](ctx context.Context, sess *session.Session, v wire.MixedOp) (wire.Response, error) {
	kernel := level2Kernel(v.Op)
	a, err := matrix.Open[T](ctx, sess, v.AID)
	if err != nil {
		return nil, err
	}
	var x, y, helper *vector.Handle[T]
	if v.XID != 0 {
		if x, err = vector.Open[T](ctx, sess, v.XID); err != nil {
			return nil, err
		}
	}
	if v.YID != 0 {
		if y, err = vector.Open[T](ctx, sess, v.YID); err != nil {
			return nil, err
		}
	}
	if v.HelperID != 0 {
		if helper, err = vector.Open[T](ctx, sess, v.HelperID); err != nil {
			return nil, err
		}
	}
	sq, err := queue.Open(ctx, sess, v.SubtaskQueueID, queue.Options{})
	if err != nil {
		return nil, err
	}

	var rn accumulate.ResidualNorm[T]

	for {
		taskID, payload, err := sq.Claim(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			break
		}
		if err != nil {
			return nil, err
		}
		decoded, err := wire.Decode(payload)
		if err != nil {
			return nil, err
		}

		switch kernel {
		case kernGemv, kernGbmv:
			seg, ok := decoded.(wire.SegmentIndex)
			if !ok {
				return nil, fmt.Errorf("worker: level2: unexpected subtask payload %T", decoded)
			}
			if err := gemvSegment(ctx, a, v, x, y, seg.Segment, kernel == kernGbmv); err != nil {
				return nil, err
			}
		case kernGer:
			coord, ok := decoded.(wire.BlockCoord)
			if !ok {
				return nil, fmt.Errorf("worker: level2: unexpected subtask payload %T", decoded)
			}
			if err := gerBlock(ctx, a, v, x, y, coord.BlockRow, coord.BlockCol); err != nil {
				return nil, err
			}
		case kernTrsv, kernTbsv:
			seg, ok := decoded.(wire.SegmentIndex)
			if !ok {
				return nil, fmt.Errorf("worker: level2: unexpected subtask payload %T", decoded)
			}
			if err := trsvSegment(ctx, a, v, x, helper, seg.Segment, kernel == kernTbsv, &rn); err != nil {
				return nil, err
			}
		}

		if err := sq.MarkFinished(ctx, taskID, nil); err != nil {
			return nil, err
		}
	}

	if kernel == kernTrsv || kernel == kernTbsv {
		return pairResponse[T](rn.Residual, rn.Norm), nil
	}
	return wire.NoneResponse{}, nil
}

// gemvSegment computes Y[idx] := alpha*op(A)[idx,:]*X + beta*Y[idx] for
// every idx covered by output segment seg (spec.md §4.3/§4.4 gemv/gbmv).
func gemvSegment[T numeric.Real](ctx context.Context, a *matrix.Handle[T], v wire.MixedOp, x, y *vector.Handle[T], seg int64, banded bool) error {
	lo, hi := segmentRange(seg, y.BlockSize, y.Length)
	for row := lo; row <= hi; row++ {
		entries, err := readOpRow(ctx, a, row, v.TransA)
		if err != nil {
			return err
		}
		var dot T
		for _, e := range entries {
			if banded && (e.Col < row-v.KL || e.Col > row+v.KU) {
				continue
			}
			xv, err := x.Get(ctx, e.Col)
			if err != nil {
				return err
			}
			dot += e.V * xv
		}
		yOld, err := y.Get(ctx, row)
		if err != nil {
			return err
		}
		newVal := T(v.Alpha)*dot + T(v.Beta)*yOld
		if err := y.Set(ctx, row, newVal); err != nil {
			return err
		}
	}
	return nil
}

// gerBlock computes A[block] := alpha*X*Y^T + A[block] over one output
// block (spec.md §4.3 ger).
func gerBlock[T numeric.Real](ctx context.Context, a *matrix.Handle[T], v wire.MixedOp, x, y *vector.Handle[T], blockRow, blockCol int64) error {
	prior, err := a.ReadBlock(ctx, blockRow, blockCol, false)
	if err != nil {
		return err
	}
	rowBase := (blockRow - 1) * a.BlockSize
	colBase := (blockCol - 1) * a.BlockSize

	var entries []block.Entry[T]
	for r := int64(1); r <= a.BlockSize; r++ {
		globalRow := rowBase + r
		if globalRow > a.Rows {
			break
		}
		xv, err := x.Get(ctx, globalRow)
		if err != nil {
			return err
		}
		if numeric.IsNegligible(xv) {
			continue
		}
		for c := int64(1); c <= a.BlockSize; c++ {
			globalCol := colBase + c
			if globalCol > a.Cols {
				break
			}
			yv, err := y.Get(ctx, globalCol)
			if err != nil {
				return err
			}
			val := T(v.Alpha) * xv * yv
			if numeric.IsNegligible(val) {
				continue
			}
			entries = append(entries, block.Entry[T]{Row: r, Col: c, V: val})
		}
	}
	rank1 := block.Block[T]{MatrixID: a.ID, BlockRow: blockRow, BlockCol: blockCol, Entries: entries}
	merged := block.Add(prior, rank1)
	return a.WriteBlock(ctx, prior, merged)
}

// trsvSegment runs one Jacobi sweep over the rows covered by output segment
// seg, solving A*X = B for X (spec.md §4.3 "Trsv/tbsv iteration"): helper
// carries the fixed right-hand side B (copied once by the scheduler before
// the iteration loop began), X carries the current iterate on entry and one
// sweep closer to the solution on return. Reads of off-diagonal X entries
// observe whatever state concurrently-running segments have already written
// this sweep, which is the same best-effort convergence behavior the
// source's distributed Jacobi iteration exhibits.
func trsvSegment[T numeric.Real](ctx context.Context, a *matrix.Handle[T], v wire.MixedOp, x, helper *vector.Handle[T], seg int64, banded bool, rn *accumulate.ResidualNorm[T]) error {
	lo, hi := segmentRange(seg, x.BlockSize, x.Length)
	for row := lo; row <= hi; row++ {
		entries, err := readOpRow(ctx, a, row, v.TransA)
		if err != nil {
			return err
		}
		var diagVal T
		if v.Diag == wire.Unit {
			diagVal = 1
		}
		var offDiag T
		for _, e := range entries {
			if e.Col == row {
				if v.Diag != wire.Unit {
					diagVal = e.V
				}
				continue
			}
			if banded && (e.Col < row-v.KU || e.Col > row+v.KU) {
				continue
			}
			if v.Uplo == wire.Upper && e.Col < row {
				continue
			}
			if v.Uplo == wire.Lower && e.Col > row {
				continue
			}
			xv, err := x.Get(ctx, e.Col)
			if err != nil {
				return err
			}
			offDiag += e.V * xv
		}
		oldVal, err := x.Get(ctx, row)
		if err != nil {
			return err
		}
		rhs, err := helper.Get(ctx, row)
		if err != nil {
			return err
		}
		newVal := oldVal
		if !numeric.IsNegligible(diagVal) {
			newVal = (rhs - offDiag) / diagVal
		}
		if err := x.Set(ctx, row, newVal); err != nil {
			return err
		}
		delta := newVal - oldVal
		rn.Add(numeric.Abs(delta), numeric.Abs(newVal))
	}
	return nil
}

// readOpRow returns op(A)'s row, transposing into a column read when the
// caller asked for A^T.
func readOpRow[T numeric.Real](ctx context.Context, a *matrix.Handle[T], row int64, trans wire.Transpose) ([]block.Entry[T], error) {
	if trans == wire.Trans {
		return a.ReadColumn(ctx, row)
	}
	return a.ReadRow(ctx, row)
}

// segmentRange returns the [lo, hi] global index range a segment of the
// given block size covers, clipped to length.
func segmentRange(seg, blockSize, length int64) (int64, int64) {
	lo := (seg-1)*blockSize + 1
	hi := seg * blockSize
	if hi > length {
		hi = length
	}
	return lo, hi
}
