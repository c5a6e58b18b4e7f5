package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/scyllablas/scyllablas/internal/block"
	"github.com/scyllablas/scyllablas/internal/genvalue"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/numeric"
	"github.com/scyllablas/scyllablas/internal/queue"
	"github.com/scyllablas/scyllablas/internal/segment"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

func (w *Worker) runGeneration(ctx context.Context, g wire.Generation) (wire.Response, error) {
	if g.Op.IsDouble() {
		return runGenerationGeneric[float64](ctx, w.sess, g)
	}
	return runGenerationGeneric[float32](ctx, w.sess, g)
}

func runGenerationGeneric[T numeric.Real](ctx context.Context, sess *session.Session, g wire.Generation) (wire.Response, error) {
	switch g.Op {
	case wire.OpSRMGEN, wire.OpDRMGEN:
		return nil, generateMatrix[T](ctx, sess, g)
	case wire.OpSRVGEN, wire.OpDRVGEN:
		return nil, generateVector[T](ctx, sess, g)
	default:
		return nil, fmt.Errorf("worker: generation: unknown op %v", g.Op)
	}
}

func generateMatrix[T numeric.Real](ctx context.Context, sess *session.Session, g wire.Generation) error {
	// The structure id doubles as the destination matrix id (spec.md's
	// generation kernels address the operand they populate directly).
	a, err := matrix.Open[T](ctx, sess, g.StructureID)
	if err != nil {
		return err
	}
	sq, err := queue.Open(ctx, sess, g.SubtaskQueueID, queue.Options{})
	if err != nil {
		return err
	}
	src := genvalue.New(g.StructureID, g.Alpha)

	for {
		taskID, payload, err := sq.Claim(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return nil
		}
		if err != nil {
			return err
		}
		decoded, err := wire.Decode(payload)
		if err != nil {
			return err
		}
		coord, ok := decoded.(wire.BlockCoord)
		if !ok {
			return fmt.Errorf("worker: rmgen: unexpected subtask payload %T", decoded)
		}

		prior, err := a.ReadBlock(ctx, coord.BlockRow, coord.BlockCol, false)
		if err != nil {
			return err
		}
		rowBase := (coord.BlockRow - 1) * a.BlockSize
		colBase := (coord.BlockCol - 1) * a.BlockSize

		var entries []block.Entry[T]
		for r := int64(1); r <= a.BlockSize; r++ {
			globalRow := rowBase + r
			if globalRow > a.Rows {
				break
			}
			for c := int64(1); c <= a.BlockSize; c++ {
				globalCol := colBase + c
				if globalCol > a.Cols {
					break
				}
				if v, ok := genvalue.ValueAt[T](src, globalRow, globalCol); ok {
					entries = append(entries, block.Entry[T]{Row: r, Col: c, V: v})
				}
			}
		}
		updated := block.Block[T]{MatrixID: a.ID, BlockRow: coord.BlockRow, BlockCol: coord.BlockCol, Entries: entries}
		if err := a.WriteBlock(ctx, prior, updated); err != nil {
			return err
		}
		if err := sq.MarkFinished(ctx, taskID, nil); err != nil {
			return err
		}
	}
}

func generateVector[T numeric.Real](ctx context.Context, sess *session.Session, g wire.Generation) error {
	x, err := vector.Open[T](ctx, sess, g.StructureID)
	if err != nil {
		return err
	}
	sq, err := queue.Open(ctx, sess, g.SubtaskQueueID, queue.Options{})
	if err != nil {
		return err
	}
	src := genvalue.New(g.StructureID, g.Alpha)

	for {
		taskID, payload, err := sq.Claim(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return nil
		}
		if err != nil {
			return err
		}
		decoded, err := wire.Decode(payload)
		if err != nil {
			return err
		}
		segIdx, ok := decoded.(wire.SegmentIndex)
		if !ok {
			return fmt.Errorf("worker: rvgen: unexpected subtask payload %T", decoded)
		}

		prior, err := x.ReadSegment(ctx, segIdx.Segment)
		if err != nil {
			return err
		}
		lo, hi := segmentRange(segIdx.Segment, x.BlockSize, x.Length)
		var entries []segment.Entry[T]
		for idx := lo; idx <= hi; idx++ {
			if v, ok := genvalue.ValueAt[T](src, idx); ok {
				entries = append(entries, segment.Entry[T]{Index: idx, V: v})
			}
		}
		updated := segment.Segment[T]{VectorID: x.ID, Index: segIdx.Segment, Entries: entries}
		if err := x.WriteSegment(ctx, prior, updated); err != nil {
			return err
		}
		if err := sq.MarkFinished(ctx, taskID, nil); err != nil {
			return err
		}
	}
}
