package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/scyllablas/scyllablas/internal/block"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/numeric"
	"github.com/scyllablas/scyllablas/internal/queue"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/wire"
)

func (w *Worker) runMatrixOp(ctx context.Context, m wire.MatrixOp) (wire.Response, error) {
	if m.Op.IsDouble() {
		return runMatrixOpGeneric[float64](ctx, w.sess, m)
	}
	return runMatrixOpGeneric[float32](ctx, w.sess, m)
}

func runMatrixOpGeneric[T numeric.Real](ctx context.Context, sess *session.Session, m wire.MatrixOp) (wire.Response, error) {
	a, err := matrix.Open[T](ctx, sess, m.AID)
	if err != nil {
		return nil, err
	}
	b, err := matrix.Open[T](ctx, sess, m.BID)
	if err != nil {
		return nil, err
	}
	c, err := matrix.Open[T](ctx, sess, m.CID)
	if err != nil {
		return nil, err
	}
	sq, err := queue.Open(ctx, sess, m.SubtaskQueueID, queue.Options{})
	if err != nil {
		return nil, err
	}

	isSyr2k := m.Op == wire.OpSSYR2K || m.Op == wire.OpDSYR2K

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
		coord, ok := decoded.(wire.BlockCoord)
		if !ok {
			return nil, fmt.Errorf("worker: level3: unexpected subtask payload %T", decoded)
		}

		prior, err := c.ReadBlock(ctx, coord.BlockRow, coord.BlockCol, false)
		if err != nil {
			return nil, err
		}
		acc := block.New[T](c.ID, coord.BlockRow, coord.BlockCol)

		if isSyr2k {
			kBlocks := blockCountFor(a, m.TransA)
			for k := int64(1); k <= kBlocks; k++ {
				aBlk, err := readOpBlock(ctx, a, coord.BlockRow, k, m.TransA)
				if err != nil {
					return nil, err
				}
				bBlkOpp, err := readOpBlock(ctx, b, k, coord.BlockCol, oppositeTranspose(m.TransA))
				if err != nil {
					return nil, err
				}
				acc = block.AddScaled(acc, T(m.Alpha), aBlk, bBlkOpp)

				bBlk, err := readOpBlock(ctx, b, coord.BlockRow, k, m.TransA)
				if err != nil {
					return nil, err
				}
				aBlkOpp, err := readOpBlock(ctx, a, k, coord.BlockCol, oppositeTranspose(m.TransA))
				if err != nil {
					return nil, err
				}
				acc = block.AddScaled(acc, T(m.Alpha), bBlk, aBlkOpp)
			}
		} else {
			kBlocks := blockCountFor(a, m.TransA)
			for k := int64(1); k <= kBlocks; k++ {
				aBlk, err := readOpBlock(ctx, a, coord.BlockRow, k, m.TransA)
				if err != nil {
					return nil, err
				}
				bBlk, err := readOpBlock(ctx, b, k, coord.BlockCol, m.TransB)
				if err != nil {
					return nil, err
				}
				acc = block.AddScaled(acc, T(m.Alpha), aBlk, bBlk)
			}
		}

		merged := block.Add(prior.Scale(T(m.Beta)), acc)
		if err := c.WriteBlock(ctx, prior, merged); err != nil {
			return nil, err
		}
		if err := sq.MarkFinished(ctx, taskID, nil); err != nil {
			return nil, err
		}
	}

	return wire.NoneResponse{}, nil
}

// readOpBlock reads op(h)'s block (blockRow, blockCol); a transposed read
// fetches the source block at swapped coordinates and transposes in memory.
func readOpBlock[T numeric.Real](ctx context.Context, h *matrix.Handle[T], blockRow, blockCol int64, trans wire.Transpose) (block.Block[T], error) {
	if trans == wire.Trans {
		return h.ReadBlock(ctx, blockCol, blockRow, true)
	}
	return h.ReadBlock(ctx, blockRow, blockCol, false)
}

func blockCountFor[T numeric.Real](h *matrix.Handle[T], trans wire.Transpose) int64 {
	if trans == wire.Trans {
		return h.BlockRowCount()
	}
	return h.BlockColCount()
}

func oppositeTranspose(t wire.Transpose) wire.Transpose {
	if t == wire.Trans {
		return wire.NoTrans
	}
	return wire.Trans
}
