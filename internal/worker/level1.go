package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/scyllablas/scyllablas/internal/accumulate"
	"github.com/scyllablas/scyllablas/internal/numeric"
	"github.com/scyllablas/scyllablas/internal/queue"
	"github.com/scyllablas/scyllablas/internal/segment"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

// kernel1 names the level-1 compute shape a VectorOp carries, independent
// of its S/D element-width tag.
type kernel1 int

const (
	kernDot kernel1 = iota
	kernNrm2
	kernAsum
	kernIamax
	kernAxpy
	kernCopy
	kernSwap
	kernScal
)

func level1Kernel(op wire.OpKind) kernel1 {
	switch op {
	case wire.OpSDOT, wire.OpDDOT:
		return kernDot
	case wire.OpSNRM2, wire.OpDNRM2:
		return kernNrm2
	case wire.OpSASUM, wire.OpDASUM:
		return kernAsum
	case wire.OpISAMAX, wire.OpIDAMAX:
		return kernIamax
	case wire.OpSAXPY, wire.OpDAXPY:
		return kernAxpy
	case wire.OpSCOPY, wire.OpDCOPY:
		return kernCopy
	case wire.OpSSWAP, wire.OpDSWAP:
		return kernSwap
	case wire.OpSSCAL, wire.OpDSCAL:
		return kernScal
	default:
		return -1
	}
}

func (w *Worker) runVectorOp(ctx context.Context, v wire.VectorOp) (wire.Response, error) {
	if v.Op.IsDouble() {
		return runVectorOpGeneric[float64](ctx, w.sess, v)
	}
	return runVectorOpGeneric[float32](ctx, w.sess, v)
}

func runVectorOpGeneric[T numeric.Real](ctx context.Context, sess *session.Session, v wire.VectorOp) (wire.Response, error) {
	kernel := level1Kernel(v.Op)
	x, err := vector.Open[T](ctx, sess, v.XID)
	if err != nil {
		return nil, err
	}
	var y *vector.Handle[T]
	if v.YID != 0 {
		y, err = vector.Open[T](ctx, sess, v.YID)
		if err != nil {
			return nil, err
		}
	}
	sq, err := queue.Open(ctx, sess, v.SubtaskQueueID, queue.Options{})
	if err != nil {
		return nil, err
	}

	var sum accumulate.Sum[T]
	var best accumulate.ArgMax[T]

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
		segIdx, ok := decoded.(wire.SegmentIndex)
		if !ok {
			return nil, fmt.Errorf("worker: level1: unexpected subtask payload %T", decoded)
		}

		if err := runSegmentKernel(ctx, kernel, T(v.Alpha), x, y, segIdx.Segment, &sum, &best); err != nil {
			return nil, err
		}
		if err := sq.MarkFinished(ctx, taskID, nil); err != nil {
			return nil, err
		}
	}

	switch kernel {
	case kernDot, kernNrm2, kernAsum:
		return scalarResponse[T](sum.Total), nil
	case kernIamax:
		return indexResponse[T](best.Index, best.Value), nil
	default:
		return wire.NoneResponse{}, nil
	}
}

func runSegmentKernel[T numeric.Real](ctx context.Context, kernel kernel1, alpha T, x, y *vector.Handle[T], seg int64, sum *accumulate.Sum[T], best *accumulate.ArgMax[T]) error {
	switch kernel {
	case kernDot, kernNrm2:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		other := xs
		if kernel == kernDot {
			ys, err := y.ReadSegment(ctx, seg)
			if err != nil {
				return err
			}
			other = ys
		}
		sum.Add(segment.Dot(xs, other))
		return nil
	case kernAsum:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		var partial T
		for _, e := range xs.Entries {
			partial += numeric.Abs(e.V)
		}
		sum.Add(partial)
		return nil
	case kernIamax:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		for _, e := range xs.Entries {
			best.Add(e.Index, numeric.Abs(e.V))
		}
		return nil
	case kernAxpy:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		priorY, err := y.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		updated := segment.Add(priorY, xs.Scale(alpha))
		return y.WriteSegment(ctx, priorY, updated)
	case kernCopy:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		priorY, err := y.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		updated := segment.Segment[T]{VectorID: y.ID, Index: seg, Entries: xs.Entries}
		return y.WriteSegment(ctx, priorY, updated)
	case kernSwap:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		ys, err := y.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		newX := segment.Segment[T]{VectorID: x.ID, Index: seg, Entries: ys.Entries}
		newY := segment.Segment[T]{VectorID: y.ID, Index: seg, Entries: xs.Entries}
		if err := x.WriteSegment(ctx, xs, newX); err != nil {
			return err
		}
		return y.WriteSegment(ctx, ys, newY)
	case kernScal:
		xs, err := x.ReadSegment(ctx, seg)
		if err != nil {
			return err
		}
		return x.WriteSegment(ctx, xs, xs.Scale(alpha))
	default:
		return fmt.Errorf("worker: level1: unknown kernel %d", kernel)
	}
}

func scalarResponse[T numeric.Real](v T) wire.Response {
	if isFloat32[T]() {
		return wire.F32Response(float32(v))
	}
	return wire.F64Response(float64(v))
}

func indexResponse[T numeric.Real](index int64, v T) wire.Response {
	if isFloat32[T]() {
		return wire.IndexF32Response{Index: index, Value: float32(v)}
	}
	return wire.IndexF64Response{Index: index, Value: float64(v)}
}

func pairResponse[T numeric.Real](a, b T) wire.Response {
	if isFloat32[T]() {
		return wire.PairF32Response{A: float32(a), B: float32(b)}
	}
	return wire.PairF64Response{A: float64(a), B: float64(b)}
}

// isFloat32 distinguishes T at runtime via a zero-value type assertion; Go
// generics give no direct way to switch on a type parameter's identity.
func isFloat32[T numeric.Real]() bool {
	var v T
	_, ok := any(v).(float32)
	return ok
}
