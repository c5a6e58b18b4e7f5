// Package arnoldi is a reference caller demonstrating the engine's public
// scheduler/matrix/vector API composed into Arnoldi iteration: building an
// orthonormal basis Q and Hessenberg matrix H for the Krylov subspace of A
// and a starting vector b. It is not part of the core library, grounded on
// original_source/examples/arnoldi/arnoldi.cc.
package arnoldi

import (
	"context"

	"github.com/pkg/errors"

	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

// convergenceEps is the breakdown tolerance on h[k+1,k]: once the residual
// norm falls below it the Krylov subspace has stopped growing and iteration
// stops early, same as the source's epsilon check.
const convergenceEps = 1e-12

// Iterator runs Arnoldi iteration with a fixed scheduler, all float32
// operands (matching the reference implementation, which uses single
// precision throughout).
type Iterator struct {
	sched *scheduler.Scheduler
}

// New returns an Iterator driving ops through sched.
func New(sched *scheduler.Scheduler) *Iterator {
	return &Iterator{sched: sched}
}

// transferRowToVector copies matrix row rowIndex of mat into vec, clearing
// vec's prior contents first.
func transferRowToVector(ctx context.Context, mat *matrix.Handle[float32], rowIndex int64, vec *vector.Handle[float32]) error {
	for i := int64(1); i <= vec.Length; i++ {
		if err := vec.Set(ctx, i, 0); err != nil {
			return errors.Wrap(err, "arnoldi: clear vector before row transfer")
		}
	}
	entries, err := mat.ReadRow(ctx, rowIndex)
	if err != nil {
		return errors.Wrap(err, "arnoldi: read row")
	}
	for _, e := range entries {
		if err := vec.Set(ctx, e.Col, e.V); err != nil {
			return errors.Wrap(err, "arnoldi: write row entry to vector")
		}
	}
	return nil
}

// transferVectorToRow writes vec's full contents into matrix row rowIndex.
func transferVectorToRow(ctx context.Context, mat *matrix.Handle[float32], rowIndex int64, vec *vector.Handle[float32]) error {
	for i := int64(1); i <= vec.Length; i++ {
		v, err := vec.Get(ctx, i)
		if err != nil {
			return errors.Wrap(err, "arnoldi: read vector entry")
		}
		if err := mat.Set(ctx, rowIndex, i, v); err != nil {
			return errors.Wrap(err, "arnoldi: write vector entry to row")
		}
	}
	return nil
}

// Compute runs n Arnoldi iterations against the m x m matrix a starting
// from b (length m), writing the (n+1) x n Hessenberg matrix into h and the
// m x (n+1) orthonormal basis (stored row-major, one basis vector per row)
// into qT. v, q, t are scratch vectors of length m the caller provisions
// alongside h/qT so repeated calls don't re-provision them.
func (it *Iterator) Compute(ctx context.Context, a *matrix.Handle[float32], b *vector.Handle[float32], n int64, h, qT *matrix.Handle[float32], v, q, t *vector.Handle[float32]) error {
	norm, err := scheduler.Nrm2[float32](ctx, it.sched, wire.OpSNRM2, b)
	if err != nil {
		return errors.Wrap(err, "arnoldi: initial norm")
	}
	if err := scheduler.Copy[float32](ctx, it.sched, wire.OpSCOPY, b, q); err != nil {
		return errors.Wrap(err, "arnoldi: initial copy")
	}
	if err := scheduler.Scal[float32](ctx, it.sched, wire.OpSSCAL, 1/norm, q); err != nil {
		return errors.Wrap(err, "arnoldi: initial normalize")
	}
	if err := transferVectorToRow(ctx, qT, 1, q); err != nil {
		return err
	}

	for k := int64(1); k <= n; k++ {
		if err := scheduler.Gemv[float32](ctx, it.sched, wire.OpSGEMV, wire.NoTrans, 1, a, q, 0, v); err != nil {
			return errors.Wrap(err, "arnoldi: matrix multiply")
		}

		for j := int64(1); j <= k; j++ {
			if err := transferRowToVector(ctx, qT, j, t); err != nil {
				return err
			}
			proj, err := scheduler.Dot[float32](ctx, it.sched, wire.OpSDOT, t, v)
			if err != nil {
				return errors.Wrap(err, "arnoldi: projection dot")
			}
			if err := h.Set(ctx, j, k, proj); err != nil {
				return errors.Wrap(err, "arnoldi: write H entry")
			}
			if err := scheduler.Axpy[float32](ctx, it.sched, wire.OpSAXPY, -proj, t, v); err != nil {
				return errors.Wrap(err, "arnoldi: subtract projection")
			}
		}

		beta, err := scheduler.Nrm2[float32](ctx, it.sched, wire.OpSNRM2, v)
		if err != nil {
			return errors.Wrap(err, "arnoldi: residual norm")
		}
		if err := h.Set(ctx, k+1, k, beta); err != nil {
			return errors.Wrap(err, "arnoldi: write subdiagonal H entry")
		}
		if beta <= convergenceEps {
			return nil
		}

		if err := scheduler.Copy[float32](ctx, it.sched, wire.OpSCOPY, v, q); err != nil {
			return errors.Wrap(err, "arnoldi: copy residual")
		}
		if err := scheduler.Scal[float32](ctx, it.sched, wire.OpSSCAL, 1/beta, q); err != nil {
			return errors.Wrap(err, "arnoldi: normalize next basis vector")
		}
		if err := transferVectorToRow(ctx, qT, k+1, q); err != nil {
			return err
		}
	}
	return nil
}
