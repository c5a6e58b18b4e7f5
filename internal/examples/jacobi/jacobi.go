// Package jacobi is a reference caller demonstrating how an application
// composes the engine's public scheduler/matrix/vector API into a small
// iterative linear solver. It is not part of the core library, grounded on
// original_source/examples/linear_solver/jacobi_solver.cc: Solve(Ax=b) by
// splitting A into its diagonal D and off-diagonal L+U, then iterating
// x := D^-1 * (b - (L+U)*x) until ||b - Ax||_inf falls below a threshold.
package jacobi

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/scyllablas/scyllablas/internal/block"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

// ErrNotSquare is returned when Solver is built from a non-square matrix.
var ErrNotSquare = errors.New("jacobi: matrix is not square")

// ErrDimensionMismatch is returned when x or b don't match the solver's
// dimension.
var ErrDimensionMismatch = errors.New("jacobi: dimension mismatch")

// ErrConvergenceFailure is returned by Solve when the residual never falls
// below threshold within maxIterations.
var ErrConvergenceFailure = errors.New("jacobi: convergence not reached")

// Solver holds the split matrices (D^-1, L+U) and scratch vector a Jacobi
// solve needs, built once from A and reused across any number of Solve
// calls.
type Solver struct {
	sess       *session.Session
	sched      *scheduler.Scheduler
	a          *matrix.Handle[float64]
	dInverted  *matrix.Handle[float64]
	lPlusU     *matrix.Handle[float64]
	aux        *vector.Handle[float64]
	dimensions int64
}

// New builds a solver for A, deriving D^-1 and L+U as freshly provisioned
// operands at auxID, dInvID, lPlusUID (caller-chosen, collision-free ids).
func New(ctx context.Context, sess *session.Session, sched *scheduler.Scheduler, a *matrix.Handle[float64], auxID, dInvID, lPlusUID int64) (*Solver, error) {
	if a.Rows != a.Cols {
		return nil, ErrNotSquare
	}
	dimensions := a.Rows

	aux, err := vector.Init[float64](ctx, sess, auxID, dimensions, a.BlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "jacobi: init aux vector")
	}
	dInverted, err := matrix.Init[float64](ctx, sess, dInvID, dimensions, dimensions, a.BlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "jacobi: init D^-1")
	}
	lPlusU, err := matrix.Init[float64](ctx, sess, lPlusUID, dimensions, dimensions, a.BlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "jacobi: init L+U")
	}

	s := &Solver{sess: sess, sched: sched, a: a, dInverted: dInverted, lPlusU: lPlusU, aux: aux, dimensions: dimensions}
	if err := s.buildMatrices(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// buildMatrices walks every block of A, routing diagonal entries (inverted)
// into D^-1 and off-diagonal entries into L+U.
func (s *Solver) buildMatrices(ctx context.Context) error {
	blocks := s.a.BlockRowCount()
	for i := int64(1); i <= blocks; i++ {
		for j := int64(1); j <= blocks; j++ {
			b, err := s.a.ReadBlock(ctx, i, j, false)
			if err != nil {
				return errors.Wrap(err, "jacobi: build matrices: read block")
			}
			if i != j {
				if err := s.lPlusU.WriteBlock(ctx, block.Block[float64]{}, b); err != nil {
					return errors.Wrap(err, "jacobi: build matrices: write off-diagonal block")
				}
				continue
			}

			diag := block.New[float64](b.MatrixID, b.BlockRow, b.BlockCol)
			offDiag := block.New[float64](b.MatrixID, b.BlockRow, b.BlockCol)
			for _, e := range b.Entries {
				if e.Row == e.Col {
					diag.Entries = append(diag.Entries, block.Entry[float64]{Row: e.Row, Col: e.Col, V: 1 / e.V})
				} else {
					offDiag.Entries = append(offDiag.Entries, e)
				}
			}
			if err := s.dInverted.WriteBlock(ctx, block.Block[float64]{}, diag); err != nil {
				return errors.Wrap(err, "jacobi: build matrices: write diagonal block")
			}
			if err := s.lPlusU.WriteBlock(ctx, block.Block[float64]{}, offDiag); err != nil {
				return errors.Wrap(err, "jacobi: build matrices: write diagonal-block off-diagonal entries")
			}
		}
	}
	return nil
}

// jacobiIteration computes x := D^-1 * (b - (L+U)*x).
func (s *Solver) jacobiIteration(ctx context.Context, x, b *vector.Handle[float64]) error {
	if err := scheduler.Copy[float64](ctx, s.sched, wire.OpDCOPY, b, s.aux); err != nil {
		return errors.Wrap(err, "jacobi: iteration: copy b")
	}
	if err := scheduler.Gemv[float64](ctx, s.sched, wire.OpDGEMV, wire.NoTrans, -1, s.lPlusU, x, 1, s.aux); err != nil {
		return errors.Wrap(err, "jacobi: iteration: aux -= (L+U)*x")
	}
	if err := scheduler.Gemv[float64](ctx, s.sched, wire.OpDGEMV, wire.NoTrans, 1, s.dInverted, s.aux, 0, x); err != nil {
		return errors.Wrap(err, "jacobi: iteration: x := D^-1*aux")
	}
	return nil
}

// checkConvergence reports whether ||b - A*x||_inf < threshold. A simple
// stopping rule; an application with tighter accuracy needs might prefer a
// relative residual instead.
func (s *Solver) checkConvergence(ctx context.Context, x, b *vector.Handle[float64], threshold float64) (bool, error) {
	if err := scheduler.Copy[float64](ctx, s.sched, wire.OpDCOPY, b, s.aux); err != nil {
		return false, errors.Wrap(err, "jacobi: convergence: copy b")
	}
	if err := scheduler.Gemv[float64](ctx, s.sched, wire.OpDGEMV, wire.NoTrans, -1, s.a, x, 1, s.aux); err != nil {
		return false, errors.Wrap(err, "jacobi: convergence: aux -= A*x")
	}
	idxMax, err := scheduler.Iamax[float64](ctx, s.sched, wire.OpIDAMAX, s.aux)
	if err != nil {
		return false, errors.Wrap(err, "jacobi: convergence: iamax")
	}
	val, err := s.aux.Get(ctx, idxMax)
	if err != nil {
		return false, errors.Wrap(err, "jacobi: convergence: read max entry")
	}
	return math.Abs(val) < threshold, nil
}

// Solve runs up to maxIterations Jacobi sweeps, writing the approximate
// solution into x (used as the initial guess on entry). b is the right-hand
// side of A*x = b.
func (s *Solver) Solve(ctx context.Context, x, b *vector.Handle[float64], maxIterations int, threshold float64) error {
	if x.Length != s.dimensions || b.Length != s.dimensions {
		return ErrDimensionMismatch
	}
	for iter := 0; iter < maxIterations; iter++ {
		if err := s.jacobiIteration(ctx, x, b); err != nil {
			return err
		}
		converged, err := s.checkConvergence(ctx, x, b, threshold)
		if err != nil {
			return err
		}
		if converged {
			return nil
		}
	}
	return ErrConvergenceFailure
}
