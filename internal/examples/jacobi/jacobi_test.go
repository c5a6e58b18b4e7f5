package jacobi_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scyllablas/scyllablas/internal/examples/jacobi"
	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/worker"
)

func TestSolver_SolveDiagonallyDominantSystem(t *testing.T) {
	ctx := context.Background()
	store, err := fakestore.New(ctx, "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sess := session.New(store, "jacobi_test")
	if err := scheduler.BootstrapWorkerQueue(ctx, sess); err != nil {
		t.Fatalf("bootstrap worker queue: %v", err)
	}
	sched, err := scheduler.Open(ctx, sess, 2, time.Millisecond)
	if err != nil {
		t.Fatalf("open scheduler: %v", err)
	}
	w, err := worker.Open(ctx, sess, worker.Config{Sleep: time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open worker: %v", err)
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	go func() { _ = w.Run(workerCtx) }()
	t.Cleanup(cancelWorker)

	// A = [[4,1],[1,3]], solving Ax = b with b = [1, 2] (exact solution
	// x = [1/11, 7/11]).
	a, err := matrix.Init[float64](ctx, sess, 200, 2, 2, 2)
	if err != nil {
		t.Fatalf("init A: %v", err)
	}
	for _, e := range []struct{ r, c int64; v float64 }{
		{1, 1, 4}, {1, 2, 1}, {2, 1, 1}, {2, 2, 3},
	} {
		if err := a.Set(ctx, e.r, e.c, e.v); err != nil {
			t.Fatalf("set A[%d,%d]: %v", e.r, e.c, err)
		}
	}

	b, err := vector.Init[float64](ctx, sess, 201, 2, 2)
	if err != nil {
		t.Fatalf("init b: %v", err)
	}
	if err := b.Set(ctx, 1, 1); err != nil {
		t.Fatalf("set b[1]: %v", err)
	}
	if err := b.Set(ctx, 2, 2); err != nil {
		t.Fatalf("set b[2]: %v", err)
	}

	x, err := vector.Init[float64](ctx, sess, 202, 2, 2)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}

	solver, err := jacobi.New(ctx, sess, sched, a, 210, 211, 212)
	if err != nil {
		t.Fatalf("jacobi.New: %v", err)
	}

	if err := solver.Solve(ctx, x, b, 100, 1e-6); err != nil {
		t.Fatalf("solve: %v", err)
	}

	got1, err := x.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get x[1]: %v", err)
	}
	got2, err := x.Get(ctx, 2)
	if err != nil {
		t.Fatalf("get x[2]: %v", err)
	}

	const tol = 1e-4
	if diff := got1 - 1.0/11.0; diff > tol || diff < -tol {
		t.Fatalf("x[1] = %v, want ~%v", got1, 1.0/11.0)
	}
	if diff := got2 - 7.0/11.0; diff > tol || diff < -tol {
		t.Fatalf("x[2] = %v, want ~%v", got2, 7.0/11.0)
	}
}

func TestSolver_RejectsNonSquareMatrix(t *testing.T) {
	ctx := context.Background()
	store, err := fakestore.New(ctx, "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sess := session.New(store, "jacobi_test")
	if err := scheduler.BootstrapWorkerQueue(ctx, sess); err != nil {
		t.Fatalf("bootstrap worker queue: %v", err)
	}
	sched, err := scheduler.Open(ctx, sess, 1, time.Millisecond)
	if err != nil {
		t.Fatalf("open scheduler: %v", err)
	}

	a, err := matrix.Init[float64](ctx, sess, 300, 2, 3, 2)
	if err != nil {
		t.Fatalf("init A: %v", err)
	}

	_, err = jacobi.New(ctx, sess, sched, a, 310, 311, 312)
	if !errors.Is(err, jacobi.ErrNotSquare) {
		t.Fatalf("expected ErrNotSquare, got %v", err)
	}
}
