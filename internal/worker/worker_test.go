package worker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/queue"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

func newTestRig(t *testing.T) (*session.Session, *scheduler.Scheduler, *Worker) {
	t.Helper()
	store, err := fakestore.New(context.Background(), "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sess := session.New(store, "blas_test")
	ctx := context.Background()
	if err := scheduler.BootstrapWorkerQueue(ctx, sess); err != nil {
		t.Fatalf("bootstrap worker queue: %v", err)
	}
	s, err := scheduler.Open(ctx, sess, 2, time.Millisecond)
	if err != nil {
		t.Fatalf("open scheduler: %v", err)
	}
	w, err := Open(ctx, sess, Config{Sleep: time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open worker: %v", err)
	}
	return sess, s, w
}

// drain runs w.step until every primary task posted by op has been claimed
// and finished, or attempts run out. Tests avoid worker.Run's infinite loop
// so they terminate deterministically.
func drain(t *testing.T, ctx context.Context, w *Worker) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		err := w.step(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, queue.ErrEmpty) {
			return
		}
		t.Fatalf("worker step: %v", err)
	}
	t.Fatalf("drain: exceeded attempt budget")
}

func TestDot_EndToEnd(t *testing.T) {
	ctx := context.Background()
	sess, s, w := newTestRig(t)

	x, err := vector.Init[float64](ctx, sess, 100, 4, 2)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}
	y, err := vector.Init[float64](ctx, sess, 101, 4, 2)
	if err != nil {
		t.Fatalf("init y: %v", err)
	}
	for i, v := range []float64{1, 2, 3, 4} {
		idx := int64(i + 1)
		if err := x.Set(ctx, idx, v); err != nil {
			t.Fatalf("set x[%d]: %v", idx, err)
		}
		if err := y.Set(ctx, idx, v); err != nil {
			t.Fatalf("set y[%d]: %v", idx, err)
		}
	}

	done := make(chan struct{})
	var got float64
	var opErr error
	go func() {
		got, opErr = scheduler.Dot[float64](ctx, s, wire.OpDDOT, x, y)
		close(done)
	}()

	drain(t, ctx, w)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dot did not complete")
	}
	if opErr != nil {
		t.Fatalf("dot: %v", opErr)
	}
	// 1+4+9+16 = 30.
	if got != 30 {
		t.Fatalf("expected 30, got %v", got)
	}
}

func TestScal_EndToEnd(t *testing.T) {
	ctx := context.Background()
	sess, s, w := newTestRig(t)

	x, err := vector.Init[float64](ctx, sess, 110, 4, 2)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}
	for i, v := range []float64{1, 2, 3, 4} {
		if err := x.Set(ctx, int64(i+1), v); err != nil {
			t.Fatalf("set x: %v", err)
		}
	}

	done := make(chan struct{})
	var opErr error
	go func() {
		opErr = scheduler.Scal[float64](ctx, s, wire.OpDSCAL, 2, x)
		close(done)
	}()

	drain(t, ctx, w)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scal did not complete")
	}
	if opErr != nil {
		t.Fatalf("scal: %v", opErr)
	}
	got, err := x.Get(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 6 {
		t.Fatalf("expected 6, got %v", got)
	}
}

// TestTrsv_EndToEnd solves a lower-triangular A*x=b by forward substitution
// and checks the Jacobi sweep converges to the true solution. X is seeded
// with b on entry (the right-hand side), as Trsv's contract requires. If the
// fixed right-hand side were not threaded through a helper vector and each
// sweep instead read the RHS back off the mutable X, the recurrence would
// solve A*x=x instead and converge to a different (here: zero) fixed point,
// so this test would fail against that regression.
func TestTrsv_EndToEnd(t *testing.T) {
	ctx := context.Background()
	sess, s, w := newTestRig(t)

	a, err := matrix.Init[float64](ctx, sess, 120, 2, 2, 2)
	if err != nil {
		t.Fatalf("init a: %v", err)
	}
	for _, e := range []struct{ r, c int64; v float64 }{
		{1, 1, 2}, {2, 1, 1}, {2, 2, 3},
	} {
		if err := a.Set(ctx, e.r, e.c, e.v); err != nil {
			t.Fatalf("set a[%d,%d]: %v", e.r, e.c, err)
		}
	}

	x, err := vector.Init[float64](ctx, sess, 121, 2, 2)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}
	// b = [4, 11]; exact solution x = [2, 3].
	if err := x.Set(ctx, 1, 4); err != nil {
		t.Fatalf("set x[1]: %v", err)
	}
	if err := x.Set(ctx, 2, 11); err != nil {
		t.Fatalf("set x[2]: %v", err)
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	go func() { _ = w.Run(workerCtx) }()
	t.Cleanup(cancelWorker)

	done := make(chan struct{})
	var opErr error
	go func() {
		opErr = scheduler.Trsv[float64](ctx, s, wire.OpDTRSV, wire.Lower, wire.NoTrans, wire.NonUnit, a, x, 200)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("trsv did not complete")
	}
	if opErr != nil {
		t.Fatalf("trsv: %v", opErr)
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
	if math.Abs(got1-2) > tol {
		t.Fatalf("x[1] = %v, want ~2", got1)
	}
	if math.Abs(got2-3) > tol {
		t.Fatalf("x[2] = %v, want ~3", got2)
	}
}

// TestTbsv_EndToEnd is TestTrsv_EndToEnd's banded analog, solving a
// lower-bidiagonal system (bandwidth 1) by forward substitution.
func TestTbsv_EndToEnd(t *testing.T) {
	ctx := context.Background()
	sess, s, w := newTestRig(t)

	a, err := matrix.Init[float64](ctx, sess, 130, 3, 3, 3)
	if err != nil {
		t.Fatalf("init a: %v", err)
	}
	for _, e := range []struct{ r, c int64; v float64 }{
		{1, 1, 2}, {2, 1, 1}, {2, 2, 3}, {3, 2, 1}, {3, 3, 4},
	} {
		if err := a.Set(ctx, e.r, e.c, e.v); err != nil {
			t.Fatalf("set a[%d,%d]: %v", e.r, e.c, err)
		}
	}

	x, err := vector.Init[float64](ctx, sess, 131, 3, 3)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}
	// b = [4, 11, 15]; exact solution x = [2, 3, 3].
	for i, v := range []float64{4, 11, 15} {
		if err := x.Set(ctx, int64(i+1), v); err != nil {
			t.Fatalf("set x[%d]: %v", i+1, err)
		}
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	go func() { _ = w.Run(workerCtx) }()
	t.Cleanup(cancelWorker)

	done := make(chan struct{})
	var opErr error
	go func() {
		opErr = scheduler.Tbsv[float64](ctx, s, wire.OpDTBSV, wire.Lower, wire.NoTrans, wire.NonUnit, 1, a, x, 200)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tbsv did not complete")
	}
	if opErr != nil {
		t.Fatalf("tbsv: %v", opErr)
	}

	want := []float64{2, 3, 3}
	for i, wantVal := range want {
		got, err := x.Get(ctx, int64(i+1))
		if err != nil {
			t.Fatalf("get x[%d]: %v", i+1, err)
		}
		const tol = 1e-4
		if math.Abs(got-wantVal) > tol {
			t.Fatalf("x[%d] = %v, want ~%v", i+1, got, wantVal)
		}
	}
}
