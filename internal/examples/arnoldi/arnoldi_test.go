package arnoldi_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scyllablas/scyllablas/internal/examples/arnoldi"
	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/worker"
)

func TestIterator_ComputeProducesUnitNormBasisRows(t *testing.T) {
	ctx := context.Background()
	store, err := fakestore.New(ctx, "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sess := session.New(store, "arnoldi_test")
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

	const m = 3
	const n = 2

	a, err := matrix.Init[float32](ctx, sess, 400, m, m, m)
	if err != nil {
		t.Fatalf("init A: %v", err)
	}
	// A symmetric 3x3 matrix, far from a multiple of the identity so the
	// basis vectors are non-trivial.
	vals := [m][m]float32{
		{4, 1, 0},
		{1, 3, 1},
		{0, 1, 2},
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			if err := a.Set(ctx, int64(i+1), int64(j+1), vals[i][j]); err != nil {
				t.Fatalf("set A[%d,%d]: %v", i+1, j+1, err)
			}
		}
	}

	b, err := vector.Init[float32](ctx, sess, 401, m, m)
	if err != nil {
		t.Fatalf("init b: %v", err)
	}
	if err := b.Set(ctx, 1, 1); err != nil {
		t.Fatalf("set b: %v", err)
	}

	h, err := matrix.Init[float32](ctx, sess, 410, n+1, n, m)
	if err != nil {
		t.Fatalf("init h: %v", err)
	}
	qT, err := matrix.Init[float32](ctx, sess, 411, m, n+1, m)
	if err != nil {
		t.Fatalf("init qT: %v", err)
	}
	v, err := vector.Init[float32](ctx, sess, 412, m, m)
	if err != nil {
		t.Fatalf("init v: %v", err)
	}
	q, err := vector.Init[float32](ctx, sess, 413, m, m)
	if err != nil {
		t.Fatalf("init q: %v", err)
	}
	tVec, err := vector.Init[float32](ctx, sess, 414, m, m)
	if err != nil {
		t.Fatalf("init t: %v", err)
	}

	it := arnoldi.New(sched)
	if err := it.Compute(ctx, a, b, n, h, qT, v, q, tVec); err != nil {
		t.Fatalf("compute: %v", err)
	}

	// The first n basis rows of qT must be unit-norm.
	for row := int64(1); row <= n; row++ {
		var sumSq float64
		for col := int64(1); col <= m; col++ {
			val, err := qT.Get(ctx, row, col)
			if err != nil {
				t.Fatalf("get qT[%d,%d]: %v", row, col, err)
			}
			sumSq += float64(val) * float64(val)
		}
		norm := math.Sqrt(sumSq)
		if diff := norm - 1; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("basis row %d has norm %v, want ~1", row, norm)
		}
	}
}
