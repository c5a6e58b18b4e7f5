package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/matrix"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/vector"
	"github.com/scyllablas/scyllablas/internal/wire"
)

func newTestScheduler(t *testing.T) (*Scheduler, *session.Session) {
	t.Helper()
	store, err := fakestore.New(context.Background(), "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sess := session.New(store, "blas_test")
	ctx := context.Background()
	if err := BootstrapWorkerQueue(ctx, sess); err != nil {
		t.Fatalf("bootstrap worker queue: %v", err)
	}
	s, err := Open(ctx, sess, 2, time.Millisecond)
	if err != nil {
		t.Fatalf("open scheduler: %v", err)
	}
	return s, sess
}

func TestDot_RejectsMismatchedLength(t *testing.T) {
	ctx := context.Background()
	s, sess := newTestScheduler(t)
	x, err := vector.Init[float64](ctx, sess, 10, 8, 4)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}
	y, err := vector.Init[float64](ctx, sess, 11, 16, 4)
	if err != nil {
		t.Fatalf("init y: %v", err)
	}
	if _, err := Dot[float64](ctx, s, wire.OpDDOT, x, y); err != ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGemv_RejectsAliasedOperands(t *testing.T) {
	ctx := context.Background()
	s, sess := newTestScheduler(t)
	a, err := matrix.Init[float64](ctx, sess, 20, 8, 8, 4)
	if err != nil {
		t.Fatalf("init a: %v", err)
	}
	x, err := vector.Init[float64](ctx, sess, 21, 8, 4)
	if err != nil {
		t.Fatalf("init x: %v", err)
	}
	err = Gemv[float64](ctx, s, wire.OpDGEMV, wire.NoTrans, 1, a, x, 0, x)
	if err != ErrAliasingForbidden {
		t.Fatalf("expected ErrAliasingForbidden, got %v", err)
	}
}

func TestGemm_RejectsIncompatibleShapes(t *testing.T) {
	ctx := context.Background()
	s, sess := newTestScheduler(t)
	a, err := matrix.Init[float64](ctx, sess, 30, 4, 6, 4)
	if err != nil {
		t.Fatalf("init a: %v", err)
	}
	b, err := matrix.Init[float64](ctx, sess, 31, 5, 4, 4)
	if err != nil {
		t.Fatalf("init b: %v", err)
	}
	c, err := matrix.Init[float64](ctx, sess, 32, 4, 4, 4)
	if err != nil {
		t.Fatalf("init c: %v", err)
	}
	err = Gemm[float64](ctx, s, wire.OpDGEMM, wire.NoTrans, wire.NoTrans, 1, a, b, 0, c)
	if err != ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
