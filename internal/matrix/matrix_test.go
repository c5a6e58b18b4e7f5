package matrix

import (
	"context"
	"testing"

	"github.com/scyllablas/scyllablas/internal/block"
	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/session"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	store, err := fakestore.New(context.Background(), "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return session.New(store, "blas_test")
}

func TestSetGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 1, 10, 10, 4)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.Set(ctx, 3, 5, 2.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := h.Get(ctx, 3, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
}

func TestSet_BelowEpsilonDeletes(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 2, 10, 10, 4)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.Set(ctx, 1, 1, 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := h.Set(ctx, 1, 1, 1e-12); err != nil {
		t.Fatalf("set negligible: %v", err)
	}
	got, err := h.Get(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 after negligible overwrite, got %v", got)
	}
}

func TestReadBlock_ReindexesToBlockLocal(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 3, 8, 8, 4)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	// global (5, 6) is block (2, 2), local (1, 2).
	if err := h.Set(ctx, 5, 6, 9); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, err := h.ReadBlock(ctx, 2, 2, false)
	if err != nil {
		t.Fatalf("read block: %v", err)
	}
	if len(b.Entries) != 1 || b.Entries[0].Row != 1 || b.Entries[0].Col != 2 || b.Entries[0].V != 9 {
		t.Fatalf("unexpected block entries: %+v", b.Entries)
	}
}

func TestWriteBlock_ClearsDroppedEntries(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 4, 8, 8, 4)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.Set(ctx, 1, 1, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	prior, err := h.ReadBlock(ctx, 1, 1, false)
	if err != nil {
		t.Fatalf("read block: %v", err)
	}
	updated := block.Block[float64]{BlockRow: 1, BlockCol: 1}
	if err := h.WriteBlock(ctx, prior, updated); err != nil {
		t.Fatalf("write block: %v", err)
	}
	got, err := h.Get(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected cleared entry, got %v", got)
	}
}

func TestBlockRowColCount(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 5, 10, 9, 4)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if h.BlockRowCount() != 3 || h.BlockColCount() != 3 {
		t.Fatalf("expected 3x3 block grid, got %dx%d", h.BlockRowCount(), h.BlockColCount())
	}
}
