package vector

import (
	"context"
	"testing"

	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/segment"
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
	h, err := Init[float64](ctx, sess, 1, 20, 8)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.Set(ctx, 5, 1.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := h.Get(ctx, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}

func TestReadSegment(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 2, 20, 8)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.Set(ctx, 10, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	s, err := h.ReadSegment(ctx, 2)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if len(s.Entries) != 1 || s.Entries[0].Index != 10 || s.Entries[0].V != 4 {
		t.Fatalf("unexpected segment entries: %+v", s.Entries)
	}
}

func TestWriteSegment_ClearsDroppedEntries(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 3, 20, 8)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.Set(ctx, 1, 9); err != nil {
		t.Fatalf("set: %v", err)
	}
	prior, err := h.ReadSegment(ctx, 1)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	updated := segment.Segment[float64]{Index: 1}
	if err := h.WriteSegment(ctx, prior, updated); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	got, err := h.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected cleared entry, got %v", got)
	}
}

func TestSegmentCount(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)
	h, err := Init[float64](ctx, sess, 4, 17, 8)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if h.SegmentCount() != 3 {
		t.Fatalf("expected 3 segments, got %d", h.SegmentCount())
	}
}
