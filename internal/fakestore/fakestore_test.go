package fakestore

import (
	"context"
	"testing"
)

func TestBumpCounter_SucceedsOnMatchingExpected(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()

	if err := store.Exec(ctx, "INSERT INTO queue_meta (queue_id, multi_producer, multi_consumer, cnt_new, cnt_used) VALUES (?, ?, ?, ?, ?)", 1, 0, 0, 0, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	applied, produced, claimed, err := store.BumpCounter(ctx, 1, "cnt_new", 0, 1)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if !applied || produced != 1 || claimed != 0 {
		t.Fatalf("expected applied with produced=1, got applied=%v produced=%d claimed=%d", applied, produced, claimed)
	}
}

func TestBumpCounter_FailsOnStaleExpected(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()

	_ = store.Exec(ctx, "INSERT INTO queue_meta (queue_id, multi_producer, multi_consumer, cnt_new, cnt_used) VALUES (?, ?, ?, ?, ?)", 2, 0, 0, 5, 0)

	applied, produced, claimed, err := store.BumpCounter(ctx, 2, "cnt_new", 0, 1)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if applied {
		t.Fatalf("expected CAS to fail on stale expected value")
	}
	if produced != 5 || claimed != 0 {
		t.Fatalf("expected current state returned, got produced=%d claimed=%d", produced, claimed)
	}
}

func TestCreateAndDropMatrixTable(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()

	if err := store.CreateMatrixTable(ctx, 7); err != nil {
		t.Fatalf("create matrix table: %v", err)
	}
	if err := store.Exec(ctx, "INSERT INTO matrix_7 (block_x, block_y, id_x, id_y, value) VALUES (?, ?, ?, ?, ?)", 1, 1, 1, 1, 3.5); err != nil {
		t.Fatalf("insert into matrix table: %v", err)
	}
	if err := store.DropMatrixTable(ctx, 7); err != nil {
		t.Fatalf("drop matrix table: %v", err)
	}
}
