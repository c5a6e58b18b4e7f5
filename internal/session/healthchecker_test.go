package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scyllablas/scyllablas/internal/fakestore"
	"github.com/scyllablas/scyllablas/internal/session"
)

func TestStoreHealthChecker_ProbeSucceeds(t *testing.T) {
	ctx := context.Background()
	store, err := fakestore.New(ctx, "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	defer store.Close()

	hc := session.NewStoreHealthChecker(store, zerolog.Nop(), time.Second)
	if err := hc.Probe(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestStoreHealthChecker_StartReportsHealthy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, err := fakestore.New(ctx, "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	defer store.Close()

	hc := session.NewStoreHealthChecker(store, zerolog.Nop(), time.Second)
	go hc.Start(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && !hc.IsHealthy() {
		time.Sleep(5 * time.Millisecond)
	}
	if !hc.IsHealthy() {
		t.Fatalf("expected healthy after start")
	}
}

func TestStoreHealthChecker_ProbeFailsAfterClose(t *testing.T) {
	ctx := context.Background()
	store, err := fakestore.New(ctx, "")
	if err != nil {
		t.Fatalf("fakestore.New: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	hc := session.NewStoreHealthChecker(store, zerolog.Nop(), time.Second)
	if err := hc.Probe(ctx); err == nil {
		t.Fatalf("expected probe to fail against a closed store")
	}
}
