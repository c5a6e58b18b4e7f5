package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scyllablas/scyllablas/internal/health"
)

// StoreHealthChecker monitors store connectivity via periodic HealthPing
// probes, grounded on the teacher's internal/store.StoreHealthChecker.
// Unlike the teacher's checker there is no fallback-probe chain — just the
// health.HealthPinger branch. The Store interface does not include
// HealthPing, so the checker type-asserts the store to health.HealthPinger
// (both GocqlStore and fakestore.Store implement it); Start reports a store
// without it as unhealthy, and Probe returns nil for one.
type StoreHealthChecker struct {
	store        Store
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewStoreHealthChecker returns a checker that starts unhealthy until its
// first successful probe.
func NewStoreHealthChecker(store Store, log zerolog.Logger, probeTimeout time.Duration) *StoreHealthChecker {
	hc := &StoreHealthChecker{store: store, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0)
	return hc
}

func (hc *StoreHealthChecker) Name() string { return "store" }

func (hc *StoreHealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

// Start begins periodic probing until ctx is done.
func (hc *StoreHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		to := hc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		pinger, ok := hc.store.(health.HealthPinger)
		if !ok || pinger.HealthPing(checkCtx) != nil {
			hc.healthy.Store(0)
			return
		}
		hc.healthy.Store(1)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Probe runs a single synchronous health check, for callers (e.g. the
// `scylla-blas health` CLI command) that want an immediate answer rather
// than the cached value Start maintains.
func (hc *StoreHealthChecker) Probe(ctx context.Context) error {
	pinger, ok := hc.store.(health.HealthPinger)
	if !ok {
		return nil
	}
	return pinger.HealthPing(ctx)
}
