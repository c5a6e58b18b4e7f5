package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checker is implemented by component-level health probes — the store
// connection, a scheduler's worker queue, anything with its own notion of
// up/down. EngineHealthChecker aggregates a set of these into one flag.
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// EngineHealthChecker aggregates component checkers (store, queue, worker
// pool, ...) into a single engine-wide health flag, flipping to unhealthy
// the moment any dependency reports unhealthy.
type EngineHealthChecker struct {
	healthy atomic.Int32
	deps    []Checker
	log     zerolog.Logger
}

// NewEngineHealthChecker returns an aggregator that starts unhealthy until
// its first evaluation.
func NewEngineHealthChecker(log zerolog.Logger, deps ...Checker) *EngineHealthChecker {
	h := &EngineHealthChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns the cached engine-wide health flag.
func (h *EngineHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Start periodically re-evaluates every dependency and updates the engine
// flag, logging only on state transitions.
func (h *EngineHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		all := true
		for _, c := range h.deps {
			if !c.IsHealthy() {
				all = false
			}
		}
		if all {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("engine health: UP")
			} else {
				h.log.Error().Stack().Msg("engine health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
