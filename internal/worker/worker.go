// Package worker implements the worker dispatch loop of spec.md §4.4: claim
// a primary task from the shared worker queue, dispatch it to the kernel
// matching its BLAS operation, drain the referenced subtask queue, and mark
// the primary task finished with a combinable response.
//
// The poll-loop/dispatch-by-op/mark-done-or-failed shape is adapted from
// the teacher's outbox worker (internal/outbox's ticker loop and per-op
// switch), generalized from a fixed Postgres outbox table to the queue
// package's backend-agnostic claim/finish cycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scyllablas/scyllablas/internal/queue"
	"github.com/scyllablas/scyllablas/internal/scheduler"
	"github.com/scyllablas/scyllablas/internal/session"
	"github.com/scyllablas/scyllablas/internal/wire"
)

// Config controls the worker's idle-poll cadence (spec.md §9 "busy-wait
// sleep requirement": workers sleep a configured duration between empty
// claims rather than spinning).
type Config struct {
	Sleep time.Duration
}

func (c Config) withDefaults() Config {
	if c.Sleep <= 0 {
		c.Sleep = 5 * time.Millisecond
	}
	return c
}

// Worker claims and executes primary tasks from the shared worker queue.
type Worker struct {
	sess  *session.Session
	queue *queue.Queue
	cfg   Config
	log   zerolog.Logger
}

// Open attaches to the shared worker queue.
func Open(ctx context.Context, sess *session.Session, cfg Config, log zerolog.Logger) (*Worker, error) {
	cfg = cfg.withDefaults()
	q, err := queue.Open(ctx, sess, scheduler.WorkerQueueID, queue.Options{})
	if err != nil {
		return nil, err
	}
	return &Worker{sess: sess, queue: q, cfg: cfg, log: log}, nil
}

// Run claims and executes primary tasks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("sleep", w.cfg.Sleep).Msg("worker starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopping")
			return ctx.Err()
		default:
		}

		if err := w.step(ctx); err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(w.cfg.Sleep):
				}
				continue
			}
			w.log.Error().Err(err).Msg("worker step")
		}
	}
}

// step claims one primary task, dispatches it, and marks it finished. It is
// exported-shaped (lowercase, but a single unit) so tests can drive one
// iteration deterministically instead of running the loop under a timeout.
//
// A dispatch failure leaves the task unmarked (spec.md §7 "a kernel failure
// leaves its primary task unmarked, so the scheduler polls until the
// caller's own timeout, if any, fires"): marking it finished anyway would
// hand the caller a bogus NoneResponse and would falsely report the
// subtasks that failed mid-drain as covered (spec.md §8 Coverage), when in
// fact some of them may never have been claimed.
func (w *Worker) step(ctx context.Context) error {
	taskID, payload, err := w.queue.Claim(ctx)
	if err != nil {
		return err
	}
	resp, err := w.dispatch(ctx, payload)
	if err != nil {
		w.log.Error().Err(err).Int64("task", taskID).Msg("dispatch failed")
		return err
	}
	return w.queue.MarkFinished(ctx, taskID, wire.EncodeResponse(resp))
}

func (w *Worker) dispatch(ctx context.Context, payload []byte) (wire.Response, error) {
	p, err := wire.Decode(payload)
	if err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case wire.VectorOp:
		return w.runVectorOp(ctx, v)
	case wire.MixedOp:
		return w.runMixedOp(ctx, v)
	case wire.MatrixOp:
		return w.runMatrixOp(ctx, v)
	case wire.Generation:
		return w.runGeneration(ctx, v)
	default:
		return nil, fmt.Errorf("worker: unexpected primary payload %T", p)
	}
}
