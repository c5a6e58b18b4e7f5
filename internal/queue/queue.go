// Package queue implements the persistent, multi-producer/multi-consumer
// task queue of spec.md §4.2: a durable FIFO keyed by a queue id with a
// monotonic produced counter and a monotonic claimed counter, backed by
// conditional ("lightweight transaction") updates when more than one
// producer or consumer is active.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scyllablas/scyllablas/internal/session"
)

// ErrEmpty is returned by Claim when claimed >= produced: no task is
// available right now (spec.md §4.2.3, §4.2.4).
var ErrEmpty = errors.New("queue: empty")

// ErrPayloadNotYetVisible is the bounded poll's terminal error if a claimed
// task's payload never becomes visible within the configured retry budget
// (spec.md §4.2.5 "payload-missing-yet").
var ErrPayloadNotYetVisible = errors.New("queue: payload-missing-yet")

// Queue is a handle to one queue row; it owns no persistent state (spec.md
// §3 "Handles ... own no persistent state").
type Queue struct {
	ID            int64
	MultiProducer bool
	MultiConsumer bool
	sess          *session.Session
	fetchRetries  int
	fetchSleep    time.Duration
}

// Options configures the bounded payload-fetch poll (spec.md §4.2.5).
type Options struct {
	FetchRetries int           // default 50
	FetchSleep   time.Duration // default 2ms
}

func (o Options) withDefaults() Options {
	if o.FetchRetries <= 0 {
		o.FetchRetries = 50
	}
	if o.FetchSleep <= 0 {
		o.FetchSleep = 2 * time.Millisecond
	}
	return o
}

// Create provisions a new queue row with a collision-free id (spec.md §4.5
// "Queue: CREATED -> ACTIVE -> DELETED").
func Create(ctx context.Context, sess *session.Session, multiProducer, multiConsumer bool, opts Options) (*Queue, error) {
	return CreateWithID(ctx, sess, newQueueID(), multiProducer, multiConsumer, opts)
}

// CreateWithID provisions a new queue row under a caller-chosen id, used for
// the one well-known queue the whole cluster must agree on (the shared
// worker queue, spec.md §6's `scylla-blas init`); every other caller goes
// through Create for a collision-free ephemeral id.
func CreateWithID(ctx context.Context, sess *session.Session, id int64, multiProducer, multiConsumer bool, opts Options) (*Queue, error) {
	opts = opts.withDefaults()
	if err := sess.Store.Exec(ctx,
		"INSERT INTO queue_meta (queue_id, multi_producer, multi_consumer, cnt_new, cnt_used) VALUES (?, ?, ?, ?, ?)",
		id, multiProducer, multiConsumer, int64(0), int64(0)); err != nil {
		return nil, errors.Wrap(err, "queue: create")
	}
	return &Queue{
		ID: id, MultiProducer: multiProducer, MultiConsumer: multiConsumer,
		sess: sess, fetchRetries: opts.FetchRetries, fetchSleep: opts.FetchSleep,
	}, nil
}

// Open returns a handle to an existing queue row, reading its mp/mc flags.
func Open(ctx context.Context, sess *session.Session, id int64, opts Options) (*Queue, error) {
	opts = opts.withDefaults()
	var mp, mc bool
	if err := sess.Store.Scan(ctx, "SELECT multi_producer, multi_consumer FROM queue_meta WHERE queue_id = ?",
		[]any{id}, &mp, &mc); err != nil {
		return nil, errors.Wrap(err, "queue: open")
	}
	return &Queue{ID: id, MultiProducer: mp, MultiConsumer: mc, sess: sess, fetchRetries: opts.FetchRetries, fetchSleep: opts.FetchSleep}, nil
}

// newQueueID derives a signed 64-bit id from a fresh UUID, collision-free in
// practice for the ephemeral, one-per-operation-batch subtask queues
// (spec.md §4.5, DESIGN.md).
func newQueueID() int64 {
	u := uuid.New()
	b := u[:8]
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	id := int64(v)
	if id < 0 {
		id = -id
	}
	if id == 0 {
		id = 1
	}
	return id
}

// Produce appends one task and returns its id. Dispatches to the
// single-producer or multi-producer algorithm per spec.md §4.2.1/§4.2.2.
func (q *Queue) Produce(ctx context.Context, payload []byte) (int64, error) {
	ids, err := q.ProduceBatch(ctx, [][]byte{payload})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// ProduceBatch appends len(payloads) tasks as a contiguous run and returns
// their ids in order.
func (q *Queue) ProduceBatch(ctx context.Context, payloads [][]byte) ([]int64, error) {
	n := int64(len(payloads))
	if n == 0 {
		return nil, nil
	}

	var start int64
	if !q.MultiProducer {
		// single-producer (spec.md §4.2.1): unconditional bump.
		var produced int64
		if err := q.sess.Store.Scan(ctx, "SELECT cnt_new FROM queue_meta WHERE queue_id = ?", []any{q.ID}, &produced); err != nil {
			return nil, errors.Wrap(err, "queue: produce: read cursor")
		}
		start = produced
		if err := q.sess.Store.Exec(ctx, "UPDATE queue_meta SET cnt_new = ? WHERE queue_id = ?", produced+n, q.ID); err != nil {
			return nil, errors.Wrap(err, "queue: produce: bump cursor")
		}
	} else {
		// multi-producer (spec.md §4.2.2): conditional retry loop.
		var produced, claimed int64
		if err := q.sess.Store.Scan(ctx, "SELECT cnt_new, cnt_used FROM queue_meta WHERE queue_id = ?", []any{q.ID}, &produced, &claimed); err != nil {
			return nil, errors.Wrap(err, "queue: produce: read cursor")
		}
		for {
			applied, curProduced, _, err := q.sess.Store.BumpCounter(ctx, q.ID, "cnt_new", produced, n)
			if err != nil {
				return nil, errors.Wrap(err, "queue: produce: conditional bump")
			}
			if applied {
				start = produced
				break
			}
			produced = curProduced
		}
	}

	ids := make([]int64, n)
	for i := int64(0); i < n; i++ {
		id := start + i
		ids[i] = id
		if err := q.sess.Store.Exec(ctx,
			"INSERT INTO queue_data (queue_id, task_id, is_finished, value, response) VALUES (?, ?, ?, ?, ?)",
			q.ID, id, false, payloads[i], []byte(nil)); err != nil {
			return nil, errors.Wrapf(err, "queue: produce: insert task %d", id)
		}
	}
	return ids, nil
}

// Claim reserves the next task id and returns its (now-visible) payload.
// Returns ErrEmpty if claimed >= produced.
func (q *Queue) Claim(ctx context.Context) (int64, []byte, error) {
	var claimedID int64
	if !q.MultiConsumer {
		// single-consumer (spec.md §4.2.3): unconditional bump.
		var produced, claimed int64
		if err := q.sess.Store.Scan(ctx, "SELECT cnt_new, cnt_used FROM queue_meta WHERE queue_id = ?", []any{q.ID}, &produced, &claimed); err != nil {
			return 0, nil, errors.Wrap(err, "queue: claim: read cursors")
		}
		if claimed >= produced {
			return 0, nil, ErrEmpty
		}
		claimedID = claimed
		if err := q.sess.Store.Exec(ctx, "UPDATE queue_meta SET cnt_used = ? WHERE queue_id = ?", claimed+1, q.ID); err != nil {
			return 0, nil, errors.Wrap(err, "queue: claim: bump cursor")
		}
	} else {
		// multi-consumer (spec.md §4.2.4): conditional retry loop.
		var produced, claimed int64
		if err := q.sess.Store.Scan(ctx, "SELECT cnt_new, cnt_used FROM queue_meta WHERE queue_id = ?", []any{q.ID}, &produced, &claimed); err != nil {
			return 0, nil, errors.Wrap(err, "queue: claim: read cursors")
		}
		for {
			if claimed >= produced {
				return 0, nil, ErrEmpty
			}
			applied, curProduced, curClaimed, err := q.sess.Store.BumpCounter(ctx, q.ID, "cnt_used", claimed, 1)
			if err != nil {
				return 0, nil, errors.Wrap(err, "queue: claim: conditional bump")
			}
			if applied {
				claimedID = claimed
				break
			}
			produced, claimed = curProduced, curClaimed
		}
	}

	payload, err := q.fetchPayload(ctx, claimedID)
	if err != nil {
		return 0, nil, err
	}
	return claimedID, payload, nil
}

// fetchPayload polls queue_data for task_id with a bounded retry, since the
// producer's counter bump and payload insert may not be atomic with respect
// to a racing consumer (spec.md §4.2.5).
func (q *Queue) fetchPayload(ctx context.Context, taskID int64) ([]byte, error) {
	for attempt := 0; attempt < q.fetchRetries; attempt++ {
		var payload []byte
		err := q.sess.Store.Scan(ctx, "SELECT value FROM queue_data WHERE queue_id = ? AND task_id = ?",
			[]any{q.ID, taskID}, &payload)
		if err == nil && payload != nil {
			return payload, nil
		}
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			return nil, errors.Wrap(err, "queue: fetch payload")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.fetchSleep):
		}
	}
	return nil, ErrPayloadNotYetVisible
}

// MarkFinished sets finished = true and writes response (if non-nil).
// Write-once by contract: the consumer that claimed taskID is the sole
// writer (spec.md §4.2.6).
func (q *Queue) MarkFinished(ctx context.Context, taskID int64, response []byte) error {
	if err := q.sess.Store.Exec(ctx,
		"UPDATE queue_data SET is_finished = ?, response = ? WHERE queue_id = ? AND task_id = ?",
		true, response, q.ID, taskID); err != nil {
		return errors.Wrapf(err, "queue: mark finished: task %d", taskID)
	}
	return nil
}

// IsFinished reports whether taskID has been marked finished.
func (q *Queue) IsFinished(ctx context.Context, taskID int64) (bool, error) {
	var finished bool
	if err := q.sess.Store.Scan(ctx, "SELECT is_finished FROM queue_data WHERE queue_id = ? AND task_id = ?",
		[]any{q.ID, taskID}, &finished); err != nil {
		return false, errors.Wrapf(err, "queue: is finished: task %d", taskID)
	}
	return finished, nil
}

// GetResponse returns the response bytes written by MarkFinished, or nil if
// none was written.
func (q *Queue) GetResponse(ctx context.Context, taskID int64) ([]byte, error) {
	var response []byte
	if err := q.sess.Store.Scan(ctx, "SELECT response FROM queue_data WHERE queue_id = ? AND task_id = ?",
		[]any{q.ID, taskID}, &response); err != nil {
		return nil, errors.Wrapf(err, "queue: get response: task %d", taskID)
	}
	return response, nil
}

// Delete retires the queue: it must only be called after every
// producer/consumer has disowned it (spec.md §4.5 "the scheduler retires
// its subtask queues after collecting all primary responses").
func (q *Queue) Delete(ctx context.Context) error {
	if err := q.sess.Store.Exec(ctx, "DELETE FROM queue_meta WHERE queue_id = ?", q.ID); err != nil {
		return errors.Wrap(err, "queue: delete meta")
	}
	if err := q.sess.Store.Exec(ctx, fmt.Sprintf("DELETE FROM queue_data WHERE queue_id = %d", q.ID)); err != nil {
		return errors.Wrap(err, "queue: delete data")
	}
	return nil
}
