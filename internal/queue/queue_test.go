package queue

import (
	"context"
	"testing"

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

// TestQueueConformance exercises all four (producer, consumer) modes against
// a batch of 8 tasks, per spec.md §8 scenario 5.
func TestQueueConformance(t *testing.T) {
	modes := []struct {
		name          string
		multiProducer bool
		multiConsumer bool
	}{
		{"sp-sc", false, false},
		{"mp-sc", true, false},
		{"sp-mc", false, true},
		{"mp-mc", true, true},
	}

	for _, m := range modes {
		m := m
		t.Run(m.name, func(t *testing.T) {
			sess := newTestSession(t)
			ctx := context.Background()

			q, err := Create(ctx, sess, m.multiProducer, m.multiConsumer, Options{})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			payloads := make([][]byte, 8)
			for i := range payloads {
				payloads[i] = []byte{byte(i)}
			}
			ids, err := q.ProduceBatch(ctx, payloads)
			if err != nil {
				t.Fatalf("produce batch: %v", err)
			}
			if len(ids) != 8 {
				t.Fatalf("expected 8 ids, got %d", len(ids))
			}

			seen := make(map[int64]bool)
			for i := 0; i < 8; i++ {
				taskID, payload, err := q.Claim(ctx)
				if err != nil {
					t.Fatalf("claim %d: %v", i, err)
				}
				if seen[taskID] {
					t.Fatalf("task %d claimed twice", taskID)
				}
				seen[taskID] = true
				if len(payload) != 1 {
					t.Fatalf("unexpected payload length for task %d: %v", taskID, payload)
				}

				response := []byte{byte(100 + i)}
				if err := q.MarkFinished(ctx, taskID, response); err != nil {
					t.Fatalf("mark finished %d: %v", taskID, err)
				}
				finished, err := q.IsFinished(ctx, taskID)
				if err != nil || !finished {
					t.Fatalf("expected task %d finished, err=%v", taskID, err)
				}
				got, err := q.GetResponse(ctx, taskID)
				if err != nil {
					t.Fatalf("get response %d: %v", taskID, err)
				}
				if len(got) != 1 || got[0] != response[0] {
					t.Fatalf("response mismatch for task %d: got %v want %v", taskID, got, response)
				}
			}

			if len(seen) != 8 {
				t.Fatalf("expected all 8 produced ids consumed exactly once, got %d", len(seen))
			}

			if _, _, err := q.Claim(ctx); err != ErrEmpty {
				t.Fatalf("expected ErrEmpty after draining queue, got %v", err)
			}
		})
	}
}

func TestClaim_EmptyQueueReturnsErrEmpty(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()
	q, err := Create(ctx, sess, false, false, Options{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := q.Claim(ctx); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
