// Package vector provides the typed handle over a vector_<id> operand
// table, the vector analog of internal/matrix (spec.md §3).
package vector

import (
	"context"

	"github.com/pkg/errors"

	"github.com/scyllablas/scyllablas/internal/numeric"
	"github.com/scyllablas/scyllablas/internal/segment"
	"github.com/scyllablas/scyllablas/internal/session"
)

// ErrOperandMissing is returned when a handle is opened for an id with no
// vector_meta row.
var ErrOperandMissing = errors.New("vector: operand-missing")

// Handle is a typed, cheaply-duplicable reference to one vector operand.
type Handle[T numeric.Real] struct {
	ID        int64
	Length    int64
	BlockSize int64
	sess      *session.Session
	stmts     *session.TableStatements
}

// Init creates vector_<id>, records its metadata, and returns a handle.
func Init[T numeric.Real](ctx context.Context, sess *session.Session, id, length, blockSize int64) (*Handle[T], error) {
	if err := sess.Store.Exec(ctx,
		"INSERT INTO vector_meta (id, length, block_size) VALUES (?, ?, ?)", id, length, blockSize); err != nil {
		return nil, errors.Wrap(err, "vector: init: write metadata")
	}
	if err := sess.Store.CreateVectorTable(ctx, id); err != nil {
		return nil, errors.Wrap(err, "vector: init: create table")
	}
	return &Handle[T]{ID: id, Length: length, BlockSize: blockSize, sess: sess, stmts: sess.VectorStatements(id)}, nil
}

// Open reads cached metadata for an existing vector and returns a handle.
func Open[T numeric.Real](ctx context.Context, sess *session.Session, id int64) (*Handle[T], error) {
	var length, blockSize int64
	err := sess.Store.Scan(ctx, "SELECT length, block_size FROM vector_meta WHERE id = ?", []any{id}, &length, &blockSize)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrOperandMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "vector: open")
	}
	return &Handle[T]{ID: id, Length: length, BlockSize: blockSize, sess: sess, stmts: sess.VectorStatements(id)}, nil
}

// Drop deletes the operand table and its metadata row.
func (h *Handle[T]) Drop(ctx context.Context) error {
	if err := h.sess.Store.DropVectorTable(ctx, h.ID); err != nil {
		return errors.Wrap(err, "vector: drop table")
	}
	if err := h.sess.Store.Exec(ctx, "DELETE FROM vector_meta WHERE id = ?", h.ID); err != nil {
		return errors.Wrap(err, "vector: drop metadata")
	}
	h.sess.DropVector(h.ID)
	return nil
}

// SegmentCount is ⌈length/block_size⌉ (spec.md §3).
func (h *Handle[T]) SegmentCount() int64 {
	if h.Length <= 0 {
		return 0
	}
	return (h.Length + h.BlockSize - 1) / h.BlockSize
}

func segmentOf(idx, blockSize int64) int64 { return (idx-1)/blockSize + 1 }

// Set writes a single value; |v| < epsilon deletes instead of inserting.
func (h *Handle[T]) Set(ctx context.Context, idx int64, v T) error {
	seg := segmentOf(idx, h.BlockSize)
	if numeric.IsNegligible(v) {
		return h.sess.Store.Exec(ctx, h.stmts.Delete, seg, idx)
	}
	return h.sess.Store.Exec(ctx, h.stmts.Insert, seg, idx, float64(v))
}

// Get reads a single value; absence denotes zero.
func (h *Handle[T]) Get(ctx context.Context, idx int64) (T, error) {
	seg := segmentOf(idx, h.BlockSize)
	var v float64
	err := h.sess.Store.Scan(ctx, h.stmts.Select, []any{seg, idx}, &v)
	if errors.Is(err, session.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "vector: get")
	}
	return T(v), nil
}

// ReadSegment reads every stored entry of segment seg, re-indexed to
// segment-local coordinates (identical to global here, since a vector's
// segment indexing has no transpose concept).
func (h *Handle[T]) ReadSegment(ctx context.Context, seg int64) (segment.Segment[T], error) {
	s := segment.New[T](h.ID, seg)
	iter := h.sess.Store.Iter(ctx, h.stmts.ScanBlockOrSegment, seg)
	defer iter.Close()

	var idx int64
	var v float64
	for iter.Scan(&idx, &v) {
		s.Entries = append(s.Entries, segment.Entry[T]{Index: idx, V: T(v)})
	}
	if err := iter.Close(); err != nil {
		return s, errors.Wrap(err, "vector: read segment")
	}
	return s, nil
}

// WriteSegment writes every entry of updated back to the store, clearing
// any coordinate present in prior but absent from updated (spec.md §8
// "Coverage": unaffected coordinates are unchanged, affected ones written
// exactly once).
func (h *Handle[T]) WriteSegment(ctx context.Context, prior, updated segment.Segment[T]) error {
	priorIdx := make(map[int64]bool, len(prior.Entries))
	for _, e := range prior.Entries {
		priorIdx[e.Index] = true
	}
	updatedIdx := make(map[int64]bool, len(updated.Entries))
	for _, e := range updated.Entries {
		updatedIdx[e.Index] = true
		if err := h.Set(ctx, e.Index, e.V); err != nil {
			return errors.Wrap(err, "vector: write segment: set")
		}
	}
	for idx := range priorIdx {
		if updatedIdx[idx] {
			continue
		}
		if err := h.Set(ctx, idx, T(0)); err != nil {
			return errors.Wrap(err, "vector: write segment: clear")
		}
	}
	return nil
}
