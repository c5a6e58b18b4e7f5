// Package matrix provides the typed handle over a matrix_<id> operand table
// (spec.md §3, §9): a thin wrapper that borrows its session's cached
// statements and carries the element type. There is no separate
// basic/typed handle split (spec.md §9 "no inheritance is required").
package matrix

import (
	"context"

	"github.com/pkg/errors"

	"github.com/scyllablas/scyllablas/internal/block"
	"github.com/scyllablas/scyllablas/internal/numeric"
	"github.com/scyllablas/scyllablas/internal/session"
)

// ErrOperandMissing is returned when a handle is opened for an id with no
// matrix_meta row (spec.md §7 "operand-missing").
var ErrOperandMissing = errors.New("matrix: operand-missing")

// Handle is a typed, cheaply-duplicable reference to one matrix operand.
// Rows/Cols/BlockSize are cached at construction (spec.md §3).
type Handle[T numeric.Real] struct {
	ID        int64
	Rows      int64
	Cols      int64
	BlockSize int64
	sess      *session.Session
	stmts     *session.TableStatements
}

// Init creates matrix_<id>, records its metadata, and returns a handle to it
// (spec.md §3 "operands are created via init").
func Init[T numeric.Real](ctx context.Context, sess *session.Session, id, rows, cols, blockSize int64) (*Handle[T], error) {
	if err := sess.Store.Exec(ctx,
		"INSERT INTO matrix_meta (id, row_count, column_count, block_size) VALUES (?, ?, ?, ?)",
		id, rows, cols, blockSize); err != nil {
		return nil, errors.Wrap(err, "matrix: init: write metadata")
	}
	if err := sess.Store.CreateMatrixTable(ctx, id); err != nil {
		return nil, errors.Wrap(err, "matrix: init: create table")
	}
	return &Handle[T]{ID: id, Rows: rows, Cols: cols, BlockSize: blockSize, sess: sess, stmts: sess.MatrixStatements(id)}, nil
}

// Open reads cached metadata for an existing matrix and returns a handle.
func Open[T numeric.Real](ctx context.Context, sess *session.Session, id int64) (*Handle[T], error) {
	var rows, cols, blockSize int64
	err := sess.Store.Scan(ctx, "SELECT row_count, column_count, block_size FROM matrix_meta WHERE id = ?",
		[]any{id}, &rows, &cols, &blockSize)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrOperandMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "matrix: open")
	}
	return &Handle[T]{ID: id, Rows: rows, Cols: cols, BlockSize: blockSize, sess: sess, stmts: sess.MatrixStatements(id)}, nil
}

// Drop deletes the operand table and its metadata row.
func (h *Handle[T]) Drop(ctx context.Context) error {
	if err := h.sess.Store.DropMatrixTable(ctx, h.ID); err != nil {
		return errors.Wrap(err, "matrix: drop table")
	}
	if err := h.sess.Store.Exec(ctx, "DELETE FROM matrix_meta WHERE id = ?", h.ID); err != nil {
		return errors.Wrap(err, "matrix: drop metadata")
	}
	h.sess.DropMatrix(h.ID)
	return nil
}

// BlockRowCount and BlockColCount are the block-grid dimensions
// (⌈rows/block_size⌉, ⌈cols/block_size⌉), per spec.md §3.
func (h *Handle[T]) BlockRowCount() int64 { return ceilDiv(h.Rows, h.BlockSize) }
func (h *Handle[T]) BlockColCount() int64 { return ceilDiv(h.Cols, h.BlockSize) }

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// blockOf returns the (block_row, block_col) a global (row, col) belongs to,
// 1-indexed per spec.md §3.
func blockOf(row, col, blockSize int64) (int64, int64) {
	return (row-1)/blockSize + 1, (col-1)/blockSize + 1
}

// Set writes a single value; |v| < epsilon deletes instead of inserting
// (spec.md §3 "writes with |v|<ε delete instead of insert").
func (h *Handle[T]) Set(ctx context.Context, row, col int64, v T) error {
	blockRow, blockCol := blockOf(row, col, h.BlockSize)
	if numeric.IsNegligible(v) {
		return h.sess.Store.Exec(ctx, h.stmts.Delete, blockRow, row, col)
	}
	return h.sess.Store.Exec(ctx, h.stmts.Insert, blockRow, blockCol, row, col, float64(v))
}

// Get reads a single value; absence denotes zero.
func (h *Handle[T]) Get(ctx context.Context, row, col int64) (T, error) {
	blockRow, _ := blockOf(row, col, h.BlockSize)
	var v float64
	err := h.sess.Store.Scan(ctx, h.stmts.Select, []any{blockRow, row, col}, &v)
	if errors.Is(err, session.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "matrix: get")
	}
	return T(v), nil
}

// ReadBlock reads every stored entry of block (blockRow, blockCol),
// re-indexed to block-local coordinates. If transpose is true, the block is
// read and then transposed in memory (spec.md §4.4 "with transposition
// applied at read time").
func (h *Handle[T]) ReadBlock(ctx context.Context, blockRow, blockCol int64, transpose bool) (block.Block[T], error) {
	b := block.New[T](h.ID, blockRow, blockCol)
	iter := h.sess.Store.Iter(ctx, h.stmts.ScanBlockOrSegment, blockRow, blockCol)
	defer iter.Close()

	var globalRow, globalCol int64
	var v float64
	for iter.Scan(&globalRow, &globalCol, &v) {
		localRow := globalRow - (blockRow-1)*h.BlockSize
		localCol := globalCol - (blockCol-1)*h.BlockSize
		b.Entries = append(b.Entries, block.Entry[T]{Row: localRow, Col: localCol, V: T(v)})
	}
	if err := iter.Close(); err != nil {
		return b, errors.Wrap(err, "matrix: read block")
	}
	if transpose {
		b = b.Transpose()
	}
	return b, nil
}

// WriteBlock writes every entry of b back to the store at b's
// (BlockRow, BlockCol), converting block-local coordinates back to global
// row/col. It is the caller's responsibility to have read the prior state
// of the block so unaffected coordinates are left unchanged by composing
// the new value set before calling WriteBlock (spec.md §8 "Coverage").
func (h *Handle[T]) WriteBlock(ctx context.Context, prior, updated block.Block[T]) error {
	priorKeys := make(map[[2]int64]bool, len(prior.Entries))
	for _, e := range prior.Entries {
		priorKeys[[2]int64{e.Row, e.Col}] = true
	}
	updatedKeys := make(map[[2]int64]bool, len(updated.Entries))
	for _, e := range updated.Entries {
		updatedKeys[[2]int64{e.Row, e.Col}] = true
		globalRow := (updated.BlockRow-1)*h.BlockSize + e.Row
		globalCol := (updated.BlockCol-1)*h.BlockSize + e.Col
		if err := h.Set(ctx, globalRow, globalCol, e.V); err != nil {
			return errors.Wrap(err, "matrix: write block: set")
		}
	}
	for key := range priorKeys {
		if updatedKeys[key] {
			continue
		}
		globalRow := (updated.BlockRow-1)*h.BlockSize + key[0]
		globalCol := (updated.BlockCol-1)*h.BlockSize + key[1]
		if err := h.Set(ctx, globalRow, globalCol, T(0)); err != nil {
			return errors.Wrap(err, "matrix: write block: clear")
		}
	}
	return nil
}

// ReadRow reads every stored entry of global row idx across all block
// columns, used by gemv's row-wise read path (spec.md §6).
func (h *Handle[T]) ReadRow(ctx context.Context, row int64) ([]block.Entry[T], error) {
	blockRow, _ := blockOf(row, 1, h.BlockSize)
	iter := h.sess.Store.Iter(ctx, h.stmts.ScanRow, blockRow, row)
	defer iter.Close()

	var entries []block.Entry[T]
	var col int64
	var v float64
	for iter.Scan(&col, &v) {
		entries = append(entries, block.Entry[T]{Row: row, Col: col, V: T(v)})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "matrix: read row")
	}
	return entries, nil
}

// ReadColumn reads every stored entry of global column idx across all
// block_x partitions, used by the transposed-operand read path of gemv and
// gemm-family kernels.
func (h *Handle[T]) ReadColumn(ctx context.Context, col int64) ([]block.Entry[T], error) {
	iter := h.sess.Store.Iter(ctx, h.stmts.ScanColumn, col)
	defer iter.Close()

	var entries []block.Entry[T]
	var row int64
	var v float64
	for iter.Scan(&row, &v) {
		entries = append(entries, block.Entry[T]{Row: row, Col: col, V: T(v)})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "matrix: read column")
	}
	return entries, nil
}
