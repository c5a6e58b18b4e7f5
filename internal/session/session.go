package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// TableStatements is the set of query strings a handle needs against one
// per-operand table, built once and shared by every handle addressing the
// same table (spec.md §9 "Base/derived split of handles").
type TableStatements struct {
	Table  string
	Insert string
	Select string
	Delete string
	// ScanBlockOrSegment selects all rows of one block (matrix) or the
	// whole segment (vector), used by block/segment read.
	ScanBlockOrSegment string
	// ScanRow selects one global row across all block columns in a
	// partition, used by gemv's per-row read (spec.md §6).
	ScanRow string
	// ScanColumn selects one global column across every block_x partition,
	// used by gemv/gemm's transposed-operand read path.
	ScanColumn string
}

// Session is the non-generic, session-scoped statement cache described in
// spec.md §9: owned by the first handle constructed against it, shared by
// reference with every later handle on the same underlying Store. It owns
// no persistent state of its own (spec.md §3 "Handles ... own no persistent
// state").
type Session struct {
	Store    Store
	Keyspace string

	mu          sync.Mutex
	matrixStmts map[int64]*TableStatements
	vectorStmts map[int64]*TableStatements
}

// New wraps a Store with a fresh statement cache.
func New(store Store, keyspace string) *Session {
	return &Session{
		Store:       store,
		Keyspace:    keyspace,
		matrixStmts: make(map[int64]*TableStatements),
		vectorStmts: make(map[int64]*TableStatements),
	}
}

// MatrixStatements returns the cached statement set for matrix_<id>,
// building it on first use and sharing it with every later caller that
// addresses the same id on this session.
func (s *Session) MatrixStatements(id int64) *TableStatements {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.matrixStmts[id]; ok {
		return st
	}
	table := fmt.Sprintf("matrix_%d", id)
	st := &TableStatements{
		Table:              table,
		Insert:             fmt.Sprintf("INSERT INTO %s (block_x, block_y, id_x, id_y, value) VALUES (?, ?, ?, ?, ?)", table),
		Select:             fmt.Sprintf("SELECT value FROM %s WHERE block_x = ? AND id_x = ? AND id_y = ?", table),
		Delete:             fmt.Sprintf("DELETE FROM %s WHERE block_x = ? AND id_x = ? AND id_y = ?", table),
		// block_y is not part of the primary key (spec.md §6: partition is
		// (block_x) only, clustered by (id_x, id_y) so gemv can filter a
		// single global row); selecting one block therefore filters on
		// block_y within the block_x partition.
		ScanBlockOrSegment: fmt.Sprintf("SELECT id_x, id_y, value FROM %s WHERE block_x = ? AND block_y = ? ALLOW FILTERING", table),
		ScanRow:            fmt.Sprintf("SELECT id_y, value FROM %s WHERE block_x = ? AND id_x = ?", table),
		// No partition key constrains this one; it scans every block_x
		// partition, acceptable for the representative BLAS subset this
		// engine targets (spec.md §1 scope) rather than production-scale
		// column access.
		ScanColumn: fmt.Sprintf("SELECT id_x, value FROM %s WHERE id_y = ? ALLOW FILTERING", table),
	}
	s.matrixStmts[id] = st
	return st
}

// VectorStatements returns the cached statement set for vector_<id>.
func (s *Session) VectorStatements(id int64) *TableStatements {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.vectorStmts[id]; ok {
		return st
	}
	table := fmt.Sprintf("vector_%d", id)
	st := &TableStatements{
		Table:              table,
		Insert:             fmt.Sprintf("INSERT INTO %s (segment, idx, value) VALUES (?, ?, ?)", table),
		Select:             fmt.Sprintf("SELECT value FROM %s WHERE segment = ? AND idx = ?", table),
		Delete:             fmt.Sprintf("DELETE FROM %s WHERE segment = ? AND idx = ?", table),
		ScanBlockOrSegment: fmt.Sprintf("SELECT idx, value FROM %s WHERE segment = ?", table),
	}
	s.vectorStmts[id] = st
	return st
}

// DropMatrix forgets the id's cached statements; callers must still issue
// the DROP TABLE / metadata delete through Store themselves (this only
// invalidates the cache so a later re-init of the same id rebuilds
// statements against the fresh table).
func (s *Session) DropMatrix(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matrixStmts, id)
}

// DropVector forgets the id's cached statements; see DropMatrix.
func (s *Session) DropVector(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectorStmts, id)
}

// Bootstrap issues, through store.Exec, CREATE KEYSPACE and the four
// coordination/metadata tables (matrix_meta, vector_meta, queue_meta,
// queue_data) shared by every operand and queue. Every statement goes to
// the store unchanged; the keyspace statement has no per-backend special
// case.
func Bootstrap(ctx context.Context, store Store, keyspace string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
			WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1}`, keyspace),
		`CREATE TABLE IF NOT EXISTS matrix_meta (
			id BIGINT PRIMARY KEY, row_count BIGINT, column_count BIGINT, block_size BIGINT)`,
		`CREATE TABLE IF NOT EXISTS vector_meta (
			id BIGINT PRIMARY KEY, length BIGINT, block_size BIGINT)`,
		`CREATE TABLE IF NOT EXISTS queue_meta (
			queue_id BIGINT PRIMARY KEY, multi_producer BOOLEAN, multi_consumer BOOLEAN,
			cnt_new BIGINT, cnt_used BIGINT)`,
		`CREATE TABLE IF NOT EXISTS queue_data (
			queue_id BIGINT, task_id BIGINT, is_finished BOOLEAN, value BLOB, response BLOB,
			PRIMARY KEY (queue_id, task_id))`,
	}
	for _, stmt := range stmts {
		if err := store.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "session: bootstrap: %q", stmt)
		}
	}
	return nil
}
