// Package fakestore is a Docker-free stand-in for the real Scylla/Cassandra
// store, backed by modernc.org/sqlite, grounded on the teacher's
// internal/storage/sqlite driver adapter. It implements
// internal/session.Store so the queue/matrix/vector/scheduler/worker
// packages can be unit tested without a running cluster.
//
// It is not a second production backend: the conditional counter bump that
// the real store expresses as a CQL lightweight transaction is expressed
// here as a serialized read-modify-write transaction, which is a faithful
// enough stand-in for test purposes (a single process, single *sql.DB,
// writes serialized by SQLite itself).
package fakestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/scyllablas/scyllablas/internal/session"
)

// stripCQLOnly drops the trailing "ALLOW FILTERING" clause that the shared
// statement strings in internal/session carry for the real CQL backend;
// SQLite has no partition-key restriction to waive in the first place.
func stripCQLOnly(stmt string) string {
	return strings.TrimSuffix(strings.TrimRight(stmt, " "), " ALLOW FILTERING")
}

// Store is a sqlite-backed session.Store.
type Store struct {
	db *sql.DB
}

// New opens an in-memory (or file-backed, if path is non-empty) SQLite
// database and creates the coordination/metadata tables.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "fakestore: open")
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer; serialize all access.

	s := &Store{db: db}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matrix_meta (
			id INTEGER PRIMARY KEY, row_count INTEGER, column_count INTEGER, block_size INTEGER)`,
		`CREATE TABLE IF NOT EXISTS vector_meta (
			id INTEGER PRIMARY KEY, length INTEGER, block_size INTEGER)`,
		`CREATE TABLE IF NOT EXISTS queue_meta (
			queue_id INTEGER PRIMARY KEY, multi_producer INTEGER, multi_consumer INTEGER,
			cnt_new INTEGER, cnt_used INTEGER)`,
		`CREATE TABLE IF NOT EXISTS queue_data (
			queue_id INTEGER, task_id INTEGER, is_finished INTEGER, value BLOB, response BLOB,
			PRIMARY KEY (queue_id, task_id))`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "fakestore: bootstrap: %q", stmt)
		}
	}
	return nil
}

func (s *Store) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := s.db.ExecContext(ctx, stripCQLOnly(stmt), args...)
	return err
}

func (s *Store) Scan(ctx context.Context, stmt string, args []any, dest ...any) error {
	row := s.db.QueryRowContext(ctx, stripCQLOnly(stmt), args...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.ErrNotFound
		}
		return err
	}
	return nil
}

// ScanCAS is not used directly by the queue package (BumpCounter covers the
// counter CAS); it is provided so Store satisfies session.Store in full.
// It is a plain Scan that compares nothing: it reports applied whenever the
// statement returns a row, and not applied when it returns none.
func (s *Store) ScanCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error) {
	if err := s.Scan(ctx, stmt, args, dest...); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type rowsIter struct {
	rows *sql.Rows
}

func (it *rowsIter) Scan(dest ...any) bool {
	if !it.rows.Next() {
		return false
	}
	return it.rows.Scan(dest...) == nil
}

func (it *rowsIter) Close() error { return it.rows.Close() }

func (s *Store) Iter(ctx context.Context, stmt string, args ...any) session.Iterator {
	rows, err := s.db.QueryContext(ctx, stripCQLOnly(stmt), args...)
	if err != nil {
		return &errIter{err: err}
	}
	return &rowsIter{rows: rows}
}

type errIter struct{ err error }

func (e *errIter) Scan(dest ...any) bool { return false }
func (e *errIter) Close() error          { return e.err }

func (s *Store) Close() error { return s.db.Close() }

// HealthPing satisfies internal/health.HealthPinger, mirroring
// GocqlStore.HealthPing so session.StoreHealthChecker can be exercised
// against fakestore in tests without a running cluster.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateMatrixTable(ctx context.Context, id int64) error {
	return s.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS matrix_%d (
			block_x INTEGER, block_y INTEGER, id_x INTEGER, id_y INTEGER, value REAL,
			PRIMARY KEY (block_x, id_x, id_y))`, id))
}

func (s *Store) CreateVectorTable(ctx context.Context, id int64) error {
	return s.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS vector_%d (
			segment INTEGER, idx INTEGER, value REAL,
			PRIMARY KEY (segment, idx))`, id))
}

func (s *Store) DropMatrixTable(ctx context.Context, id int64) error {
	return s.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS matrix_%d", id))
}

func (s *Store) DropVectorTable(ctx context.Context, id int64) error {
	return s.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS vector_%d", id))
}

// BumpCounter implements the queue's conditional counter update as a
// transaction: read the current row, compare to expected, update and commit
// only on match. SQLite's single-writer model makes this race-free within
// one process, the scope fakestore is meant to cover.
func (s *Store) BumpCounter(ctx context.Context, queueID int64, column string, expected, delta int64) (bool, int64, int64, error) {
	if column != "cnt_new" && column != "cnt_used" {
		return false, 0, 0, fmt.Errorf("fakestore: unknown counter column %q", column)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var produced, claimed, current int64
	row := tx.QueryRowContext(ctx, "SELECT cnt_new, cnt_used FROM queue_meta WHERE queue_id = ?", queueID)
	if err := row.Scan(&produced, &claimed); err != nil {
		return false, 0, 0, err
	}
	if column == "cnt_new" {
		current = produced
	} else {
		current = claimed
	}
	if current != expected {
		return false, produced, claimed, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE queue_meta SET %s = ? WHERE queue_id = ?", column), expected+delta, queueID); err != nil {
		return false, 0, 0, err
	}
	if column == "cnt_new" {
		produced = expected + delta
	} else {
		claimed = expected + delta
	}
	if err := tx.Commit(); err != nil {
		return false, 0, 0, err
	}
	return true, produced, claimed, nil
}
