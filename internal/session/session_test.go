package session

import (
	"context"
	"testing"
)

type noopStore struct{ execs []string }

func (s *noopStore) Exec(ctx context.Context, stmt string, args ...any) error {
	s.execs = append(s.execs, stmt)
	return nil
}
func (s *noopStore) Scan(ctx context.Context, stmt string, args []any, dest ...any) error {
	return ErrNotFound
}
func (s *noopStore) ScanCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error) {
	return true, nil
}
func (s *noopStore) Iter(ctx context.Context, stmt string, args ...any) Iterator { return nil }
func (s *noopStore) Close() error                                               { return nil }
func (s *noopStore) CreateMatrixTable(ctx context.Context, id int64) error      { return nil }
func (s *noopStore) CreateVectorTable(ctx context.Context, id int64) error      { return nil }
func (s *noopStore) DropMatrixTable(ctx context.Context, id int64) error        { return nil }
func (s *noopStore) DropVectorTable(ctx context.Context, id int64) error        { return nil }
func (s *noopStore) BumpCounter(ctx context.Context, queueID int64, column string, expected, delta int64) (bool, int64, int64, error) {
	return true, 0, 0, nil
}

func TestMatrixStatements_CachedByID(t *testing.T) {
	sess := New(&noopStore{}, "blas")
	a := sess.MatrixStatements(1)
	b := sess.MatrixStatements(1)
	if a != b {
		t.Fatalf("expected the same cached statement set for the same id")
	}
	c := sess.MatrixStatements(2)
	if a == c {
		t.Fatalf("expected distinct statement sets for distinct ids")
	}
	if a.Table != "matrix_1" {
		t.Fatalf("unexpected table name: %s", a.Table)
	}
}

func TestDropMatrix_InvalidatesCache(t *testing.T) {
	sess := New(&noopStore{}, "blas")
	a := sess.MatrixStatements(1)
	sess.DropMatrix(1)
	b := sess.MatrixStatements(1)
	if a == b {
		t.Fatalf("expected a fresh statement set after DropMatrix")
	}
}

func TestBootstrap_IssuesSchemaDDL(t *testing.T) {
	store := &noopStore{}
	if err := Bootstrap(context.Background(), store, "blas"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(store.execs) != 5 {
		t.Fatalf("expected 5 DDL statements, got %d", len(store.execs))
	}
}
