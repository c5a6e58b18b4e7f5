// Package session provides the store-backed session shared by every handle
// (matrix, vector, queue): a non-generic, session-scoped prepared-statement
// cache plus the minimal driver surface the rest of the engine depends on
// (spec.md §9 "Base/derived split of handles", §3 "Ownership").
//
// The store itself (the database driver) is treated as an external
// collaborator per spec.md §1; this package depends only on the Store
// interface below, which both the real gocql-backed driver
// (internal/session.GocqlStore) and the Docker-free fake
// (internal/fakestore) implement identically.
package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Scan when the query matched no row.
var ErrNotFound = errors.New("session: not found")

// Iterator walks the rows of a multi-row query (e.g. a block scan of
// matrix_<id> WHERE block_x = ?).
type Iterator interface {
	// Scan copies the next row's columns into dest and reports whether a
	// row was available. The caller must call Close when done.
	Scan(dest ...any) bool
	// Close releases the iterator's resources and returns any error
	// encountered while iterating.
	Close() error
}

// Store is the minimal surface the engine needs from a Cassandra-wire
// driver: schema DDL, single-row exec, single-row scan, conditional
// ("lightweight transaction") single-row update, and multi-row scan.
type Store interface {
	// Exec runs a statement that returns no rows (DDL, unconditional
	// insert/update/delete).
	Exec(ctx context.Context, stmt string, args ...any) error

	// Scan runs a statement expected to return at most one row and copies
	// its columns into dest. Returns ErrNotFound if no row matched.
	Scan(ctx context.Context, stmt string, args []any, dest ...any) error

	// ScanCAS runs a conditional update ("IF ..." in CQL terms) and reports
	// whether it applied. If it did not apply, dest is populated with the
	// row's current values (the CAS "loser" reads the winner's state in the
	// same round trip), mirroring gocql's MapScanCAS/ScanCAS contract.
	ScanCAS(ctx context.Context, stmt string, args []any, dest ...any) (applied bool, err error)

	// Iter runs a statement expected to return any number of rows.
	Iter(ctx context.Context, stmt string, args ...any) Iterator

	// Close releases the underlying connection/session.
	Close() error

	// CreateMatrixTable and CreateVectorTable issue the backend-specific DDL
	// for a newly init'd operand (spec.md §6 per-operand table layout). DDL
	// syntax for partition/clustering keys differs enough between CQL and
	// the SQLite fake that callers go through these rather than raw SQL.
	CreateMatrixTable(ctx context.Context, id int64) error
	CreateVectorTable(ctx context.Context, id int64) error
	DropMatrixTable(ctx context.Context, id int64) error
	DropVectorTable(ctx context.Context, id int64) error

	// BumpCounter performs the queue's conditional counter update (spec.md
	// §4.2.2, §4.2.4): "set <column> = <column> + delta where queue_id = ?
	// and <column> = expected". CQL expresses this as a lightweight
	// transaction ("IF <column> = ?"); the SQLite fake expresses the same
	// contract as a transaction that reads the row, compares, and updates
	// only on a match. Applied reports
	// whether the bump took effect; current holds the row's produced and
	// claimed counters after the attempt (the post-bump values on success,
	// the as-is values on failure), mirroring the "read the winner's row"
	// behavior spec.md §4.2.2 requires of a losing producer/consumer.
	BumpCounter(ctx context.Context, queueID int64, column string, expected, delta int64) (applied bool, currentProduced, currentClaimed int64, err error)
}
