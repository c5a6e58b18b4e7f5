package session

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
)

// GocqlStore adapts a *gocql.Session to the Store interface.
type GocqlStore struct {
	session *gocql.Session
}

// DialOptions configures a GocqlStore connection.
type DialOptions struct {
	Hosts    []string
	Port     int
	Keyspace string
}

// Dial opens a gocql session against the given hosts/port/keyspace.
func Dial(opts DialOptions) (*GocqlStore, error) {
	cluster := gocql.NewCluster(opts.Hosts...)
	cluster.Port = opts.Port
	cluster.Keyspace = opts.Keyspace
	cluster.Consistency = gocql.Quorum
	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	return &GocqlStore{session: sess}, nil
}

// DialNoKeyspace opens a session with no keyspace selected, for bootstrap
// (CREATE KEYSPACE) before any operand table exists.
func DialNoKeyspace(hosts []string, port int) (*GocqlStore, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Port = port
	cluster.Consistency = gocql.Quorum
	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	return &GocqlStore{session: sess}, nil
}

func (g *GocqlStore) Exec(ctx context.Context, stmt string, args ...any) error {
	return g.session.Query(stmt, args...).WithContext(ctx).Exec()
}

func (g *GocqlStore) Scan(ctx context.Context, stmt string, args []any, dest ...any) error {
	err := g.session.Query(stmt, args...).WithContext(ctx).Scan(dest...)
	if err == gocql.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (g *GocqlStore) ScanCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error) {
	applied, err := g.session.Query(stmt, args...).WithContext(ctx).ScanCAS(dest...)
	if err == gocql.ErrNotFound {
		return applied, nil
	}
	return applied, err
}

type gocqlIter struct {
	iter *gocql.Iter
}

func (it *gocqlIter) Scan(dest ...any) bool { return it.iter.Scan(dest...) }
func (it *gocqlIter) Close() error          { return it.iter.Close() }

func (g *GocqlStore) Iter(ctx context.Context, stmt string, args ...any) Iterator {
	return &gocqlIter{iter: g.session.Query(stmt, args...).WithContext(ctx).Iter()}
}

func (g *GocqlStore) Close() error {
	g.session.Close()
	return nil
}

// HealthPing satisfies internal/health.HealthPinger: a trivial system-table
// read that fails fast if the cluster connection is down.
func (g *GocqlStore) HealthPing(ctx context.Context) error {
	var release string
	err := g.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&release)
	if err == gocql.ErrNotFound {
		return nil
	}
	return err
}

func (g *GocqlStore) CreateMatrixTable(ctx context.Context, id int64) error {
	return g.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS matrix_%d (
			block_x BIGINT, block_y BIGINT, id_x BIGINT, id_y BIGINT, value DOUBLE,
			PRIMARY KEY ((block_x), id_x, id_y))`, id))
}

func (g *GocqlStore) CreateVectorTable(ctx context.Context, id int64) error {
	return g.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS vector_%d (
			segment BIGINT, idx BIGINT, value DOUBLE,
			PRIMARY KEY (segment, idx))`, id))
}

func (g *GocqlStore) DropMatrixTable(ctx context.Context, id int64) error {
	return g.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS matrix_%d", id))
}

func (g *GocqlStore) DropVectorTable(ctx context.Context, id int64) error {
	return g.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS vector_%d", id))
}

func (g *GocqlStore) BumpCounter(ctx context.Context, queueID int64, column string, expected, delta int64) (bool, int64, int64, error) {
	stmt := fmt.Sprintf("UPDATE queue_meta SET %s = ? WHERE queue_id = ? IF %s = ?", column, column)
	current := make(map[string]any)
	applied, err := g.session.Query(stmt, expected+delta, queueID, expected).WithContext(ctx).MapScanCAS(current)
	if err != nil {
		return false, 0, 0, err
	}
	if applied {
		produced, claimed := expected, expected
		if column == "cnt_new" {
			produced = expected + delta
		} else {
			claimed = expected + delta
		}
		// the unbumped counter is whatever it already was; re-read it since
		// the LWT response only guarantees the checked column's prior value.
		if err := g.Scan(ctx, "SELECT cnt_new, cnt_used FROM queue_meta WHERE queue_id = ?", []any{queueID}, &produced, &claimed); err != nil {
			return true, 0, 0, err
		}
		return true, produced, claimed, nil
	}
	var produced, claimed int64
	if v, ok := current["cnt_new"].(int64); ok {
		produced = v
	}
	if v, ok := current["cnt_used"].(int64); ok {
		claimed = v
	}
	return false, produced, claimed, nil
}
