// Package store is the storage driver: it executes compiled plans against
// SQLite through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/sqlutil"
)

// Plan is a compiled statement plus the context used in error messages.
type Plan struct {
	Op        string // select, count, insert, update, delete
	Entity    string
	SQL       string
	Args      []any
	Predicate string
}

// Result holds the rows returned by a query plan.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Maps returns each row as a column map.
func (r *Result) Maps() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			m[c] = row[j]
		}
		out[i] = m
	}
	return out
}

// Executor runs plans. It is the only contract the query, relation and
// batch packages depend on.
type Executor interface {
	Query(ctx context.Context, p Plan) (*Result, error)
	Exec(ctx context.Context, p Plan) (int64, error)
	// Concurrent reports whether independent plans may be issued from
	// multiple goroutines.
	Concurrent() bool
}

// Txn is an Executor bound to an open transaction.
type Txn interface {
	Executor
	Commit() error
	Rollback() error
}

// Beginner opens transactions.
type Beginner interface {
	BeginTx(ctx context.Context) (Txn, error)
}

// TraceFunc observes every executed plan.
type TraceFunc func(p Plan, elapsed time.Duration, err error)

// DB is the SQLite database handle.
type DB struct {
	db    *sql.DB
	trace TraceFunc
}

var (
	// ErrClosed indicates use of a closed database.
	ErrClosed = errors.New("database is closed")
)

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{db: db}, nil
}

// OpenInMemory opens an in-memory database (for testing).
func OpenInMemory() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Close()
}

// SQL returns the underlying sql.DB for advanced queries.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// SetTrace installs a hook called after every plan. Pass nil to disable.
func (d *DB) SetTrace(fn TraceFunc) {
	d.trace = fn
}

// Query implements Executor.
func (d *DB) Query(ctx context.Context, p Plan) (*Result, error) {
	return runQuery(ctx, d.db, d.trace, p)
}

// Exec implements Executor.
func (d *DB) Exec(ctx context.Context, p Plan) (int64, error) {
	return runExec(ctx, d.db, d.trace, p)
}

// Concurrent implements Executor.
func (d *DB) Concurrent() bool { return true }

// BeginTx implements Beginner.
func (d *DB) BeginTx(ctx context.Context) (Txn, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, trace: d.trace}, nil
}

// Tx is an open transaction.
type Tx struct {
	tx    *sql.Tx
	trace TraceFunc
}

// Query implements Executor.
func (t *Tx) Query(ctx context.Context, p Plan) (*Result, error) {
	return runQuery(ctx, t.tx, t.trace, p)
}

// Exec implements Executor.
func (t *Tx) Exec(ctx context.Context, p Plan) (int64, error) {
	return runExec(ctx, t.tx, t.trace, p)
}

// Concurrent reports false: statements on one transaction are serialized.
func (t *Tx) Concurrent() bool { return false }

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func runQuery(ctx context.Context, q queryer, trace TraceFunc, p Plan) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if trace != nil {
			trace(p, time.Since(start), err)
		}
	}()

	rows, err := q.QueryContext(ctx, p.SQL, p.Args...)
	if err != nil {
		return nil, wrapExec(p, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, wrapExec(p, err)
	}
	data, err := sqlutil.ScanRows(rows, func(rows *sql.Rows) ([]any, error) {
		return sqlutil.ScanValues(rows, len(cols))
	})
	if err != nil {
		return nil, wrapExec(p, err)
	}
	return &Result{Columns: cols, Rows: data}, nil
}

func runExec(ctx context.Context, q queryer, trace TraceFunc, p Plan) (n int64, err error) {
	start := time.Now()
	defer func() {
		if trace != nil {
			trace(p, time.Since(start), err)
		}
	}()

	res, err := q.ExecContext(ctx, p.SQL, p.Args...)
	if err != nil {
		return 0, wrapExec(p, err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, wrapExec(p, err)
	}
	return n, nil
}

func wrapExec(p Plan, err error) error {
	return &ormerr.ExecError{
		Op:        p.Op,
		Entity:    p.Entity,
		Predicate: p.Predicate,
		Err:       fmt.Errorf("%w (SQL: %s)", err, p.SQL),
	}
}
