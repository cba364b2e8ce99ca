// Package orm provides the record-level operations (find, paginate, create,
// update, delete, pivots, chunking) built from the query, relations and
// batch packages.
package orm

import (
	"context"
	"time"

	"github.com/aidanlsb/relq/internal/batch"
	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/relations"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/store"
)

// DB binds a catalog and scope registry to an executor.
type DB struct {
	Catalog  *schema.Catalog
	Scopes   *query.Registry
	Compiler *query.Compiler
	Loader   *relations.Loader
	Batch    *batch.Executor

	exec store.Executor
	now  func() time.Time
}

// New creates a DB over ex.
func New(ex store.Executor, cat *schema.Catalog, scopes *query.Registry) *DB {
	c := query.NewCompiler(cat, scopes)
	return &DB{
		Catalog:  cat,
		Scopes:   scopes,
		Compiler: c,
		Loader:   relations.New(c),
		Batch:    batch.New(cat),
		exec:     ex,
		now:      time.Now,
	}
}

// Executor returns the executor statements run on.
func (d *DB) Executor() store.Executor { return d.exec }

// SetClock replaces the clock used for timestamps.
func (d *DB) SetClock(now func() time.Time) { d.now = now }

// with returns a copy of d bound to ex.
func (d *DB) with(ex store.Executor) *DB {
	c := *d
	c.exec = ex
	return &c
}

// Transaction runs fn with a DB bound to one transaction. All writes made
// through the DB passed to fn commit together or roll back together.
func (d *DB) Transaction(ctx context.Context, fn func(tx *DB) error) error {
	return store.WithTx(ctx, d.exec, func(ex store.Executor) error {
		return fn(d.with(ex))
	})
}

// hydrate turns a result set into records of e.
func hydrate(e *schema.Entity, res *store.Result) []*model.Record {
	out := make([]*model.Record, 0, len(res.Rows))
	for _, row := range res.Rows {
		r := model.New(e)
		for i, c := range res.Columns {
			r.Set(c, row[i])
		}
		out = append(out, r)
	}
	return out
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(schema.DatetimeLayout)
}
