package orm

import (
	"context"
	"fmt"

	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/relations"
	"github.com/aidanlsb/relq/internal/schema"
)

// Get runs q, eager loads the relations requested with q.With and resolves
// the relations that appended derived attributes need.
func (d *DB) Get(ctx context.Context, q *query.Query) ([]*model.Record, error) {
	e, err := d.Catalog.Entity(q.Entity)
	if err != nil {
		return nil, err
	}
	specs, err := relations.Parse(q.Eager()...)
	if err != nil {
		return nil, err
	}
	if err := relations.Validate(d.Catalog, e, specs); err != nil {
		return nil, err
	}

	if len(q.Columns()) > 0 && len(specs) > 0 {
		cols := append([]string(nil), q.Columns()...)
		keys, err := relations.OwnerKeys(e, specs)
		if err != nil {
			return nil, err
		}
		q = q.Clone()
		for _, k := range keys {
			if !contains(cols, k) {
				cols = append(cols, k)
			}
		}
		q.Select(cols...)
	}

	plan, err := d.Compiler.Select(q)
	if err != nil {
		return nil, err
	}
	res, err := d.exec.Query(ctx, plan)
	if err != nil {
		return nil, err
	}
	records := hydrate(e, res)

	if err := d.Loader.LoadSpecs(ctx, d.exec, e, records, specs); err != nil {
		return nil, err
	}
	if err := d.loadAppends(ctx, e, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Load eager loads relation paths onto already fetched records.
func (d *DB) Load(ctx context.Context, records []*model.Record, paths ...string) error {
	if len(records) == 0 {
		return nil
	}
	return d.Loader.Load(ctx, d.exec, records[0].Entity, records, paths...)
}

// loadAppends loads, in one query per relation, the relations appended
// derived attributes depend on. Records whose key column was not selected
// are left without the relation.
func (d *DB) loadAppends(ctx context.Context, e *schema.Entity, records []*model.Record) error {
	if len(records) == 0 {
		return nil
	}
	var missing []*relations.Spec
	for _, name := range e.Appends {
		der, ok := e.Derived(name)
		if !ok {
			continue
		}
		for _, relName := range der.Requires {
			rel, err := e.Relation(relName)
			if err != nil {
				return err
			}
			keyCol := rel.OwnerKey
			if rel.Kind == schema.BelongsTo {
				keyCol = rel.ForeignKey
			}
			if _, loaded := records[0].Relation(relName); loaded || !records[0].Has(keyCol) {
				continue
			}
			missing = append(missing, &relations.Spec{Name: relName})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return d.Loader.LoadSpecs(ctx, d.exec, e, records, missing)
}

// First returns the first row of q, or nil when there is none.
func (d *DB) First(ctx context.Context, q *query.Query) (*model.Record, error) {
	records, err := d.Get(ctx, q.Clone().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FirstOrFail is First, failing with a NotFoundError when there is no row.
func (d *DB) FirstOrFail(ctx context.Context, q *query.Query) (*model.Record, error) {
	r, err := d.First(ctx, q)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &ormerr.NotFoundError{Entity: q.Entity}
	}
	return r, nil
}

// FirstWhere returns the first row whose column equals value.
func (d *DB) FirstWhere(ctx context.Context, q *query.Query, column string, value any) (*model.Record, error) {
	return d.First(ctx, q.Clone().Where(query.Eq(column, value)))
}

// Find returns the row with primary key id, or nil.
func (d *DB) Find(ctx context.Context, q *query.Query, id any) (*model.Record, error) {
	e, err := d.Catalog.Entity(q.Entity)
	if err != nil {
		return nil, err
	}
	return d.First(ctx, q.Clone().Where(query.Eq(e.PrimaryKey, id)))
}

// FindOrFail is Find, failing with a NotFoundError naming the key.
func (d *DB) FindOrFail(ctx context.Context, q *query.Query, id any) (*model.Record, error) {
	r, err := d.Find(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &ormerr.NotFoundError{Entity: q.Entity, Key: id}
	}
	return r, nil
}

// FindMany returns the rows whose primary key is in ids.
func (d *DB) FindMany(ctx context.Context, q *query.Query, ids ...any) ([]*model.Record, error) {
	e, err := d.Catalog.Entity(q.Entity)
	if err != nil {
		return nil, err
	}
	return d.Get(ctx, q.Clone().Where(query.In(e.PrimaryKey, ids...)))
}

// Count counts the rows q matches, scopes included.
func (d *DB) Count(ctx context.Context, q *query.Query) (int64, error) {
	plan, err := d.Compiler.Count(q)
	if err != nil {
		return 0, err
	}
	res, err := d.exec.Query(ctx, plan)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	n, ok := schema.AsFloat(res.Rows[0][0])
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected value %v", q.Entity, res.Rows[0][0])
	}
	return int64(n), nil
}

// Exists reports whether q matches any row.
func (d *DB) Exists(ctx context.Context, q *query.Query) (bool, error) {
	n, err := d.Count(ctx, q)
	return n > 0, err
}

// Aggregate runs a grouped query. Result records carry the grouped columns
// and aggregate aliases; with loads relations through the grouped columns
// (e.g. "category" on rows grouped by category_id).
func (d *DB) Aggregate(ctx context.Context, a *query.Aggregate, with ...string) ([]*model.Record, error) {
	e, err := d.Catalog.Entity(a.Entity)
	if err != nil {
		return nil, err
	}
	specs, err := relations.Parse(with...)
	if err != nil {
		return nil, err
	}
	if err := relations.Validate(d.Catalog, e, specs); err != nil {
		return nil, err
	}
	plan, err := d.Compiler.Aggregate(a)
	if err != nil {
		return nil, err
	}
	res, err := d.exec.Query(ctx, plan)
	if err != nil {
		return nil, err
	}
	records := hydrate(e, res)
	if len(specs) > 0 {
		if err := d.Loader.LoadSpecs(ctx, d.exec, e, records, specs); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Chunk walks every row of q in primary key order, size rows at a time.
// Existing ORDER BY terms are replaced; iteration stops at the first error
// fn returns.
func (d *DB) Chunk(ctx context.Context, q *query.Query, size int, fn func([]*model.Record) error) error {
	if size <= 0 {
		return ormerr.Validation(fmt.Sprint(size), "chunk size must be positive")
	}
	e, err := d.Catalog.Entity(q.Entity)
	if err != nil {
		return err
	}
	var last any
	for {
		page := q.Clone().ClearOrders().OrderBy(e.PrimaryKey).Limit(size).Offset(0)
		if cols := page.Columns(); len(cols) > 0 && !contains(cols, e.PrimaryKey) {
			page.Select(append([]string{e.PrimaryKey}, cols...)...)
		}
		if last != nil {
			page.Where(query.Where(e.PrimaryKey, ">", last))
		}
		records, err := d.Get(ctx, page)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		if len(records) < size {
			return nil
		}
		last = records[len(records)-1].Key()
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
