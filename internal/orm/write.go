package orm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aidanlsb/relq/internal/batch"
	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
	"github.com/aidanlsb/relq/internal/store"
)

// Attrs maps column names to values for writes.
type Attrs map[string]any

const (
	createdAt = "created_at"
	updatedAt = "updated_at"
)

// prepare copies attrs, runs the entity's mutators over the assigned columns
// and normalizes every value. Columns come back in declaration order.
func (d *DB) prepare(e *schema.Entity, attrs Attrs, stamps ...string) ([]string, []any, error) {
	values := make(map[string]any, len(attrs)+len(stamps))
	for k, v := range attrs {
		if !e.HasColumn(k) {
			return nil, nil, ormerr.UnknownColumn(e.Name, k)
		}
		values[k] = v
	}
	for _, c := range e.ColumnNames() {
		if v, ok := attrs[c]; ok {
			if m, ok := e.Mutator(c); ok {
				m(v, values)
			}
		}
	}
	if e.Timestamps {
		ts := d.timestamp()
		for _, s := range stamps {
			if _, set := values[s]; !set {
				values[s] = ts
			}
		}
	}

	var cols []string
	var args []any
	for _, c := range e.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		nv, err := schema.NormalizeValue(c, v)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, c.Name)
		args = append(args, nv)
	}
	return cols, args, nil
}

// Create inserts one record and returns the stored row, defaults and
// generated key included. Mutators and timestamps apply.
func (d *DB) Create(ctx context.Context, entity string, attrs Attrs) (*model.Record, error) {
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return nil, err
	}
	cols, args, err := d.prepare(e, attrs, createdAt, updatedAt)
	if err != nil {
		return nil, err
	}

	var sqlStr string
	if len(cols) == 0 {
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", sqlutil.Quote(e.Table))
	} else {
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			sqlutil.Quote(e.Table), sqlutil.QuoteAll("", cols), sqlutil.Placeholders(len(cols)))
	}
	res, err := d.exec.Query(ctx, store.Plan{Op: "create", Entity: e.Name, SQL: sqlStr, Args: args})
	if err != nil {
		return nil, err
	}
	records := hydrate(e, res)
	if len(records) == 0 {
		return nil, fmt.Errorf("create %s: no row returned", e.Name)
	}
	return records[0], nil
}

// matchQuery filters entity by equality on every attribute, in key order.
func matchQuery(entity string, match Attrs) *query.Query {
	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	q := query.From(entity)
	for _, k := range keys {
		q.Where(query.Eq(k, match[k]))
	}
	return q
}

func merge(a, b Attrs) Attrs {
	out := make(Attrs, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// FirstOrCreate returns the first record matching match, creating it from
// match and extra when none exists. created reports which happened.
func (d *DB) FirstOrCreate(ctx context.Context, entity string, match, extra Attrs) (rec *model.Record, created bool, err error) {
	err = d.Transaction(ctx, func(tx *DB) error {
		rec, err = tx.First(ctx, matchQuery(entity, match))
		if err != nil || rec != nil {
			return err
		}
		rec, err = tx.Create(ctx, entity, merge(match, extra))
		created = err == nil
		return err
	})
	return rec, created, err
}

// UpdateOrCreate updates the first record matching match with values, or
// creates one from both when none exists.
func (d *DB) UpdateOrCreate(ctx context.Context, entity string, match, values Attrs) (rec *model.Record, created bool, err error) {
	err = d.Transaction(ctx, func(tx *DB) error {
		found, err := tx.First(ctx, matchQuery(entity, match))
		if err != nil {
			return err
		}
		if found == nil {
			rec, err = tx.Create(ctx, entity, merge(match, values))
			created = err == nil
			return err
		}
		rec, err = tx.Update(ctx, entity, found.Key(), values)
		return err
	})
	return rec, created, err
}

// updateSQL compiles UPDATE ... SET for the prepared columns, filtered by q
// and its scopes.
func (d *DB) updateSQL(e *schema.Entity, q *query.Query, cols []string, args []any, returning bool) (store.Plan, error) {
	table := sqlutil.Quote(e.Table)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = sqlutil.Quote(c) + " = ?"
	}
	cond, condArgs, summary, err := d.Compiler.Condition(e, table, q.Suppressed(), q.Filter())
	if err != nil {
		return store.Plan{}, err
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	if cond != "" {
		sqlStr += " WHERE " + cond
	}
	if returning {
		sqlStr += " RETURNING *"
	}
	return store.Plan{Op: "update", Entity: e.Name, SQL: sqlStr, Args: append(append([]any(nil), args...), condArgs...), Predicate: summary}, nil
}

// Update assigns attrs to the record with primary key id and returns the
// updated row. updated_at is refreshed when the entity has timestamps.
func (d *DB) Update(ctx context.Context, entity string, id any, attrs Attrs) (*model.Record, error) {
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return nil, err
	}
	cols, args, err := d.prepare(e, attrs, updatedAt)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return d.FindOrFail(ctx, query.From(entity), id)
	}
	plan, err := d.updateSQL(e, query.From(entity).Where(query.Eq(e.PrimaryKey, id)), cols, args, true)
	if err != nil {
		return nil, err
	}
	res, err := d.exec.Query(ctx, plan)
	if err != nil {
		return nil, err
	}
	records := hydrate(e, res)
	if len(records) == 0 {
		return nil, &ormerr.NotFoundError{Entity: e.Name, Key: id}
	}
	return records[0], nil
}

// UpdateWhere assigns attrs to every row q matches and returns the number
// of rows changed.
func (d *DB) UpdateWhere(ctx context.Context, q *query.Query, attrs Attrs) (int64, error) {
	e, err := d.Catalog.Entity(q.Entity)
	if err != nil {
		return 0, err
	}
	cols, args, err := d.prepare(e, attrs, updatedAt)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, nil
	}
	plan, err := d.updateSQL(e, q, cols, args, false)
	if err != nil {
		return 0, err
	}
	return d.exec.Exec(ctx, plan)
}

// Increment adds n to column on the record with primary key id, assigning
// extra columns in the same statement. The row is addressed by key alone;
// default scopes do not apply.
func (d *DB) Increment(ctx context.Context, entity string, id any, column string, n any, extra Attrs) error {
	return d.step(ctx, entity, id, column, batch.Inc(n), extra)
}

// Decrement subtracts n from column on the record with primary key id.
func (d *DB) Decrement(ctx context.Context, entity string, id any, column string, n any, extra Attrs) error {
	return d.step(ctx, entity, id, column, batch.Dec(n), extra)
}

func (d *DB) step(ctx context.Context, entity string, id any, column string, delta batch.Delta, extra Attrs) error {
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return err
	}
	cols, args, err := d.prepare(e, extra, updatedAt)
	if err != nil {
		return err
	}
	set := map[string]batch.Delta{column: delta}
	for i, c := range cols {
		if c == column {
			return ormerr.Validation(c, "column is both incremented and assigned")
		}
		set[c] = batch.Set(args[i])
	}
	n, err := d.Batch.Update(ctx, d.exec, e.Name, []batch.Operation{{Key: id, Set: set}}, "")
	if err != nil {
		return err
	}
	if n == 0 {
		return &ormerr.NotFoundError{Entity: e.Name, Key: id}
	}
	return nil
}

// Delete removes the record with primary key id.
func (d *DB) Delete(ctx context.Context, entity string, id any) error {
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return err
	}
	n, err := d.DeleteWhere(ctx, query.From(entity).Where(query.Eq(e.PrimaryKey, id)))
	if err != nil {
		return err
	}
	if n == 0 {
		return &ormerr.NotFoundError{Entity: e.Name, Key: id}
	}
	return nil
}

// DeleteWhere removes every row q matches, scopes included.
func (d *DB) DeleteWhere(ctx context.Context, q *query.Query) (int64, error) {
	e, err := d.Catalog.Entity(q.Entity)
	if err != nil {
		return 0, err
	}
	table := sqlutil.Quote(e.Table)
	cond, args, summary, err := d.Compiler.Condition(e, table, q.Suppressed(), q.Filter())
	if err != nil {
		return 0, err
	}
	sqlStr := "DELETE FROM " + table
	if cond != "" {
		sqlStr += " WHERE " + cond
	}
	return d.exec.Exec(ctx, store.Plan{Op: "delete", Entity: e.Name, SQL: sqlStr, Args: args, Predicate: summary})
}

// InsertBatch writes rows in chunks. See batch.Executor.Insert for the
// per-chunk commit semantics.
func (d *DB) InsertBatch(ctx context.Context, entity string, columns []string, rows [][]any, chunkSize int) (batch.InsertReport, error) {
	return d.Batch.Insert(ctx, d.exec, entity, columns, rows, chunkSize)
}

// InsertMany batch-inserts attribute maps after running mutators and
// timestamps on each. The inserted columns are the union of the rows'
// columns; a row without one of them gets the column default, or NULL.
func (d *DB) InsertMany(ctx context.Context, entity string, rows []Attrs, chunkSize int) (batch.InsertReport, error) {
	report := batch.InsertReport{Total: len(rows)}
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return report, err
	}
	if len(rows) == 0 {
		return report, nil
	}

	prepared := make([]map[string]any, len(rows))
	used := make(map[string]bool)
	for i, attrs := range rows {
		cols, args, err := d.prepare(e, attrs, createdAt, updatedAt)
		if err != nil {
			return report, fmt.Errorf("row %d: %w", i, err)
		}
		m := make(map[string]any, len(cols))
		for j, c := range cols {
			m[c] = args[j]
			used[c] = true
		}
		prepared[i] = m
	}

	var columns []string
	for _, c := range e.Columns {
		if used[c.Name] {
			columns = append(columns, c.Name)
		}
	}
	values := make([][]any, len(prepared))
	for i, m := range prepared {
		row := make([]any, len(columns))
		for j, name := range columns {
			if v, ok := m[name]; ok {
				row[j] = v
				continue
			}
			col, _ := e.Column(name)
			row[j] = col.Default
		}
		values[i] = row
	}
	return d.InsertBatch(ctx, entity, columns, values, chunkSize)
}

// UpdateBatch applies ops in one statement keyed by keyColumn.
func (d *DB) UpdateBatch(ctx context.Context, entity string, ops []batch.Operation, keyColumn string) (int64, error) {
	return d.Batch.Update(ctx, d.exec, entity, ops, keyColumn)
}
