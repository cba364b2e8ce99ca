// Package testutil provides reusable test utilities for relq tests: an
// in-memory blog database, fixtures and a statement-counting executor.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/store"
)

// Now is the fixed clock test databases start with.
var Now = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

// TestDB is a migrated in-memory blog database.
type TestDB struct {
	Store   *store.DB
	Counter *CountingExecutor
	ORM     *orm.DB

	t   *testing.T
	now time.Time
}

// NewTestDB opens an in-memory database with the blog schema. Statements go
// through a CountingExecutor, and both the timestamp clock and the scope
// clock are fixed at Now.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	counter := NewCountingExecutor(db)
	o, err := blog.Open(counter)
	if err != nil {
		t.Fatalf("failed to load blog catalog: %v", err)
	}
	if err := store.Migrate(context.Background(), db, o.Catalog); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tdb := &TestDB{Store: db, Counter: counter, ORM: o, t: t}
	tdb.SetNow(Now)
	return tdb
}

// SetNow moves both clocks.
func (d *TestDB) SetNow(now time.Time) {
	d.now = now
	d.ORM.SetClock(func() time.Time { return d.now })
	d.ORM.Scopes.SetClock(func() time.Time { return d.now })
}

// Exec runs raw SQL, failing the test on error.
func (d *TestDB) Exec(sqlStr string, args ...any) {
	d.t.Helper()
	if _, err := d.Store.SQL().Exec(sqlStr, args...); err != nil {
		d.t.Fatalf("exec %q: %v", sqlStr, err)
	}
}

// Create inserts a record through the ORM, failing the test on error.
func (d *TestDB) Create(entity string, attrs orm.Attrs) *model.Record {
	d.t.Helper()
	r, err := d.ORM.Create(context.Background(), entity, attrs)
	if err != nil {
		d.t.Fatalf("create %s: %v", entity, err)
	}
	return r
}

// CreateAt inserts a record with created_at and updated_at set to at.
func (d *TestDB) CreateAt(entity string, at time.Time, attrs orm.Attrs) *model.Record {
	d.t.Helper()
	prev := d.now
	d.SetNow(at)
	defer d.SetNow(prev)
	return d.Create(entity, attrs)
}

// Attach links a record to related keys, failing the test on error.
func (d *TestDB) Attach(entity string, id any, relation string, ids ...any) {
	d.t.Helper()
	if _, err := d.ORM.Attach(context.Background(), entity, id, relation, ids...); err != nil {
		d.t.Fatalf("attach %s.%s: %v", entity, relation, err)
	}
}
