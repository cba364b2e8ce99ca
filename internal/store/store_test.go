package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
)

const notesCatalog = `
entities:
  Note:
    table: notes
    timestamps: true
    columns:
      - { name: title, unique: true }
      - { name: pinned, type: boolean, default: false }
      - { name: author_id, type: integer, nullable: true }
    relations:
      author: { kind: belongs_to, target: Author, foreign_key: author_id }
  Author:
    table: authors
    columns:
      - { name: name }
`

func openNotes(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cat, err := schema.Parse([]byte(notesCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Migrate(context.Background(), db, cat); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func countNotes(t *testing.T, ex Executor) int64 {
	t.Helper()
	res, err := ex.Query(context.Background(), Plan{Op: "count", SQL: `SELECT COUNT(*) FROM notes`})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	n, _ := schema.AsFloat(res.Rows[0][0])
	return int64(n)
}

func insertNote(title string) Plan {
	return Plan{Op: "insert", Entity: "Note", SQL: `INSERT INTO notes (title) VALUES (?)`, Args: []any{title}}
}

func TestDDL(t *testing.T) {
	t.Parallel()
	cat, err := schema.Parse([]byte(notesCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ddl := strings.Join(DDL(cat), "\n")
	for _, want := range []string{
		`"id" INTEGER PRIMARY KEY`,
		`"title" TEXT NOT NULL UNIQUE`,
		`"pinned" INTEGER NOT NULL DEFAULT 0`,
		`"author_id" INTEGER`,
		`"created_at" TEXT`,
		`CREATE INDEX IF NOT EXISTS "idx_notes_author_id"`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %s:\n%s", want, ddl)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	db := openNotes(t)
	cat, _ := schema.Parse([]byte(notesCatalog))
	if err := Migrate(context.Background(), db, cat); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestQueryAndExec(t *testing.T) {
	t.Parallel()
	db := openNotes(t)
	ctx := context.Background()

	var traced []string
	db.SetTrace(func(p Plan, _ time.Duration, _ error) { traced = append(traced, p.Op) })

	n, err := db.Exec(ctx, insertNote("first"))
	if err != nil || n != 1 {
		t.Fatalf("Exec: n=%d err=%v", n, err)
	}
	res, err := db.Query(ctx, Plan{Op: "select", SQL: `SELECT id, title, pinned FROM notes`})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	rows := res.Maps()
	if len(rows) != 1 || rows[0]["title"] != "first" {
		t.Fatalf("rows = %v", rows)
	}
	if pinned, _ := schema.AsFloat(rows[0]["pinned"]); pinned != 0 {
		t.Errorf("pinned default = %v", rows[0]["pinned"])
	}
	if strings.Join(traced, ",") != "insert,select" {
		t.Errorf("traced %v", traced)
	}

	t.Run("driver errors carry the plan", func(t *testing.T) {
		_, err := db.Exec(ctx, Plan{Op: "insert", Entity: "Note", SQL: `INSERT INTO notes (title) VALUES (?)`, Args: []any{"first"}, Predicate: "title = first"})
		var ee *ormerr.ExecError
		if !errors.As(err, &ee) {
			t.Fatalf("expected ExecError, got %v", err)
		}
		if ee.Op != "insert" || ee.Entity != "Note" || ee.Predicate != "title = first" {
			t.Errorf("exec error = %+v", ee)
		}
		if !strings.Contains(err.Error(), "INSERT INTO notes") {
			t.Errorf("error should include the SQL: %v", err)
		}
	})
}

func TestWithTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		db := openNotes(t)
		err := WithTx(ctx, db, func(tx Executor) error {
			if tx.Concurrent() {
				t.Errorf("transactions should not report concurrency")
			}
			_, err := tx.Exec(ctx, insertNote("a"))
			return err
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
		if n := countNotes(t, db); n != 1 {
			t.Errorf("count = %d", n)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := openNotes(t)
		boom := errors.New("boom")
		err := WithTx(ctx, db, func(tx Executor) error {
			if _, err := tx.Exec(ctx, insertNote("a")); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if n := countNotes(t, db); n != 0 {
			t.Errorf("count = %d", n)
		}
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		db := openNotes(t)
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("panic should propagate")
				}
			}()
			_ = WithTx(ctx, db, func(tx Executor) error {
				if _, err := tx.Exec(ctx, insertNote("a")); err != nil {
					return err
				}
				panic("boom")
			})
		}()
		if n := countNotes(t, db); n != 0 {
			t.Errorf("count = %d", n)
		}
	})

	t.Run("nested runs on the outer transaction", func(t *testing.T) {
		db := openNotes(t)
		err := WithTx(ctx, db, func(outer Executor) error {
			if err := WithTx(ctx, outer, func(inner Executor) error {
				_, err := inner.Exec(ctx, insertNote("a"))
				return err
			}); err != nil {
				return err
			}
			return errors.New("abort")
		})
		if err == nil {
			t.Fatalf("expected abort")
		}
		if n := countNotes(t, db); n != 0 {
			t.Errorf("inner write should roll back with the outer transaction, count = %d", n)
		}
	})
}

func TestOpenCreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "relq.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(context.Background(), Plan{Op: "migrate", SQL: `CREATE TABLE t (x INTEGER)`}); err != nil {
		t.Fatalf("Exec: %v", err)
	}
}
