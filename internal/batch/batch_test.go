package batch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aidanlsb/relq/internal/batch"
	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/store"
	"github.com/aidanlsb/relq/internal/testutil"
)

func TestChunks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n, size int
		want    string
	}{
		{120, 50, "[[0 50] [50 100] [100 120]]"},
		{100, 50, "[[0 50] [50 100]]"},
		{3, 10, "[[0 3]]"},
		{0, 10, "[]"},
		{5, 0, "[]"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d by %d", tt.n, tt.size), func(t *testing.T) {
			if got := fmt.Sprint(batch.Chunks(tt.n, tt.size)); got != tt.want {
				t.Errorf("Chunks(%d, %d) = %s, want %s", tt.n, tt.size, got, tt.want)
			}
		})
	}
}

func tagRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("tag-%d", i)}
	}
	return rows
}

func countRows(t *testing.T, db *testutil.TestDB, entity string) int64 {
	t.Helper()
	n, err := db.ORM.Count(context.Background(), query.From(entity).WithoutScopes())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func TestInsertChunks(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	db.Counter.Reset()

	report, err := db.ORM.InsertBatch(context.Background(), blog.Tag, []string{"tag"}, tagRows(120), 50)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if report.Inserted != 120 || report.Total != 120 {
		t.Errorf("report = %+v", report)
	}
	var sizes []int64
	for _, c := range report.Chunks {
		sizes = append(sizes, c.Inserted)
	}
	if fmt.Sprint(sizes) != "[50 50 20]" {
		t.Errorf("chunk sizes = %v", sizes)
	}
	if n := db.Counter.CountOp("insert"); n != 3 {
		t.Errorf("ran %d insert statements, want 3", n)
	}
	if n := countRows(t, db, blog.Tag); n != 120 {
		t.Errorf("stored %d rows", n)
	}
}

func TestInsertStopsAtFailingChunk(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	db.Counter.Reset()

	cols := []string{"name", "email"}
	var rows [][]any
	for i := 0; i < 6; i++ {
		rows = append(rows, []any{fmt.Sprintf("User %d", i), fmt.Sprintf("u%d@example.com", i)})
	}
	// Row 3 repeats row 2's email, which fails chunk 1 (rows 2-3).
	rows[3][1] = rows[2][1]

	report, err := db.ORM.InsertBatch(context.Background(), blog.User, cols, rows, 2)
	var ce *batch.ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChunkError, got %v", err)
	}
	if ce.Index != 1 || ce.Start != 2 || ce.End != 4 {
		t.Errorf("chunk error = %+v", ce)
	}
	var ee *ormerr.ExecError
	if !errors.As(err, &ee) {
		t.Errorf("expected the driver error to be wrapped, got %v", err)
	}
	if report.Inserted != 2 || len(report.Chunks) != 1 {
		t.Errorf("report = %+v", report)
	}
	if n := countRows(t, db, blog.User); n != 2 {
		t.Errorf("expected the first chunk to stay committed, found %d users", n)
	}
	if n := db.Counter.CountOp("insert"); n != 2 {
		t.Errorf("ran %d insert statements, the third chunk should not be attempted", n)
	}
}

func TestInsertInsideTransactionIsAllOrNothing(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	rows := tagRows(5)
	err := store.WithTx(ctx, db.ORM.Executor(), func(tx store.Executor) error {
		if _, err := db.ORM.Batch.Insert(ctx, tx, blog.Tag, []string{"tag"}, rows, 2); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected abort")
	}
	if n := countRows(t, db, blog.Tag); n != 0 {
		t.Errorf("expected nothing committed, found %d tags", n)
	}
}

func TestInsertValidatesBeforeWriting(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		columns []string
		rows    [][]any
		chunk   int
	}{
		{"unknown column", []string{"nickname"}, [][]any{{"x"}}, 10},
		{"duplicate column", []string{"tag", "tag"}, [][]any{{"a", "b"}}, 10},
		{"short row", []string{"tag"}, [][]any{{"a"}, {}}, 1},
		{"bad chunk size", []string{"tag"}, [][]any{{"a"}}, 0},
		{"no columns", nil, [][]any{{}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Counter.Reset()
			_, err := db.ORM.InsertBatch(ctx, blog.Tag, tt.columns, tt.rows, tt.chunk)
			if !ormerr.IsBuildError(err) {
				t.Fatalf("expected a build error, got %v", err)
			}
			if n := db.Counter.Count(); n != 0 {
				t.Errorf("ran %d statements", n)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	var ids []any
	for i, likes := range []int{10, 20, 30, 40} {
		p := db.Create(blog.Post, orm.Attrs{"title": fmt.Sprintf("Post %d", i), "likes": likes, "dislikes": 8})
		ids = append(ids, p.Key())
	}
	db.Counter.Reset()

	n, err := db.ORM.UpdateBatch(ctx, blog.Post, []batch.Operation{
		{Key: ids[0], Set: map[string]batch.Delta{"likes": batch.Mul(2), "dislikes": batch.Div(2)}},
		{Key: ids[1], Set: map[string]batch.Delta{"likes": batch.Dec(5), "title": batch.Set("Renamed")}},
		{Key: ids[2], Set: map[string]batch.Delta{"likes": batch.Inc(1)}},
		{Key: ids[3], Set: map[string]batch.Delta{}},
	}, "")
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if n != 3 {
		t.Errorf("updated %d rows, want 3 (an empty operation matches no row)", n)
	}
	if got := db.Counter.CountOp("batch update"); got != 1 {
		t.Errorf("ran %d update statements, want 1", got)
	}

	records, err := db.ORM.FindMany(ctx, query.From(blog.Post), ids...)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	byID := make(map[any]map[string]any)
	for _, r := range records {
		byID[r.Key()] = r.Values
	}
	check := func(id any, col string, want any) {
		t.Helper()
		if got := fmt.Sprint(byID[id][col]); got != fmt.Sprint(want) {
			t.Errorf("post %v %s = %s, want %v", id, col, got, want)
		}
	}
	check(ids[0], "likes", 20)
	check(ids[0], "dislikes", 4)
	check(ids[1], "likes", 15)
	check(ids[1], "title", "Renamed")
	check(ids[1], "dislikes", 8)
	check(ids[2], "likes", 31)
	check(ids[3], "likes", 40)
}

func TestUpdateRejectsBadOperations(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	p := db.Create(blog.Post, orm.Attrs{"title": "Post", "likes": 10})
	db.Counter.Reset()

	tests := []struct {
		name  string
		ops   []batch.Operation
		check func(error) bool
	}{
		{
			name:  "division by zero",
			ops:   []batch.Operation{{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Div(0)}}},
			check: func(err error) bool { var ae *ormerr.ArithmeticError; return errors.As(err, &ae) },
		},
		{
			name:  "arithmetic on text",
			ops:   []batch.Operation{{Key: p.Key(), Set: map[string]batch.Delta{"title": batch.Inc(1)}}},
			check: func(err error) bool { var ae *ormerr.ArithmeticError; return errors.As(err, &ae) },
		},
		{
			name:  "non-numeric operand",
			ops:   []batch.Operation{{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Mul("lots")}}},
			check: func(err error) bool { var ae *ormerr.ArithmeticError; return errors.As(err, &ae) },
		},
		{
			name:  "unknown operator",
			ops:   []batch.Operation{{Key: p.Key(), Set: map[string]batch.Delta{"likes": {Op: "%", Value: 2}}}},
			check: func(err error) bool { var ve *ormerr.ValidationError; return errors.As(err, &ve) },
		},
		{
			name:  "unknown column",
			ops:   []batch.Operation{{Key: p.Key(), Set: map[string]batch.Delta{"shares": batch.Inc(1)}}},
			check: func(err error) bool { var se *ormerr.SchemaError; return errors.As(err, &se) },
		},
		{
			name: "duplicate key",
			ops: []batch.Operation{
				{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Inc(1)}},
				{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Inc(1)}},
			},
			check: func(err error) bool { var ve *ormerr.ValidationError; return errors.As(err, &ve) },
		},
		{
			name: "valid operation listed before an invalid one",
			ops: []batch.Operation{
				{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Inc(1)}},
				{Key: 99, Set: map[string]batch.Delta{"likes": batch.Div(0)}},
			},
			check: func(err error) bool { var ae *ormerr.ArithmeticError; return errors.As(err, &ae) },
		},
		{
			name:  "unknown operator next to division by zero",
			ops:   []batch.Operation{{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Div(0), "dislikes": {Op: "%", Value: 2}}}},
			check: func(err error) bool { var ve *ormerr.ValidationError; return errors.As(err, &ve) },
		},
		{
			name: "unknown operator in a later operation",
			ops: []batch.Operation{
				{Key: p.Key(), Set: map[string]batch.Delta{"likes": batch.Div(0)}},
				{Key: 99, Set: map[string]batch.Delta{"dislikes": {Op: "^", Value: 2}}},
			},
			check: func(err error) bool { var ve *ormerr.ValidationError; return errors.As(err, &ve) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Several rounds so map iteration order cannot pick the error.
			for i := 0; i < 20; i++ {
				_, err := db.ORM.UpdateBatch(ctx, blog.Post, tt.ops, "")
				if !tt.check(err) {
					t.Fatalf("unexpected error %T: %v", err, err)
				}
			}
		})
	}
	if n := db.Counter.Count(); n != 0 {
		t.Errorf("ran %d statements for rejected batches", n)
	}
	r, _ := db.ORM.Find(ctx, query.From(blog.Post), p.Key())
	if n, _ := r.Int("likes"); n != 10 {
		t.Errorf("likes changed to %d", n)
	}
}

func TestUpdateByOtherKey(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	db.Create(blog.User, orm.Attrs{"name": "Ann", "email": "ann@example.com", "age": 30})

	n, err := db.ORM.UpdateBatch(ctx, blog.User, []batch.Operation{
		{Key: "ann@example.com", Set: map[string]batch.Delta{"age": batch.Inc(1)}},
		{Key: "nobody@example.com", Set: map[string]batch.Delta{"age": batch.Inc(1)}},
	}, "email")
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if n != 1 {
		t.Errorf("updated %d rows, want 1", n)
	}

	_, err = db.ORM.UpdateBatch(ctx, blog.User, []batch.Operation{
		{Key: "ann@example.com", Set: map[string]batch.Delta{"email": batch.Set("x@example.com")}},
	}, "email")
	var ve *ormerr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("changing the key column should fail, got %v", err)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	tests := []struct {
		op      batch.Operator
		current any
		delta   any
		want    string
		wantErr bool
	}{
		{batch.Add, int64(10), 5, "15", false},
		{batch.Subtract, int64(10), 15, "-5", false},
		{batch.Multiply, int64(10), 2, "20", false},
		{batch.Divide, int64(7), 2, "3", false},
		{batch.Divide, int64(-7), 2, "-3", false},
		{batch.Divide, 7.0, 2, "3.5", false},
		{batch.Add, int64(1), 0.5, "1.5", false},
		{batch.Replace, int64(1), "x", "x", false},
		{batch.Add, nil, 1, "<nil>", false},
		{batch.Divide, int64(1), 0, "", true},
		{batch.Add, "abc", 1, "", true},
		{batch.Add, int64(1), "abc", "", true},
		{"%", int64(1), 1, "", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v %s %v", tt.current, tt.op, tt.delta), func(t *testing.T) {
			got, err := batch.Apply(tt.op, tt.current, tt.delta)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if fmt.Sprint(got) != tt.want {
				t.Errorf("got %v, want %s", got, tt.want)
			}
		})
	}
}

func TestParseOperator(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"+", "-", "*", "/", "="} {
		if _, err := batch.ParseOperator(s); err != nil {
			t.Errorf("ParseOperator(%q): %v", s, err)
		}
	}
	if _, err := batch.ParseOperator("^"); err == nil {
		t.Errorf("expected ^ to be rejected")
	}
}
