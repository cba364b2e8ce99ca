package query_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/testutil"
)

func names(t *testing.T, db *testutil.TestDB, q *query.Query) string {
	t.Helper()
	records, err := db.ORM.Get(context.Background(), q)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.String("name"))
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func TestFilters(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	users := []orm.Attrs{
		{"name": "Ann", "email": "ann@example.com", "age": 45, "banned": true, "email_verified_at": "2024-02-01 08:00:00"},
		{"name": "Bob", "email": "bob@example.com", "age": 25, "banned": false},
		{"name": "Cid", "email": "cid@example.com", "age": 35, "banned": true},
		{"name": "Dee", "email": "dee@example.com", "banned": false, "email_verified_at": "2024-03-10 08:00:00"},
	}
	for _, u := range users {
		db.Create(blog.User, u)
	}
	ann, _ := db.ORM.FirstOrFail(context.Background(), query.From(blog.User).Where(query.Eq("name", "Ann")))
	db.Create(blog.Post, orm.Attrs{"title": "One", "user_id": ann.Key()})
	db.Create(blog.Post, orm.Attrs{"title": "Two", "user_id": ann.Key()})

	tests := []struct {
		name string
		q    *query.Query
		want string
	}{
		{"eq bool", query.From(blog.User).Where(query.Eq("banned", true)), "Ann,Cid"},
		{"between", query.From(blog.User).Where(query.Between("age", 30, 45)), "Ann,Cid"},
		{"in", query.From(blog.User).Where(query.In("name", "Bob", "Dee", "Zed")), "Bob,Dee"},
		{"empty in", query.From(blog.User).Where(query.In("name")), ""},
		{"null", query.From(blog.User).Where(query.IsNull("age")), "Dee"},
		{"eq nil", query.From(blog.User).Where(query.Eq("age", nil)), "Dee"},
		{"not null", query.From(blog.User).Where(query.NotNull("email_verified_at")), "Ann,Dee"},
		{"date", query.From(blog.User).Where(query.WhereDate("email_verified_at", ">", "2024-02-15")), "Dee"},
		{"month", query.From(blog.User).Where(query.WhereMonth("email_verified_at", "=", 2)), "Ann"},
		{"day", query.From(blog.User).Where(query.WhereDay("email_verified_at", "<", 5)), "Ann"},
		{"column", query.From(blog.User).Where(query.WhereColumn("created_at", "=", "updated_at")), "Ann,Bob,Cid,Dee"},
		{"has", query.From(blog.User).Where(query.Has("posts", ">", 1)), "Ann"},
		{"doesnt have", query.From(blog.User).Where(query.WhereDoesntHave("posts")), "Bob,Cid,Dee"},
		{"banned or young", blog.BannedOrYoung(40, 30), "Ann,Bob"},
		{
			"nested or",
			query.From(blog.User).Where(query.Or(query.Eq("name", "Bob"), query.And(query.Eq("banned", true), query.Where("age", "<", 40)))),
			"Bob,Cid",
		},
		{"when false", query.From(blog.User).Where(query.When(false, func() query.Predicate { return query.Eq("name", "Bob") })), "Ann,Bob,Cid,Dee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := names(t, db, tt.q); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	type check func(error) bool
	isValidation := func(err error) bool { var e *ormerr.ValidationError; return errors.As(err, &e) }
	isSchema := func(err error) bool { var e *ormerr.SchemaError; return errors.As(err, &e) }
	isConfig := func(err error) bool { var e *ormerr.ConfigurationError; return errors.As(err, &e) }

	tests := []struct {
		name string
		q    *query.Query
		ok   check
	}{
		{"unknown column", query.From(blog.User).Where(query.Eq("nickname", "x")), isSchema},
		{"unknown select column", query.From(blog.User).Select("nickname"), isSchema},
		{"unknown order column", query.From(blog.User).OrderBy("nickname"), isSchema},
		{"malformed date", query.From(blog.User).Where(query.WhereDate("created_at", "=", "2024-13-45")), isValidation},
		{"month out of range", query.From(blog.User).Where(query.WhereMonth("created_at", "=", 13)), isValidation},
		{"unknown operator", query.From(blog.User).Where(query.Where("age", "~", 3)), isValidation},
		{"null with ordering operator", query.From(blog.User).Where(query.Where("age", ">", nil)), isValidation},
		{"between needs two bounds", query.From(blog.User).Where(query.Predicate{Column: "age", Op: query.OpBetween, Values: []any{1}}), isValidation},
		{"undefined relation in has", query.From(blog.User).Where(query.WhereHas("comments")), isConfig},
		{"unknown entity", query.From("Comment"), isConfig},
		{"unknown outer table", query.From(blog.User).OrderBySub(query.Sub(blog.Post).Select("id").WhereColumn("user_id", "people.id"), true), isSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Counter.Reset()
			_, err := db.ORM.Get(ctx, tt.q)
			if !tt.ok(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
			if n := db.Counter.Count(); n != 0 {
				t.Errorf("ran %d statements", n)
			}
		})
	}
}

func TestCountIgnoresPaging(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	for i := 0; i < 4; i++ {
		db.Create(blog.User, orm.Attrs{"name": fmt.Sprint(i), "email": fmt.Sprintf("%d@example.com", i)})
	}
	plan, err := db.ORM.Compiler.Count(query.From(blog.User).OrderBy("name").Limit(1).Offset(2))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if strings.Contains(plan.SQL, "LIMIT") || strings.Contains(plan.SQL, "ORDER BY") {
		t.Errorf("count plan should not page or sort: %s", plan.SQL)
	}
	n, err := db.ORM.Count(context.Background(), query.From(blog.User).Limit(1).Offset(2))
	if err != nil || n != 4 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestOffsetWithoutLimit(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	for _, n := range []string{"Ann", "Bob", "Cid"} {
		db.Create(blog.User, orm.Attrs{"name": n, "email": n + "@example.com"})
	}
	if got := names(t, db, query.From(blog.User).OrderBy("name").Offset(1)); got != "Bob,Cid" {
		t.Errorf("got %q", got)
	}
}

func TestScopeRegistry(t *testing.T) {
	t.Parallel()
	r := blog.Scopes()
	if !r.Has(blog.Post, blog.ScopeCurrentMonth) {
		t.Fatalf("currentMonth not registered")
	}
	r.SetClock(func() time.Time { return testutil.Now })

	active, err := r.Active(blog.Post, nil)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(active) != 1 || active[0].String() != "month(created_at) = 3" {
		t.Errorf("active scopes = %v", active)
	}
	active, err = r.Active(blog.Post, map[string]bool{blog.ScopeCurrentMonth: true})
	if err != nil || len(active) != 0 {
		t.Errorf("suppressed scope still active: %v %v", active, err)
	}
	if n := len(r.Names(blog.User)); n != 0 {
		t.Errorf("User has %d scopes", n)
	}

	t.Run("unknown scope name", func(t *testing.T) {
		_, err := r.Active(blog.Post, map[string]bool{"popular": true})
		var ce *ormerr.ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if !r.Remove(blog.Post, blog.ScopeCurrentMonth) {
			t.Fatalf("Remove reported nothing removed")
		}
		if r.Remove(blog.Post, blog.ScopeCurrentMonth) {
			t.Errorf("second Remove should report false")
		}
	})
}
