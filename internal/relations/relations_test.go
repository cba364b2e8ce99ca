package relations_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/relations"
	"github.com/aidanlsb/relq/internal/testutil"
)

func TestParse(t *testing.T) {
	t.Parallel()

	specs, err := relations.Parse("user:id,name", "user.billing", "tags:id,tag", "tags:tag")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(specs))
	}
	user := specs[0]
	if user.Name != "user" || fmt.Sprint(user.Columns) != "[id name]" {
		t.Errorf("user spec = %+v", user)
	}
	if len(user.Nested) != 1 || user.Nested[0].Name != "billing" {
		t.Errorf("billing should nest under user, got %+v", user.Nested)
	}
	if fmt.Sprint(specs[1].Columns) != "[id tag]" {
		t.Errorf("tags columns = %v", specs[1].Columns)
	}

	for _, bad := range []string{"user..billing", "user:", "user: , "} {
		t.Run(bad, func(t *testing.T) {
			_, err := relations.Parse(bad)
			var ve *ormerr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

// seedAuthors creates n users with two posts each, one tagged.
func seedAuthors(t *testing.T, db *testutil.TestDB, n int) {
	t.Helper()
	tag := db.Create(blog.Tag, orm.Attrs{"tag": "go"})
	for i := 0; i < n; i++ {
		u := db.Create(blog.User, orm.Attrs{"name": fmt.Sprintf("User %d", i), "email": fmt.Sprintf("u%d@example.com", i)})
		db.Create(blog.Billing, orm.Attrs{"user_id": u.Key(), "credit_card_number": fmt.Sprintf("4111-%d", i)})
		p := db.Create(blog.Post, orm.Attrs{"title": fmt.Sprintf("Post %d a", i), "user_id": u.Key()})
		db.Create(blog.Post, orm.Attrs{"title": fmt.Sprintf("Post %d b", i), "user_id": u.Key()})
		db.Attach(blog.Post, p.Key(), "tags", tag.Key())
	}
}

func TestEagerLoadQueryCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, n := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("%d users", n), func(t *testing.T) {
			db := testutil.NewTestDB(t)
			seedAuthors(t, db, n)
			db.Counter.Reset()

			users, err := db.ORM.Get(ctx, query.From(blog.User).With("posts.tags", "billing"))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			// users, posts, billing, tags
			if got := db.Counter.Count(); got != 4 {
				t.Errorf("ran %d statements, want 4", got)
			}
			if len(users) != n {
				t.Fatalf("expected %d users, got %d", n, len(users))
			}
			for _, u := range users {
				posts, _ := u.Relation("posts")
				if len(posts.Records()) != 2 {
					t.Errorf("user %v has %d posts", u.Key(), len(posts.Records()))
				}
				tagged := 0
				for _, p := range posts.Records() {
					tags, ok := p.Relation("tags")
					if !ok {
						t.Fatalf("tags not loaded on post %v", p.Key())
					}
					tagged += len(tags.Records())
				}
				if tagged != 1 {
					t.Errorf("user %v has %d tag links", u.Key(), tagged)
				}
				billing, _ := u.Relation("billing")
				if billing.One == nil {
					t.Errorf("billing missing for user %v", u.Key())
				}
			}
		})
	}
}

func TestSingleRelationMissingTarget(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	db.Create(blog.Post, orm.Attrs{"title": "Orphan"})

	posts, err := db.ORM.Get(ctx, query.From(blog.Post).With("user", "category"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p := posts[0]

	user, _ := p.Relation("user")
	if !user.Default || user.One == nil {
		t.Fatalf("expected default user, got %+v", user)
	}
	if user.One.String("name") != "" {
		t.Errorf("default user name = %q", user.One.String("name"))
	}

	category, _ := p.Relation("category")
	if !category.Absent {
		t.Errorf("expected absent category, got %+v", category)
	}

	if got, _ := p.Attribute("title_with_author"); got != "Orphan - " {
		t.Errorf("title_with_author = %q", got)
	}
}

func TestProjection(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	u := db.Create(blog.User, orm.Attrs{"name": "Ann", "email": "ann@example.com"})
	db.Create(blog.Post, orm.Attrs{"title": "Hello", "user_id": u.Key()})

	posts, err := db.ORM.Get(ctx, query.From(blog.Post).Select("id", "title").With("user:name"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p := posts[0]
	if !p.Has("user_id") {
		t.Errorf("foreign key should be added to the parent projection")
	}
	rel, _ := p.Relation("user")
	if rel.One == nil {
		t.Fatalf("user not loaded")
	}
	if rel.One.Has("email") {
		t.Errorf("email should not be selected, got columns %v", rel.One.Columns)
	}
	if !rel.One.Has("id") || rel.One.String("name") != "Ann" {
		t.Errorf("unexpected user %+v", rel.One.Values)
	}
}

func TestOrderedRelation(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	p := db.Create(blog.Post, orm.Attrs{"title": "Tagged"})
	for _, name := range []string{"sql", "go", "orm"} {
		tag := db.Create(blog.Tag, orm.Attrs{"tag": name})
		db.Attach(blog.Post, p.Key(), "tags", tag.Key())
	}

	posts, err := db.ORM.Get(ctx, query.From(blog.Post).With("tags", "sorted_tags"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	names := func(rel string) string {
		r, _ := posts[0].Relation(rel)
		var out []string
		for _, tag := range r.Records() {
			out = append(out, tag.String("tag"))
		}
		return fmt.Sprint(out)
	}
	if got := names("tags"); got != "[sql go orm]" {
		t.Errorf("tags = %s", got)
	}
	if got := names("sorted_tags"); got != "[go orm sql]" {
		t.Errorf("sorted_tags = %s", got)
	}
}

func TestRelatedScopesApply(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	u := db.Create(blog.User, orm.Attrs{"name": "Ann", "email": "ann@example.com"})
	db.Create(blog.Post, orm.Attrs{"title": "New", "user_id": u.Key()})
	db.CreateAt(blog.Post, testutil.Now.AddDate(0, -1, 0), orm.Attrs{"title": "Old", "user_id": u.Key()})

	users, err := db.ORM.Get(ctx, query.From(blog.User).With("posts").WithCount("posts"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	posts, _ := users[0].Relation("posts")
	if len(posts.Records()) != 1 || posts.Records()[0].String("title") != "New" {
		t.Errorf("expected only this month's post, got %d", len(posts.Records()))
	}
	if n, _ := users[0].Int(query.CountAlias("posts")); n != 1 {
		t.Errorf("posts_count = %d, want 1", n)
	}
}

func TestUndefinedRelation(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	db.Create(blog.User, orm.Attrs{"name": "Ann", "email": "ann@example.com"})
	db.Counter.Reset()

	for _, path := range []string{"comments", "posts.authors", "posts:nope"} {
		t.Run(path, func(t *testing.T) {
			_, err := db.ORM.Get(ctx, query.From(blog.User).With(path))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !ormerr.IsBuildError(err) {
				t.Errorf("expected a build error, got %T: %v", err, err)
			}
		})
	}
	if n := db.Counter.Count(); n != 0 {
		t.Errorf("ran %d statements before failing", n)
	}

	t.Run("Load on fetched records", func(t *testing.T) {
		users, err := db.ORM.Get(ctx, query.From(blog.User))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		err = db.ORM.Load(ctx, users, "comments")
		var ce *ormerr.ConfigurationError
		if !errors.As(err, &ce) || ce.Name != "comments" {
			t.Fatalf("expected ConfigurationError naming comments, got %v", err)
		}
	})
}

func TestLoadNeedsSelectedKey(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	db.Create(blog.User, orm.Attrs{"name": "Ann", "email": "ann@example.com"})

	users, err := db.ORM.Get(ctx, query.From(blog.User).Select("name"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	err = db.ORM.Load(ctx, users, "posts")
	var se *ormerr.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	var empty []*model.Record
	if err := db.ORM.Load(ctx, empty, "posts"); err != nil {
		t.Errorf("loading onto no records: %v", err)
	}
}
