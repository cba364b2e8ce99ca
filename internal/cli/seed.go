package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/ui"
)

var (
	seedNames      = []string{"Ann", "Bob", "Cid", "Dee", "Eve", "Fay", "Gus", "Hal"}
	seedCategories = []string{"News", "Guides", "Opinion"}
	seedTags       = []string{"go", "sql", "orm", "sqlite", "testing"}
)

// seedSummary counts the demo rows written.
type seedSummary struct {
	Users      int64 `json:"users"`
	Categories int64 `json:"categories"`
	Tags       int64 `json:"tags"`
	Posts      int64 `json:"posts"`
	Links      int64 `json:"links"`
}

func (a *app) seedCmd() *cobra.Command {
	var users, posts, chunk int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty database with demo blog data",
		Long: `Creates demo users, categories, tags and posts with batch inserts, then tags
the posts. Half of the posts fall in the current month and half in the
previous one, so the currentMonth scope has something to hide.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if users < 1 || posts < 0 {
				return a.handleError(cmd, invalidInput("--users must be at least 1 and --posts not negative"))
			}
			if chunk <= 0 {
				chunk = a.config().ChunkSize()
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				sum, err := seed(ctx, db, time.Now().UTC(), users, posts, chunk)
				if err != nil {
					return err
				}
				a.printResult(cmd, sum, &Meta{Affected: sum.Users + sum.Categories + sum.Tags + sum.Posts},
					ui.Successf("Seeded %d users, %d categories, %d tags, %d posts (%d tag links)",
						sum.Users, sum.Categories, sum.Tags, sum.Posts, sum.Links))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&users, "users", 5, "Number of users")
	cmd.Flags().IntVar(&posts, "posts", 24, "Number of posts")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "Rows per insert statement (default from config)")
	return cmd
}

func seed(ctx context.Context, db *orm.DB, now time.Time, users, posts, chunk int) (seedSummary, error) {
	var sum seedSummary
	for _, entity := range []string{blog.User, blog.Post, blog.Tag, blog.Category} {
		exists, err := db.Exists(ctx, query.From(entity).WithoutScopes())
		if err != nil {
			return sum, err
		}
		if exists {
			return sum, invalidInput(fmt.Sprintf("%s already has rows; seed needs an empty database", entity))
		}
	}

	userRows := make([]orm.Attrs, users)
	for i := range userRows {
		name := seedNames[i%len(seedNames)]
		if i >= len(seedNames) {
			name = fmt.Sprintf("%s %d", name, i/len(seedNames)+1)
		}
		userRows[i] = orm.Attrs{
			"name":   name,
			"email":  fmt.Sprintf("user%d@example.com", i+1),
			"age":    18 + (i*7)%50,
			"banned": i%4 == 3,
		}
	}
	report, err := db.InsertMany(ctx, blog.User, userRows, chunk)
	if err != nil {
		return sum, err
	}
	sum.Users = report.Inserted

	for _, set := range []struct {
		entity, column string
		values         []string
		count          *int64
	}{
		{blog.Category, "name", seedCategories, &sum.Categories},
		{blog.Tag, "tag", seedTags, &sum.Tags},
	} {
		rows := make([]orm.Attrs, len(set.values))
		for i, v := range set.values {
			rows[i] = orm.Attrs{set.column: v}
		}
		report, err := db.InsertMany(ctx, set.entity, rows, chunk)
		if err != nil {
			return sum, err
		}
		*set.count = report.Inserted
	}

	userIDs, err := keys(ctx, db, blog.User)
	if err != nil {
		return sum, err
	}
	categoryIDs, err := keys(ctx, db, blog.Category)
	if err != nil {
		return sum, err
	}
	tagIDs, err := keys(ctx, db, blog.Tag)
	if err != nil {
		return sum, err
	}

	thisMonth := time.Date(now.Year(), now.Month(), 1, 9, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	postRows := make([]orm.Attrs, posts)
	for i := range postRows {
		base := thisMonth
		if i%2 == 1 {
			base = lastMonth
		}
		// Days 2..27 exist in every month.
		created := base.AddDate(0, 0, 1+i%26).Add(time.Duration(i) * time.Minute)
		postRows[i] = orm.Attrs{
			"user_id":     userIDs[i%len(userIDs)],
			"category_id": categoryIDs[i%len(categoryIDs)],
			"title":       fmt.Sprintf("Post %d by %s", i+1, seedNames[i%len(userIDs)%len(seedNames)]),
			"content":     fmt.Sprintf("Demo content for post %d.", i+1),
			"likes":       (i * 37) % 400,
			"dislikes":    (i * 11) % 40,
			"created_at":  created.Format(schema.DatetimeLayout),
		}
	}
	report, err = db.InsertMany(ctx, blog.Post, postRows, chunk)
	if err != nil {
		return sum, err
	}
	sum.Posts = report.Inserted

	postIDs, err := keys(ctx, db, blog.Post)
	if err != nil {
		return sum, err
	}
	for i, id := range postIDs {
		// Every third post stays untagged.
		n := i % 3
		if n == 0 {
			continue
		}
		var ids []any
		for j := 0; j < n+i%2 && j < len(tagIDs); j++ {
			ids = append(ids, tagIDs[(i+j)%len(tagIDs)])
		}
		attached, err := db.Attach(ctx, blog.Post, id, "tags", ids...)
		if err != nil {
			return sum, err
		}
		sum.Links += attached
	}
	return sum, nil
}

// keys returns every primary key of entity in key order, ignoring scopes.
func keys(ctx context.Context, db *orm.DB, entity string) ([]any, error) {
	e, err := db.Catalog.Entity(entity)
	if err != nil {
		return nil, err
	}
	records, err := db.Get(ctx, query.From(entity).WithoutScopes().Select(e.PrimaryKey).OrderBy(e.PrimaryKey))
	if err != nil {
		return nil, err
	}
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r.Key()
	}
	return out, nil
}
