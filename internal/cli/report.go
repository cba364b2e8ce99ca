package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
)

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Canned blog queries",
		Long:  `Canned queries over the blog catalog: subquery ordering, grouped totals, relation counts and conditional filters.`,
	}
	cmd.AddCommand(
		a.lastPostReport(),
		a.bannedOrYoungReport(),
		a.categoryTotalsReport(),
		a.taggedReport(),
		a.thisMonthReport(),
	)
	return cmd
}

// runQuery prints the rows of q.
func (a *app) runQuery(cmd *cobra.Command, q *query.Query) error {
	return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
		records, err := db.Get(ctx, q)
		if err != nil {
			return err
		}
		a.printRecords(cmd, records)
		return nil
	})
}

func (a *app) lastPostReport() *cobra.Command {
	var title bool
	cmd := &cobra.Command{
		Use:   "last-post",
		Short: "Users with posts, most recent author first",
		Long: `Lists users that have posts ordered by the creation time of their newest post,
newest first. --title adds the newest post's title as last_post. Posts of
every month count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, blog.UsersByLastPost(title))
		},
	}
	cmd.Flags().BoolVar(&title, "title", false, "Select the newest post's title as last_post")
	return cmd
}

func (a *app) bannedOrYoungReport() *cobra.Command {
	var minBanned, maxActive int
	cmd := &cobra.Command{
		Use:   "banned-or-young",
		Short: "Banned users above an age, or active users below one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, blog.BannedOrYoung(minBanned, maxActive))
		},
	}
	cmd.Flags().IntVar(&minBanned, "min-banned-age", 40, "Minimum age of banned users")
	cmd.Flags().IntVar(&maxActive, "max-active-age", 30, "Maximum age of active users")
	return cmd
}

func (a *app) categoryTotalsReport() *cobra.Command {
	var minLikes int
	cmd := &cobra.Command{
		Use:   "category-totals",
		Short: "Likes and dislikes per category",
		Long: `Sums likes and dislikes of every post per category, with the category
loaded. --min-likes keeps categories whose likes add up to more than the
given number.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				records, err := db.Aggregate(ctx, blog.CategoryTotals(minLikes), "category")
				if err != nil {
					return err
				}
				a.printRecords(cmd, records)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minLikes, "min-likes", 0, "Keep categories with more likes than this")
	return cmd
}

func (a *app) taggedReport() *cobra.Command {
	var minTags int
	cmd := &cobra.Command{
		Use:   "tagged",
		Short: "Posts with more than --min-tags tags, with their tag count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, blog.PostsWithTagCount(minTags))
		},
	}
	cmd.Flags().IntVar(&minTags, "min-tags", 1, "Posts need more tags than this")
	return cmd
}

func (a *app) thisMonthReport() *cobra.Command {
	var slug string
	var month int
	cmd := &cobra.Command{
		Use:   "this-month",
		Short: "Posts of a month after its first day, optionally one slug",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if month == 0 {
				month = int(time.Now().Month())
			}
			if month < 1 || month > 12 {
				return a.handleError(cmd, invalidInput("--month must be between 1 and 12"))
			}
			q := blog.PostsThisMonth(month, slug)
			if month != int(time.Now().Month()) {
				q.WithoutScope(blog.ScopeCurrentMonth)
			}
			return a.runQuery(cmd, q)
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "Only the post with this slug")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default current)")
	return cmd
}
