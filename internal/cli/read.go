package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/blog"
	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/ui"
)

// recipes are named query transformations usable with --recipe.
var recipes = map[string]func(*query.Query) *query.Query{
	"tagged": blog.WhereHasTagsWithTags,
}

// queryFlags are the query-shaping flags shared by the read commands.
type queryFlags struct {
	columns    []string
	with       []string
	withCount  []string
	unscoped   bool
	without    []string
	where      whereFlag
	orWhere    whereFlag
	has        []string
	doesntHave []string
	order      []string
	limit      int
	offset     int
	recipe     string
}

// bindScope registers the projection, eager loading and scope flags.
func (f *queryFlags) bindScope(cmd *cobra.Command) {
	f.limit = -1
	cmd.Flags().StringSliceVar(&f.columns, "columns", nil, "Columns to select (comma-separated)")
	cmd.Flags().StringArrayVar(&f.with, "with", nil, "Eager load a relation path, e.g. posts.tags or user:id,name (repeatable)")
	cmd.Flags().StringSliceVar(&f.withCount, "with-count", nil, "Add <relation>_count columns")
	cmd.Flags().BoolVar(&f.unscoped, "unscoped", false, "Ignore every default scope")
	cmd.Flags().StringSliceVar(&f.without, "without-scope", nil, "Ignore the named default scopes")
}

// bindFilter registers the filter and ordering flags.
func (f *queryFlags) bindFilter(cmd *cobra.Command) {
	f.bindScope(cmd)
	cmd.Flags().Var(&f.where, "where", "Filter col:op:value (repeatable, ANDed)")
	cmd.Flags().Var(&f.orWhere, "or-where", "Alternative filter col:op:value; all --or-where filters form one OR branch")
	cmd.Flags().StringArrayVar(&f.has, "has", nil, "Require related rows: relation or relation:op:n")
	cmd.Flags().StringArrayVar(&f.doesntHave, "doesnt-have", nil, "Require no related rows")
	cmd.Flags().StringArrayVar(&f.order, "order", nil, "Sort by col or col:desc (repeatable)")
	cmd.Flags().IntVar(&f.limit, "limit", -1, "Maximum rows")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Rows to skip")
	cmd.Flags().StringVar(&f.recipe, "recipe", "", "Apply a named query: tagged")
}

// build assembles the query for entity from the flags.
func (f *queryFlags) build(entity string) (*query.Query, error) {
	q := query.From(entity)
	if len(f.columns) > 0 {
		q.Select(f.columns...)
	}
	q.With(f.with...)
	if len(f.withCount) > 0 {
		q.WithCount(f.withCount...)
	}
	if f.unscoped {
		q.WithoutScopes()
	} else if len(f.without) > 0 {
		q.WithoutScope(f.without...)
	}
	q.Where(f.where.preds...)
	for _, h := range f.has {
		p, err := parseHas(h)
		if err != nil {
			return nil, invalidInput(err.Error())
		}
		q.Where(p)
	}
	for _, rel := range f.doesntHave {
		q.Where(query.WhereDoesntHave(rel))
	}
	if len(f.orWhere.preds) > 0 {
		q.OrWhere(query.And(f.orWhere.preds...))
	}
	for _, o := range f.order {
		col, dir, _ := strings.Cut(o, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			q.OrderBy(col)
		case "desc":
			q.OrderByDesc(col)
		default:
			return nil, invalidInput(fmt.Sprintf("order direction must be asc or desc, got %q", dir))
		}
	}
	if f.limit >= 0 {
		q.Limit(f.limit)
	}
	if f.offset > 0 {
		q.Offset(f.offset)
	}
	if f.recipe != "" {
		fn, ok := recipes[f.recipe]
		if !ok {
			return nil, invalidInput(fmt.Sprintf("unknown recipe %q", f.recipe))
		}
		q = fn(q)
	}
	return q, nil
}

func (a *app) findCmd() *cobra.Command {
	var qf queryFlags
	var fail bool
	cmd := &cobra.Command{
		Use:   "find <entity> <id>",
		Short: "Fetch one row by primary key",
		Long: `Fetches one row by primary key. Default scopes apply, so a post from another
month is not found unless --unscoped or --without-scope currentMonth is given.

Examples:
  relq find User 1 --with posts:id,title,user_id
  relq find Post 3 --unscoped --with tags --fail`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			id := parseLiteral(args[1])
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				var r *model.Record
				if fail {
					r, err = db.FindOrFail(ctx, q, id)
				} else {
					r, err = db.Find(ctx, q, id)
				}
				if err != nil {
					return err
				}
				a.printRecord(cmd, r)
				return nil
			})
		},
	}
	qf.bindScope(cmd)
	cmd.Flags().BoolVar(&fail, "fail", false, "Fail with NOT_FOUND when there is no such row")
	return cmd
}

func (a *app) findManyCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "find-many <entity> <id>...",
		Short: "Fetch rows by primary keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				records, err := db.FindMany(ctx, q, parseIDs(args[1:])...)
				if err != nil {
					return err
				}
				a.printRecords(cmd, records)
				return nil
			})
		},
	}
	qf.bindScope(cmd)
	return cmd
}

func (a *app) findByCmd() *cobra.Command {
	var qf queryFlags
	var fail bool
	cmd := &cobra.Command{
		Use:   "find-by <entity> <column> <value>",
		Short: "Fetch the first row whose column equals value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			q.Where(query.Eq(args[1], parseLiteral(args[2])))
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				var r *model.Record
				if fail {
					r, err = db.FirstOrFail(ctx, q)
				} else {
					r, err = db.First(ctx, q)
				}
				if err != nil {
					return err
				}
				a.printRecord(cmd, r)
				return nil
			})
		},
	}
	qf.bindFilter(cmd)
	cmd.Flags().BoolVar(&fail, "fail", false, "Fail with NOT_FOUND when there is no such row")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var qf queryFlags
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "List rows matching filters",
		Long: `Lists rows of an entity. Filters are col:op:value where op is one of
= != > >= < <=, in (a,b,c), between (lo,hi), null, notnull, date, month
and day (optionally followed by a comparison: date>=, month<) or col= to
compare two columns.

With --page the result is paginated and includes the total.

Examples:
  relq list User --where banned:=:true --where age:>=:30 --or-where banned:=:false --or-where age:<=:20
  relq list Post --unscoped --where created_at:month:3 --where created_at:day>:1
  relq list Post --has tags:>:1 --with-count tags --columns id,title
  relq list Post --recipe tagged
  relq list User --page 2 --per-page 10 --order name`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				if page <= 0 {
					records, err := db.Get(ctx, q)
					if err != nil {
						return err
					}
					a.printRecords(cmd, records)
					return nil
				}
				if perPage <= 0 {
					perPage = a.config().PerPage()
				}
				p, err := db.Paginate(ctx, q, perPage, page)
				if err != nil {
					return err
				}
				if a.useJSON(cmd) {
					outputSuccess(cmd.OutOrStdout(), p, &Meta{Count: len(p.Data)})
					return nil
				}
				if len(p.Data) > 0 {
					fmt.Fprint(cmd.OutOrStdout(), recordTable(p.Data).String())
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.Hint(fmt.Sprintf("page %d of %d, rows %d-%d of %d", p.CurrentPage, p.LastPage, p.From, p.To, p.Total)))
				return nil
			})
		},
	}
	qf.bindFilter(cmd)
	cmd.Flags().IntVar(&page, "page", 0, "Page number (1-based); enables pagination")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Rows per page (default from config)")
	return cmd
}

func (a *app) countCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "count <entity>",
		Short: "Count rows matching filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				n, err := db.Count(ctx, q)
				if err != nil {
					return err
				}
				a.printResult(cmd, map[string]int64{"count": n}, nil, fmt.Sprint(n))
				return nil
			})
		},
	}
	qf.bindFilter(cmd)
	return cmd
}

func (a *app) chunkCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "chunk <entity> <size>",
		Short: "Walk every matching row in primary key order, size rows at a time",
		Long: `Walks every row matching the filters in primary key order, fetching size rows
per query, and prints each chunk as it arrives.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var size int
			if _, err := fmt.Sscan(args[1], &size); err != nil || size <= 0 {
				return a.handleError(cmd, invalidInput(fmt.Sprintf("chunk size must be a positive number, got %q", args[1])))
			}
			q, err := qf.build(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				var chunks [][]*model.Record
				jsonOut := a.useJSON(cmd)
				err := db.Chunk(ctx, q, size, func(records []*model.Record) error {
					if jsonOut {
						chunks = append(chunks, records)
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), ui.Header(fmt.Sprintf("Chunk %d", len(chunks)+1)))
					fmt.Fprint(cmd.OutOrStdout(), recordTable(records).String())
					chunks = append(chunks, nil)
					return nil
				})
				if err != nil {
					return err
				}
				if jsonOut {
					if chunks == nil {
						chunks = [][]*model.Record{}
					}
					outputSuccess(cmd.OutOrStdout(), chunks, &Meta{Count: len(chunks)})
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.Hint(ui.Count(int64(len(chunks)), "chunk", "chunks")))
				return nil
			})
		},
	}
	qf.bindFilter(cmd)
	return cmd
}
