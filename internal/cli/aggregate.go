package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
)

func (a *app) aggregateCmd() *cobra.Command {
	var (
		group    []string
		sums     []string
		counts   []string
		avgs     []string
		mins     []string
		maxes    []string
		having   []string
		with     []string
		order    []string
		unscoped bool
		without  []string
		where    whereFlag
	)
	cmd := &cobra.Command{
		Use:   "aggregate <entity>",
		Short: "Run a grouped aggregate query",
		Long: `Groups rows and computes aggregates. Aggregates are col[:alias]; the alias
defaults to fn_col. --having filters on aliases or group columns after
grouping. --with loads relations through the group columns.

Examples:
  relq aggregate Post --unscoped --group category_id --sum likes:total_likes --sum dislikes:total_dislikes
  relq aggregate Post --unscoped --group category_id --sum likes:total --having total:>:500 --with category
  relq aggregate User --group banned --count '*:users' --avg age`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agg := query.GroupQuery(args[0]).GroupBy(group...)
			for _, set := range []struct {
				fn    query.AggFunc
				specs []string
			}{
				{query.Sum, sums}, {query.Count, counts}, {query.Avg, avgs}, {query.Min, mins}, {query.Max, maxes},
			} {
				for _, s := range set.specs {
					col, alias := parseAggSpec(string(set.fn), s)
					switch set.fn {
					case query.Sum:
						agg.Sum(col, alias)
					case query.Count:
						agg.Count(col, alias)
					case query.Avg:
						agg.Avg(col, alias)
					case query.Min:
						agg.Min(col, alias)
					case query.Max:
						agg.Max(col, alias)
					}
				}
			}
			agg.Where(where.preds...)
			if unscoped {
				agg.WithoutScopes()
			} else if len(without) > 0 {
				agg.WithoutScope(without...)
			}

			var conds []query.Predicate
			for _, h := range having {
				parts := strings.SplitN(h, ":", 3)
				if len(parts) != 3 {
					return a.handleError(cmd, invalidInput(fmt.Sprintf("expected alias:op:value, got %q", h)))
				}
				conds = append(conds, query.Where(parts[0], parts[1], parseLiteral(parts[2])))
			}
			if len(conds) > 0 {
				agg.Having(query.And(conds...))
			}
			for _, o := range order {
				col, dir, _ := strings.Cut(o, ":")
				agg.OrderBy(col, strings.EqualFold(dir, "desc"))
			}

			return a.withDB(cmd, func(ctx context.Context, db *orm.DB) error {
				records, err := db.Aggregate(ctx, agg, with...)
				if err != nil {
					return err
				}
				a.printRecords(cmd, records)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&group, "group", nil, "Group by columns")
	cmd.Flags().StringArrayVar(&sums, "sum", nil, "SUM(col) as alias: col[:alias]")
	cmd.Flags().StringArrayVar(&counts, "count", nil, "COUNT(col) as alias: col[:alias], col may be *")
	cmd.Flags().StringArrayVar(&avgs, "avg", nil, "AVG(col) as alias: col[:alias]")
	cmd.Flags().StringArrayVar(&mins, "min", nil, "MIN(col) as alias: col[:alias]")
	cmd.Flags().StringArrayVar(&maxes, "max", nil, "MAX(col) as alias: col[:alias]")
	cmd.Flags().StringArrayVar(&having, "having", nil, "Filter groups alias:op:value (repeatable, ANDed)")
	cmd.Flags().StringArrayVar(&with, "with", nil, "Load a relation through the group columns")
	cmd.Flags().StringArrayVar(&order, "order", nil, "Sort by group column or alias, col or col:desc")
	cmd.Flags().BoolVar(&unscoped, "unscoped", false, "Ignore every default scope")
	cmd.Flags().StringSliceVar(&without, "without-scope", nil, "Ignore the named default scopes")
	cmd.Flags().Var(&where, "where", "Filter rows before grouping, col:op:value")
	return cmd
}
