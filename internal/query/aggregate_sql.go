package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/sqlutil"
	"github.com/aidanlsb/relq/internal/store"
)

// Aggregate compiles a grouped query. Selected plain columns must be grouped;
// HAVING may reference only group columns and aggregates.
func (c *Compiler) Aggregate(a *Aggregate) (store.Plan, error) {
	e, err := c.Catalog.Entity(a.Entity)
	if err != nil {
		return store.Plan{}, err
	}
	b := c.newBuild()
	alias := b.alias()
	b.push(e, alias)

	groups := make(map[string]bool, len(a.groupBy))
	for _, g := range a.groupBy {
		if err := e.RequireColumn(g); err != nil {
			return store.Plan{}, err
		}
		groups[g] = true
	}

	cols := a.columns
	if len(cols) == 0 {
		cols = a.groupBy
	}
	var sel []string
	for _, col := range cols {
		if err := e.RequireColumn(col); err != nil {
			return store.Plan{}, err
		}
		if !groups[col] {
			return store.Plan{}, &ormerr.SchemaError{Entity: e.Name, Column: col, Reason: "selected column is neither grouped nor aggregated"}
		}
		sel = append(sel, sqlutil.QualifiedColumn(alias, col))
	}

	env := &havingEnv{aliases: make(map[string]string), groups: groups}
	for _, ag := range a.aggregates {
		if ag.Alias == "" {
			return store.Plan{}, ormerr.Validation(ag.String(), "aggregate needs an alias")
		}
		if _, dup := env.aliases[ag.Alias]; dup || e.HasColumn(ag.Alias) {
			return store.Plan{}, ormerr.Validation(ag.Alias, "aggregate alias collides with another name")
		}
		expr, err := aggregateSQL(ag.AggRef, e, alias)
		if err != nil {
			return store.Plan{}, err
		}
		env.aliases[ag.Alias] = expr
		sel = append(sel, expr+" AS "+sqlutil.Quote(ag.Alias))
	}
	if len(sel) == 0 {
		return store.Plan{}, ormerr.Validation(e.Name, "aggregate selects nothing")
	}

	where, args, err := b.condition(e, alias, a.without, a.wheres, true)
	if err != nil {
		return store.Plan{}, err
	}

	b.having = env
	having, hargs, err := b.pred(a.having, e, alias)
	b.having = nil
	if err != nil {
		return store.Plan{}, err
	}
	args = append(args, hargs...)

	var orders []string
	for _, o := range a.orders {
		var expr string
		switch {
		case env.aliases[o.Column] != "":
			expr = sqlutil.Quote(o.Column)
		case groups[o.Column]:
			expr = sqlutil.QualifiedColumn(alias, o.Column)
		default:
			return store.Plan{}, &ormerr.SchemaError{Entity: e.Name, Column: o.Column, Reason: "ORDER BY references non-aggregated, non-grouped column"}
		}
		if o.Desc {
			expr += " DESC"
		}
		orders = append(orders, expr)
	}
	for _, g := range a.groupBy {
		orders = append(orders, sqlutil.QualifiedColumn(alias, g))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s %s", strings.Join(sel, ", "), sqlutil.Quote(e.Table), alias)
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if len(a.groupBy) > 0 {
		sb.WriteString(" GROUP BY " + sqlutil.QuoteAll(alias, a.groupBy))
	}
	if having != "" {
		sb.WriteString(" HAVING " + having)
	}
	if len(orders) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}

	summary := summarize(b.preds)
	if !a.having.IsEmpty() {
		summary = strings.TrimSpace(summary + " having " + a.having.String())
	}
	return store.Plan{Op: "aggregate", Entity: e.Name, SQL: sb.String(), Args: args, Predicate: summary}, nil
}
