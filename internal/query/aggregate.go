package query

import "strings"

// AggFunc is an aggregate function.
type AggFunc string

const (
	Sum   AggFunc = "SUM"
	Count AggFunc = "COUNT"
	Avg   AggFunc = "AVG"
	Min   AggFunc = "MIN"
	Max   AggFunc = "MAX"
)

// AggRef names an aggregate over a column. Column "*" is valid for COUNT.
type AggRef struct {
	Func   AggFunc `json:"func"`
	Column string  `json:"column"`
}

func (a AggRef) String() string {
	return strings.ToLower(string(a.Func)) + "(" + a.Column + ")"
}

// Agg builds an aggregate reference for use in HAVING.
func Agg(fn AggFunc, column string) AggRef {
	return AggRef{Func: AggFunc(strings.ToUpper(string(fn))), Column: column}
}

// HavingAgg compares an aggregate expression, e.g. HavingAgg(Agg(Sum, "likes"), ">", 500).
func HavingAgg(ref AggRef, op string, value any) Predicate {
	r := ref
	return Predicate{Column: ref.String(), Op: Op(op), Value: value, Agg: &r}
}

// AggregateExpr is an aggregate selected under Alias.
type AggregateExpr struct {
	AggRef
	Alias string
}

// Aggregate is a grouped query: group columns, aggregate expressions, a WHERE
// applied before grouping and a HAVING applied after.
type Aggregate struct {
	Entity string

	columns    []string
	aggregates []AggregateExpr
	groupBy    []string
	wheres     []Predicate
	having     Predicate
	orders     []Order
	without    map[string]bool
}

// GroupQuery starts a grouped query against entity.
func GroupQuery(entity string) *Aggregate {
	return &Aggregate{Entity: entity}
}

// Select sets the plain (grouped) columns to project.
func (a *Aggregate) Select(columns ...string) *Aggregate {
	a.columns = append(a.columns, columns...)
	return a
}

// Sum selects SUM(column) AS alias.
func (a *Aggregate) Sum(column, alias string) *Aggregate {
	return a.add(Sum, column, alias)
}

// Count selects COUNT(column) AS alias.
func (a *Aggregate) Count(column, alias string) *Aggregate {
	return a.add(Count, column, alias)
}

// Avg selects AVG(column) AS alias.
func (a *Aggregate) Avg(column, alias string) *Aggregate {
	return a.add(Avg, column, alias)
}

// Min selects MIN(column) AS alias.
func (a *Aggregate) Min(column, alias string) *Aggregate {
	return a.add(Min, column, alias)
}

// Max selects MAX(column) AS alias.
func (a *Aggregate) Max(column, alias string) *Aggregate {
	return a.add(Max, column, alias)
}

func (a *Aggregate) add(fn AggFunc, column, alias string) *Aggregate {
	a.aggregates = append(a.aggregates, AggregateExpr{AggRef: AggRef{Func: fn, Column: column}, Alias: alias})
	return a
}

// GroupBy sets the grouping columns.
func (a *Aggregate) GroupBy(columns ...string) *Aggregate {
	a.groupBy = append(a.groupBy, columns...)
	return a
}

// Where ANDs predicates applied before grouping.
func (a *Aggregate) Where(ps ...Predicate) *Aggregate {
	for _, p := range ps {
		if !p.IsEmpty() {
			a.wheres = append(a.wheres, p)
		}
	}
	return a
}

// Having ANDs a predicate applied after grouping. Leaf columns must name a
// group column or an aggregate alias, or use HavingAgg.
func (a *Aggregate) Having(p Predicate) *Aggregate {
	a.having = And(a.having, p)
	return a
}

// OrderBy sorts by a group column or aggregate alias.
func (a *Aggregate) OrderBy(column string, desc bool) *Aggregate {
	a.orders = append(a.orders, Order{Column: column, Desc: desc})
	return a
}

// WithoutScope suppresses one scope for this aggregate only.
func (a *Aggregate) WithoutScope(names ...string) *Aggregate {
	if a.without == nil {
		a.without = make(map[string]bool)
	}
	for _, n := range names {
		a.without[n] = true
	}
	return a
}

// WithoutScopes suppresses every scope for this aggregate only.
func (a *Aggregate) WithoutScopes() *Aggregate {
	return a.WithoutScope(allScopes)
}

// Aliases returns the aggregate aliases in select order.
func (a *Aggregate) Aliases() []string {
	out := make([]string, len(a.aggregates))
	for i, ag := range a.aggregates {
		out[i] = ag.Alias
	}
	return out
}
