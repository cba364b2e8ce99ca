package query

// Order is one ORDER BY term: a column or a correlated subquery.
type Order struct {
	Column string
	Desc   bool
	Sub    *Subquery
}

// SubSelect is a correlated subquery exposed as a computed column.
type SubSelect struct {
	Alias string
	Sub   *Subquery
}

// Query selects rows of one entity. Builder methods mutate and return the
// receiver so calls chain; use Clone to branch a query.
type Query struct {
	Entity string

	columns    []string
	wheres     []Predicate
	orders     []Order
	limit      int
	offset     int
	without    map[string]bool
	withCounts []string
	subSelects []SubSelect
	with       []string
}

// From starts a query against entity.
func From(entity string) *Query {
	return &Query{Entity: entity, limit: -1}
}

// Clone returns an independent copy of q.
func (q *Query) Clone() *Query {
	c := *q
	c.columns = append([]string(nil), q.columns...)
	c.wheres = append([]Predicate(nil), q.wheres...)
	c.orders = append([]Order(nil), q.orders...)
	c.withCounts = append([]string(nil), q.withCounts...)
	c.subSelects = append([]SubSelect(nil), q.subSelects...)
	c.with = append([]string(nil), q.with...)
	c.without = make(map[string]bool, len(q.without))
	for k, v := range q.without {
		c.without[k] = v
	}
	return &c
}

// Select restricts the projected columns. Without it every column is selected.
func (q *Query) Select(columns ...string) *Query {
	q.columns = append(q.columns[:0], columns...)
	return q
}

// Columns returns the explicit projection, or nil.
func (q *Query) Columns() []string { return q.columns }

// Where ANDs predicates into the filter.
func (q *Query) Where(ps ...Predicate) *Query {
	for _, p := range ps {
		if !p.IsEmpty() {
			q.wheres = append(q.wheres, p)
		}
	}
	return q
}

// OrWhere ORs p with everything filtered so far.
func (q *Query) OrWhere(p Predicate) *Query {
	if p.IsEmpty() {
		return q
	}
	if len(q.wheres) == 0 {
		q.wheres = []Predicate{p}
		return q
	}
	q.wheres = []Predicate{Or(And(q.wheres...), p)}
	return q
}

// When applies fn to the query only if cond holds.
func (q *Query) When(cond bool, fn func(*Query)) *Query {
	if cond {
		fn(q)
	}
	return q
}

// Filter returns the combined user predicate, without scopes.
func (q *Query) Filter() Predicate { return And(q.wheres...) }

// OrderBy sorts ascending by column.
func (q *Query) OrderBy(column string) *Query {
	q.orders = append(q.orders, Order{Column: column})
	return q
}

// OrderByDesc sorts descending by column.
func (q *Query) OrderByDesc(column string) *Query {
	q.orders = append(q.orders, Order{Column: column, Desc: true})
	return q
}

// ClearOrders drops every ORDER BY term.
func (q *Query) ClearOrders() *Query {
	q.orders = nil
	return q
}

// OrderBySub sorts by the value of a correlated subquery. The primary key is
// appended as a tie-break when the query is compiled.
func (q *Query) OrderBySub(sub *Subquery, desc bool) *Query {
	q.orders = append(q.orders, Order{Sub: sub, Desc: desc})
	return q
}

// AddSelectSub adds a correlated subquery as the computed column alias.
func (q *Query) AddSelectSub(alias string, sub *Subquery) *Query {
	q.subSelects = append(q.subSelects, SubSelect{Alias: alias, Sub: sub})
	return q
}

// Limit caps the number of rows. A negative n removes the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Page returns the current limit and offset.
func (q *Query) Page() (limit, offset int) { return q.limit, q.offset }

// WithoutScope suppresses one named scope for this query only.
func (q *Query) WithoutScope(names ...string) *Query {
	if q.without == nil {
		q.without = make(map[string]bool)
	}
	for _, n := range names {
		q.without[n] = true
	}
	return q
}

// WithoutScopes suppresses every scope for this query only.
func (q *Query) WithoutScopes() *Query {
	return q.WithoutScope(allScopes)
}

// Suppressed returns the suppressed scope names.
func (q *Query) Suppressed() map[string]bool { return q.without }

// WithCount adds a <relation>_count column for each relation.
func (q *Query) WithCount(relations ...string) *Query {
	q.withCounts = append(q.withCounts, relations...)
	return q
}

// With records relation paths to eager load after the query runs
// ("user:id,name", "user.billing", "tags:id,tag").
func (q *Query) With(specs ...string) *Query {
	q.with = append(q.with, specs...)
	return q
}

// Eager returns the relation paths requested with With.
func (q *Query) Eager() []string { return q.with }

// CountAlias is the column name WithCount uses for relation.
func CountAlias(relation string) string { return relation + "_count" }
