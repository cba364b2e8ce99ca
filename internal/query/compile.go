package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
	"github.com/aidanlsb/relq/internal/store"
)

// Compiler turns queries into store plans, validating every column and
// relation reference against the catalog and applying registered scopes.
// Nothing is executed; all errors it returns are build-time errors.
type Compiler struct {
	Catalog *schema.Catalog
	Scopes  *Registry
}

// NewCompiler creates a compiler. scopes may be nil.
func NewCompiler(cat *schema.Catalog, scopes *Registry) *Compiler {
	return &Compiler{Catalog: cat, Scopes: scopes}
}

// frame is one query level; subqueries push frames so WhereColumn can
// reference enclosing tables.
type frame struct {
	entity *schema.Entity
	alias  string
}

type build struct {
	c      *Compiler
	n      int
	frames []frame
	having *havingEnv
	preds  []Predicate // everything ANDed into the outermost WHERE, for summaries
}

func (c *Compiler) newBuild() *build {
	return &build{c: c}
}

func (b *build) alias() string {
	a := fmt.Sprintf("t%d", b.n)
	b.n++
	return a
}

func (b *build) push(e *schema.Entity, alias string) {
	b.frames = append(b.frames, frame{e, alias})
}

func (b *build) pop() {
	b.frames = b.frames[:len(b.frames)-1]
}

// Select compiles q into a row-returning plan.
func (c *Compiler) Select(q *Query) (store.Plan, error) {
	e, err := c.Catalog.Entity(q.Entity)
	if err != nil {
		return store.Plan{}, err
	}
	b := c.newBuild()
	alias := b.alias()
	b.push(e, alias)

	cols := q.columns
	if len(cols) == 0 {
		cols = e.ColumnNames()
	}
	computed := make(map[string]bool)

	var sel []string
	var args []any
	for _, col := range cols {
		if err := e.RequireColumn(col); err != nil {
			return store.Plan{}, err
		}
		sel = append(sel, sqlutil.QualifiedColumn(alias, col))
	}
	for _, rel := range q.withCounts {
		expr, a, err := b.relationCount(e, alias, rel)
		if err != nil {
			return store.Plan{}, err
		}
		sel = append(sel, expr+" AS "+sqlutil.Quote(CountAlias(rel)))
		args = append(args, a...)
		computed[CountAlias(rel)] = true
	}
	for _, ss := range q.subSelects {
		if ss.Alias == "" {
			return store.Plan{}, ormerr.Validation("", "subquery select needs an alias")
		}
		expr, a, err := b.subquery(ss.Sub)
		if err != nil {
			return store.Plan{}, err
		}
		sel = append(sel, expr+" AS "+sqlutil.Quote(ss.Alias))
		args = append(args, a...)
		computed[ss.Alias] = true
	}

	where, wargs, err := b.condition(e, alias, q.without, q.wheres, true)
	if err != nil {
		return store.Plan{}, err
	}
	args = append(args, wargs...)

	orderSQL, oargs, err := b.orderBy(e, alias, q.orders, computed)
	if err != nil {
		return store.Plan{}, err
	}
	args = append(args, oargs...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s %s", strings.Join(sel, ", "), sqlutil.Quote(e.Table), alias)
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if orderSQL != "" {
		sb.WriteString(" ORDER BY " + orderSQL)
	}
	if q.limit >= 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.limit)
	} else if q.offset > 0 {
		sb.WriteString(" LIMIT -1")
	}
	if q.offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, q.offset)
	}

	return store.Plan{
		Op:        "select",
		Entity:    e.Name,
		SQL:       sb.String(),
		Args:      args,
		Predicate: summarize(b.preds),
	}, nil
}

// Count compiles a COUNT(*) over q's filter and scopes. Projection, order
// and paging are ignored.
func (c *Compiler) Count(q *Query) (store.Plan, error) {
	e, err := c.Catalog.Entity(q.Entity)
	if err != nil {
		return store.Plan{}, err
	}
	b := c.newBuild()
	alias := b.alias()
	b.push(e, alias)

	where, args, err := b.condition(e, alias, q.without, q.wheres, true)
	if err != nil {
		return store.Plan{}, err
	}
	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s %s", sqlutil.Quote("count"), sqlutil.Quote(e.Table), alias)
	if where != "" {
		sqlStr += " WHERE " + where
	}
	return store.Plan{Op: "count", Entity: e.Name, SQL: sqlStr, Args: args, Predicate: summarize(b.preds)}, nil
}

// Condition compiles the scoped filter of entity for use by other planners
// (updates, deletes). It returns "" when nothing filters.
func (c *Compiler) Condition(entity *schema.Entity, alias string, without map[string]bool, preds ...Predicate) (string, []any, string, error) {
	b := c.newBuild()
	b.push(entity, alias)
	cond, args, err := b.condition(entity, alias, without, preds, true)
	if err != nil {
		return "", nil, "", err
	}
	return cond, args, summarize(b.preds), nil
}

// condition ANDs the active scopes of e with preds.
func (b *build) condition(e *schema.Entity, alias string, without map[string]bool, preds []Predicate, top bool) (string, []any, error) {
	scopes, err := b.c.Scopes.Active(e.Name, without)
	if err != nil {
		return "", nil, err
	}
	all := append(scopes, preds...)
	if top {
		b.preds = append(b.preds, all...)
	}
	return b.pred(And(all...), e, alias)
}

func (b *build) orderBy(e *schema.Entity, alias string, orders []Order, computed map[string]bool) (string, []any, error) {
	var parts []string
	var args []any
	needTieBreak := false
	for _, o := range orders {
		dir := ""
		if o.Desc {
			dir = " DESC"
		}
		if o.Sub != nil {
			expr, a, err := b.subquery(o.Sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, expr+dir)
			args = append(args, a...)
			needTieBreak = true
			continue
		}
		if computed[o.Column] {
			parts = append(parts, sqlutil.Quote(o.Column)+dir)
			continue
		}
		if err := e.RequireColumn(o.Column); err != nil {
			return "", nil, err
		}
		parts = append(parts, sqlutil.QualifiedColumn(alias, o.Column)+dir)
	}
	if needTieBreak {
		last := orders[len(orders)-1]
		if last.Sub != nil || last.Column != e.PrimaryKey {
			parts = append(parts, sqlutil.QualifiedColumn(alias, e.PrimaryKey))
		}
	}
	return strings.Join(parts, ", "), args, nil
}

// subquery compiles a correlated scalar subquery limited to one row.
func (b *build) subquery(s *Subquery) (string, []any, error) {
	if s == nil {
		return "", nil, ormerr.Validation("", "nil subquery")
	}
	e, err := b.c.Catalog.Entity(s.Entity)
	if err != nil {
		return "", nil, err
	}
	if s.column == "" {
		return "", nil, ormerr.Validation(s.Entity, "subquery selects no column")
	}
	if err := e.RequireColumn(s.column); err != nil {
		return "", nil, err
	}

	alias := b.alias()
	b.push(e, alias)
	defer b.pop()

	where, args, err := b.condition(e, alias, s.without, s.wheres, false)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	desc := true
	for _, o := range s.orders {
		if err := e.RequireColumn(o.Column); err != nil {
			return "", nil, err
		}
		dir := ""
		if o.Desc {
			dir = " DESC"
		}
		desc = o.Desc
		parts = append(parts, sqlutil.QualifiedColumn(alias, o.Column)+dir)
	}
	// Rows tied on the requested order resolve by primary key so the
	// selected row is reproducible.
	if len(s.orders) == 0 || s.orders[len(s.orders)-1].Column != e.PrimaryKey {
		tie := sqlutil.QualifiedColumn(alias, e.PrimaryKey)
		if desc {
			tie += " DESC"
		}
		parts = append(parts, tie)
	}

	sqlStr := fmt.Sprintf("(SELECT %s FROM %s %s", sqlutil.QualifiedColumn(alias, s.column), sqlutil.Quote(e.Table), alias)
	if where != "" {
		sqlStr += " WHERE " + where
	}
	sqlStr += " ORDER BY " + strings.Join(parts, ", ") + " LIMIT 1)"
	return sqlStr, args, nil
}
