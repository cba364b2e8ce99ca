package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
	"github.com/aidanlsb/relq/internal/store"
)

// OwnerKeyColumn is the extra column related-row plans return so the loader
// can stitch children to parents without knowing the relation kind.
const OwnerKeyColumn = "__owner_key"

// relationCount compiles a correlated COUNT(*) of rel's targets for the row
// of owner aliased as ownerAlias. Target scopes apply.
func (b *build) relationCount(owner *schema.Entity, ownerAlias, relName string) (string, []any, error) {
	rel, err := owner.Relation(relName)
	if err != nil {
		return "", nil, err
	}
	target, err := b.c.Catalog.Entity(rel.Target)
	if err != nil {
		return "", nil, err
	}

	ta := b.alias()
	b.push(target, ta)
	defer b.pop()

	from := sqlutil.Quote(target.Table) + " " + ta
	var join string
	switch rel.Kind {
	case schema.BelongsTo:
		join = fmt.Sprintf("%s = %s", sqlutil.QualifiedColumn(ta, rel.OwnerKey), sqlutil.QualifiedColumn(ownerAlias, rel.ForeignKey))
	case schema.HasOne, schema.HasMany:
		join = fmt.Sprintf("%s = %s", sqlutil.QualifiedColumn(ta, rel.ForeignKey), sqlutil.QualifiedColumn(ownerAlias, rel.OwnerKey))
	case schema.ManyToMany:
		pa := b.alias()
		from = fmt.Sprintf("%s %s JOIN %s ON %s = %s",
			sqlutil.Quote(rel.Pivot), pa, from,
			sqlutil.QualifiedColumn(ta, target.PrimaryKey), sqlutil.QualifiedColumn(pa, rel.RelatedKey))
		join = fmt.Sprintf("%s = %s", sqlutil.QualifiedColumn(pa, rel.ForeignKey), sqlutil.QualifiedColumn(ownerAlias, rel.OwnerKey))
	default:
		return "", nil, &ormerr.ConfigurationError{Kind: "relation kind", Name: string(rel.Kind), Entity: owner.Name}
	}

	cond, args, err := b.condition(target, ta, nil, nil, false)
	if err != nil {
		return "", nil, err
	}
	where := join
	if cond != "" {
		where += " AND " + cond
	}
	return fmt.Sprintf("(SELECT COUNT(*) FROM %s WHERE %s)", from, where), args, nil
}

// RelatedRequest describes one batched relation load.
type RelatedRequest struct {
	Owner    *schema.Entity
	Relation *schema.Relation
	Keys     []any    // distinct owner-side key values
	Columns  []string // projection; empty means all columns
	OrderBy  string   // overrides the relation's order_by
	Desc     bool
	Without  map[string]bool
}

// Related compiles the single query that loads rel's targets for all keys.
// The result carries OwnerKeyColumn holding the owner-side key each row
// belongs to. The target's primary key and join key are always selected.
func (c *Compiler) Related(req RelatedRequest) (store.Plan, error) {
	rel := req.Relation
	target, err := c.Catalog.Entity(rel.Target)
	if err != nil {
		return store.Plan{}, err
	}

	b := c.newBuild()
	ta := b.alias()
	b.push(target, ta)

	cols := req.Columns
	if len(cols) == 0 {
		cols = target.ColumnNames()
	}
	required := []string{target.PrimaryKey}
	switch rel.Kind {
	case schema.BelongsTo:
		required = append(required, rel.OwnerKey)
	case schema.HasOne, schema.HasMany:
		required = append(required, rel.ForeignKey)
	}
	cols = withRequired(cols, required)
	for _, col := range cols {
		if err := target.RequireColumn(col); err != nil {
			return store.Plan{}, err
		}
	}

	from := sqlutil.Quote(target.Table) + " " + ta
	var keyExpr string
	switch rel.Kind {
	case schema.BelongsTo:
		keyExpr = sqlutil.QualifiedColumn(ta, rel.OwnerKey)
	case schema.HasOne, schema.HasMany:
		keyExpr = sqlutil.QualifiedColumn(ta, rel.ForeignKey)
	case schema.ManyToMany:
		pa := b.alias()
		from += fmt.Sprintf(" JOIN %s %s ON %s = %s",
			sqlutil.Quote(rel.Pivot), pa,
			sqlutil.QualifiedColumn(pa, rel.RelatedKey), sqlutil.QualifiedColumn(ta, target.PrimaryKey))
		keyExpr = sqlutil.QualifiedColumn(pa, rel.ForeignKey)
	default:
		return store.Plan{}, &ormerr.ConfigurationError{Kind: "relation kind", Name: string(rel.Kind), Entity: req.Owner.Name}
	}

	cond, args, err := b.condition(target, ta, req.Without, nil, true)
	if err != nil {
		return store.Plan{}, err
	}
	ph, keyArgs := sqlutil.InClauseArgs(req.Keys)
	where := fmt.Sprintf("%s IN (%s)", keyExpr, ph)
	if cond != "" {
		where += " AND " + cond
	}
	args = append(keyArgs, args...)

	orderCol, desc := rel.OrderBy, rel.Desc
	if req.OrderBy != "" {
		orderCol, desc = req.OrderBy, req.Desc
	}
	var orders []string
	if orderCol != "" {
		if err := target.RequireColumn(orderCol); err != nil {
			return store.Plan{}, err
		}
		o := sqlutil.QualifiedColumn(ta, orderCol)
		if desc {
			o += " DESC"
		}
		orders = append(orders, o)
	}
	orders = append(orders, sqlutil.QualifiedColumn(ta, target.PrimaryKey))

	sqlStr := fmt.Sprintf("SELECT %s, %s AS %s FROM %s WHERE %s ORDER BY %s",
		sqlutil.QuoteAll(ta, cols), keyExpr, sqlutil.Quote(OwnerKeyColumn), from, where, strings.Join(orders, ", "))

	return store.Plan{
		Op:        "load " + req.Owner.Name + "." + rel.Name,
		Entity:    target.Name,
		SQL:       sqlStr,
		Args:      args,
		Predicate: summarize(b.preds),
	}, nil
}

func withRequired(cols, required []string) []string {
	out := append([]string(nil), cols...)
	for _, r := range required {
		found := false
		for _, c := range out {
			if c == r {
				found = true
				break
			}
		}
		if !found {
			out = append([]string{r}, out...)
		}
	}
	return out
}
