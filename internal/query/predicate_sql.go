package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
)

// havingEnv resolves HAVING leaf columns: aggregate aliases map to their
// expression, group columns to the qualified column, anything else fails.
type havingEnv struct {
	aliases map[string]string
	groups  map[string]bool
}

// pred compiles p against entity e aliased as alias. An empty predicate
// compiles to "".
func (b *build) pred(p Predicate, e *schema.Entity, alias string) (string, []any, error) {
	if p.Op == "" {
		return b.groupSQL(p, e, alias)
	}
	switch p.Op {
	case OpHas:
		return b.hasSQL(p, e, alias)
	case OpColumn:
		return b.columnCompareSQL(p, e, alias)
	}

	lhs, col, err := b.leftHand(p, e, alias)
	if err != nil {
		return "", nil, err
	}

	switch {
	case p.Op.comparison():
		if p.Value == nil {
			switch p.Op {
			case OpEq:
				return lhs + " IS NULL", nil, nil
			case OpNe:
				return lhs + " IS NOT NULL", nil, nil
			}
			return "", nil, ormerr.Validation("null", "operator %s cannot compare with null", p.Op)
		}
		v, err := bindValue(col, p.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", lhs, p.Op), []any{v}, nil

	case p.Op == OpBetween:
		if len(p.Values) != 2 {
			return "", nil, ormerr.Validation(fmt.Sprint(p.Values), "between needs exactly two bounds")
		}
		lo, err := bindValue(col, p.Values[0])
		if err != nil {
			return "", nil, err
		}
		hi, err := bindValue(col, p.Values[1])
		if err != nil {
			return "", nil, err
		}
		return lhs + " BETWEEN ? AND ?", []any{lo, hi}, nil

	case p.Op == OpIn:
		vals := make([]any, len(p.Values))
		for i, raw := range p.Values {
			v, err := bindValue(col, raw)
			if err != nil {
				return "", nil, err
			}
			vals[i] = v
		}
		ph, args := sqlutil.InClauseArgs(vals)
		return fmt.Sprintf("%s IN (%s)", lhs, ph), args, nil

	case p.Op == OpNull:
		return lhs + " IS NULL", nil, nil

	case p.Op == OpNotNull:
		return lhs + " IS NOT NULL", nil, nil

	case p.Op == OpDate:
		cmp, err := comparisonOp(p.cmp())
		if err != nil {
			return "", nil, err
		}
		s, ok := p.Value.(string)
		if !ok {
			return "", nil, ormerr.Validation(fmt.Sprint(p.Value), "malformed date")
		}
		if _, err := schema.ParseDate(s); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("date(%s) %s ?", lhs, cmp), []any{s}, nil

	case p.Op == OpMonth, p.Op == OpDay:
		cmp, err := comparisonOp(p.cmp())
		if err != nil {
			return "", nil, err
		}
		n, ok := schema.AsFloat(p.Value)
		if !ok || n != math.Trunc(n) {
			return "", nil, ormerr.Validation(fmt.Sprint(p.Value), "%s must be an integer", p.Op)
		}
		format, max := "%m", 12.0
		if p.Op == OpDay {
			format, max = "%d", 31
		}
		if n < 1 || n > max {
			return "", nil, ormerr.Validation(fmt.Sprint(p.Value), "%s out of range", p.Op)
		}
		return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER) %s ?", format, lhs, cmp), []any{int64(n)}, nil
	}

	return "", nil, ormerr.Validation(string(p.Op), "unknown operator")
}

func (b *build) groupSQL(p Predicate, e *schema.Entity, alias string) (string, []any, error) {
	sep := " AND "
	if p.Logic == LogicOr {
		sep = " OR "
	} else if p.Logic != "" && p.Logic != LogicAnd {
		return "", nil, ormerr.Validation(string(p.Logic), "unknown logical operator")
	}

	var conds []string
	var args []any
	for _, child := range p.Children {
		cond, a, err := b.pred(child, e, alias)
		if err != nil {
			return "", nil, err
		}
		if cond == "" {
			continue
		}
		conds = append(conds, cond)
		args = append(args, a...)
	}
	switch len(conds) {
	case 0:
		return "", nil, nil
	case 1:
		return conds[0], args, nil
	}
	return "(" + strings.Join(conds, sep) + ")", args, nil
}

// leftHand resolves the column side of a leaf. col is the catalog column
// when the left side is a plain column (zero for aggregates and aliases).
func (b *build) leftHand(p Predicate, e *schema.Entity, alias string) (string, schema.Column, error) {
	if p.Agg != nil {
		if b.having == nil {
			return "", schema.Column{}, ormerr.Validation(p.Agg.String(), "aggregate reference outside HAVING")
		}
		expr, err := aggregateSQL(*p.Agg, e, alias)
		return expr, schema.Column{}, err
	}
	if b.having != nil {
		if expr, ok := b.having.aliases[p.Column]; ok {
			return expr, schema.Column{}, nil
		}
		if !b.having.groups[p.Column] {
			if !e.HasColumn(p.Column) {
				return "", schema.Column{}, ormerr.UnknownColumn(e.Name, p.Column)
			}
			return "", schema.Column{}, &ormerr.SchemaError{
				Entity: e.Name,
				Column: p.Column,
				Reason: "HAVING references non-aggregated, non-grouped column",
			}
		}
	}
	return b.column(e, alias, p.Column)
}

// column resolves a column name, possibly qualified with the table or entity
// name of an enclosing query.
func (b *build) column(e *schema.Entity, alias, name string) (string, schema.Column, error) {
	if table, col, ok := strings.Cut(name, "."); ok {
		for i := len(b.frames) - 1; i >= 0; i-- {
			f := b.frames[i]
			if f.entity.Table == table || f.entity.Name == table {
				c, found := f.entity.Column(col)
				if !found {
					return "", schema.Column{}, ormerr.UnknownColumn(f.entity.Name, col)
				}
				return sqlutil.QualifiedColumn(f.alias, col), c, nil
			}
		}
		return "", schema.Column{}, &ormerr.SchemaError{Column: name, Reason: "unknown table in column reference"}
	}
	c, ok := e.Column(name)
	if !ok {
		return "", schema.Column{}, ormerr.UnknownColumn(e.Name, name)
	}
	return sqlutil.QualifiedColumn(alias, name), c, nil
}

func (b *build) columnCompareSQL(p Predicate, e *schema.Entity, alias string) (string, []any, error) {
	cmp, err := comparisonOp(p.cmp())
	if err != nil {
		return "", nil, err
	}
	lhs, _, err := b.leftHand(p, e, alias)
	if err != nil {
		return "", nil, err
	}
	rhs, _, err := b.column(e, alias, p.Other)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s %s", lhs, cmp, rhs), nil, nil
}

func (b *build) hasSQL(p Predicate, e *schema.Entity, alias string) (string, []any, error) {
	if b.having != nil {
		return "", nil, ormerr.Validation(p.Column, "relation predicates are not allowed in HAVING")
	}
	cmp, err := comparisonOp(p.cmp())
	if err != nil {
		return "", nil, err
	}
	n, ok := schema.AsFloat(p.Value)
	if !ok {
		return "", nil, ormerr.Validation(fmt.Sprint(p.Value), "relation count must be a number")
	}
	expr, args, err := b.relationCount(e, alias, p.Column)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ?", expr, cmp), append(args, int64(n)), nil
}

func comparisonOp(op Op) (Op, error) {
	if op.comparison() {
		return op, nil
	}
	return "", ormerr.Validation(string(op), "unknown operator")
}

func aggregateSQL(ref AggRef, e *schema.Entity, alias string) (string, error) {
	switch ref.Func {
	case Sum, Count, Avg, Min, Max:
	default:
		return "", ormerr.Validation(string(ref.Func), "unknown aggregate function")
	}
	if ref.Column == "*" {
		if ref.Func != Count {
			return "", ormerr.Validation(ref.String(), "only COUNT accepts *")
		}
		return "COUNT(*)", nil
	}
	if err := e.RequireColumn(ref.Column); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s)", ref.Func, sqlutil.QualifiedColumn(alias, ref.Column)), nil
}

// bindValue validates a literal against the column it is compared with.
// Temporal literals are checked but passed through so comparisons keep the
// caller's precision; booleans become 0/1.
func bindValue(col schema.Column, v any) (any, error) {
	if col.Name == "" || v == nil {
		return v, nil
	}
	switch {
	case col.Type.IsTemporal():
		switch t := v.(type) {
		case string:
			if _, err := schema.ParseTemporal(t); err != nil {
				return nil, err
			}
			return t, nil
		default:
			return schema.NormalizeValue(col, v)
		}
	case col.Type == schema.ColumnBoolean:
		return schema.NormalizeValue(col, v)
	}
	return v, nil
}
