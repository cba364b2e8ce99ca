// Package query composes predicates, scopes, subqueries and grouped
// aggregates into SQL plans for the store package.
package query

import (
	"fmt"
	"strings"
)

// Op is a predicate operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "!="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpBetween Op = "between"
	OpIn      Op = "in"
	OpNull    Op = "null"
	OpNotNull Op = "not null"
	OpDate    Op = "date"
	OpMonth   Op = "month"
	OpDay     Op = "day"
	OpColumn  Op = "column"
	OpHas     Op = "has"
)

// comparison reports whether op is one of the six binary comparisons.
func (op Op) comparison() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Logic joins the children of a group node.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Predicate is a node of a filter tree. A node is either a group (Logic set)
// or a leaf (Op set); the zero value is the empty predicate and compiles to
// nothing.
//
// Predicates carry only column names and literals, never catalog pointers,
// so they serialize to JSON and can be built before the entity is known.
type Predicate struct {
	Logic    Logic       `json:"logic,omitempty"`
	Children []Predicate `json:"children,omitempty"`

	Column  string  `json:"column,omitempty"`
	Op      Op      `json:"op,omitempty"`
	Compare Op      `json:"compare,omitempty"` // comparison for date/month/day/column/has
	Value   any     `json:"value,omitempty"`
	Values  []any   `json:"values,omitempty"` // between bounds, in list
	Other   string  `json:"other,omitempty"`  // right-hand column, "table.column" for outer refs
	Agg     *AggRef `json:"agg,omitempty"`    // aggregate reference, HAVING only
}

// IsEmpty reports whether p filters nothing.
func (p Predicate) IsEmpty() bool {
	if p.Op != "" {
		return false
	}
	for _, c := range p.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// And combines p with others.
func (p Predicate) And(others ...Predicate) Predicate {
	return And(append([]Predicate{p}, others...)...)
}

// Or combines p with others.
func (p Predicate) Or(others ...Predicate) Predicate {
	return Or(append([]Predicate{p}, others...)...)
}

// And groups predicates with AND. Empty children are dropped.
func And(ps ...Predicate) Predicate {
	return group(LogicAnd, ps)
}

// Or groups predicates with OR. Empty children are dropped.
func Or(ps ...Predicate) Predicate {
	return group(LogicOr, ps)
}

func group(logic Logic, ps []Predicate) Predicate {
	kept := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if !p.IsEmpty() {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return Predicate{}
	case 1:
		return kept[0]
	}
	return Predicate{Logic: logic, Children: kept}
}

// Where builds a comparison leaf. op is one of =, !=, >, >=, <, <=; an
// unknown operator is reported when the predicate is compiled.
func Where(column, op string, value any) Predicate {
	return Predicate{Column: column, Op: Op(op), Value: value}
}

// Eq is shorthand for Where(column, "=", value).
func Eq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpEq, Value: value}
}

// Between matches lo <= column <= hi.
func Between(column string, lo, hi any) Predicate {
	return Predicate{Column: column, Op: OpBetween, Values: []any{lo, hi}}
}

// In matches any of values. An empty list matches nothing.
func In(column string, values ...any) Predicate {
	if values == nil {
		values = []any{}
	}
	return Predicate{Column: column, Op: OpIn, Values: values}
}

// IsNull matches rows where column is NULL.
func IsNull(column string) Predicate {
	return Predicate{Column: column, Op: OpNull}
}

// NotNull matches rows where column is not NULL.
func NotNull(column string) Predicate {
	return Predicate{Column: column, Op: OpNotNull}
}

// WhereDate compares the calendar date of column with a YYYY-MM-DD literal.
func WhereDate(column, op, date string) Predicate {
	return Predicate{Column: column, Op: OpDate, Compare: Op(op), Value: date}
}

// WhereMonth compares the month (1-12) of column.
func WhereMonth(column, op string, month int) Predicate {
	return Predicate{Column: column, Op: OpMonth, Compare: Op(op), Value: month}
}

// WhereDay compares the day of month (1-31) of column.
func WhereDay(column, op string, day int) Predicate {
	return Predicate{Column: column, Op: OpDay, Compare: Op(op), Value: day}
}

// WhereColumn compares two columns. other may be qualified with a table name
// ("users.id") to reference an enclosing query.
func WhereColumn(column, op, other string) Predicate {
	return Predicate{Column: column, Op: OpColumn, Compare: Op(op), Other: other}
}

// Has matches rows whose related row count satisfies op n.
func Has(relation, op string, n int) Predicate {
	return Predicate{Column: relation, Op: OpHas, Compare: Op(op), Value: n}
}

// WhereHas matches rows with at least one related row.
func WhereHas(relation string) Predicate {
	return Has(relation, ">=", 1)
}

// WhereDoesntHave matches rows with no related rows.
func WhereDoesntHave(relation string) Predicate {
	return Has(relation, "=", 0)
}

// When includes the predicate built by fn only if cond holds. The decision is
// made now, while the query is being built.
func When(cond bool, fn func() Predicate) Predicate {
	if !cond {
		return Predicate{}
	}
	return fn()
}

// WhenValue includes the predicate built by fn only if v is non-empty.
func WhenValue(v string, fn func(string) Predicate) Predicate {
	if v == "" {
		return Predicate{}
	}
	return fn(v)
}

// String returns a compact summary used in error messages.
func (p Predicate) String() string {
	if p.Op == "" {
		if len(p.Children) == 0 {
			return ""
		}
		sep := " AND "
		if p.Logic == LogicOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(p.Children))
		for _, c := range p.Children {
			if c.IsEmpty() {
				continue
			}
			s := c.String()
			if c.Op == "" {
				s = "(" + s + ")"
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, sep)
	}

	col := p.Column
	if p.Agg != nil {
		col = p.Agg.String()
	}
	switch p.Op {
	case OpBetween:
		return fmt.Sprintf("%s between %v", col, p.Values)
	case OpIn:
		return fmt.Sprintf("%s in %v", col, p.Values)
	case OpNull:
		return col + " is null"
	case OpNotNull:
		return col + " is not null"
	case OpDate, OpMonth, OpDay:
		return fmt.Sprintf("%s(%s) %s %v", p.Op, col, p.cmp(), p.Value)
	case OpColumn:
		return fmt.Sprintf("%s %s %s", col, p.cmp(), p.Other)
	case OpHas:
		return fmt.Sprintf("has(%s) %s %v", col, p.cmp(), p.Value)
	}
	return fmt.Sprintf("%s %s %v", col, p.Op, p.Value)
}

func (p Predicate) cmp() Op {
	if p.Compare == "" {
		return OpEq
	}
	return p.Compare
}

func summarize(ps []Predicate) string {
	return And(ps...).String()
}
