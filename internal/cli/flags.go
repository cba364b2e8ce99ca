package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aidanlsb/relq/internal/batch"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
)

// parseLiteral turns a command-line value into a Go value: "null" is nil,
// "true"/"false" are booleans, everything else stays a string and is
// converted against the column type later.
func parseLiteral(s string) any {
	switch s {
	case "null", "NULL":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// attrsFlag collects repeated col=value pairs.
type attrsFlag struct {
	attrs orm.Attrs
}

var _ pflag.Value = (*attrsFlag)(nil)

func newAttrsFlag() *attrsFlag { return &attrsFlag{attrs: orm.Attrs{}} }

func (f *attrsFlag) Set(s string) error {
	col, val, ok := strings.Cut(s, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" {
		return fmt.Errorf("expected col=value, got %q", s)
	}
	f.attrs[col] = parseLiteral(val)
	return nil
}

func (f *attrsFlag) String() string {
	parts := make([]string, 0, len(f.attrs))
	for k, v := range f.attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (f *attrsFlag) Type() string { return "col=value" }

// whereFlag collects repeated col:op:value filters.
//
// Operators: = != > >= < <=, in (comma list), between (lo,hi), null,
// notnull, and date/month/day/col followed by an optional comparison
// ("date>=", "month", "col=" compares with another column).
type whereFlag struct {
	preds []query.Predicate
}

var _ pflag.Value = (*whereFlag)(nil)

func (f *whereFlag) Set(s string) error {
	p, err := parseWhere(s)
	if err != nil {
		return err
	}
	f.preds = append(f.preds, p)
	return nil
}

func (f *whereFlag) String() string {
	parts := make([]string, len(f.preds))
	for i, p := range f.preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

func (f *whereFlag) Type() string { return "col:op:value" }

func parseWhere(s string) (query.Predicate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return query.Predicate{}, fmt.Errorf("expected col:op:value, got %q", s)
	}
	col, op := parts[0], strings.ToLower(parts[1])
	val := ""
	hasVal := len(parts) == 3
	if hasVal {
		val = parts[2]
	}
	need := func() error {
		if !hasVal {
			return fmt.Errorf("operator %q needs a value in %q", op, s)
		}
		return nil
	}

	switch op {
	case "null":
		return query.IsNull(col), nil
	case "notnull":
		return query.NotNull(col), nil
	case "in":
		if err := need(); err != nil {
			return query.Predicate{}, err
		}
		var values []any
		for _, v := range strings.Split(val, ",") {
			values = append(values, parseLiteral(strings.TrimSpace(v)))
		}
		return query.In(col, values...), nil
	case "between":
		if err := need(); err != nil {
			return query.Predicate{}, err
		}
		lo, hi, ok := strings.Cut(val, ",")
		if !ok {
			return query.Predicate{}, fmt.Errorf("between needs lo,hi in %q", s)
		}
		return query.Between(col, parseLiteral(lo), parseLiteral(hi)), nil
	}

	for _, fn := range []string{"date", "month", "day", "col"} {
		if !strings.HasPrefix(op, fn) {
			continue
		}
		if err := need(); err != nil {
			return query.Predicate{}, err
		}
		cmp := strings.TrimPrefix(op, fn)
		if cmp == "" {
			cmp = "="
		}
		switch fn {
		case "date":
			return query.WhereDate(col, cmp, val), nil
		case "col":
			return query.WhereColumn(col, cmp, val), nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return query.Predicate{}, fmt.Errorf("%s needs a number, got %q", fn, val)
		}
		if fn == "month" {
			return query.WhereMonth(col, cmp, n), nil
		}
		return query.WhereDay(col, cmp, n), nil
	}

	if err := need(); err != nil {
		return query.Predicate{}, err
	}
	return query.Where(col, op, parseLiteral(val)), nil
}

// hasFlag parses relation[:op:n] into a relation-count predicate.
func parseHas(s string) (query.Predicate, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		return query.WhereHas(parts[0]), nil
	case 3:
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return query.Predicate{}, fmt.Errorf("relation count must be a number, got %q", parts[2])
		}
		return query.Has(parts[0], parts[1], n), nil
	}
	return query.Predicate{}, fmt.Errorf("expected relation or relation:op:n, got %q", s)
}

// setFlag collects repeated key:col:op:value batch update entries. Entries
// for the same key form one operation; keys keep first-seen order.
type setFlag struct {
	ops   []batch.Operation
	index map[string]int
}

var _ pflag.Value = (*setFlag)(nil)

func (f *setFlag) Set(s string) error {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("expected key:col:op:value, got %q", s)
	}
	op, err := batch.ParseOperator(parts[2])
	if err != nil {
		return err
	}
	if f.index == nil {
		f.index = make(map[string]int)
	}
	i, ok := f.index[parts[0]]
	if !ok {
		i = len(f.ops)
		f.index[parts[0]] = i
		f.ops = append(f.ops, batch.Operation{Key: parts[0], Set: map[string]batch.Delta{}})
	}
	if _, dup := f.ops[i].Set[parts[1]]; dup {
		return fmt.Errorf("column %s set twice for key %s", parts[1], parts[0])
	}
	f.ops[i].Set[parts[1]] = batch.Delta{Op: op, Value: parseLiteral(parts[3])}
	return nil
}

func (f *setFlag) String() string {
	return fmt.Sprintf("%d operations", len(f.ops))
}

func (f *setFlag) Type() string { return "key:col:op:value" }

// parseAggSpec parses column[:alias], defaulting the alias to fn_column.
func parseAggSpec(fn, s string) (column, alias string) {
	column, alias, ok := strings.Cut(s, ":")
	if !ok || alias == "" {
		alias = strings.ToLower(fn) + "_" + strings.ReplaceAll(column, "*", "all")
	}
	return column, alias
}

// parseIDs turns positional arguments into key values.
func parseIDs(args []string) []any {
	ids := make([]any, len(args))
	for i, a := range args {
		ids[i] = parseLiteral(a)
	}
	return ids
}
