package schema

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aidanlsb/relq/internal/ormerr"
)

// Date and timestamp layouts accepted by temporal columns.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)

// Validate checks that every relation points at known entities and columns.
func (c *Catalog) Validate() error {
	for _, name := range c.EntityNames() {
		e := c.Entities[name]
		seen := make(map[string]bool, len(e.Columns))
		for _, col := range e.Columns {
			if seen[col.Name] {
				return &ormerr.SchemaError{Entity: name, Column: col.Name, Reason: "duplicate column"}
			}
			seen[col.Name] = true
			if !validColumnType(col.Type) {
				return &ormerr.SchemaError{Entity: name, Column: col.Name, Reason: fmt.Sprintf("unsupported column type %q for", col.Type)}
			}
		}
		for _, relName := range e.RelationNames() {
			if err := c.validateRelation(e, e.Relations[relName]); err != nil {
				return err
			}
		}
	}
	return nil
}

func validColumnType(t ColumnType) bool {
	switch t {
	case ColumnInteger, ColumnReal, ColumnText, ColumnBoolean, ColumnDate, ColumnDatetime:
		return true
	}
	return false
}

func (c *Catalog) validateRelation(owner *Entity, r *Relation) error {
	target, err := c.Entity(r.Target)
	if err != nil {
		return fmt.Errorf("relation %s.%s: %w", owner.Name, r.Name, err)
	}
	if r.OwnerKey == "" {
		if r.Kind == BelongsTo {
			r.OwnerKey = target.PrimaryKey
		} else {
			r.OwnerKey = owner.PrimaryKey
		}
	}

	switch r.Kind {
	case BelongsTo:
		if err := owner.RequireColumn(r.ForeignKey); err != nil {
			return err
		}
		if err := target.RequireColumn(r.OwnerKey); err != nil {
			return err
		}
	case HasOne, HasMany:
		if err := target.RequireColumn(r.ForeignKey); err != nil {
			return err
		}
		if err := owner.RequireColumn(r.OwnerKey); err != nil {
			return err
		}
	case ManyToMany:
		p, ok := c.Pivots[r.Pivot]
		if !ok {
			return &ormerr.ConfigurationError{Kind: "pivot", Name: r.Pivot, Entity: owner.Name}
		}
		for _, key := range []string{r.ForeignKey, r.RelatedKey} {
			if !p.hasColumn(key) {
				return ormerr.UnknownColumn(p.Name, key)
			}
		}
	default:
		return &ormerr.ConfigurationError{Kind: "relation kind", Name: string(r.Kind), Entity: owner.Name}
	}

	if r.OrderBy != "" {
		if err := target.RequireColumn(r.OrderBy); err != nil {
			return err
		}
	}
	for col := range r.Defaults {
		if err := target.RequireColumn(col); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pivot) hasColumn(name string) bool {
	for _, c := range p.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ParseDate parses a YYYY-MM-DD literal, returning a ValidationError naming
// the literal on failure.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ormerr.Validation(s, "malformed date")
	}
	return t, nil
}

// ParseTemporal accepts either a date or a full timestamp literal.
func ParseTemporal(s string) (time.Time, error) {
	if t, err := time.Parse(DatetimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return ParseDate(s)
}

// NormalizeValue converts a Go value into the representation stored for col.
// Temporal values become text in DatetimeLayout / DateLayout.
func NormalizeValue(col Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case ColumnInteger:
		n, ok := AsFloat(v)
		if !ok {
			return nil, ormerr.Validation(fmt.Sprint(v), "column %s expects an integer", col.Name)
		}
		if n != math.Trunc(n) {
			return nil, ormerr.Validation(fmt.Sprint(v), "column %s expects an integer", col.Name)
		}
		return int64(n), nil
	case ColumnReal:
		n, ok := AsFloat(v)
		if !ok {
			return nil, ormerr.Validation(fmt.Sprint(v), "column %s expects a number", col.Name)
		}
		return n, nil
	case ColumnBoolean:
		switch b := v.(type) {
		case bool:
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		default:
			n, ok := AsFloat(v)
			if !ok || (n != 0 && n != 1) {
				return nil, ormerr.Validation(fmt.Sprint(v), "column %s expects a boolean", col.Name)
			}
			return int64(n), nil
		}
	case ColumnDate, ColumnDatetime:
		layout := DatetimeLayout
		if col.Type == ColumnDate {
			layout = DateLayout
		}
		switch t := v.(type) {
		case time.Time:
			return t.Format(layout), nil
		case string:
			parsed, err := ParseTemporal(t)
			if err != nil {
				return nil, err
			}
			return parsed.Format(layout), nil
		default:
			return nil, ormerr.Validation(fmt.Sprint(v), "column %s expects a date", col.Name)
		}
	default:
		return fmt.Sprint(v), nil
	}
}

// AsFloat reports the numeric value of v, accepting Go numeric types and
// numeric strings.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
