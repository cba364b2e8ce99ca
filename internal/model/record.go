package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aidanlsb/relq/internal/schema"
)

// Record is one row of an entity, plus whatever relations were loaded for it.
//
// Columns keeps the projected column order so output matches the select
// list; Values may hold extra computed columns (aggregates, counts,
// subquery selects) that are also listed in Columns.
type Record struct {
	Entity    *schema.Entity
	Columns   []string
	Values    map[string]any
	Relations map[string]*Related

	relOrder []string
}

// New creates an empty record for entity e.
func New(e *schema.Entity) *Record {
	return &Record{
		Entity:    e,
		Values:    make(map[string]any),
		Relations: make(map[string]*Related),
	}
}

// FromValues creates a record from a column map, ordering columns as the
// entity declares them.
func FromValues(e *schema.Entity, values map[string]any) *Record {
	r := New(e)
	for _, c := range e.ColumnNames() {
		if v, ok := values[c]; ok {
			r.Set(c, v)
		}
	}
	return r
}

// Get returns the value of a column, or nil when it was not selected.
func (r *Record) Get(column string) any {
	return r.Values[column]
}

// Has reports whether the column was selected.
func (r *Record) Has(column string) bool {
	_, ok := r.Values[column]
	return ok
}

// Set assigns a column value, appending it to Columns when new.
func (r *Record) Set(column string, v any) {
	if _, ok := r.Values[column]; !ok {
		r.Columns = append(r.Columns, column)
	}
	r.Values[column] = v
}

// Key returns the primary key value in normalized form.
func (r *Record) Key() any {
	return Key(r.Values[r.Entity.PrimaryKey])
}

// Int returns a column as int64.
func (r *Record) Int(column string) (int64, bool) {
	n, ok := schema.AsFloat(r.Values[column])
	if !ok {
		return 0, false
	}
	return int64(n), true
}

// String returns a column formatted as text; nil becomes "".
func (r *Record) String(column string) string {
	v := r.Values[column]
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SetRelated stores a loaded relation.
func (r *Record) SetRelated(name string, rel *Related) {
	if _, ok := r.Relations[name]; !ok {
		r.relOrder = append(r.relOrder, name)
	}
	r.Relations[name] = rel
}

// Relation returns a loaded relation slot.
func (r *Record) Relation(name string) (*Related, bool) {
	rel, ok := r.Relations[name]
	return rel, ok
}

// Related implements schema.Reader. It resolves single relations only; an
// Absent slot reports false.
func (r *Record) Related(name string) (schema.Reader, bool) {
	rel, ok := r.Relations[name]
	if !ok || rel.Absent || rel.One == nil {
		return nil, false
	}
	return rel.One, true
}

// Attribute evaluates a derived attribute registered on the entity.
func (r *Record) Attribute(name string) (any, bool) {
	d, ok := r.Entity.Derived(name)
	if !ok {
		return nil, false
	}
	return d.Fn(r), true
}

// MarshalJSON writes visible columns in select order, then appended derived
// attributes, then relations in load order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}

	for _, c := range r.Columns {
		if r.Entity.IsHidden(c) {
			continue
		}
		if err := write(c, r.Values[c]); err != nil {
			return nil, err
		}
	}
	for _, name := range r.Entity.Appends {
		if v, ok := r.Attribute(name); ok {
			if err := write(name, v); err != nil {
				return nil, err
			}
		}
	}
	for _, name := range r.relOrder {
		if err := write(name, r.Relations[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Key normalizes a scanned or user supplied key so values of different Go
// integer types compare equal as map keys.
func Key(v any) any {
	switch k := v.(type) {
	case []byte:
		return string(k)
	case string:
		return k
	case nil:
		return nil
	case bool:
		if k {
			return int64(1)
		}
		return int64(0)
	}
	if f, ok := schema.AsFloat(v); ok && f == math.Trunc(f) {
		return int64(f)
	}
	return v
}
