// Package schema holds the catalog of entity types, their columns and the
// relations between them.
package schema

import (
	"sort"

	"github.com/aidanlsb/relq/internal/ormerr"
)

// CurrentCatalogVersion is the latest catalog format version.
const CurrentCatalogVersion = 1

// ColumnType is the storage type of a column.
type ColumnType string

const (
	ColumnInteger  ColumnType = "integer"
	ColumnReal     ColumnType = "real"
	ColumnText     ColumnType = "text"
	ColumnBoolean  ColumnType = "boolean"
	ColumnDate     ColumnType = "date"
	ColumnDatetime ColumnType = "datetime"
)

// IsNumeric reports whether arithmetic is defined on the column type.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnInteger || t == ColumnReal
}

// IsTemporal reports whether the column holds a date or timestamp.
func (t ColumnType) IsTemporal() bool {
	return t == ColumnDate || t == ColumnDatetime
}

// Column describes a single column of an entity table.
type Column struct {
	Name     string     `yaml:"name"`
	Type     ColumnType `yaml:"type"`
	Unique   bool       `yaml:"unique,omitempty"`
	Nullable bool       `yaml:"nullable,omitempty"`
	Default  any        `yaml:"default,omitempty"`
}

// RelationKind enumerates the supported associations.
type RelationKind string

const (
	BelongsTo  RelationKind = "belongs_to"
	HasOne     RelationKind = "has_one"
	HasMany    RelationKind = "has_many"
	ManyToMany RelationKind = "many_to_many"
)

// Relation is a directed association from an owner entity to a target entity.
//
// Key columns depend on the kind:
//   - belongs_to: ForeignKey lives on the owner and points at Target.OwnerKey.
//   - has_one / has_many: ForeignKey lives on the target and points at the owner's OwnerKey.
//   - many_to_many: Pivot.ForeignKey points at the owner, Pivot.RelatedKey at the target.
type Relation struct {
	Name        string         `yaml:"-"`
	Kind        RelationKind   `yaml:"kind"`
	Target      string         `yaml:"target"`
	ForeignKey  string         `yaml:"foreign_key"`
	OwnerKey    string         `yaml:"owner_key,omitempty"`
	Pivot       string         `yaml:"pivot,omitempty"`
	RelatedKey  string         `yaml:"related_key,omitempty"`
	OrderBy     string         `yaml:"order_by,omitempty"`
	Desc        bool           `yaml:"desc,omitempty"`
	WithDefault bool           `yaml:"with_default,omitempty"`
	Defaults    map[string]any `yaml:"defaults,omitempty"`
}

// Single reports whether the relation resolves to at most one target.
func (r *Relation) Single() bool {
	return r.Kind == BelongsTo || r.Kind == HasOne
}

// Pivot is a join table used by many-to-many relations. It has no primary key.
type Pivot struct {
	Name    string   `yaml:"-"`
	Columns []Column `yaml:"columns"`
}

// Reader is the read view derived attributes compute from.
type Reader interface {
	Get(column string) any
	Related(name string) (Reader, bool)
}

// DerivedFunc computes a derived attribute from a loaded record.
type DerivedFunc func(r Reader) any

// Derived is an attribute computed on read and never persisted.
type Derived struct {
	Name     string
	Requires []string // relations that must be loaded
	Fn       DerivedFunc
}

// Mutator rewrites attributes when a column is assigned (e.g. title -> slug).
type Mutator func(value any, attrs map[string]any)

// Entity is a named record type backed by one table.
type Entity struct {
	Name       string               `yaml:"-"`
	Table      string               `yaml:"table"`
	PrimaryKey string               `yaml:"primary_key,omitempty"`
	Columns    []Column             `yaml:"columns"`
	Timestamps bool                 `yaml:"timestamps,omitempty"`
	Hidden     []string             `yaml:"hidden,omitempty"`
	Appends    []string             `yaml:"appends,omitempty"`
	Relations  map[string]*Relation `yaml:"relations,omitempty"`

	derived  map[string]*Derived
	mutators map[string]Mutator
}

// Column looks up a column by name.
func (e *Entity) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is a column of e.
func (e *Entity) HasColumn(name string) bool {
	_, ok := e.Column(name)
	return ok
}

// RequireColumn returns a SchemaError unless name is a column of e.
func (e *Entity) RequireColumn(name string) error {
	if !e.HasColumn(name) {
		return ormerr.UnknownColumn(e.Name, name)
	}
	return nil
}

// ColumnNames returns column names in declaration order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// Relation resolves a relation name or fails with a ConfigurationError.
func (e *Entity) Relation(name string) (*Relation, error) {
	if r, ok := e.Relations[name]; ok {
		return r, nil
	}
	return nil, ormerr.UndefinedRelation(e.Name, name)
}

// RelationNames returns the declared relation names, sorted.
func (e *Entity) RelationNames() []string {
	names := make([]string, 0, len(e.Relations))
	for n := range e.Relations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsHidden reports whether a column is excluded from serialized output.
func (e *Entity) IsHidden(column string) bool {
	for _, h := range e.Hidden {
		if h == column {
			return true
		}
	}
	return false
}

// Derived returns the derived attribute registered under name.
func (e *Entity) Derived(name string) (*Derived, bool) {
	d, ok := e.derived[name]
	return d, ok
}

// Mutator returns the mutator registered for column.
func (e *Entity) Mutator(column string) (Mutator, bool) {
	m, ok := e.mutators[column]
	return m, ok
}

// Catalog is the complete set of entity and pivot definitions.
type Catalog struct {
	Version  int                `yaml:"version,omitempty"`
	Entities map[string]*Entity `yaml:"entities"`
	Pivots   map[string]*Pivot  `yaml:"pivots,omitempty"`
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Version:  CurrentCatalogVersion,
		Entities: make(map[string]*Entity),
		Pivots:   make(map[string]*Pivot),
	}
}

// Entity resolves an entity name or fails with a ConfigurationError.
func (c *Catalog) Entity(name string) (*Entity, error) {
	if e, ok := c.Entities[name]; ok {
		return e, nil
	}
	return nil, &ormerr.ConfigurationError{Kind: "entity", Name: name}
}

// EntityNames returns entity names in sorted order.
func (c *Catalog) EntityNames() []string {
	names := make([]string, 0, len(c.Entities))
	for n := range c.Entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterDerived attaches a derived attribute to an entity.
func (c *Catalog) RegisterDerived(entity string, d Derived) error {
	e, err := c.Entity(entity)
	if err != nil {
		return err
	}
	for _, rel := range d.Requires {
		if _, err := e.Relation(rel); err != nil {
			return err
		}
	}
	if e.derived == nil {
		e.derived = make(map[string]*Derived)
	}
	e.derived[d.Name] = &d
	return nil
}

// RegisterMutator attaches a mutator to a column of an entity.
func (c *Catalog) RegisterMutator(entity, column string, m Mutator) error {
	e, err := c.Entity(entity)
	if err != nil {
		return err
	}
	if err := e.RequireColumn(column); err != nil {
		return err
	}
	if e.mutators == nil {
		e.mutators = make(map[string]Mutator)
	}
	e.mutators[column] = m
	return nil
}
