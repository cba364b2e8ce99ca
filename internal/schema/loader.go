package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile loads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if cat.Version == 0 {
		cat.Version = CurrentCatalogVersion
	}
	if cat.Version > CurrentCatalogVersion {
		return nil, fmt.Errorf("catalog version %d is newer than supported version %d", cat.Version, CurrentCatalogVersion)
	}
	if cat.Entities == nil {
		cat.Entities = make(map[string]*Entity)
	}
	if cat.Pivots == nil {
		cat.Pivots = make(map[string]*Pivot)
	}

	for name, e := range cat.Entities {
		if e == nil {
			e = &Entity{}
			cat.Entities[name] = e
		}
		normalizeEntity(name, e)
	}
	for name, p := range cat.Pivots {
		if p == nil {
			p = &Pivot{}
			cat.Pivots[name] = p
		}
		p.Name = name
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func normalizeEntity(name string, e *Entity) {
	e.Name = name
	if e.PrimaryKey == "" {
		e.PrimaryKey = "id"
	}
	if e.Table == "" {
		e.Table = name
	}
	if !e.HasColumn(e.PrimaryKey) {
		e.Columns = append([]Column{{Name: e.PrimaryKey, Type: ColumnInteger}}, e.Columns...)
	}
	if e.Timestamps {
		for _, ts := range []string{"created_at", "updated_at"} {
			if !e.HasColumn(ts) {
				e.Columns = append(e.Columns, Column{Name: ts, Type: ColumnDatetime, Nullable: true})
			}
		}
	}
	for i := range e.Columns {
		if e.Columns[i].Type == "" {
			e.Columns[i].Type = ColumnText
		}
	}
	if e.Relations == nil {
		e.Relations = make(map[string]*Relation)
	}
	for relName, r := range e.Relations {
		if r == nil {
			r = &Relation{}
			e.Relations[relName] = r
		}
		r.Name = relName
	}
}
