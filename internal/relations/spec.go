// Package relations eager-loads associations for a set of parent records
// with one batched query per relation per nesting level.
package relations

import (
	"strings"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
)

// Spec is one relation to load, with optional projection, ordering and
// nested relations loaded through it.
type Spec struct {
	Name    string
	Columns []string
	OrderBy string
	Desc    bool
	Nested  []*Spec
}

// Parse turns path strings into a spec tree. A path is a dot-separated list
// of relation names; the last segment may carry a column list after a colon:
//
//	"user:id,name,email"  "user.billing"  "tags:id,tag"
//
// Paths sharing a prefix merge, so "user:id,name" and "user.billing" load
// users once with billing nested under them.
func Parse(paths ...string) ([]*Spec, error) {
	var roots []*Spec
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		rel, cols, hasCols := strings.Cut(path, ":")
		segments := strings.Split(rel, ".")
		level := &roots
		var cur *Spec
		for _, seg := range segments {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				return nil, ormerr.Validation(path, "empty relation name in path")
			}
			cur = find(*level, seg)
			if cur == nil {
				cur = &Spec{Name: seg}
				*level = append(*level, cur)
			}
			level = &cur.Nested
		}
		if hasCols {
			for _, c := range strings.Split(cols, ",") {
				if c = strings.TrimSpace(c); c != "" {
					cur.Columns = appendUnique(cur.Columns, c)
				}
			}
			if len(cur.Columns) == 0 {
				return nil, ormerr.Validation(path, "empty column list")
			}
		}
	}
	return roots, nil
}

func find(specs []*Spec, name string) *Spec {
	for _, s := range specs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// OwnerKeys returns the columns of entity that the given specs need on the
// parent side to resolve their keys.
func OwnerKeys(entity *schema.Entity, specs []*Spec) ([]string, error) {
	var keys []string
	for _, s := range specs {
		rel, err := entity.Relation(s.Name)
		if err != nil {
			return nil, err
		}
		if rel.Kind == schema.BelongsTo {
			keys = appendUnique(keys, rel.ForeignKey)
		} else {
			keys = appendUnique(keys, rel.OwnerKey)
		}
	}
	return keys, nil
}

// Validate checks every relation name and column of the tree.
func Validate(cat *schema.Catalog, entity *schema.Entity, specs []*Spec) error {
	for _, s := range specs {
		rel, err := entity.Relation(s.Name)
		if err != nil {
			return err
		}
		target, err := cat.Entity(rel.Target)
		if err != nil {
			return err
		}
		for _, c := range s.Columns {
			if err := target.RequireColumn(c); err != nil {
				return err
			}
		}
		if s.OrderBy != "" {
			if err := target.RequireColumn(s.OrderBy); err != nil {
				return err
			}
		}
		if err := Validate(cat, target, s.Nested); err != nil {
			return err
		}
	}
	return nil
}
