package relations

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/store"
)

// Loader resolves relations for already fetched records.
type Loader struct {
	compiler *query.Compiler
}

// New creates a loader that compiles its queries with c.
func New(c *query.Compiler) *Loader {
	return &Loader{compiler: c}
}

// Load parses paths and loads them onto parents, which must all be records
// of entity.
func (l *Loader) Load(ctx context.Context, ex store.Executor, entity *schema.Entity, parents []*model.Record, paths ...string) error {
	specs, err := Parse(paths...)
	if err != nil {
		return err
	}
	return l.LoadSpecs(ctx, ex, entity, parents, specs)
}

// LoadSpecs loads a spec tree. Relation names are validated before any
// query runs. Each relation costs one query per nesting level no matter how
// many parents there are; sibling relations run concurrently when the
// executor allows it.
func (l *Loader) LoadSpecs(ctx context.Context, ex store.Executor, entity *schema.Entity, parents []*model.Record, specs []*Spec) error {
	if err := Validate(l.compiler.Catalog, entity, specs); err != nil {
		return err
	}
	return l.loadLevel(ctx, ex, entity, parents, specs)
}

type levelResult struct {
	rel      *schema.Relation
	target   *schema.Entity
	byKey    map[any][]*model.Record
	children []*model.Record
}

func (l *Loader) loadLevel(ctx context.Context, ex store.Executor, entity *schema.Entity, parents []*model.Record, specs []*Spec) error {
	if len(parents) == 0 || len(specs) == 0 {
		return nil
	}

	results := make([]levelResult, len(specs))
	fetch := func(ctx context.Context, i int) error {
		res, err := l.fetch(ctx, ex, entity, parents, specs[i])
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	}

	if ex.Concurrent() && len(specs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range specs {
			i := i
			g.Go(func() error { return fetch(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for i := range specs {
			if err := fetch(ctx, i); err != nil {
				return err
			}
		}
	}

	for i, spec := range specs {
		res := results[i]
		stitch(parents, spec.Name, res)
		if err := l.loadLevel(ctx, ex, res.target, res.children, spec.Nested); err != nil {
			return err
		}
	}
	return nil
}

// fetch runs the batched query for one relation. It does not touch parents.
func (l *Loader) fetch(ctx context.Context, ex store.Executor, entity *schema.Entity, parents []*model.Record, spec *Spec) (levelResult, error) {
	rel, err := entity.Relation(spec.Name)
	if err != nil {
		return levelResult{}, err
	}
	target, err := l.compiler.Catalog.Entity(rel.Target)
	if err != nil {
		return levelResult{}, err
	}
	res := levelResult{rel: rel, target: target, byKey: make(map[any][]*model.Record)}

	ownerCol := rel.OwnerKey
	if rel.Kind == schema.BelongsTo {
		ownerCol = rel.ForeignKey
	}
	seen := make(map[any]bool)
	var keys []any
	for _, p := range parents {
		if !p.Has(ownerCol) {
			return levelResult{}, &ormerr.SchemaError{Entity: entity.Name, Column: ownerCol, Reason: "relation " + rel.Name + " needs selected column"}
		}
		k := model.Key(p.Get(ownerCol))
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return res, nil
	}

	cols := spec.Columns
	if len(cols) > 0 {
		needed, err := OwnerKeys(target, spec.Nested)
		if err != nil {
			return levelResult{}, err
		}
		for _, n := range needed {
			cols = appendUnique(cols, n)
		}
	}

	plan, err := l.compiler.Related(query.RelatedRequest{
		Owner:    entity,
		Relation: rel,
		Keys:     keys,
		Columns:  cols,
		OrderBy:  spec.OrderBy,
		Desc:     spec.Desc,
	})
	if err != nil {
		return levelResult{}, err
	}
	rows, err := ex.Query(ctx, plan)
	if err != nil {
		return levelResult{}, err
	}

	distinct := make(map[any]*model.Record)
	for _, row := range rows.Rows {
		child := model.New(target)
		var owner any
		for j, c := range rows.Columns {
			if c == query.OwnerKeyColumn {
				owner = model.Key(row[j])
				continue
			}
			child.Set(c, row[j])
		}
		// Belongs-to targets shared by several parents are one record.
		if rel.Kind == schema.BelongsTo {
			if existing, ok := distinct[child.Key()]; ok {
				child = existing
			} else {
				distinct[child.Key()] = child
				res.children = append(res.children, child)
			}
		} else {
			res.children = append(res.children, child)
		}
		res.byKey[owner] = append(res.byKey[owner], child)
	}
	return res, nil
}

func stitch(parents []*model.Record, name string, res levelResult) {
	rel := res.rel
	ownerCol := rel.OwnerKey
	if rel.Kind == schema.BelongsTo {
		ownerCol = rel.ForeignKey
	}
	for _, p := range parents {
		matches := res.byKey[model.Key(p.Get(ownerCol))]
		if !rel.Single() {
			p.SetRelated(name, model.Many(append([]*model.Record(nil), matches...)))
			continue
		}
		switch {
		case len(matches) > 0:
			p.SetRelated(name, model.One(matches[0]))
		case rel.WithDefault:
			p.SetRelated(name, model.DefaultOne(model.FromValues(res.target, rel.Defaults)))
		default:
			p.SetRelated(name, model.AbsentOne())
		}
	}
}
