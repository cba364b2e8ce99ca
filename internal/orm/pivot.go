package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/sqlutil"
	"github.com/aidanlsb/relq/internal/store"
)

// pivotRelation resolves a many_to_many relation and normalizes the owner
// key and related keys to their column types.
func (d *DB) pivotRelation(entity, relation string, id any, ids []any) (*schema.Relation, any, []any, error) {
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return nil, nil, nil, err
	}
	rel, err := e.Relation(relation)
	if err != nil {
		return nil, nil, nil, err
	}
	if rel.Kind != schema.ManyToMany {
		return nil, nil, nil, ormerr.Validation(relation, "relation %s.%s is %s, not many_to_many", e.Name, relation, rel.Kind)
	}
	target, err := d.Catalog.Entity(rel.Target)
	if err != nil {
		return nil, nil, nil, err
	}
	ownerCol, _ := e.Column(rel.OwnerKey)
	key, err := schema.NormalizeValue(ownerCol, id)
	if err != nil {
		return nil, nil, nil, err
	}
	targetCol, _ := target.Column(target.PrimaryKey)
	related := make([]any, 0, len(ids))
	for _, v := range ids {
		nv, err := schema.NormalizeValue(targetCol, v)
		if err != nil {
			return nil, nil, nil, err
		}
		related = append(related, nv)
	}
	return rel, key, related, nil
}

// Attach links the owner with key id to each related key. Existing links are
// left alone. It returns the number of links added.
func (d *DB) Attach(ctx context.Context, entity string, id any, relation string, ids ...any) (int64, error) {
	rel, key, related, err := d.pivotRelation(entity, relation, id, ids)
	if err != nil || len(related) == 0 {
		return 0, err
	}
	tuples := make([]string, len(related))
	args := make([]any, 0, 2*len(related))
	for i, r := range related {
		tuples[i] = "(?, ?)"
		args = append(args, key, r)
	}
	return d.exec.Exec(ctx, store.Plan{
		Op:     "attach " + relation,
		Entity: entity,
		SQL: fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s) VALUES %s",
			sqlutil.Quote(rel.Pivot), sqlutil.Quote(rel.ForeignKey), sqlutil.Quote(rel.RelatedKey), strings.Join(tuples, ", ")),
		Args: args,
	})
}

// Detach removes links from the owner with key id. With no ids every link of
// the owner is removed.
func (d *DB) Detach(ctx context.Context, entity string, id any, relation string, ids ...any) (int64, error) {
	rel, key, related, err := d.pivotRelation(entity, relation, id, ids)
	if err != nil {
		return 0, err
	}
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", sqlutil.Quote(rel.Pivot), sqlutil.Quote(rel.ForeignKey))
	args := []any{key}
	if len(related) > 0 {
		ph, inArgs := sqlutil.InClauseArgs(related)
		sqlStr += fmt.Sprintf(" AND %s IN (%s)", sqlutil.Quote(rel.RelatedKey), ph)
		args = append(args, inArgs...)
	}
	return d.exec.Exec(ctx, store.Plan{Op: "detach " + relation, Entity: entity, SQL: sqlStr, Args: args})
}

// SyncResult lists the related keys a Sync added and removed.
type SyncResult struct {
	Attached []any `json:"attached"`
	Detached []any `json:"detached"`
}

// Sync makes ids the exact set of links of the owner, in one transaction.
func (d *DB) Sync(ctx context.Context, entity string, id any, relation string, ids ...any) (SyncResult, error) {
	out := SyncResult{Attached: []any{}, Detached: []any{}}
	rel, key, related, err := d.pivotRelation(entity, relation, id, ids)
	if err != nil {
		return out, err
	}
	err = d.Transaction(ctx, func(tx *DB) error {
		res, err := tx.exec.Query(ctx, store.Plan{
			Op:     "sync " + relation,
			Entity: entity,
			SQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
				sqlutil.Quote(rel.RelatedKey), sqlutil.Quote(rel.Pivot), sqlutil.Quote(rel.ForeignKey)),
			Args: []any{key},
		})
		if err != nil {
			return err
		}
		current := make(map[any]bool, len(res.Rows))
		for _, row := range res.Rows {
			current[model.Key(row[0])] = true
		}
		wanted := make(map[any]bool, len(related))
		for _, r := range related {
			k := model.Key(r)
			if !wanted[k] && !current[k] {
				out.Attached = append(out.Attached, r)
			}
			wanted[k] = true
		}
		for _, row := range res.Rows {
			if k := model.Key(row[0]); !wanted[k] {
				out.Detached = append(out.Detached, k)
			}
		}
		if len(out.Detached) > 0 {
			if _, err := tx.Detach(ctx, entity, key, relation, out.Detached...); err != nil {
				return err
			}
		}
		if len(out.Attached) > 0 {
			if _, err := tx.Attach(ctx, entity, key, relation, out.Attached...); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// DeleteWithRelations deletes the record with key id after detaching every
// many_to_many link it owns. Everything happens in one transaction, so a
// failure leaves both the record and its links in place.
func (d *DB) DeleteWithRelations(ctx context.Context, entity string, id any) error {
	e, err := d.Catalog.Entity(entity)
	if err != nil {
		return err
	}
	return d.Transaction(ctx, func(tx *DB) error {
		rec, err := tx.FindOrFail(ctx, query.From(entity), id)
		if err != nil {
			return err
		}
		for _, name := range e.RelationNames() {
			rel := e.Relations[name]
			if rel.Kind != schema.ManyToMany {
				continue
			}
			if _, err := tx.Detach(ctx, entity, rec.Get(rel.OwnerKey), name); err != nil {
				return err
			}
		}
		return tx.Delete(ctx, entity, rec.Key())
	})
}
