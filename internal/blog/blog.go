// Package blog wires the demo blog catalog: users, posts, categories, tags
// and billing records, the Post scopes and the title mutator.
package blog

import (
	_ "embed"
	"fmt"

	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
	"github.com/aidanlsb/relq/internal/schema"
	"github.com/aidanlsb/relq/internal/slugs"
	"github.com/aidanlsb/relq/internal/store"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entity names.
const (
	User     = "User"
	Post     = "Post"
	Category = "Category"
	Tag      = "Tag"
	Billing  = "Billing"
)

// ScopeCurrentMonth restricts posts to those created in the current month.
const ScopeCurrentMonth = "currentMonth"

// CatalogYAML returns the embedded catalog definition.
func CatalogYAML() []byte { return catalogYAML }

// Catalog parses the embedded catalog and registers the Post mutator and
// derived attribute.
func Catalog() (*schema.Catalog, error) {
	cat, err := schema.Parse(catalogYAML)
	if err != nil {
		return nil, fmt.Errorf("blog catalog: %w", err)
	}
	if err := Register(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// Register attaches the blog's code-defined behavior to cat. Catalogs loaded
// from a user file get it too when they define the same entities.
func Register(cat *schema.Catalog) error {
	if _, err := cat.Entity(Post); err != nil {
		return nil
	}
	if err := cat.RegisterMutator(Post, "title", titleMutator); err != nil {
		return err
	}
	return cat.RegisterDerived(Post, schema.Derived{
		Name:     "title_with_author",
		Requires: []string{"user"},
		Fn:       titleWithAuthor,
	})
}

// titleMutator keeps slug in step with title.
func titleMutator(value any, attrs map[string]any) {
	if value == nil {
		return
	}
	attrs["slug"] = slugs.Make(fmt.Sprint(value))
}

func titleWithAuthor(r schema.Reader) any {
	author := ""
	if u, ok := r.Related("user"); ok {
		if name := u.Get("name"); name != nil {
			author = fmt.Sprint(name)
		}
	}
	title := ""
	if t := r.Get("title"); t != nil {
		title = fmt.Sprint(t)
	}
	return fmt.Sprintf("%s - %s", title, author)
}

// Scopes returns a registry holding the blog's default scopes.
func Scopes() *query.Registry {
	r := query.NewRegistry()
	RegisterScopes(r)
	return r
}

// RegisterScopes adds the blog's default scopes to r.
func RegisterScopes(r *query.Registry) {
	r.Register(Post, ScopeCurrentMonth, func(ctx query.ScopeContext) query.Predicate {
		return query.WhereMonth("created_at", "=", int(ctx.Now.UTC().Month()))
	})
}

// Open returns an ORM handle for the blog catalog over ex.
func Open(ex store.Executor) (*orm.DB, error) {
	cat, err := Catalog()
	if err != nil {
		return nil, err
	}
	return orm.New(ex, cat, Scopes()), nil
}

// WhereHasTagsWithTags selects the id and title of posts that have at least
// one tag, with their tags' id and name loaded.
func WhereHasTagsWithTags(q *query.Query) *query.Query {
	return q.Select("id", "title").With("tags:id,tag").Where(query.WhereHas("tags"))
}
