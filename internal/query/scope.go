package query

import (
	"sync"
	"time"

	"github.com/aidanlsb/relq/internal/ormerr"
)

// ScopeContext is passed to scope factories when a query is built.
type ScopeContext struct {
	Now time.Time
}

// ScopeFactory produces a scope's predicate for the current context.
type ScopeFactory func(ScopeContext) Predicate

type namedScope struct {
	name    string
	factory ScopeFactory
}

// Registry is the per-entity table of default predicates. Every query
// against an entity ANDs in all of that entity's scopes except the ones the
// query suppresses.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string][]namedScope
	now    func() time.Time
}

// NewRegistry creates an empty registry using the wall clock.
func NewRegistry() *Registry {
	return &Registry{
		scopes: make(map[string][]namedScope),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to build ScopeContext.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Register adds a named scope to entity. Registering an existing name
// replaces its factory in place.
func (r *Registry) Register(entity, name string, factory ScopeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.scopes[entity]
	for i := range list {
		if list[i].name == name {
			list[i].factory = factory
			return
		}
	}
	r.scopes[entity] = append(list, namedScope{name: name, factory: factory})
}

// Remove unregisters a scope. It reports whether the scope existed.
func (r *Registry) Remove(entity, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.scopes[entity]
	for i := range list {
		if list[i].name == name {
			r.scopes[entity] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether entity has a scope called name.
func (r *Registry) Has(entity, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.scopes[entity] {
		if s.name == name {
			return true
		}
	}
	return false
}

// Names lists entity's scopes in registration order.
func (r *Registry) Names(entity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scopes[entity]))
	for _, s := range r.scopes[entity] {
		names = append(names, s.name)
	}
	return names
}

// Active builds the predicates of every scope on entity not listed in
// without. Suppressing a name that is not registered is a ConfigurationError.
func (r *Registry) Active(entity string, without map[string]bool) ([]Predicate, error) {
	if r == nil {
		for name := range without {
			if name != allScopes {
				return nil, &ormerr.ConfigurationError{Kind: "scope", Name: name, Entity: entity}
			}
		}
		return nil, nil
	}

	r.mu.RLock()
	list := append([]namedScope(nil), r.scopes[entity]...)
	now := r.now
	r.mu.RUnlock()

	for name := range without {
		if name == allScopes {
			continue
		}
		found := false
		for _, s := range list {
			if s.name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, &ormerr.ConfigurationError{Kind: "scope", Name: name, Entity: entity}
		}
	}
	if without[allScopes] {
		return nil, nil
	}

	ctx := ScopeContext{Now: now()}
	preds := make([]Predicate, 0, len(list))
	for _, s := range list {
		if without[s.name] {
			continue
		}
		preds = append(preds, s.factory(ctx))
	}
	return preds, nil
}

// allScopes is the suppression key used by WithoutScopes.
const allScopes = "*"
