// Package registry holds the GraphQL types produced during one schema build.
//
// Types are keyed by Identity so that recursive references between entities
// resolve to a single object: a builder registers its type before the
// type's field thunk is evaluated.
package registry

import (
	"sort"
	"sync"

	"github.com/graphql-go/graphql"
)

// Variant distinguishes the GraphQL types generated for one declaration.
type Variant string

const (
	Output           Variant = "output"
	Create           Variant = "create"
	Update           Variant = "update"
	CreateConnection Variant = "createConnection"
	Connection       Variant = "connection"
	Edge             Variant = "edge"
	Enum             Variant = "enum"
	Shape            Variant = "shape"
	Filter           Variant = "filter"
	Subscription     Variant = "subscription"
	PageInfo         Variant = "pageInfo"
)

// Identity names a generated type. Name is the final GraphQL type name.
type Identity struct {
	Name    string
	Variant Variant
}

// Registry is created per build and read-only once the schema exists.
type Registry struct {
	mu        sync.RWMutex
	types     map[Identity]graphql.Type
	byName    map[string]graphql.Type
	order     []Identity
	inputArgs map[string]map[string]graphql.FieldConfigArgument
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		types:     make(map[Identity]graphql.Type),
		byName:    make(map[string]graphql.Type),
		inputArgs: make(map[string]map[string]graphql.FieldConfigArgument),
	}
}

// Resolve returns the type registered for id, calling build on first use.
// build must defer field construction to a thunk. When another identity
// already produced a type named id.Name, that type is returned instead.
func (r *Registry) Resolve(id Identity, build func() graphql.Type) graphql.Type {
	r.mu.RLock()
	if t, ok := r.types[id]; ok {
		r.mu.RUnlock()
		return t
	}
	if t, ok := r.byName[id.Name]; ok {
		r.mu.RUnlock()
		return t
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.types[id]; ok {
		return t
	}
	if t, ok := r.byName[id.Name]; ok {
		return t
	}
	t := build()
	if t == nil {
		return nil
	}
	r.types[id] = t
	r.byName[t.Name()] = t
	r.order = append(r.order, id)
	return t
}

// Lookup returns the type registered for id.
func (r *Registry) Lookup(id Identity) (graphql.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	return t, ok
}

// ByName returns the type with the given GraphQL name.
func (r *Registry) ByName(name string) (graphql.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// SetInputArgs records the arguments an association field of an input type
// would carry. Input fields cannot declare arguments in GraphQL, so nested
// writes read them from here.
func (r *Registry) SetInputArgs(typeName, field string, args graphql.FieldConfigArgument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inputArgs[typeName] == nil {
		r.inputArgs[typeName] = make(map[string]graphql.FieldConfigArgument)
	}
	r.inputArgs[typeName][field] = args
}

// InputArgs returns the arguments recorded by SetInputArgs.
func (r *Registry) InputArgs(typeName, field string) (graphql.FieldConfigArgument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	args, ok := r.inputArgs[typeName][field]
	return args, ok
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []graphql.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]graphql.Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

// Stats counts registered types per variant.
func (r *Registry) Stats() map[Variant]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Variant]int)
	for id := range r.types {
		out[id.Variant]++
	}
	return out
}

// Names returns the sorted GraphQL names of all registered types.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
