package function

import (
	"fmt"
	"sort"
)

// Registry holds every declared endpoint, keyed by method and path. It is
// populated at startup and read-only afterwards.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: map[string]*Definition{}}
}

func key(method, path string) string {
	return method + " " + path
}

// Register adds a definition. Registering the same method and path twice is
// a programming error and panics at startup.
func (r *Registry) Register(d *Definition) {
	k := key(d.Method, d.Path)
	if _, exists := r.defs[k]; exists {
		panic(fmt.Sprintf("function: duplicate registration for %s", k))
	}
	r.defs[k] = d
}

// Lookup returns the definition for a method and path, or nil.
func (r *Registry) Lookup(method, path string) *Definition {
	return r.defs[key(method, path)]
}

// Definitions returns every registered definition in stable order.
func (r *Registry) Definitions() []*Definition {
	keys := make([]string, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Definition, len(keys))
	for i, k := range keys {
		out[i] = r.defs[k]
	}
	return out
}
