// Package rpc maps method names to handlers and validates parameters
// before a handler runs. The registry is built once at startup and never
// mutated afterwards.
package rpc

import (
	"context"
	"sort"
)

// HandlerFunc executes one validated request and returns the result
// payload for a success response.
type HandlerFunc func(ctx context.Context, params Params) (any, error)

// MethodSpec binds a method name to its parameter contract and handler.
type MethodSpec struct {
	Name           string
	RequiredParams []string
	OptionalParams map[string]any
	Handler        HandlerFunc
}

// Registry resolves method names to specs.
type Registry struct {
	methods map[string]MethodSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]MethodSpec)}
}

// Register adds a method spec. Later registrations with the same name
// overwrite earlier ones; startup code registers each name once.
func (r *Registry) Register(spec MethodSpec) {
	r.methods[spec.Name] = spec
}

// Lookup returns the spec for a method name.
func (r *Registry) Lookup(name string) (MethodSpec, bool) {
	spec, ok := r.methods[name]
	return spec, ok
}

// Methods returns the registered method names, sorted.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
