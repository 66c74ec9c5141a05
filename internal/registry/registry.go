// Package registry holds the catalog of tool capabilities the copilot can
// invoke. Each capability is a named, single-purpose operation with a
// declared parameter schema and a Run function that marshals arguments into
// a cloud SDK/API call.
//
// The registry performs no dispatch logic of its own: whoever decides which
// capability runs (the LLM agent, a REST caller, or an MCP client) selects
// a (category, name) key and the registry merely resolves it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by Lookup for unknown categories or names.
var ErrNotFound = errors.New("capability not found")

// ParamType is the JSON-level type of a capability parameter.
type ParamType string

const (
	TypeString      ParamType = "string"
	TypeBool        ParamType = "boolean"
	TypeInt         ParamType = "integer"
	TypeStringSlice ParamType = "array"
)

// Param declares one input of a capability.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
}

// RunFunc executes the capability with JSON-decoded arguments and returns a
// JSON-serializable payload or an error.
type RunFunc func(ctx context.Context, args map[string]any) (any, error)

// Capability is one registered tool operation.
type Capability struct {
	Category    string  `json:"category"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"parameters"`
	Run         RunFunc `json:"-"`
}

// Registry maps (category, name) to capabilities. It is populated once at
// composition time and read-only afterwards, so no locking is needed.
type Registry struct {
	byCategory map[string]map[string]Capability
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byCategory: make(map[string]map[string]Capability)}
}

// Register adds a capability. Duplicate (category, name) pairs and
// capabilities without a Run function are programming errors.
func (r *Registry) Register(c Capability) error {
	if c.Category == "" || c.Name == "" {
		return fmt.Errorf("capability %q/%q: category and name are required", c.Category, c.Name)
	}
	if c.Run == nil {
		return fmt.Errorf("capability %s/%s: missing Run function", c.Category, c.Name)
	}
	cat, ok := r.byCategory[c.Category]
	if !ok {
		cat = make(map[string]Capability)
		r.byCategory[c.Category] = cat
	}
	if _, exists := cat[c.Name]; exists {
		return fmt.Errorf("capability %s/%s: already registered", c.Category, c.Name)
	}
	cat[c.Name] = c
	return nil
}

// MustRegister registers a slice of capabilities and panics on error.
// Used from composition roots where a registration failure is a bug.
func (r *Registry) MustRegister(caps []Capability) {
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup resolves a capability by category and name.
func (r *Registry) Lookup(category, name string) (Capability, error) {
	cat, ok := r.byCategory[category]
	if !ok {
		return Capability{}, fmt.Errorf("category %q: %w", category, ErrNotFound)
	}
	c, ok := cat[name]
	if !ok {
		return Capability{}, fmt.Errorf("tool %q in category %q: %w", name, category, ErrNotFound)
	}
	return c, nil
}

// HasCategory reports whether the category exists.
func (r *Registry) HasCategory(category string) bool {
	_, ok := r.byCategory[category]
	return ok
}

// Categories returns the sorted category names.
func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Names returns the sorted capability names within a category.
func (r *Registry) Names(category string) []string {
	cat := r.byCategory[category]
	out := make([]string, 0, len(cat))
	for n := range cat {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// All returns every capability, ordered by category then name.
func (r *Registry) All() []Capability {
	var out []Capability
	for _, category := range r.Categories() {
		for _, name := range r.Names(category) {
			out = append(out, r.byCategory[category][name])
		}
	}
	return out
}
