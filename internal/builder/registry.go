// Package builder wires a set of *submodule.Submodule values together into
// a dependency graph, resolves string-named references, computes hashes in
// dependency order and drives a parallel worker pool over the result —
// the top-level orchestration spec.md §4.4/§4.7 describe as "the scheduler".
package builder

import (
	"sort"

	"github.com/osresearch/linux-builder/internal/submodule"
	"golang.org/x/xerrors"
)

// Registry is the process-wide name→submodule table a recipe program
// populates before calling Freeze. Submodule fullnames must be unique.
type Registry struct {
	byFullname map[string]*submodule.Submodule
	order      []*submodule.Submodule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFullname: map[string]*submodule.Submodule{}}
}

// Register adds s to the registry, setting its Root if unset. Returns an
// error if another submodule with the same fullname is already registered.
func (r *Registry) Register(root string, s *submodule.Submodule) error {
	if s.Root == "" {
		s.Root = root
	}
	full := s.Fullname()
	if _, exists := r.byFullname[full]; exists {
		return xerrors.Errorf("duplicate submodule %q", full)
	}
	r.byFullname[full] = s
	r.order = append(r.order, s)
	return nil
}

// Lookup resolves a fullname against the registry, for Dependency.Resolve.
func (r *Registry) Lookup(name string) (*submodule.Submodule, bool) {
	s, ok := r.byFullname[name]
	return s, ok
}

// Freeze resolves every unresolved Dependency reference across every
// registered submodule against the registry. It must be called exactly
// once, after all submodules are registered and before Check or Run.
func (r *Registry) Freeze() error {
	for _, s := range r.order {
		for i := range s.Deps {
			if err := s.Deps[i].Resolve(r.Lookup); err != nil {
				return xerrors.Errorf("%s: %w", s.Fullname(), err)
			}
		}
	}
	return nil
}

// All returns every registered submodule, in registration order.
func (r *Registry) All() []*submodule.Submodule {
	return append([]*submodule.Submodule{}, r.order...)
}

// Names returns every registered fullname, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byFullname))
	for n := range r.byFullname {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
