package builder

import (
	"fmt"

	"github.com/osresearch/linux-builder/internal/submodule"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type node struct {
	id int64
	s  *submodule.Submodule
}

func (n *node) ID() int64 { return n.id }

// graphOf builds a directed graph with one edge s → dep for every
// dependency relationship, used both for cycle detection and, reversed, for
// the hash pre-pass order.
func graphOf(subs []*submodule.Submodule) (*simple.DirectedGraph, map[*submodule.Submodule]*node, error) {
	g := simple.NewDirectedGraph()
	byPtr := make(map[*submodule.Submodule]*node, len(subs))
	for i, s := range subs {
		n := &node{id: int64(i), s: s}
		byPtr[s] = n
		g.AddNode(n)
	}
	for _, s := range subs {
		n := byPtr[s]
		for _, d := range s.Deps {
			dep := d.Submodule()
			if dep == nil {
				return nil, nil, xerrors.Errorf("%s: unresolved dependency %q (did you call Registry.Freeze?)", s.Fullname(), d.Name())
			}
			dn, ok := byPtr[dep]
			if !ok {
				return nil, nil, xerrors.Errorf("%s: dependency %q not registered", s.Fullname(), dep.Fullname())
			}
			if dn == n {
				continue
			}
			g.SetEdge(g.NewEdge(n, dn))
		}
	}
	return g, byPtr, nil
}

// dependencyOrder returns subs plus everything they transitively depend on,
// ordered so that every submodule appears after all of its dependencies, or
// an error if the dependency graph has a cycle. Unlike a package-manager
// bootstrap, this domain has no legitimate circular dependency to break: a
// cycle here is a recipe bug.
func dependencyOrder(subs []*submodule.Submodule) ([]*submodule.Submodule, error) {
	seen := make(map[*submodule.Submodule]bool, len(subs))
	var all []*submodule.Submodule
	var visit func(s *submodule.Submodule)
	visit = func(s *submodule.Submodule) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		all = append(all, s)
		for _, d := range s.Deps {
			visit(d.Submodule())
		}
	}
	for _, s := range subs {
		visit(s)
	}

	g, _, err := graphOf(all)
	if err != nil {
		return nil, err
	}
	sorted, err := topo.Sort(g)
	if err != nil {
		if uo, ok := err.(topo.Unorderable); ok {
			return nil, xerrors.Errorf("circular dependency: %s", describeCycle(uo))
		}
		return nil, err
	}

	// topo.Sort places a node before everything it points to; our edges
	// point dependent → dependency, so the dependency-first order is the
	// reverse.
	out := make([]*submodule.Submodule, len(sorted))
	for i, n := range sorted {
		out[len(sorted)-1-i] = n.(*node).s
	}
	return out, nil
}

func describeCycle(uo topo.Unorderable) string {
	var names []string
	for _, component := range uo {
		for _, n := range component {
			names = append(names, n.(*node).s.Fullname())
		}
	}
	return fmt.Sprint(names)
}
