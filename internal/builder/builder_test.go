package builder

import (
	"context"
	"testing"

	"github.com/osresearch/linux-builder/internal/submodule"
)

func newRecipe(t *testing.T) (*Registry, *submodule.Submodule, *submodule.Submodule) {
	t.Helper()
	root := t.TempDir()
	reg := NewRegistry()

	base := submodule.New("base", "1.0.0")
	top := submodule.New("top", "1.0.0")
	top.Deps = []submodule.Dependency{submodule.DepDirect(base)}

	if err := reg.Register(root, base); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(root, top); err != nil {
		t.Fatal(err)
	}
	if err := reg.Freeze(); err != nil {
		t.Fatal(err)
	}
	return reg, base, top
}

func TestRegistryRejectsDuplicateFullname(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry()
	if err := reg.Register(root, submodule.New("x", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(root, submodule.New("x", "1.0.0")); err == nil {
		t.Fatal("expected duplicate fullname to be rejected")
	}
}

func TestDependencyOrderPutsDepsFirst(t *testing.T) {
	_, base, top := newRecipe(t)
	ordered, err := dependencyOrder([]*submodule.Submodule{top, base})
	if err != nil {
		t.Fatal(err)
	}
	if ordered[0] != base || ordered[1] != top {
		t.Fatalf("got order %v, %v; want base before top", ordered[0].Fullname(), ordered[1].Fullname())
	}
}

func TestDependencyOrderDetectsCycle(t *testing.T) {
	a := submodule.New("a", "1.0.0")
	b := submodule.New("b", "1.0.0")
	a.Deps = []submodule.Dependency{submodule.DepDirect(b)}
	b.Deps = []submodule.Dependency{submodule.DepDirect(a)}

	if _, err := dependencyOrder([]*submodule.Submodule{a, b}); err == nil {
		t.Fatal("expected a circular dependency to be rejected")
	}
}

func TestComputeHashesExtendsDependencyOutHash(t *testing.T) {
	_, base, top := newRecipe(t)
	ordered, err := ComputeHashes([]*submodule.Submodule{top, base})
	if err != nil {
		t.Fatal(err)
	}
	if ordered[0] != base {
		t.Fatalf("expected base to be hashed first")
	}
	if top.OutHash == base.OutHash {
		t.Fatal("expected top's out_hash to differ from base's")
	}
}

func TestRunInstallsSourceLessChain(t *testing.T) {
	_, base, top := newRecipe(t)
	base.InstallCmds = [][]string{{"true"}}
	top.InstallCmds = [][]string{{"true"}}

	cfg := Config{Jobs: 2}
	if err := Run(context.Background(), cfg, []*submodule.Submodule{base, top}); err != nil {
		t.Fatal(err)
	}
	if !base.IsInstalled() || !top.IsInstalled() {
		t.Fatal("expected both submodules to be installed")
	}
}
