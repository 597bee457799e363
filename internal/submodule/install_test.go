package submodule

import (
	"context"
	"os"
	"testing"
)

func TestInstallShortCircuitsOnCacheCanary(t *testing.T) {
	s := newTestSubmodule(t)
	if err := os.WriteFile(s.cacheCanary(), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.Install(context.Background(), nil, nil); err != nil {
		t.Fatal(err)
	}
	if !s.IsInstalled() {
		t.Fatal("expected cache canary to mark the submodule installed")
	}
}

type fakeCache struct {
	hit bool
}

func (f *fakeCache) FetchInstalled(ctx context.Context, fullname, outHashShort, dest string) (bool, error) {
	if !f.hit {
		return false, nil
	}
	return true, os.MkdirAll(dest, 0755)
}

func TestInstallUsesCacheHitWithoutBuilding(t *testing.T) {
	s := newTestSubmodule(t)
	s.Cacheable = true

	if err := s.Install(context.Background(), nil, &fakeCache{hit: true}); err != nil {
		t.Fatal(err)
	}
	if !s.IsInstalled() {
		t.Fatal("expected cache hit to mark the submodule installed")
	}
	if ok, _ := exists(s.cacheCanary()); !ok {
		t.Fatal("expected cache hit to write the cache canary")
	}
}

func TestInstallFullPipelineWithoutCache(t *testing.T) {
	s := newTestSubmodule(t)
	s.InstallCmds = [][]string{{"true"}}

	if err := s.Install(context.Background(), nil, nil); err != nil {
		t.Fatal(err)
	}
	if !s.IsInstalled() {
		t.Fatal("expected full pipeline to end installed")
	}
	if ok, _ := exists(s.installCanary()); !ok {
		t.Fatal("expected install canary to be written")
	}
}
