package submodule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestSubmodule(t *testing.T) *Submodule {
	t.Helper()
	root := t.TempDir()
	s := New("widget", "1.0.0")
	s.Root = root
	s.SrcDir = filepath.Join(root, "src")
	s.OutDir = filepath.Join(root, "out")
	s.InstallDir = filepath.Join(root, "install")
	s.BinDir = filepath.Join(s.InstallDir, "bin")
	s.LibDir = filepath.Join(s.InstallDir, "lib")
	s.IncDir = filepath.Join(s.InstallDir, "include")
	for _, d := range []string{s.SrcDir, s.OutDir, s.InstallDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestNeedsBuildNoCanaryMeansBuild(t *testing.T) {
	s := newTestSubmodule(t)
	need, err := s.NeedsBuild()
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected a build with no canary to be needed")
	}
}

func TestNeedsBuildDepFileNewerThanCanaryForcesRebuild(t *testing.T) {
	s := newTestSubmodule(t)
	canary := s.buildCanary()
	if err := os.WriteFile(canary, nil, 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(canary, old, old); err != nil {
		t.Fatal(err)
	}

	depFile := filepath.Join(s.Root, "recipe.go")
	if err := os.WriteFile(depFile, nil, 0644); err != nil {
		t.Fatal(err)
	}
	s.DepFiles = []string{depFile}

	need, err := s.NeedsBuild()
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected a dep_files entry newer than the canary to force a rebuild")
	}
}

func TestNeedsBuildUpToDateCanarySkipsRebuild(t *testing.T) {
	s := newTestSubmodule(t)
	canary := s.buildCanary()
	if err := os.WriteFile(canary, nil, 0644); err != nil {
		t.Fatal(err)
	}

	need, err := s.NeedsBuild()
	if err != nil {
		t.Fatal(err)
	}
	if need {
		t.Fatal("expected a fresh canary with no deps to skip rebuilding")
	}
}

func TestNeedsBuildWaitsForUninstalledDependency(t *testing.T) {
	s := newTestSubmodule(t)
	canary := s.buildCanary()
	if err := os.WriteFile(canary, nil, 0644); err != nil {
		t.Fatal(err)
	}
	dep := New("base", "1.0.0")
	s.Deps = []Dependency{DepDirect(dep)}

	need, err := s.NeedsBuild()
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected an uninstalled dependency to force a rebuild")
	}
}

func TestForceAlwaysNeedsBuild(t *testing.T) {
	s := newTestSubmodule(t)
	canary := s.buildCanary()
	if err := os.WriteFile(canary, nil, 0644); err != nil {
		t.Fatal(err)
	}
	s.Force = true

	need, err := s.NeedsBuild()
	if err != nil {
		t.Fatal(err)
	}
	if !need {
		t.Fatal("expected Force to always require a rebuild")
	}
}

func TestCheckReflectsCanaryProgression(t *testing.T) {
	s := newTestSubmodule(t)
	// Source-less with src_dir already present: Check reports it unpacked.
	if got := s.Check(); got != Unpacked {
		t.Fatalf("fresh source-less submodule: got %v, want Unpacked", got)
	}

	// TarFile absent, not source-less: Check should not jump ahead.
	s.URL = "https://example.org/widget-%(version)s.tar.gz"
	s.TarFile = filepath.Join(s.Root, "ftp", "widget-1.0.0.tar.gz")
	if got := s.Check(); got != NoState {
		t.Fatalf("no tarball yet: got %v, want NoState", got)
	}

	if err := os.MkdirAll(filepath.Dir(s.TarFile), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.TarFile, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got := s.Check(); got != Fetched {
		t.Fatalf("tarball present: got %v, want Fetched", got)
	}

	if err := os.WriteFile(s.unpackCanary(), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got := s.Check(); got != Unpacked {
		t.Fatalf("got %v, want Unpacked", got)
	}

	if err := os.WriteFile(s.installCanary(), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got := s.Check(); got != Installed {
		t.Fatalf("install canary present: got %v, want Installed", got)
	}
}

func TestConfigKeyParsesAssignmentAndUnsetComment(t *testing.T) {
	cases := map[string]string{
		"CONFIG_FOO=y":              "CONFIG_FOO",
		"# CONFIG_BAR is not set":   "CONFIG_BAR",
		"":                          "",
		"# just a comment":          "",
		"CONFIG_BAZ=\"some string\"": "CONFIG_BAZ",
	}
	for line, want := range cases {
		if got := configKey(line); got != want {
			t.Errorf("configKey(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestWriteConfigFileWarnsOnOverrideButStillWrites(t *testing.T) {
	s := newTestSubmodule(t)
	fragment := filepath.Join(s.Root, "fragment.config")
	if err := os.WriteFile(fragment, []byte("CONFIG_FOO=y\nCONFIG_BAR=y\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s.ConfigFragments = []string{fragment}
	s.ConfigAppend = []string{"CONFIG_FOO=n"}

	if err := s.writeConfigFile(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(s.OutDir, s.KConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "CONFIG_FOO=y\nCONFIG_BAR=y\nCONFIG_FOO=n\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOutputHashesReadsDeclaredArtifacts(t *testing.T) {
	s := newTestSubmodule(t)
	binPath := filepath.Join(s.InstallDir, "bin", "widget")
	if err := os.MkdirAll(filepath.Dir(binPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	s.Bins = []string{"bin/widget"}

	hashes, err := s.OutputHashes()
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes["bin/widget"] == "" {
		t.Fatalf("unexpected hashes: %#v", hashes)
	}
}

func TestSourceLessLifecycleSkipsExternalTools(t *testing.T) {
	s := newTestSubmodule(t)
	ctx := context.Background()

	if err := s.Fetch(ctx, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := s.Unpack(ctx); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if err := s.Patch(ctx); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if err := s.Configure(ctx); err != nil {
		t.Fatalf("configure: %v", err)
	}
	s.MakeCmds = [][]string{{"true"}}
	if err := s.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.State() != Built {
		t.Fatalf("got state %v, want Built", s.State())
	}
}
