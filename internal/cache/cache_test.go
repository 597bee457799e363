package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestPackUnpackRoundtrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "bin", "tool"), []byte("#!/bin/sh\necho hi\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, ".install-tool"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "tool-1.0.0-deadbeefdeadbeef.tar.gz")
	if err := Pack(src, archive); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := Unpack(archive, dest); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "#!/bin/sh\necho hi\n" {
		t.Fatalf("unexpected content: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, ".install-tool")); !os.IsNotExist(err) {
		t.Fatal("expected install canary to be excluded from the archive")
	}
}

func TestServerFetchInstalledMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &Server{BaseURL: srv.URL}
	ok, err := c.FetchInstalled(context.Background(), "tool-1.0.0", "deadbeefdeadbeef", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected a 404 to report a cache miss, not an error")
	}
}

func TestServerFetchInstalledHit(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "marker"), []byte("cached"), 0644); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "artifact.tar.gz")
	if err := Pack(src, archive); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer srv.Close()

	c := &Server{BaseURL: srv.URL}
	dest := t.TempDir()
	ok, err := c.FetchInstalled(context.Background(), "tool-1.0.0", "deadbeefdeadbeef", dest)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a 200 to report a cache hit")
	}
	got, err := os.ReadFile(filepath.Join(dest, "marker"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "cached" {
		t.Fatalf("unexpected content: %q", got)
	}
}
