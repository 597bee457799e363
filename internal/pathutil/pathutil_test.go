package pathutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCanaryRoundtrip(t *testing.T) {
	dir := t.TempDir()
	canary := filepath.Join(dir, "sub", ".unpacked")

	if ok, err := CanaryExists(canary); err != nil || ok {
		t.Fatalf("CanaryExists before write = %v, %v, want false, nil", ok, err)
	}
	if err := WriteCanary(canary); err != nil {
		t.Fatalf("WriteCanary: %v", err)
	}
	ok, err := CanaryExists(canary)
	if err != nil || !ok {
		t.Fatalf("CanaryExists after write = %v, %v, want true, nil", ok, err)
	}
	fi, err := os.Stat(canary)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 0 {
		t.Errorf("canary size = %d, want 0", fi.Size())
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c.txt")
	if err := AtomicWriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestRunLoggedCapturesOutputAndFails(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	f, err := os.Create(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := RunLogged(context.Background(), f, dir, []string{"/bin/sh", "-c", "echo hi; exit 1"}); err == nil {
		t.Fatal("RunLogged of a failing command returned nil error")
	}
	f.Sync()
	lines, err := TailLines(logPath, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) == 0 || lines[0] != "hi" {
		t.Errorf("TailLines = %v, want first line %q", lines, "hi")
	}
}

func TestTailLinesLimitsToN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	var content []byte
	for i := 0; i < 30; i++ {
		content = append(content, []byte("line\n")...)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	lines, err := TailLines(path, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 20 {
		t.Errorf("len(lines) = %d, want 20", len(lines))
	}
}
