package cpio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSingleEntryBitExact(t *testing.T) {
	w := NewWriter()
	w.Add(Entry{Path: "/hello", Mode: 0100700, Payload: []byte("world")})
	b := w.Bytes()

	if len(b)%512 != 0 {
		t.Fatalf("archive length %d is not a multiple of 512", len(b))
	}
	if got, want := string(b[:6]), magic; got != want {
		t.Errorf("magic = %q, want %q", got, want)
	}
	// header(110) + "hello\0" (6, namesize+2=8 already %4==0, no pad) + "world"(5) + 3 pad
	wantHeaderLen := headerLen + 6
	if got, want := string(b[wantHeaderLen:wantHeaderLen+5]), "world"; got != want {
		t.Errorf("payload at expected offset = %q, want %q", got, want)
	}
}

func TestReproducibleAcrossRuns(t *testing.T) {
	build := func() []byte {
		w := NewWriter()
		w.Mkdir("bin")
		w.Add(Entry{Path: "/bin/sh", Mode: 0100755, Payload: []byte("#!/bin/sh\n")})
		w.Add(Entry{Path: "/etc/passwd", Mode: 0100644, Payload: []byte("root:x:0:0::/root:/bin/sh\n")})
		return w.Bytes()
	}
	a, b := build(), build()
	if !cmp.Equal(a, b) {
		t.Error("two builds of the same entry set produced different archives")
	}
}

func TestDecodeEncodeRoundtrip(t *testing.T) {
	entries := []Entry{
		{Path: "bin", Mode: modeDir | 0755},
		{Path: "bin/sh", Mode: 0100755, Payload: []byte("shell")},
		{Path: "dev/console", Mode: modeCharDev | 0600, Major: 5, Minor: 1},
		{Path: "lib/libc.so", Mode: modeSymlink, Payload: []byte("libc.so.6")},
	}
	w := NewWriter()
	for _, e := range entries {
		e := e
		w.put(&e)
	}
	got, err := Decode(w.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("Decode(Bytes()) mismatch (-want +got):\n%s", diff)
	}
}

func TestMkdirMaterializesAncestors(t *testing.T) {
	w := NewWriter()
	w.Mkdir("a/b/c")
	for _, want := range []string{"a", "a/b", "a/b/c"} {
		if !w.Has(want) {
			t.Errorf("missing ancestor directory %q", want)
		}
	}
}

func TestAddForcesRegularBit(t *testing.T) {
	w := NewWriter()
	w.Add(Entry{Path: "/f", Mode: 0644})
	if w.entries["f"].Mode&modeFmt != modeRegular {
		t.Errorf("Mode = %o, want S_IFREG bit set", w.entries["f"].Mode)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/a/b":   "a/b",
		"//a//b": "a/b",
		"a/b/":   "a/b",
		"/":      "",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
