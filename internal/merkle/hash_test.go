package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestExtendEmptyIsZeroHash(t *testing.T) {
	if got := Extend(""); got != ZeroHash {
		t.Errorf("Extend(\"\") = %q, want zero hash %q", got, ZeroHash)
	}
	if got := Extend(ZeroHash); got != ZeroHash {
		t.Errorf("Extend(zero) with no items = %q, want %q", got, ZeroHash)
	}
}

func TestExtendSingleItem(t *testing.T) {
	tarhash := "0c98" + "00000000000000000000000000000000000000000000000000000000" + "8a7f"
	if got := Extend(tarhash); got != tarhash {
		t.Fatalf("Extend(tarhash) with no items = %q, want %q", got, tarhash)
	}

	patch := []byte("diff --git a/x b/x\n")
	patchDigest := sha256.Sum256(patch)
	want := sha256.Sum256([]byte(tarhash + hex.EncodeToString(patchDigest[:])))
	wantHex := hex.EncodeToString(want[:])

	if got := Extend(tarhash, patch); got != wantHex {
		t.Errorf("Extend(tarhash, patch) = %q, want %q", got, wantHex)
	}
}

func TestExtendNotCommutative(t *testing.T) {
	a := Extend(ZeroHash, []byte("a"), []byte("b"))
	b := Extend(ZeroHash, []byte("b"), []byte("a"))
	if a == b {
		t.Fatalf("Extend(zero, a, b) == Extend(zero, b, a): %q", a)
	}
}

func TestExtendIsLeftAssociative(t *testing.T) {
	whole := Extend(ZeroHash, []byte("a"), []byte("b"))
	stepwise := Extend(Extend(ZeroHash, []byte("a")), []byte("b"))
	if whole != stepwise {
		t.Errorf("Extend(zero, a, b) = %q, Extend(Extend(zero, a), b) = %q, want equal", whole, stepwise)
	}
}

func TestExtendStringsMatchesExtendBytes(t *testing.T) {
	got := ExtendStrings(ZeroHash, "foo", "bar")
	want := Extend(ZeroHash, []byte("foo"), []byte("bar"))
	if got != want {
		t.Errorf("ExtendStrings = %q, want %q", got, want)
	}
}

func TestShort(t *testing.T) {
	h := SHA256Hex([]byte("zlib-1.2.11"))
	if got, want := Short(h), h[:16]; got != want {
		t.Errorf("Short(%q) = %q, want %q", h, got, want)
	}
	if got := Short("ab"); got != "ab" {
		t.Errorf("Short of a too-short string should be returned unchanged, got %q", got)
	}
}
