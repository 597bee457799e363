package pathutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// AtomicWriteFile writes data to path such that any concurrent reader either
// sees the old contents or the new ones in full, never a partial write.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, perm)
}

// AtomicWriteFrom streams r into path atomically, for payloads too large to
// buffer fully in memory (downloaded tarballs, cache archives).
func AtomicWriteFrom(path string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer f.Cleanup()
	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}
