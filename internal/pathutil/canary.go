// Package pathutil collects the small filesystem primitives the submodule
// state machine is built on: idempotency canaries, atomic writes, a logging
// subprocess runner and best-effort mtime touches.
package pathutil

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// CanaryExists reports whether the zero-byte marker file at path exists. A
// missing canary is not an error; any other stat failure is returned.
func CanaryExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// WriteCanary atomically creates an empty marker file at path, creating
// parent directories as needed. It is called exactly once, at the end of a
// successful state transition.
func WriteCanary(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(path, nil, 0644)
}
