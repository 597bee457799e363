package submodule

import (
	"os"
	"path/filepath"
)

func (s *Submodule) unpackCanary() string    { return filepath.Join(s.SrcDir, ".unpacked") }
func (s *Submodule) patchCanary() string     { return filepath.Join(s.SrcDir, ".patched") }
func (s *Submodule) configureCanary() string { return filepath.Join(s.OutDir, ".configured") }
func (s *Submodule) buildCanary() string     { return filepath.Join(s.OutDir, ".built-"+s.Name) }
func (s *Submodule) installCanary() string   { return filepath.Join(s.InstallDir, ".install-"+s.Name) }
func (s *Submodule) cacheCanary() string     { return filepath.Join(s.InstallDir, ".cache-"+s.Name) }

func (s *Submodule) configureLog() string { return filepath.Join(s.OutDir, "configure-log") }
func (s *Submodule) makeLog() string      { return filepath.Join(s.OutDir, "make-log") }
func (s *Submodule) installLog() string   { return filepath.Join(s.OutDir, "install-log") }

// LastLog returns the path of the most advanced phase log file that exists
// for s, used by the scheduler to print a diagnostic tail on failure.
func (s *Submodule) LastLog() string {
	for _, p := range []string{s.installLog(), s.makeLog(), s.configureLog()} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
