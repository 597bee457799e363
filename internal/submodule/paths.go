package submodule

import (
	"path/filepath"

	"github.com/osresearch/linux-builder/internal/merkle"
)

// refreshPaths fills in every derived path from the currently computed
// src_hash/out_hash, per spec.md §3's directory layout. It must be called
// after both hashes are known; UpdateHashes calls it each time it succeeds.
func (s *Submodule) refreshPaths() {
	full := s.Fullname()
	srcShort := merkle.Short(s.SrcHash)
	outShort := merkle.Short(s.OutHash)

	if s.Dirty {
		// Dirty submodules write into their own source tree, so a fresh
		// unpack is required per output hash rather than per source hash
		// (spec.md §4.3.2).
		s.SrcDir = filepath.Join(s.Root, "out", full, outShort)
	} else {
		s.SrcDir = filepath.Join(s.Root, "src", full, srcShort)
	}
	s.OutDir = filepath.Join(s.Root, "out", full, outShort)
	s.InstallDir = filepath.Join(s.Root, "install", full, outShort)

	s.BinDir = filepath.Join(s.InstallDir, s.BinSubdir)
	s.LibDir = filepath.Join(s.InstallDir, s.LibSubdir)
	s.IncDir = filepath.Join(s.InstallDir, s.IncSubdir)
	s.TopDir = s.Root

	if rel, err := filepath.Rel(s.SrcDir, s.OutDir); err == nil {
		s.ROutDir = rel
	}
}
