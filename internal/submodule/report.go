package submodule

import (
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/osresearch/linux-builder/internal/merkle"
)

// OutputHashes returns the hex SHA-256 of every declared Bins/Libs artifact
// under install_dir, keyed by its path relative to install_dir. Used both by
// the ReportHashes logging path (spec.md §4.3.7) and by the supplemented
// "-compare" CLI report (SPEC_FULL.md §1).
func (s *Submodule) OutputHashes() (map[string]string, error) {
	out := map[string]string{}
	for _, rel := range append(append([]string{}, s.Bins...), s.Libs...) {
		path := filepath.Join(s.InstallDir, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		out[rel] = merkle.SHA256Hex(data)
	}
	return out, nil
}

// reportHashes logs the hash of every declared output artifact, sorted by
// path, for a human comparing two builds by eye.
func (s *Submodule) reportHashes() error {
	hashes, err := s.OutputHashes()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(hashes))
	for k := range hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Printf("%s: %s %s", s.Fullname(), hashes[k], k)
	}
	return nil
}
