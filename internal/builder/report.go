package builder

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/go-cmp/cmp"
	"github.com/osresearch/linux-builder/internal/submodule"
	"golang.org/x/xerrors"
)

// Report is the saved-to-disk form of every ReportHashes-enabled
// submodule's output hashes, keyed by fullname then by path relative to
// install_dir.
type Report map[string]map[string]string

// BuildReport computes OutputHashes for every submodule in subs that has
// ReportHashes set.
func BuildReport(subs []*submodule.Submodule) (Report, error) {
	r := Report{}
	for _, s := range subs {
		if !s.ReportHashes {
			continue
		}
		hashes, err := s.OutputHashes()
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", s.Fullname(), err)
		}
		r[s.Fullname()] = hashes
	}
	return r, nil
}

// SaveReport writes r as indented JSON to path.
func SaveReport(r Report, path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// CompareReport loads the report previously saved at path and diffs it
// against a freshly computed one for subs, returning a human-readable diff
// per submodule whose output hashes changed — the supplemented "-compare"
// reproducibility check (SPEC_FULL.md §1 item 4).
func CompareReport(subs []*submodule.Submodule, path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var want Report
	if err := json.Unmarshal(b, &want); err != nil {
		return nil, err
	}
	got, err := BuildReport(subs)
	if err != nil {
		return nil, err
	}

	var diffs []string
	for name, wantHashes := range want {
		gotHashes, ok := got[name]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing from this build", name))
			continue
		}
		if diff := cmp.Diff(wantHashes, gotHashes); diff != "" {
			diffs = append(diffs, fmt.Sprintf("%s:\n%s", name, diff))
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			diffs = append(diffs, fmt.Sprintf("%s: new in this build", name))
		}
	}
	return diffs, nil
}
