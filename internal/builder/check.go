package builder

import (
	"fmt"

	"github.com/osresearch/linux-builder/internal/submodule"
)

// CheckResult is one line of a dry-run report: what the scheduler would do
// for a submodule without actually fetching, building or installing it.
type CheckResult struct {
	Fullname string
	SrcHash  string
	OutHash  string
	State    submodule.State
}

// Check resolves every dependency, computes hashes in dependency order and
// reports the furthest lifecycle state already reached on disk for each
// submodule, performing no side effects (spec.md §6 "check" verb).
func Check(subs []*submodule.Submodule) ([]CheckResult, error) {
	ordered, err := ComputeHashes(subs)
	if err != nil {
		return nil, err
	}
	results := make([]CheckResult, len(ordered))
	for i, s := range ordered {
		results[i] = CheckResult{
			Fullname: s.Fullname(),
			SrcHash:  s.SrcHash,
			OutHash:  s.OutHash,
			State:    s.Check(),
		}
	}
	return results, nil
}

func (r CheckResult) String() string {
	return fmt.Sprintf("%-32s %s out=%s", r.Fullname, r.State, r.OutHash[:16])
}
