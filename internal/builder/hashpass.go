package builder

import (
	"github.com/osresearch/linux-builder/internal/submodule"
	"golang.org/x/xerrors"
)

// ComputeHashes resolves src_hash/out_hash for every submodule in subs, in
// dependency order, so each submodule's out_hash can safely extend its
// dependencies' already-final out_hash values (spec.md §4.4).
func ComputeHashes(subs []*submodule.Submodule) ([]*submodule.Submodule, error) {
	ordered, err := dependencyOrder(subs)
	if err != nil {
		return nil, err
	}
	for _, s := range ordered {
		if err := s.UpdateHashes(); err != nil {
			return nil, xerrors.Errorf("%s: %w", s.Fullname(), err)
		}
	}
	return ordered, nil
}
