package submodule

import "context"

// Variant overrides identity and lifecycle hooks for a submodule kind other
// than the default tarball-sourced one (spec.md §9 "Polymorphic submodule
// behavior"). The state machine's shared logic (canaries, ordering,
// dict/expansion, cache lookup) lives on Submodule; only the bits that
// differ per kind live behind this interface.
type Variant interface {
	// SrcHash computes this submodule's src_hash. Called once, during the
	// hash pre-pass.
	SrcHash(s *Submodule) (string, error)

	// ExtraOutHashItems returns additional items to fold into out_hash
	// beyond the shared config/command hashes (e.g. initrd's directory,
	// file, symlink and device lists).
	ExtraOutHashItems(s *Submodule) ([]string, error)

	// Unpack replaces the default "extract tarball" step.
	Unpack(ctx context.Context, s *Submodule) error

	// Build replaces the default "run make command vectors" step; configure
	// still runs ConfigureCmds as for any other submodule.
	Build(ctx context.Context, s *Submodule) error
}
