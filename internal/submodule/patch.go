package submodule

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/osresearch/linux-builder/internal/pathutil"
	"golang.org/x/xerrors"
)

// Patch implements spec.md §4.3.2's patch half: apply every patch matched by
// PatchGlobs, in the same glob-then-sorted-match order that contributed to
// src_hash, via the external patch(1) utility at PatchLevel. Source-less
// submodules have no tree to patch and are trivially marked done.
func (s *Submodule) Patch(ctx context.Context) error {
	if s.flag(&s.patched) {
		return nil
	}
	if !s.flag(&s.unpacked) {
		return xerrors.Errorf("%s: patch attempted before unpack", s.Fullname())
	}
	if s.SourceLess() {
		s.mark(&s.patched)
		return nil
	}

	canary := s.patchCanary()
	if ok, err := pathutil.CanaryExists(canary); err != nil {
		return err
	} else if ok {
		s.mark(&s.patched)
		return nil
	}

	patches, err := s.loadPatches()
	if err != nil {
		return err
	}
	for _, p := range patches {
		f, err := os.CreateTemp("", "patch-*.diff")
		if err != nil {
			return err
		}
		name := f.Name()
		_, writeErr := f.Write(p)
		closeErr := f.Close()
		defer os.Remove(name)
		if writeErr != nil {
			return writeErr
		}
		if closeErr != nil {
			return closeErr
		}

		argv := []string{"patch", fmt.Sprintf("-p%d", s.PatchLevel), "--input=" + name, "--directory=" + s.SrcDir}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stderr = os.Stderr
		cmd.Stdout = os.Stderr
		if err := cmd.Run(); err != nil {
			return xerrors.Errorf("%s: apply patch: %w", s.Fullname(), err)
		}
	}

	if err := pathutil.WriteCanary(canary); err != nil {
		return err
	}
	s.mark(&s.patched)
	return nil
}
