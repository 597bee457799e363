package submodule

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/osresearch/linux-builder/internal/pathutil"
	"golang.org/x/xerrors"
)

// Unpack implements spec.md §4.3.2: extract the fetched tarball (or clone)
// into src_dir, or delegate to Variant.Unpack for a source-less kind. A
// dirty submodule's src_dir lives under out_hash rather than src_hash, so it
// is rebuilt from scratch rather than reused across output configurations.
func (s *Submodule) Unpack(ctx context.Context) error {
	if s.flag(&s.unpacked) {
		return nil
	}
	if !s.flag(&s.fetched) {
		return xerrors.Errorf("%s: unpack attempted before fetch", s.Fullname())
	}

	if s.Variant != nil {
		if err := s.Variant.Unpack(ctx, s); err != nil {
			return err
		}
		s.mark(&s.unpacked)
		return nil
	}

	canary := s.unpackCanary()
	if ok, err := pathutil.CanaryExists(canary); err != nil {
		return err
	} else if ok {
		s.mark(&s.unpacked)
		return nil
	}

	if s.Dirty {
		if err := os.RemoveAll(s.SrcDir); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.SrcDir, 0755); err != nil {
		return err
	}

	if s.SourceLess() {
		// nothing to extract; the directory itself is the marker.
	} else if s.GitURL != "" {
		cp := exec.CommandContext(ctx, "cp", "-a", s.gitCheckoutDir()+"/.", s.SrcDir)
		cp.Stderr = os.Stderr
		if err := cp.Run(); err != nil {
			return xerrors.Errorf("%s: copy git checkout: %w", s.Fullname(), err)
		}
	} else {
		argv := []string{"tar", "-xf", s.TarFile,
			"--strip-components", fmt.Sprint(s.StripComponents),
			"-C", s.SrcDir}
		argv = append(argv, s.TarOptions...)
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return xerrors.Errorf("%s: %v: %w", s.Fullname(), argv, err)
		}
	}

	if err := pathutil.WriteCanary(canary); err != nil {
		return err
	}
	s.mark(&s.unpacked)
	return nil
}
