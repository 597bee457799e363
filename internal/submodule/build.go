package submodule

import (
	"context"
	"os"

	"github.com/osresearch/linux-builder/internal/expand"
	"github.com/osresearch/linux-builder/internal/pathutil"
	"golang.org/x/xerrors"
)

// NeedsBuild implements spec.md §4.3.5's staleness check: a submodule whose
// build canary is missing, older than any declared DepFiles entry, or whose
// dependencies are not yet installed, must be (re)built. Force always
// triggers a rebuild.
func (s *Submodule) NeedsBuild() (bool, error) {
	if s.Force {
		return true, nil
	}
	canary := s.buildCanary()
	fi, err := os.Stat(canary)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	canaryTime := fi.ModTime()

	for _, depFile := range s.DepFiles {
		dfi, err := os.Stat(depFile)
		if err != nil {
			continue // a dep_files entry that doesn't exist yet can't be "newer"
		}
		if dfi.ModTime().After(canaryTime) {
			return true, nil
		}
	}

	for _, d := range s.Deps {
		dep := d.Submodule()
		if dep == nil {
			return false, xerrors.Errorf("%s: dependency %q not resolved", s.Fullname(), d.Name())
		}
		if !dep.IsInstalled() {
			return true, nil
		}
	}

	return false, nil
}

// Build implements spec.md §4.3.4 and the §4.3.5 staleness check together:
// run MakeCmds (or Variant.Build for a non-default kind) only when
// NeedsBuild says the prior build canary no longer reflects reality.
func (s *Submodule) Build(ctx context.Context) error {
	if s.flag(&s.built) {
		return nil
	}
	if !s.flag(&s.configured) {
		return xerrors.Errorf("%s: build attempted before configure", s.Fullname())
	}

	needsBuild, err := s.NeedsBuild()
	if err != nil {
		return err
	}
	if !needsBuild {
		s.mark(&s.built)
		return nil
	}

	if s.Variant != nil {
		if err := s.Variant.Build(ctx, s); err != nil {
			return err
		}
	} else {
		logFile, err := os.Create(s.makeLog())
		if err != nil {
			return err
		}
		defer logFile.Close()

		vectors, err := expand.ExpandVectors(s.Fullname(), s.MakeCmds, s.Dict())
		if err != nil {
			return err
		}
		for _, argv := range vectors {
			if err := pathutil.RunLogged(ctx, logFile, s.OutDir, argv); err != nil {
				return err
			}
		}
	}

	canary := s.buildCanary()
	if err := pathutil.WriteCanary(canary); err != nil {
		return err
	}
	if s.Force {
		pathutil.Touch(canary)
	}
	s.mark(&s.built)
	return nil
}
