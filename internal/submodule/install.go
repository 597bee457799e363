package submodule

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/osresearch/linux-builder/internal/expand"
	"github.com/osresearch/linux-builder/internal/merkle"
	"github.com/osresearch/linux-builder/internal/pathutil"
	"golang.org/x/xerrors"
)

// CacheFetcher fetches a cached <fullname>-<out_hash16>.tar.gz artifact by
// name and unpacks it into dest, returning ok=false (no error) when the
// cache has no such entry. Implemented by internal/cache against a
// configured cache server URL.
type CacheFetcher interface {
	FetchInstalled(ctx context.Context, fullname, outHashShort, dest string) (ok bool, err error)
}

// Install drives s through its entire remaining state machine to
// INSTALLED: fetch, unpack, patch, configure, build, then run InstallCmds,
// per spec.md §4.3.1-§4.3.6. It is the single entry point scheduler workers
// call (spec.md §4.7); a cache hit short-circuits everything before it.
func (s *Submodule) Install(ctx context.Context, httpClient *http.Client, cache CacheFetcher) error {
	if s.flag(&s.installed) {
		return nil
	}

	cacheCanary := s.cacheCanary()
	if ok, err := pathutil.CanaryExists(cacheCanary); err != nil {
		return err
	} else if ok {
		s.mark(&s.installed)
		return nil
	}

	if s.Cacheable && cache != nil {
		ok, err := cache.FetchInstalled(ctx, s.Fullname(), merkle.Short(s.OutHash), s.InstallDir)
		if err != nil {
			log.Printf("%s: cache fetch failed, building locally: %v", s.Fullname(), err)
		} else if ok {
			if err := pathutil.WriteCanary(s.installCanary()); err != nil {
				return err
			}
			if err := pathutil.WriteCanary(cacheCanary); err != nil {
				return err
			}
			s.mark(&s.installed)
			return nil
		}
	}

	if err := s.Fetch(ctx, httpClient); err != nil {
		return err
	}
	if err := s.Unpack(ctx); err != nil {
		return err
	}
	if err := s.Patch(ctx); err != nil {
		return err
	}
	if err := s.Configure(ctx); err != nil {
		return err
	}
	if err := s.Build(ctx); err != nil {
		return err
	}

	installCanary := s.installCanary()
	if ok, err := pathutil.CanaryExists(installCanary); err != nil {
		return err
	} else if !ok {
		if err := s.runInstallCmds(ctx); err != nil {
			return err
		}
		if err := pathutil.WriteCanary(installCanary); err != nil {
			return err
		}
	}

	if s.Cacheable {
		if ok, err := pathutil.CanaryExists(cacheCanary); err != nil {
			return err
		} else if !ok {
			if err := pathutil.WriteCanary(cacheCanary); err != nil {
				return err
			}
		}
	}

	if s.ReportHashes {
		if err := s.reportHashes(); err != nil {
			return err
		}
	}

	s.mark(&s.installed)
	return nil
}

func (s *Submodule) runInstallCmds(ctx context.Context) error {
	for _, dir := range []string{s.InstallDir, s.BinDir, s.LibDir, s.IncDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	logFile, err := os.Create(s.installLog())
	if err != nil {
		return err
	}
	defer logFile.Close()

	vectors, err := expand.ExpandVectors(s.Fullname(), s.InstallCmds, s.Dict())
	if err != nil {
		return err
	}
	for _, argv := range vectors {
		if err := pathutil.RunLogged(ctx, logFile, s.OutDir, argv); err != nil {
			return xerrors.Errorf("%s: install: %w", s.Fullname(), err)
		}
	}
	return nil
}
