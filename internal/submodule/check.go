package submodule

import "os"

// Check inspects on-disk canaries only, performing no side effects, and
// returns the furthest lifecycle state s would report if its phase methods
// were run. The scheduler's "check" verb (spec.md §6) uses this to print
// what would happen without fetching, building or installing anything.
func (s *Submodule) Check() State {
	if ok, _ := exists(s.cacheCanary()); ok {
		return Installed
	}
	if ok, _ := exists(s.installCanary()); ok {
		return Installed
	}
	if ok, _ := exists(s.buildCanary()); ok {
		return Built
	}
	if ok, _ := exists(s.configureCanary()); ok {
		return Configured
	}
	if ok, _ := exists(s.patchCanary()); ok {
		return Patched
	}
	if s.SourceLess() {
		if ok, _ := exists(s.SrcDir); ok {
			return Unpacked
		}
	}
	if ok, _ := exists(s.unpackCanary()); ok {
		return Unpacked
	}
	if fetched, _ := s.isFetched(); fetched {
		return Fetched
	}
	return NoState
}

func (s *Submodule) isFetched() (bool, error) {
	if s.SourceLess() {
		return true, nil
	}
	if s.GitURL != "" {
		return exists(s.gitCheckoutDir())
	}
	return exists(s.TarFile)
}

func exists(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
