package submodule

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/osresearch/linux-builder/internal/expand"
	"github.com/osresearch/linux-builder/internal/merkle"
	"golang.org/x/xerrors"
)

// NonDeterminismError is returned when a hash recomputed for a submodule
// differs from the value computed earlier in the same process run,
// indicating the recipe depends on something outside the declared inputs
// (spec.md §8 invariant, §7 "Hash recomputation drift").
type NonDeterminismError struct {
	Submodule string
	Field     string
	Old, New  string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("%s: %s changed from %s to %s across recomputation (non-deterministic recipe)",
		e.Submodule, e.Field, e.Old, e.New)
}

// MissingPatchGlobError is returned when a declared patch glob matches no
// files. spec.md §9 flags the original's "warning only" behavior as a
// redesign candidate ("prefer making it a hard error to avoid silent
// under-hashing"); this implementation takes that redesign.
type MissingPatchGlobError struct {
	Submodule string
	Glob      string
}

func (e *MissingPatchGlobError) Error() string {
	return fmt.Sprintf("%s: patch glob %q matched no files", e.Submodule, e.Glob)
}

func splitVersion(version string) (major, minor, patch string) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) > 0 {
		major = parts[0]
	}
	if len(parts) > 1 {
		minor = parts[1]
	}
	if len(parts) > 2 {
		patch = parts[2]
	}
	return major, minor, patch
}

// ownDict returns this submodule's direct expansion keys, excluding any
// dependency-prefixed keys (those are added by Dict).
func (s *Submodule) ownDict() map[string]string {
	major, minor, patch := splitVersion(s.Version)
	d := map[string]string{
		"version":     s.Version,
		"name":        s.Name,
		"src_hash":    merkle.Short(s.SrcHash),
		"out_hash":    merkle.Short(s.OutHash),
		"src_dir":     s.SrcDir,
		"out_dir":     s.OutDir,
		"rout_dir":    s.ROutDir,
		"install_dir": s.InstallDir,
		"bin_dir":     s.BinDir,
		"lib_dir":     s.LibDir,
		"inc_dir":     s.IncDir,
		"top_dir":     s.TopDir,
		"tar_file":    s.TarFile,
		"nproc":       strconv.Itoa(runtime.NumCPU()),
	}
	if major != "" {
		d["major"] = major
	}
	if minor != "" {
		d["minor"] = minor
	}
	if patch != "" {
		d["patch"] = patch
	}
	for k, v := range s.ExtraOutputs {
		d["extra."+k] = filepath.Join(s.InstallDir, v)
	}
	return d
}

// transitiveDeps returns every submodule reachable from s.Deps, deduplicated
// and in discovery order, excluding s itself.
func (s *Submodule) transitiveDeps() []*Submodule {
	seen := map[*Submodule]bool{s: true}
	var order []*Submodule
	var visit func(*Submodule)
	visit = func(cur *Submodule) {
		for _, d := range cur.Deps {
			dep := d.Submodule()
			if dep == nil || seen[dep] {
				continue
			}
			seen[dep] = true
			order = append(order, dep)
			visit(dep)
		}
	}
	visit(s)
	return order
}

// Dict returns the full "%(key)s" expansion dictionary for s: its own
// direct keys, plus every transitive dependency D's direct keys exposed as
// "D.name.key" (single-dot form only — spec.md §4.2).
func (s *Submodule) Dict() map[string]string {
	d := s.ownDict()
	for _, dep := range s.transitiveDeps() {
		for k, v := range dep.ownDict() {
			d[dep.Name+"."+k] = v
		}
	}
	return d
}

// Expand expands template against s's dictionary.
func (s *Submodule) Expand(template string) (string, error) {
	return expand.Expand(s.Fullname(), template, s.Dict())
}

func hashOrZero(h string) string {
	if h == "" {
		return merkle.ZeroHash
	}
	return h
}

// loadPatches reads every patch referenced by s.PatchGlobs, in declared
// glob order with each glob's matches sorted, per spec.md §4.3.2.
func (s *Submodule) loadPatches() ([][]byte, error) {
	var out [][]byte
	for _, g := range s.PatchGlobs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return nil, xerrors.Errorf("%s: bad patch glob %q: %w", s.Fullname(), g, err)
		}
		if len(matches) == 0 {
			return nil, &MissingPatchGlobError{Submodule: s.Fullname(), Glob: g}
		}
		sort.Strings(matches)
		for _, m := range matches {
			b, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	return out, nil
}

// defaultSrcHash implements spec.md §4.1/§4.3.2 for the default (non-Variant)
// submodule kind, plus the supplemented git-source form from SPEC_FULL.md §1.
func (s *Submodule) defaultSrcHash() (string, error) {
	base := hashOrZero(s.TarHash)
	if s.GitURL != "" {
		base = merkle.Extend(merkle.ZeroHash, []byte(s.GitCommit))
	}
	patches, err := s.loadPatches()
	if err != nil {
		return "", err
	}
	return merkle.Extend(base, patches...), nil
}

func (s *Submodule) commandVectorHash(vectors [][]string) string {
	h := merkle.ZeroHash
	var perVector []string
	for _, v := range vectors {
		perVector = append(perVector, merkle.ExtendStrings(h, v...))
	}
	return merkle.ExtendStrings(h, perVector...)
}

func (s *Submodule) configFileHash() (string, error) {
	var items []string
	for _, f := range s.ConfigFragments {
		b, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		items = append(items, string(b))
	}
	items = append(items, s.ConfigAppend...)
	return merkle.ExtendStrings(merkle.ZeroHash, items...), nil
}

// UpdateHashes computes src_hash and out_hash for s. It must be called once
// per submodule, in an order where every dependency's hashes are already
// final (the scheduler's topological pre-pass, spec.md §4.4). Calling it
// again with different results is treated as non-determinism and reported
// via NonDeterminismError rather than silently accepted.
func (s *Submodule) UpdateHashes() error {
	if s.URL != "" {
		tarFile, err := s.expandTarFile()
		if err != nil {
			return err
		}
		s.TarFile = tarFile
	}

	var srcHash string
	var err error
	if s.Variant != nil {
		srcHash, err = s.Variant.SrcHash(s)
	} else {
		srcHash, err = s.defaultSrcHash()
	}
	if err != nil {
		return err
	}

	configFileHash, err := s.configFileHash()
	if err != nil {
		return err
	}
	configCmdHash := s.commandVectorHash(s.ConfigureCmds)
	makeCmdHash := s.commandVectorHash(s.MakeCmds)
	installCmdHash := s.commandVectorHash(s.InstallCmds)

	dirtyTag := "clean-tree"
	if s.Dirty {
		dirtyTag = "dirty-tree"
	}

	items := []string{configFileHash, configCmdHash, s.IncSubdir, s.LibSubdir, s.BinSubdir, dirtyTag}
	items = append(items, s.DepFiles...)
	items = append(items, s.Bins...)
	items = append(items, s.Libs...)
	items = append(items, makeCmdHash, installCmdHash)

	outHash := merkle.ExtendStrings(srcHash, items...)

	if s.Variant != nil {
		extra, err := s.Variant.ExtraOutHashItems(s)
		if err != nil {
			return err
		}
		outHash = merkle.ExtendStrings(outHash, extra...)
	}

	// Dependencies are folded in declared order: out_hash is a hash chain,
	// not a set, and spec.md §4.4 step 7 extends with each dependency's
	// out_hash in the order it appears in Deps.
	for _, d := range s.Deps {
		dep := d.Submodule()
		if dep == nil {
			return xerrors.Errorf("%s: dependency %q not resolved before UpdateHashes", s.Fullname(), d.Name())
		}
		outHash = merkle.Extend(outHash, []byte(dep.OutHash))
	}

	if s.hashesComputed {
		if s.SrcHash != srcHash {
			return &NonDeterminismError{Submodule: s.Fullname(), Field: "src_hash", Old: s.SrcHash, New: srcHash}
		}
		if s.OutHash != outHash {
			return &NonDeterminismError{Submodule: s.Fullname(), Field: "out_hash", Old: s.OutHash, New: outHash}
		}
	}

	s.SrcHash = srcHash
	s.OutHash = outHash
	s.hashesComputed = true
	s.refreshPaths()
	return nil
}

// expandTarFile expands s.URL using only the submodule's own
// version-derived keys (major/minor/patch/name/version) — no computed
// hash/path keys are available yet at this point in the hash pass — and
// returns the local build/ftp/<basename> path the tarball will be fetched
// to.
func (s *Submodule) expandTarFile() (string, error) {
	major, minor, patch := splitVersion(s.Version)
	dict := map[string]string{"version": s.Version, "name": s.Name}
	if major != "" {
		dict["major"] = major
	}
	if minor != "" {
		dict["minor"] = minor
	}
	if patch != "" {
		dict["patch"] = patch
	}
	expanded, err := expand.Expand(s.Fullname(), s.URL, dict)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "ftp", filepath.Base(expanded)), nil
}
