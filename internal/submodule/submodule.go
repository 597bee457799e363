// Package submodule implements the buildable-unit state machine: the
// fetch → unpack → patch → configure → build → install lifecycle, the
// Merkle identity computation that derives src_hash/out_hash, and the two
// built-in variants (a normal tarball-sourced submodule and the
// source-less initrd submodule defined in initrd.go).
package submodule

import (
	"sync"

	"golang.org/x/xerrors"
)

// State is a point in the submodule lifecycle. States only ever advance.
type State int

const (
	NoState State = iota
	Fetched
	Unpacked
	Patched
	Configured
	Built
	Installed
)

func (s State) String() string {
	switch s {
	case NoState:
		return "NOSTATE"
	case Fetched:
		return "FETCHED"
	case Unpacked:
		return "UNPACKED"
	case Patched:
		return "PATCHED"
	case Configured:
		return "CONFIGURED"
	case Built:
		return "BUILT"
	case Installed:
		return "INSTALLED"
	default:
		return "UNKNOWN"
	}
}

// Dependency is a late-bound reference to another Submodule: either already
// resolved to a direct handle, or still carrying a name to be looked up
// against the process-wide registry during the scheduler's check pass (see
// spec.md §9 "String-name late binding").
type Dependency struct {
	name string
	sub  *Submodule
}

// DepByName creates an unresolved dependency reference.
func DepByName(name string) Dependency { return Dependency{name: name} }

// DepDirect creates an already-resolved dependency reference.
func DepDirect(s *Submodule) Dependency { return Dependency{sub: s} }

// Name returns the dependency's fullname, resolved or not.
func (d Dependency) Name() string {
	if d.sub != nil {
		return d.sub.Fullname()
	}
	return d.name
}

// Resolved reports whether this dependency already carries a direct handle.
func (d Dependency) Resolved() bool { return d.sub != nil }

// Submodule returns the resolved handle, or nil if not yet resolved.
func (d Dependency) Submodule() *Submodule { return d.sub }

// Resolve looks up an unresolved dependency by name via lookup and freezes
// it into a direct handle. A no-op if already resolved.
func (d *Dependency) Resolve(lookup func(name string) (*Submodule, bool)) error {
	if d.sub != nil {
		return nil
	}
	sub, ok := lookup(d.name)
	if !ok {
		return xerrors.Errorf("unresolved dependency %q: no such submodule in registry", d.name)
	}
	d.sub = sub
	return nil
}

// Submodule is one buildable unit: identity, source inputs, build inputs,
// output declarations and relationships, per spec.md §3.
type Submodule struct {
	// Identity
	Name    string
	Version string

	// Variant overrides identity and lifecycle hooks for non-default
	// submodule kinds (see initrd.go). Nil means the default, tarball-sourced
	// behavior implemented directly on Submodule.
	Variant Variant

	// Source inputs
	URL             string // e.g. "https://example.org/foo-%(version)s.tar.gz"
	TarHash         string // expected hex SHA-256 of the downloaded archive
	PatchGlobs      []string
	StripComponents int
	PatchLevel      int
	TarOptions      []string

	// Supplemented git source (see SPEC_FULL.md §1): when set, fetch clones
	// GitURL at GitCommit instead of downloading a tarball.
	GitURL    string
	GitCommit string

	// Build inputs
	ConfigureCmds   [][]string
	MakeCmds        [][]string
	InstallCmds     [][]string
	ConfigFragments []string // paths read and joined with newlines
	ConfigAppend    []string // lines, expanded at configure time
	KConfigFile     string   // default ".config"

	// Outputs declaration
	BinSubdir    string // relative to install_dir, default "bin"
	LibSubdir    string // default "lib"
	IncSubdir    string // default "include"
	Bins         []string
	Libs         []string
	ExtraOutputs map[string]string // supplemented named outputs, see SPEC_FULL.md §1

	// Rebuild triggers beyond the hash chain (spec.md §4.3.5)
	DepFiles []string

	// Flags
	Dirty        bool
	Cacheable    bool
	ReportHashes bool
	Force        bool // force rebuild even if canary/hash chain says otherwise

	// Relationships
	Deps []Dependency

	// Root is the base "build" directory this submodule's artifacts live
	// under, e.g. "build". Set by the registry when the submodule is
	// registered.
	Root string

	// Computed identity, filled by UpdateHashes.
	SrcHash string
	OutHash string

	SrcDir     string
	OutDir     string
	ROutDir    string
	InstallDir string
	BinDir     string
	LibDir     string
	IncDir     string
	TopDir     string
	TarFile    string

	mu         sync.Mutex
	fetched    bool
	unpacked   bool
	patched    bool
	configured bool
	built      bool
	installed  bool

	hashesComputed bool
}

// New constructs a Submodule with its non-zero-value defaults applied.
func New(name, version string) *Submodule {
	return &Submodule{
		Name:            name,
		Version:         version,
		PatchLevel:      1,
		StripComponents: 1,
		BinSubdir:       "bin",
		LibSubdir:       "lib",
		IncSubdir:       "include",
		KConfigFile:     ".config",
	}
}

// Fullname is the name-version identity unique across the process-wide
// registry.
func (s *Submodule) Fullname() string { return s.Name + "-" + s.Version }

// SourceLess reports whether this submodule has no upstream tarball/git
// source and therefore exists purely to run commands against its
// dependencies' trees (spec.md §3).
func (s *Submodule) SourceLess() bool { return s.URL == "" && s.GitURL == "" }

// State returns the furthest lifecycle stage this submodule has reached.
func (s *Submodule) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.installed:
		return Installed
	case s.built:
		return Built
	case s.configured:
		return Configured
	case s.patched:
		return Patched
	case s.unpacked:
		return Unpacked
	case s.fetched:
		return Fetched
	default:
		return NoState
	}
}

// IsInstalled reports whether install() has completed for this submodule.
// Read concurrently by the scheduler while deciding what is ready to build.
func (s *Submodule) IsInstalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

func (s *Submodule) mark(flag *bool) {
	s.mu.Lock()
	*flag = true
	s.mu.Unlock()
}

func (s *Submodule) flag(flag *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *flag
}
