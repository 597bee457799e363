package submodule

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/osresearch/linux-builder/internal/cpio"
	"github.com/osresearch/linux-builder/internal/expand"
	"github.com/osresearch/linux-builder/internal/merkle"
)

// DeviceNode describes one character or block device entry to embed in an
// initramfs, e.g. /dev/console.
type DeviceNode struct {
	Path         string
	Block        bool
	Major, Minor uint32
	Mode         uint32 // permission bits only; type bits are added automatically
}

// Initrd is the Variant for the source-less cpio-archive submodule kind
// (spec.md §9 "initrd"): it has no upstream tarball and no configure/make
// step, only a depth-first walk of its own declared entries plus its
// dependencies' install trees, assembled into a newc archive.
type Initrd struct {
	Dirs     []string          // directories to create, "%(...)s" expanded
	Files    map[string]string // archive path -> source path template
	Symlinks map[string]string // archive path -> link target template
	Devices  []DeviceNode
	Compress bool // xz-compress the assembled archive
}

var _ Variant = (*Initrd)(nil)

// SrcHash implements Variant: an initrd has no upstream source, so its
// identity is derived purely from its own name and version.
func (v *Initrd) SrcHash(s *Submodule) (string, error) {
	return merkle.Extend(merkle.ZeroHash, []byte(s.Fullname())), nil
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

// ExtraOutHashItems implements Variant: every declared directory, file,
// symlink and device entry contributes to out_hash, so adding or changing
// any of them changes the archive's identity.
func (v *Initrd) ExtraOutHashItems(s *Submodule) ([]string, error) {
	var items []string
	dirs := append([]string{}, v.Dirs...)
	sort.Strings(dirs)
	items = append(items, dirs...)
	items = append(items, sortedPairs(v.Files)...)
	items = append(items, sortedPairs(v.Symlinks)...)

	devices := append([]DeviceNode{}, v.Devices...)
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	for _, d := range devices {
		items = append(items, fmt.Sprintf("%s:%v:%d:%d:%o", d.Path, d.Block, d.Major, d.Minor, d.Mode))
	}
	if v.Compress {
		items = append(items, "xz-compressed")
	}
	return items, nil
}

// Unpack implements Variant: there is no archive to extract, so the source
// directory is simply created.
func (v *Initrd) Unpack(ctx context.Context, s *Submodule) error {
	return os.MkdirAll(s.SrcDir, 0755)
}

// addDepFile reads bin (a path relative to dep's install_dir), adds it to
// the archive under dirName/<basename>, and returns the manifest line for
// it — a missing file is not fatal, matching the existing explicit-Files
// behavior: a placeholder is written and the build continues.
func (v *Initrd) addDepFile(w *cpio.Writer, dirName string, dep *Submodule, bin string) (string, error) {
	src := filepath.Join(dep.InstallDir, bin)
	dest := path.Join(dirName, filepath.Base(bin))
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("initrd: %s's %s missing, writing MISSING placeholder at %s", dep.Fullname(), src, dest)
			w.Add(cpio.Entry{Path: dest, Mode: 0644, Payload: []byte("MISSING: " + src)})
			return fmt.Sprintf("MISSING %s", dest), nil
		}
		return "", err
	}
	w.Add(cpio.Entry{Path: dest, Mode: 0755, Payload: data})
	return fmt.Sprintf("%s  %s", merkle.SHA256Hex(data), dest), nil
}

// addDeps recursively copies every transitive dependency's declared Bins
// into /bin and Libs into /lib, mirroring the original initrd builder's
// add_deps: a submodule's initramfs automatically carries its dependency
// tree's installed binaries and libraries, visited at most once each.
func (v *Initrd) addDeps(w *cpio.Writer, deps []Dependency, visited map[string]bool, manifest *[]string) error {
	for _, d := range deps {
		dep := d.Submodule()
		if dep == nil || visited[dep.Fullname()] {
			continue
		}
		visited[dep.Fullname()] = true

		for _, bin := range dep.Bins {
			line, err := v.addDepFile(w, "/bin", dep, bin)
			if err != nil {
				return err
			}
			*manifest = append(*manifest, line)
		}
		for _, lib := range dep.Libs {
			line, err := v.addDepFile(w, "/lib", dep, lib)
			if err != nil {
				return err
			}
			*manifest = append(*manifest, line)
		}
		if err := v.addDeps(w, dep.Deps, visited, manifest); err != nil {
			return err
		}
	}
	return nil
}

// Build implements Variant: it creates Dirs, walks every transitive
// dependency's declared Bins/Libs into the archive (addDeps), then adds
// Files, Symlinks and Devices as supplementary, explicitly declared entries
// (expanding every template against s.Dict() first, so entries can pull
// paths out of dependency install trees), adds a /hashes manifest entry
// listing every copied file, optionally xz-compresses the result, and
// places it at out_dir/<name>.cpio[.xz], with the same manifest written
// beside it as out_dir/<name>.cpio[.xz].hashes.
func (v *Initrd) Build(ctx context.Context, s *Submodule) error {
	w := cpio.NewWriter()

	dict := s.Dict()
	for _, dir := range v.Dirs {
		expanded, err := expand.Expand(s.Fullname(), dir, dict)
		if err != nil {
			return err
		}
		w.Mkdir(expanded)
	}

	var manifest []string
	if err := v.addDeps(w, s.Deps, map[string]bool{}, &manifest); err != nil {
		return err
	}

	destPaths := make([]string, 0, len(v.Files))
	for dest := range v.Files {
		destPaths = append(destPaths, dest)
	}
	sort.Strings(destPaths)

	for _, dest := range destPaths {
		srcTemplate := v.Files[dest]
		src, err := expand.Expand(s.Fullname(), srcTemplate, dict)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				log.Printf("%s: initrd source %s missing, writing MISSING placeholder at %s", s.Fullname(), src, dest)
				w.Add(cpio.Entry{Path: dest, Mode: 0644, Payload: []byte("MISSING: " + src)})
				manifest = append(manifest, fmt.Sprintf("MISSING %s", dest))
				continue
			}
			return err
		}
		w.Add(cpio.Entry{Path: dest, Mode: 0755, Payload: data})
		manifest = append(manifest, fmt.Sprintf("%s  %s", merkle.SHA256Hex(data), dest))
	}

	symlinkDests := make([]string, 0, len(v.Symlinks))
	for dest := range v.Symlinks {
		symlinkDests = append(symlinkDests, dest)
	}
	sort.Strings(symlinkDests)
	for _, dest := range symlinkDests {
		target, err := expand.Expand(s.Fullname(), v.Symlinks[dest], dict)
		if err != nil {
			return err
		}
		w.Add(cpio.Entry{Path: dest, Mode: 0120777, Payload: []byte(target)})
	}

	devices := append([]DeviceNode{}, v.Devices...)
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	for _, d := range devices {
		mode := d.Mode | 0020000
		if d.Block {
			mode = d.Mode | 0060000
		}
		w.Add(cpio.Entry{Path: d.Path, Mode: mode, Major: d.Major, Minor: d.Minor})
	}

	manifestText := []byte(strings.Join(manifest, "\n") + "\n")
	w.Add(cpio.Entry{Path: "hashes", Mode: 0644, Payload: manifestText})

	data := w.Bytes()
	name := s.Name + ".cpio"
	if v.Compress {
		compressed, err := cpio.CompressXZ(ctx, data)
		if err != nil {
			return err
		}
		data = compressed
		name += ".xz"
	}

	if err := os.MkdirAll(s.OutDir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.OutDir, name+".hashes"), manifestText, 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.OutDir, name), data, 0644)
}
