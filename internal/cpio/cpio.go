// Package cpio implements an in-memory writer (and, for round-trip testing,
// a reader) for the SVR4 "newc" cpio format used by Linux initramfs images.
//
// It is grounded on the entry-oriented Writer API distri's
// cmd/distri/initrd.go builds on top of github.com/cavaliercoder/go-cpio, but
// implements the newc header itself rather than depending on that library:
// reproducible initrds require every reserved field (inode, link count,
// mtime, device majors/minors, checksum) to be forced to a fixed value
// regardless of the source file's real metadata, and the exact namesize
// padding arithmetic in spec is easiest to guarantee by owning the encoder
// outright.
package cpio

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

const (
	magic        = "070701"
	trailerName  = "TRAILER!!!"
	headerLen    = 110
	modeFmt      = 0170000
	modeDir      = 0040000
	modeRegular  = 0100000
	modeSymlink  = 0120000
	modeCharDev  = 0020000
	modeBlockDev = 0060000
)

// Entry is one record in a cpio archive: a normalized path plus the metadata
// and payload needed to reproduce it.
type Entry struct {
	Path    string // normalized: no leading slash, no duplicate slashes
	Mode    uint32 // permission bits plus S_IFxxx type bits
	Major   uint32 // device major, for char/block device entries
	Minor   uint32 // device minor, for char/block device entries
	Payload []byte // file contents, or symlink target text
}

// NormalizePath collapses duplicate slashes and strips any leading slash. A
// trailing slash (a caller's way of saying "this is a directory") is
// stripped too, since directory-ness is carried by Entry.Mode.
func NormalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.TrimSuffix(p, "/")
	return strings.TrimPrefix(p, "/")
}

// IsDir reports whether mode's type bits designate a directory.
func IsDir(mode uint32) bool { return mode&modeFmt == modeDir }

// forceRegularIfUntyped ORs in S_IFREG when mode carries no directory,
// device or symlink type bit, mirroring spec's "regular-file mode bit must
// be forced on when the mode is not already directory/char/block/symlink".
func forceRegularIfUntyped(mode uint32) uint32 {
	switch mode & modeFmt {
	case modeDir, modeCharDev, modeBlockDev, modeSymlink:
		return mode
	default:
		return mode | modeRegular
	}
}

// Writer assembles a newc cpio archive in memory. Directories implicitly
// materialize all ancestors; Add is idempotent for directories and safe to
// call with already-known directory paths.
type Writer struct {
	entries map[string]*Entry
	order   []string
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{entries: make(map[string]*Entry)}
}

// Mkdir records dir (and every ancestor of dir) as a directory entry, unless
// already present.
func (w *Writer) Mkdir(dir string) {
	dir = NormalizePath(dir)
	if dir == "" {
		return
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		sub := strings.Join(parts[:i+1], "/")
		if _, ok := w.entries[sub]; ok {
			continue
		}
		w.put(&Entry{Path: sub, Mode: modeDir | 0755})
	}
}

// Add records a file, symlink or device entry, creating its parent
// directories as needed. Adding the same path twice overwrites the earlier
// entry (last write wins).
func (w *Writer) Add(e Entry) {
	e.Path = NormalizePath(e.Path)
	if idx := strings.LastIndex(e.Path, "/"); idx >= 0 {
		w.Mkdir(e.Path[:idx])
	}
	e.Mode = forceRegularIfUntyped(e.Mode)
	w.put(&e)
}

func (w *Writer) put(e *Entry) {
	if _, ok := w.entries[e.Path]; !ok {
		w.order = append(w.order, e.Path)
	}
	w.entries[e.Path] = e
}

// Has reports whether path has already been added (as a directory or file).
func (w *Writer) Has(path string) bool {
	_, ok := w.entries[NormalizePath(path)]
	return ok
}

// Bytes emits the assembled archive: entries in ascending path order, a
// TRAILER!!! entry, and zero-padding to a 512-byte boundary. The output is
// byte-identical across runs for the same set of entries.
func (w *Writer) Bytes() []byte {
	paths := make([]string, len(w.order))
	copy(paths, w.order)
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, p := range paths {
		writeEntry(&buf, w.entries[p].Path, w.entries[p].Mode, w.entries[p].Major, w.entries[p].Minor, w.entries[p].Payload)
	}
	writeEntry(&buf, trailerName, 0, 0, 0, nil)

	if rem := buf.Len() % 512; rem != 0 {
		buf.Write(make([]byte, 512-rem))
	}
	return buf.Bytes()
}

func writeEntry(buf *bytes.Buffer, name string, mode, major, minor uint32, payload []byte) {
	nameWithNUL := name + "\x00"
	// header (110 bytes) + name starts at offset 2 mod 4; pad namesize+2 up
	// to a multiple of 4.
	namesize := len(nameWithNUL)
	headerAndName := headerLen + namesize
	if pad := headerAndName % 4; pad != 0 {
		nameWithNUL += strings.Repeat("\x00", 4-pad)
	}

	fmt.Fprintf(buf, "%s%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		magic,
		0,              // ino
		mode,           // mode
		0,              // uid
		0,              // gid
		0,              // nlink
		0,              // mtime
		len(payload),   // filesize
		0,              // maj
		0,              // min
		major,          // rmaj: device number of a char/block device entry
		minor,          // rmin
		namesize,       // namesize, including the trailing NUL
	)
	fmt.Fprintf(buf, "%08x", 0) // chksum
	buf.WriteString(nameWithNUL)

	buf.Write(payload)
	if pad := len(payload) % 4; pad != 0 {
		buf.Write(make([]byte, 4-pad))
	}
}
