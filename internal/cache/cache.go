// Package cache implements the content-addressed tar.gz cache described in
// spec.md §4.6: packing an install_dir into build/cache/<fullname>-<out_hash16>.tar.gz,
// unpacking one back into an install_dir, and fetching one from an optional
// HTTP cache server.
package cache

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// Pack writes a gzip-compressed tar of every file under srcDir to destTar,
// with paths stored relative to srcDir.
func Pack(srcDir, destTar string) error {
	if err := os.MkdirAll(filepath.Dir(destTar), 0755); err != nil {
		return err
	}
	f, err := os.Create(destTar)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := pgzip.NewWriterLevel(f, pgzip.BestSpeed)
	if err != nil {
		return err
	}
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(fi.Name(), ".install-") || strings.HasPrefix(fi.Name(), ".cache-") {
			return nil // canaries are regenerated on unpack, never cached
		}

		var link string
		if fi.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}

// Unpack extracts a tar.gz produced by Pack into destDir, creating it if
// necessary.
func Unpack(srcTar, destDir string) error {
	f, err := os.Open(srcTar)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

// Server fetches cached install artifacts over HTTP from a single base URL,
// implementing submodule.CacheFetcher.
type Server struct {
	BaseURL    string
	HTTPClient *http.Client
	TmpDir     string // scratch directory for downloaded archives; "" uses os.TempDir
}

// FetchInstalled implements submodule.CacheFetcher: it GETs
// <BaseURL>/<fullname>-<outHashShort>.tar.gz and unpacks it into dest on
// success. A 404 is reported as ok=false, not an error.
func (c *Server) FetchInstalled(ctx context.Context, fullname, outHashShort, dest string) (bool, error) {
	if c.BaseURL == "" {
		return false, nil
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	name := fmt.Sprintf("%s-%s.tar.gz", fullname, outHashShort)
	url := strings.TrimRight(c.BaseURL, "/") + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("cache GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("cache GET %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(c.TmpDir, "cache-*.tar.gz")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return false, copyErr
	}
	if closeErr != nil {
		return false, closeErr
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return false, err
	}
	if err := Unpack(tmpPath, dest); err != nil {
		return false, err
	}
	return true, nil
}
