package cpio

import (
	"bytes"
	"context"
	"os/exec"
)

// xzArgs are the fixed flags used for every xz invocation, chosen so that
// compressing the same bytes twice produces the same archive: a fixed
// checksum algorithm, a fixed dictionary size, and no timestamp-bearing
// container metadata.
var xzArgs = []string{"--check=crc32", "--lzma2=dict=256KiB", "--threads=0", "--stdout"}

// CompressXZ pipes data through the external xz binary and returns the
// compressed bytes. xz is treated as an external collaborator (spec.md §1
// scopes the tools it invokes as subprocesses out of the core), so this is a
// thin os/exec wrapper rather than a reimplementation of LZMA2.
func CompressXZ(ctx context.Context, data []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "xz", xzArgs...)
	cmd.Stdin = bytes.NewReader(data)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, &xzError{err: err, stderr: errBuf.String()}
	}
	return out.Bytes(), nil
}

type xzError struct {
	err    error
	stderr string
}

func (e *xzError) Error() string { return "xz: " + e.err.Error() + ": " + e.stderr }
func (e *xzError) Unwrap() error { return e.err }
