package pathutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// RunLogged executes argv with cwd as its working directory, writing
// combined stdout/stderr to w (typically a phase-named log file under
// out_dir) in addition to returning an error on non-zero exit.
//
// File descriptors are inherited unmodified, matching the original Python
// builder's close_fds=False: an outer make job server communicates with
// inner make invocations through inherited pipe fds, and os/exec does not
// close extra descriptors on its own.
func RunLogged(ctx context.Context, w io.Writer, cwd string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command vector")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v (cwd=%s): %w", argv, cwd, err)
	}
	return nil
}

// TailLines returns the last n lines of the file at path, used by the
// scheduler to print a compact diagnostic when a worker's subprocess fails.
func TailLines(path string, n int) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := splitLines(b)
	if len(lines) <= n {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}
