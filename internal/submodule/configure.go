package submodule

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/osresearch/linux-builder/internal/expand"
	"github.com/osresearch/linux-builder/internal/pathutil"
	"golang.org/x/xerrors"
)

// configKey extracts the left-hand side of a kconfig-style line
// ("CONFIG_FOO=y", "# CONFIG_BAR is not set") for duplicate detection. Lines
// that don't look like a key assignment or a "is not set" comment return "".
func configKey(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	if strings.HasPrefix(line, "#") {
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "is" && i > 0 && i+1 < len(fields) && fields[i+1] == "not" {
				return fields[i-1]
			}
		}
		return ""
	}
	if i := strings.IndexByte(line, '='); i > 0 {
		return line[:i]
	}
	return ""
}

// writeConfigFile joins ConfigFragments with ConfigAppend (expanded) into
// s.OutDir/KConfigFile, logging a non-fatal warning when an appended line
// overrides a key already set by a fragment; the appended line still wins
// (SPEC_FULL.md §1).
func (s *Submodule) writeConfigFile() error {
	var fragmentText []string
	seen := map[string]bool{}
	for _, f := range s.ConfigFragments {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		fragmentText = append(fragmentText, string(b))
		for _, line := range strings.Split(string(b), "\n") {
			if k := configKey(line); k != "" {
				seen[k] = true
			}
		}
	}

	var appendLines []string
	for _, line := range s.ConfigAppend {
		expanded, err := s.Expand(line)
		if err != nil {
			return err
		}
		if k := configKey(expanded); k != "" && seen[k] {
			log.Printf("%s: config_append overrides fragment-set key %s", s.Fullname(), k)
		}
		appendLines = append(appendLines, expanded)
	}

	content := strings.Join(fragmentText, "\n")
	if len(appendLines) > 0 {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += strings.Join(appendLines, "\n") + "\n"
	}

	path := filepath.Join(s.OutDir, s.KConfigFile)
	return pathutil.AtomicWriteFile(path, []byte(content), 0644)
}

// Configure implements spec.md §4.3.3: write the merged kconfig file (if
// any fragments/appends are declared) and run ConfigureCmds with cwd=out_dir,
// logging combined output to out_dir/configure-log.
func (s *Submodule) Configure(ctx context.Context) error {
	if s.flag(&s.configured) {
		return nil
	}
	if !s.flag(&s.patched) {
		return xerrors.Errorf("%s: configure attempted before patch", s.Fullname())
	}

	canary := s.configureCanary()
	if ok, err := pathutil.CanaryExists(canary); err != nil {
		return err
	} else if ok {
		s.mark(&s.configured)
		return nil
	}

	if err := os.MkdirAll(s.OutDir, 0755); err != nil {
		return err
	}

	if len(s.ConfigFragments) > 0 || len(s.ConfigAppend) > 0 {
		if err := s.writeConfigFile(); err != nil {
			return err
		}
	}

	logFile, err := os.Create(s.configureLog())
	if err != nil {
		return err
	}
	defer logFile.Close()

	vectors, err := expand.ExpandVectors(s.Fullname(), s.ConfigureCmds, s.Dict())
	if err != nil {
		return err
	}
	for _, argv := range vectors {
		if err := pathutil.RunLogged(ctx, logFile, s.OutDir, argv); err != nil {
			return err
		}
	}

	if err := pathutil.WriteCanary(canary); err != nil {
		return err
	}
	s.mark(&s.configured)
	return nil
}
