// Package expand implements the "%(key)s" string-interpolation namespace
// every submodule command, configuration append line and URL template is
// expanded through.
package expand

import (
	"fmt"
	"sort"
	"strings"
)

// MissingKeyError is returned when a template references a key that is not
// present in the dictionary, carrying enough context for a useful
// diagnostic (spec.md §7: "Missing interpolation key ... fatal to
// submodule with dict dump").
type MissingKeyError struct {
	Submodule string
	Key       string
	Template  string
	Dict      map[string]string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: unknown key %%(%s)s in %q", e.Submodule, e.Key, e.Template)
}

// DictDump dumps the offending submodule's interpolation dictionary, sorted by
// key, for inclusion in a diagnostic.
func (e *MissingKeyError) DictDump() []string {
	keys := make([]string, 0, len(e.Dict))
	for k := range e.Dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s=%s", k, e.Dict[k])
	}
	return lines
}

// Expand substitutes every "%(key)s" occurrence in template using dict,
// scoped to submodule for error reporting. The expander is pure: it never
// reads the environment, and a key missing from dict is always an error,
// never silently left in place or substituted with an empty string.
func Expand(submodule, template string, dict map[string]string) (string, error) {
	var out strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "%(")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		end := strings.Index(rest[start:], ")s")
		if end == -1 {
			// No closing ")s": treat the remainder literally, matching a
			// template author's unterminated-placeholder typo rather than
			// silently eating trailing text.
			out.WriteString(rest[start:])
			break
		}
		key := rest[start+2 : start+end]
		val, ok := dict[key]
		if !ok {
			return "", &MissingKeyError{Submodule: submodule, Key: key, Template: template, Dict: dict}
		}
		out.WriteString(val)
		rest = rest[start+end+2:]
	}
	return out.String(), nil
}

// ExpandAll expands every template in templates, stopping at the first
// error.
func ExpandAll(submodule string, templates []string, dict map[string]string) ([]string, error) {
	out := make([]string, len(templates))
	for i, t := range templates {
		v, err := Expand(submodule, t, dict)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ExpandVectors expands each command vector (a list of argv strings)
// element-wise.
func ExpandVectors(submodule string, vectors [][]string, dict map[string]string) ([][]string, error) {
	out := make([][]string, len(vectors))
	for i, v := range vectors {
		expanded, err := ExpandAll(submodule, v, dict)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}
