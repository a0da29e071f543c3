package queries

import (
	"path"
	"strings"
)

const directive = "#include"

// Include is one include directive of a source file.
type Include struct {
	// Target is the included file, relative to the workspace and slash-separated.
	Target string `json:"target"`
	// Line is the 1-based line of the directive.
	Line int `json:"line"`
}

// ParseIncludes returns the include directives of src in order of appearance.
// Targets are resolved against the directory of file.
func ParseIncludes(file, src string) []Include {
	var out []Include
	for i, line := range strings.Split(src, "\n") {
		target, ok := parseDirective(line)
		if !ok {
			continue
		}
		out = append(out, Include{Target: resolve(file, target), Line: i + 1})
	}
	return out
}

// parseDirective matches `#include "target"` with optional surrounding whitespace.
func parseDirective(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), directive)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", false
	}
	target := rest[1 : len(rest)-1]
	if target == "" {
		return "", false
	}
	return target, true
}

func resolve(file, target string) string {
	if path.IsAbs(target) {
		return path.Clean(strings.TrimPrefix(target, "/"))
	}
	return path.Join(path.Dir(file), target)
}
