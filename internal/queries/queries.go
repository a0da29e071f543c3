// Package queries defines the text include-expansion workload run by the quarry CLI.
//
// Source files are fed as inputs. Derived queries parse their include directives,
// expand them recursively and aggregate statistics over every fed file.
package queries

import (
	"fmt"
	"slices"
	"strings"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/engine/query"
)

// CycleText replaces the expansion of a file that includes itself.
const CycleText = "<cycle>"

// Stats counts the expanded text of one file.
type Stats struct {
	Lines int `json:"lines"`
	Words int `json:"words"`
	Bytes int `json:"bytes"`
}

// Summary aggregates Stats over the manifest.
type Summary struct {
	Files    int `json:"files"`
	Includes int `json:"includes"`
	Lines    int `json:"lines"`
	Words    int `json:"words"`
	Bytes    int `json:"bytes"`
}

// Workload holds the query kinds of the include-expansion workload. Per-file kinds are
// keyed by the interned slash-separated path of the file.
type Workload struct {
	SourceText *query.Query[domain.InternedString, string]
	FileList   *query.Query[domain.Unit, []string]
	Includes   *query.Query[domain.InternedString, []Include]
	Expanded   *query.Query[domain.InternedString, string]
	Tokens     *query.Query[domain.InternedString, []string]
	FileStats  *query.Query[domain.InternedString, Stats]
	Manifest   *query.Query[domain.Unit, []string]
	Summary    *query.Query[domain.Unit, Summary]
}

func describeUnit(domain.Unit) string { return "" }

// Register defines the workload's kinds in reg.
func Register(reg *query.Registry) *Workload {
	w := &Workload{}
	w.SourceText = query.DefineInput(reg, query.Spec[domain.InternedString, string]{Name: "source_text"})
	w.FileList = query.DefineInput(reg, query.Spec[domain.Unit, []string]{
		Name:     "file_list",
		Describe: describeUnit,
	})
	w.Includes = query.Define(reg, query.Spec[domain.InternedString, []Include]{
		Name:     "includes",
		Provider: w.includes,
	})
	w.Expanded = query.Define(reg, query.Spec[domain.InternedString, string]{
		Name:  "expanded",
		Cycle: domain.CycleDefault,
		Fallback: func(domain.InternedString, *domain.CycleError) string {
			return CycleText
		},
		Provider: w.expanded,
	})
	w.Tokens = query.Define(reg, query.Spec[domain.InternedString, []string]{
		Name:  "tokens",
		Flags: domain.FlagAnonymous,
		Provider: func(t *query.Task, file domain.InternedString) ([]string, error) {
			text, err := w.Expanded.Get(t, file)
			if err != nil {
				return nil, err
			}
			return strings.Fields(text), nil
		},
	})
	w.FileStats = query.Define(reg, query.Spec[domain.InternedString, Stats]{
		Name:     "file_stats",
		Provider: w.fileStats,
	})
	w.Manifest = query.Define(reg, query.Spec[domain.Unit, []string]{
		Name:     "manifest",
		Flags:    domain.FlagEvalAlways,
		Describe: describeUnit,
		Provider: func(t *query.Task, key domain.Unit) ([]string, error) {
			files, err := w.FileList.Get(t, key)
			if err != nil {
				return nil, err
			}
			out := slices.Clone(files)
			slices.Sort(out)
			return slices.Compact(out), nil
		},
	})
	w.Summary = query.Define(reg, query.Spec[domain.Unit, Summary]{
		Name:     "summary",
		Describe: describeUnit,
		Provider: w.summary,
	})
	return w
}

// Feed feeds the sources of one session: every file's text and the file list.
func (w *Workload) Feed(e *query.Engine, sources map[string]string) error {
	files := make([]string, 0, len(sources))
	for file, text := range sources {
		if err := w.SourceText.Feed(e, domain.NewInternedString(file), text); err != nil {
			return err
		}
		files = append(files, file)
	}
	slices.Sort(files)
	return w.FileList.Feed(e, domain.Unit{}, files)
}

// Plan names the root queries a session requests.
func (w *Workload) Plan(files []string) []string {
	plan := make([]string, 0, len(files)+1)
	for _, f := range files {
		plan = append(plan, fmt.Sprintf("%s(%s)", w.FileStats.Name(), f))
	}
	return append(plan, w.Summary.Name()+"()")
}

func (w *Workload) includes(t *query.Task, file domain.InternedString) ([]Include, error) {
	src, err := w.SourceText.Get(t, file)
	if err != nil {
		return nil, err
	}
	fed, err := w.FileList.Get(t, domain.Unit{})
	if err != nil {
		return nil, err
	}

	var out []Include
	for _, inc := range ParseIncludes(file.String(), src) {
		if _, ok := slices.BinarySearch(fed, inc.Target); !ok {
			t.Emit(domain.Diagnostic{
				Level:   domain.DiagWarning,
				Message: fmt.Sprintf("included file %q not found", inc.Target),
				Span:    domain.Span{File: file.String(), Line: inc.Line},
			})
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

func (w *Workload) expanded(t *query.Task, file domain.InternedString) (string, error) {
	src, err := w.SourceText.Get(t, file)
	if err != nil {
		return "", err
	}
	incs, err := w.Includes.Get(t, file)
	if err != nil {
		return "", err
	}
	found := make(map[int]Include, len(incs))
	for _, inc := range incs {
		found[inc.Line] = inc
	}

	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if _, ok := parseDirective(line); !ok {
			out = append(out, line)
			continue
		}
		inc, ok := found[i+1]
		if !ok {
			continue
		}
		at := t.At(domain.Span{File: file.String(), Line: inc.Line})
		text, err := w.Expanded.Get(at, domain.NewInternedString(inc.Target))
		if err != nil {
			return "", err
		}
		out = append(out, strings.TrimSuffix(text, "\n"))
	}
	return strings.Join(out, "\n"), nil
}

func (w *Workload) fileStats(t *query.Task, file domain.InternedString) (Stats, error) {
	text, err := w.Expanded.Get(t, file)
	if err != nil {
		return Stats{}, err
	}
	tokens, err := w.Tokens.Get(t, file)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Lines: countLines(text), Words: len(tokens), Bytes: len(text)}, nil
}

func (w *Workload) summary(t *query.Task, key domain.Unit) (Summary, error) {
	files, err := w.Manifest.Get(t, key)
	if err != nil {
		return Summary{}, err
	}

	stats := make([]Stats, len(files))
	includes := make([]int, len(files))
	fns := make([]func(*query.Task) error, len(files))
	for i, file := range domain.NewInternedStrings(files) {
		fns[i] = func(t *query.Task) error {
			s, err := w.FileStats.Get(t, file)
			if err != nil {
				return err
			}
			incs, err := w.Includes.Get(t, file)
			if err != nil {
				return err
			}
			stats[i] = s
			includes[i] = len(incs)
			return nil
		}
	}
	if err := query.Parallel(t, fns...); err != nil {
		return Summary{}, err
	}

	sum := Summary{Files: len(files)}
	for i, s := range stats {
		sum.Includes += includes[i]
		sum.Lines += s.Lines
		sum.Words += s.Words
		sum.Bytes += s.Bytes
	}
	return sum, nil
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
