package fs

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
	"go.trai.ch/zerr"
)

// SourceExt is the extension of files picked up when a root is a directory.
// Roots naming a file directly are always included.
const SourceExt = ".q"

var _ ports.SourceReader = (*SourceReader)(nil)

// SourceReader discovers and reads source files below a base directory. Source paths
// are slash-separated and relative to the base, so they are stable query keys across
// machines and checkouts.
type SourceReader struct {
	walker *Walker
	base   string
}

// NewSourceReader creates a SourceReader rooted at base.
func NewSourceReader(walker *Walker, base string) *SourceReader {
	return &SourceReader{walker: walker, base: base}
}

// Discover expands roots into a sorted, duplicate-free list of source paths. A root
// is a file, a directory or a glob pattern relative to the base.
func (s *SourceReader) Discover(roots []string) ([]string, error) {
	unique := make(map[string]struct{})
	for _, root := range roots {
		path := filepath.Join(s.base, filepath.FromSlash(root))

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}
		if len(matches) == 0 {
			return nil, zerr.With(zerr.Wrap(os.ErrNotExist, domain.ErrSourceReadFailed.Error()), "path", root)
		}

		for _, match := range matches {
			if err := s.collect(match, unique); err != nil {
				return nil, err
			}
		}
	}

	result := make([]string, 0, len(unique))
	for path := range unique {
		result = append(result, path)
	}
	slices.Sort(result)
	return result, nil
}

func (s *SourceReader) collect(path string, into map[string]struct{}) error {
	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSourceReadFailed.Error()), "path", path)
	}
	if !info.IsDir() {
		return s.add(path, into)
	}
	for file := range s.walker.WalkFiles(path, nil) {
		if !strings.HasSuffix(file, SourceExt) {
			continue
		}
		if err := s.add(file, into); err != nil {
			return err
		}
	}
	return nil
}

func (s *SourceReader) add(path string, into map[string]struct{}) error {
	rel, err := filepath.Rel(s.base, path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrSourceReadFailed.Error()), "path", path)
	}
	into[filepath.ToSlash(rel)] = struct{}{}
	return nil
}

// ReadSource returns the content of the source at the slash-separated path.
func (s *SourceReader) ReadSource(path string) ([]byte, error) {
	full := filepath.Join(s.base, filepath.FromSlash(path))
	data, err := os.ReadFile(full) //nolint:gosec // Path comes from Discover
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrSourceReadFailed.Error()), "path", path)
	}
	return data, nil
}
