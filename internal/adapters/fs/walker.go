// Package fs provides file system adapters for discovering, reading and hashing sources.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// skippedDirs are never descended into.
var skippedDirs = []string{".git", ".jj", ".quarry"}

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields every file below root, skipping VCS metadata, the quarry cache
// directory and anything matching ignores. Yielded paths start with root.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() && path != root && w.skipped(d.Name(), ignores) {
				return filepath.SkipDir
			}
			if d.IsDir() || w.ignored(d.Name(), ignores) {
				return nil
			}

			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (w *Walker) skipped(name string, ignores []string) bool {
	for _, dir := range skippedDirs {
		if name == dir {
			return true
		}
	}
	return w.ignored(name, ignores)
}

func (w *Walker) ignored(name string, ignores []string) bool {
	for _, ignore := range ignores {
		if matched, _ := filepath.Match(ignore, name); matched {
			return true
		}
	}
	return false
}
