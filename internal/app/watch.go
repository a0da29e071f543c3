package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.trai.ch/quarry/internal/adapters/fs"      //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

// Watch builds once and then again whenever the content of a source changes, until ctx
// is done. Each session starts from the graph of the one before it.
func (a *App) Watch(ctx context.Context, opts BuildOptions) error {
	if a.watcher == nil || a.hashes == nil {
		return zerr.Wrap(domain.ErrWatcherFailed, "no file watcher configured")
	}
	cfg, err := a.config(opts)
	if err != nil {
		return err
	}

	prev := a.rebuild(ctx, cfg, a.loadPrevious(cfg))

	if err := a.watcher.Start(ctx, a.root); err != nil {
		return err
	}
	defer func() { _ = a.watcher.Stop() }()

	batches := make(chan []string)
	debouncer := watcher.NewDebouncer(a.debounceWindow, func(paths []string) {
		select {
		case batches <- paths:
		case <-ctx.Done():
		}
	})
	go func() {
		for event := range a.watcher.Events() {
			switch ext := filepath.Ext(event.Path); {
			case ext == fs.SourceExt:
				debouncer.Add(event.Path)
			case ext == "" && event.Operation.Structural():
				// A directory moved in or out may carry sources of its own.
				debouncer.Add(event.Path)
			}
		}
	}()

	a.logger.Info(fmt.Sprintf("watching %s for changes", a.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-batches:
			sources, dirs := splitSources(paths)
			changed := len(a.hashes.Changed(sources)) + len(dirs)
			if changed == 0 {
				continue
			}
			a.logger.Info(fmt.Sprintf("%d path(s) changed, rebuilding", changed))
			if next := a.rebuild(ctx, cfg, prev); next != nil {
				prev = next
			}
		}
	}
}

// rebuild runs one watch session and primes the hash cache with its sources. Session
// errors are reported and do not stop watching.
func (a *App) rebuild(ctx context.Context, cfg domain.Config, prev *domain.SerializedGraph) *domain.SerializedGraph {
	report, next, err := a.runSession(ctx, cfg, prev)
	paths := make([]string, len(report.Files))
	for i, f := range report.Files {
		paths[i] = filepath.Join(a.root, filepath.FromSlash(f))
	}
	a.hashes.Prime(paths)

	switch {
	case err == nil:
		a.printReport(report)
	case errors.Is(err, domain.ErrBuildFailed):
		a.printReport(report)
		a.logger.Warn("session finished with errors")
	default:
		a.logger.Error(err)
	}
	return next
}

// splitSources separates source paths, which are compared by content, from directory
// paths, which always trigger a rebuild.
func splitSources(paths []string) (sources, dirs []string) {
	for _, p := range paths {
		if filepath.Ext(p) == fs.SourceExt {
			sources = append(sources, p)
		} else {
			dirs = append(dirs, p)
		}
	}
	return sources, dirs
}
