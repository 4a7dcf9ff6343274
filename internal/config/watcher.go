package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/brinkfs/nfsd/internal/alias"
	"github.com/brinkfs/nfsd/internal/logger"
)

// AliasWatcher re-reads an alias path-list file on every write and
// pushes the parsed mappings into a Resolver under a single source id,
// giving a concrete body to spec.md's "external config-watcher that
// pushes alias lists into the resolver" collaborator.
type AliasWatcher struct {
	path     string
	source   uint64
	resolver *alias.Resolver
	fsw      *fsnotify.Watcher
}

// NewAliasWatcher parses path once (failing if it can't be read) and
// starts watching its parent directory for changes. Watching the
// directory rather than the file survives editors that replace the
// file with a rename instead of an in-place write.
func NewAliasWatcher(path string, resolver *alias.Resolver) (*AliasWatcher, error) {
	source := resolver.NewSource()

	mappings, err := ParseAliasFile(path)
	if err != nil {
		return nil, err
	}
	if err := resolver.Set(source, mappings); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &AliasWatcher{path: path, source: source, resolver: resolver, fsw: fsw}, nil
}

// Run blocks, reloading the alias file whenever fsnotify reports a
// change to it, until ctx is cancelled or Close is called.
func (w *AliasWatcher) Run(ctx context.Context) {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		abs = w.path
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			evAbs, err := filepath.Abs(ev.Name)
			if err != nil || evAbs != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("alias file watcher error", "error", err)
		}
	}
}

func (w *AliasWatcher) reload() {
	mappings, err := ParseAliasFile(w.path)
	if err != nil {
		logger.Warn("alias file reload failed", "path", w.path, "error", err)
		return
	}
	if err := w.resolver.Set(w.source, mappings); err != nil {
		logger.Warn("alias file reload rejected", "path", w.path, "error", err)
		return
	}
	logger.Info("alias file reloaded", "path", w.path, "count", len(mappings))
}

// Close stops the underlying fsnotify watcher.
func (w *AliasWatcher) Close() error {
	return w.fsw.Close()
}
