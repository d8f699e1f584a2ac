// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package watch observes a source directory and reports batches of
// changed C++ and Rust files.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pdiddy/src2ir/internal/discover"
	"github.com/pdiddy/src2ir/pkg/types"
)

// DefaultDebounce is how long the watcher waits after the last event
// before reporting a batch. Editors often write a file in several steps.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives the source files that were created or written since
// the previous batch, ordered C++ first and then by path.
type ChangeFunc func(ctx context.Context, paths []string)

// Options configures Watch.
type Options struct {
	Recursive bool
	Debounce  time.Duration
}

// Watch starts an fsnotify watcher on root and calls onChange with each
// debounced batch of changed sources until ctx is cancelled. onChange runs
// on the watcher goroutine, so events that arrive while it runs are
// gathered into the next batch.
//
// Directories created at runtime are added to the watch list when
// opts.Recursive is set, and sources already inside them are reported.
// Removals are ignored: IR for a deleted source is left in place.
func Watch(ctx context.Context, root string, opts Options, logger *slog.Logger, onChange ChangeFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirs(w, root, opts.Recursive); err != nil {
		return err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Bool("recursive", opts.Recursive))

	pending := make(map[string]types.Language)
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			if len(pending) == 0 {
				continue
			}
			paths := flush(pending)
			pending = make(map[string]types.Language)
			logger.Debug("watcher: batch", slog.Int("files", len(paths)))
			onChange(ctx, paths)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if !opts.Recursive || discover.ShouldSkipDir(info.Name()) {
						continue
					}
					if addErr := addDirs(w, ev.Name, true); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					if files, walkErr := discover.Walk(ev.Name, true); walkErr == nil {
						for _, f := range files {
							pending[f.Path] = f.Language
						}
						if len(files) > 0 {
							schedule()
						}
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			lang, ok := types.LanguageForPath(ev.Name)
			if !ok {
				continue
			}
			logger.Debug("watcher: changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			pending[ev.Name] = lang
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// flush orders the pending set the way a directory walk would.
func flush(pending map[string]types.Language) []string {
	files := make([]types.SourceFile, 0, len(pending))
	for p, lang := range pending {
		files = append(files, types.SourceFile{Path: p, RelPath: filepath.ToSlash(p), Language: lang})
	}
	discover.Sort(files)
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// addDirs adds root, and its subdirectories when recursive is set, to
// the watcher.
func addDirs(w *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && discover.ShouldSkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
