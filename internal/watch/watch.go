// Package watch re-imports a source file whenever it or one of the files it
// resolved changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// DefaultDebounce coalesces the bursts of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Importer imports a file. *pipeline.Importer satisfies it.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*asset.Scene, error)
}

// Sources is the asset cache behind an import. *assets.Manager satisfies it.
type Sources interface {
	Invalidate(path string)
	Dependencies() []string
}

// Callback receives the result of every import.
type Callback func(sc *asset.Scene, err error)

// Watcher re-runs an import on change.
type Watcher struct {
	path     string
	importer Importer
	onImport Callback
	sources  Sources
	debounce time.Duration
	logger   *zap.Logger

	watched  map[string]bool // directories added to fsnotify
	relevant map[string]bool // files whose changes trigger an import
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSources invalidates changed files in s before re-importing and
// watches every file s resolved.
func WithSources(s Sources) Option {
	return func(w *Watcher) { w.sources = s }
}

// WithDebounce sets the quiet period after the last event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a watcher for the file at path.
func New(path string, im Importer, onImport Callback, opts ...Option) *Watcher {
	w := &Watcher{
		path:     path,
		importer: im,
		onImport: onImport,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		watched:  make(map[string]bool),
		relevant: make(map[string]bool),
	}
	for _, o := range opts {
		o(w)
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	return w
}

// Run imports once, then again after every change, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	w.path = abs

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.runImport(ctx, fw); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time
	changed := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(e.Name)
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.relevant[name] {
				continue
			}
			changed[name] = true
			timer.Reset(w.debounce)
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", zap.Error(err))

		case <-fire:
			fire = nil
			for name := range changed {
				if w.sources != nil {
					w.sources.Invalidate(name)
				}
				w.logger.Info("Changed", zap.String("path", name))
			}
			clear(changed)

			if err := w.runImport(ctx, fw); err != nil {
				return err
			}
		}
	}
}

// runImport imports, starts watching any new dependencies, then reports the
// result.
func (w *Watcher) runImport(ctx context.Context, fw *fsnotify.Watcher) error {
	start := time.Now()
	sc, err := w.importer.ImportFile(ctx, w.path)
	if err != nil {
		w.logger.Warn("Import failed", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("Imported", zap.String("path", w.path), zap.Duration("took", time.Since(start)))
	}
	if err := w.sync(fw); err != nil {
		return err
	}
	if w.onImport != nil {
		w.onImport(sc, err)
	}
	return nil
}

// sync watches the source and every current dependency. fsnotify watches
// directories, so editors that replace files on save are still seen.
func (w *Watcher) sync(fw *fsnotify.Watcher) error {
	files := []string{w.path}
	if w.sources != nil {
		files = append(files, w.sources.Dependencies()...)
	}
	for _, f := range files {
		f = filepath.Clean(f)
		w.relevant[f] = true
		dir := filepath.Dir(f)
		if w.watched[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.watched[dir] = true
		w.logger.Debug("Watching", zap.String("dir", dir))
	}
	return nil
}
