package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/magiclantern/cubetest/internal/core/event"
	"go.uber.org/zap"
)

// Poster is the part of the event dispatcher the watcher needs.
type Poster interface {
	PostEvent(kind event.Kind, payload any, opts ...event.PostOption)
}

// Watcher turns changes to .lua files in a directory into KindScriptReload
// events. It runs on its own goroutine; the reload itself happens when the
// main loop dispatches the event.
type Watcher struct {
	fs     *fsnotify.Watcher
	dir    string
	poster Poster
	log    *zap.Logger
}

// NewWatcher watches dir. A missing dir returns an error matching
// fs.ErrNotExist, the case loadDir skips.
func NewWatcher(dir string, poster Poster, log *zap.Logger) (*Watcher, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create script watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{fs: fsw, dir: dir, poster: poster, log: log}, nil
}

// Run forwards events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()
	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Ext(e.Name) != ".lua" {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.log.Debug("script changed", zap.String("file", e.Name), zap.Stringer("op", e.Op))
			w.poster.PostEvent(event.KindScriptReload, e.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("script watcher error", zap.Error(err))

		case <-ctx.Done():
			return
		}
	}
}
