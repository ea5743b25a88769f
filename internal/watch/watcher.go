// Package watch turns fsnotify notifications for a directory tree into
// mirror.FileEvents.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"plexmirror/internal/mirror"
)

const (
	// eventBuffer is the fsnotify queue size. Plex rewrites many metadata
	// bundles at once during a library scan.
	eventBuffer = 4096

	// pairWindow is how long a Rename waits for the Create that completes it.
	pairWindow = 100 * time.Millisecond
)

// Watcher watches every directory below a root, adding watches for
// directories as they appear.
//
// inotify reports a rename as a Rename for the old name followed by a Create
// for the new one. The two are joined into a single Moved event. A Rename
// with no Create in time means the entry left the tree and becomes Deleted.
type Watcher struct {
	root   string
	ignore mirror.Matcher
	logger mirror.Logger
	fsw    *fsnotify.Watcher

	pending      string // old path of an unpaired Rename
	pendingTimer *time.Timer
	lastMoved    string // old path of the last directory move
}

// New creates a Watcher and registers watches for root and every directory
// below it that is not ignored. Watches are in place when New returns.
func New(root string, ignore mirror.Matcher, logger mirror.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewBufferedWatcher(eventBuffer)
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		root:   filepath.Clean(root),
		ignore: ignore,
		logger: logger,
		fsw:    fsw,
	}
	if err := w.fsw.Add(w.root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", w.root, err)
	}
	w.addTree(w.root, nil)
	return w, nil
}

// Run delivers events to emit until ctx is done. emit is called from Run's
// goroutine only, in the order the kernel reported the changes.
func (w *Watcher) Run(ctx context.Context, emit func(mirror.FileEvent)) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			w.flush(emit)
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, emit)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("event queue overflowed, changes were missed; run sync to reconcile")
				continue
			}
			w.logger.Error("watch error", "error", err)

		case <-w.timer():
			w.flush(emit)
		}
	}
}

// Close releases the underlying inotify instance.
func (w *Watcher) Close() error {
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event, emit func(mirror.FileEvent)) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("fsnotify event", "op", ev.Op.String(), "path", path)

	if w.pending != "" {
		if ev.Has(fsnotify.Rename) && path == w.pending {
			return
		}
		if ev.Has(fsnotify.Create) {
			old := w.pending
			w.clearPending()
			w.moved(old, path, emit)
			return
		}
		w.flush(emit)
	}

	switch {
	case ev.Has(fsnotify.Rename):
		// A watched directory reports its own move after the parent has.
		if path == w.lastMoved {
			w.lastMoved = ""
			return
		}
		w.pending = path
		w.pendingTimer = time.NewTimer(pairWindow)

	case ev.Has(fsnotify.Create):
		emit(mirror.FileEvent{Kind: mirror.Created, SrcPath: path})
		if isDir(path) && !w.ignored(path) {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("cannot watch directory", "path", path, "error", err)
			}
			w.addTree(path, emit)
		}

	case ev.Has(fsnotify.Remove):
		emit(mirror.FileEvent{Kind: mirror.Deleted, SrcPath: path})

	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		emit(mirror.FileEvent{Kind: mirror.Modified, SrcPath: path})
	}
}

// moved emits a Moved event and, for directories, moves the watches along.
// Watches below a moved directory keep reporting their old paths, so they are
// dropped and re-added under the new name.
//
// The pairing is by arrival order only, so a Create for an unrelated entry can
// be joined to a Rename that left the tree. A non-directory therefore also
// gets a Modified event, which copies it again when the moved backup holds
// other content.
func (w *Watcher) moved(old, path string, emit func(mirror.FileEvent)) {
	emit(mirror.FileEvent{Kind: mirror.Moved, SrcPath: old, DestPath: path})
	if !isDir(path) {
		emit(mirror.FileEvent{Kind: mirror.Modified, SrcPath: path})
		return
	}

	w.lastMoved = old
	prefix := old + string(filepath.Separator)
	for _, watched := range w.fsw.WatchList() {
		if watched == old || strings.HasPrefix(watched, prefix) {
			if err := w.fsw.Remove(watched); err != nil {
				w.logger.Debug("removing stale watch", "path", watched, "error", err)
			}
		}
	}
	if !w.ignored(path) {
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		w.addTree(path, nil)
	}
}

// flush turns an unpaired Rename into a Deleted event.
func (w *Watcher) flush(emit func(mirror.FileEvent)) {
	if w.pending == "" {
		return
	}
	old := w.pending
	w.clearPending()
	emit(mirror.FileEvent{Kind: mirror.Deleted, SrcPath: old})
}

func (w *Watcher) clearPending() {
	w.pending = ""
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
		w.pendingTimer = nil
	}
}

// timer returns the pending Rename's deadline, or nil (blocking forever) if
// nothing is pending.
func (w *Watcher) timer() <-chan time.Time {
	if w.pendingTimer == nil {
		return nil
	}
	return w.pendingTimer.C
}

// addTree watches every directory below dir. With a non-nil emit, entries
// found are also reported as Created: they may have appeared before the
// watch on dir was in place.
func (w *Watcher) addTree(dir string, emit func(mirror.FileEvent)) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("cannot walk", "path", path, "error", err)
			return nil
		}
		if path == dir {
			return nil
		}
		if w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if emit != nil {
			emit(mirror.FileEvent{Kind: mirror.Created, SrcPath: path})
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("cannot watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	if w.ignore == nil || path == w.root {
		return false
	}
	return w.ignore.Match(mirror.Relativize(path, w.root))
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
