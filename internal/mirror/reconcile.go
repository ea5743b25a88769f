package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReconcileStats counts what a reconciliation pass did.
type ReconcileStats struct {
	Directories int
	Copied      int
	Linked      int
	Unchanged   int
	Removed     int
	Failed      int
}

// Reconcile brings the whole backup tree in line with the source tree.
// Change notifications only cover what happens while a watch is running, so
// this is run before watching starts and by the one-shot sync command.
//
// The source tree is walked first and every entry backed up, skipping regular
// files whose backup already has the same size and modification time. The
// backup tree is then walked and every entry without a source counterpart
// removed. Failures on single entries are logged and counted, not returned.
func (h *TargetHandler) Reconcile() (ReconcileStats, error) {
	var stats ReconcileStats
	root := h.target.SourceRoot

	if _, err := os.Stat(root); err != nil {
		return stats, fmt.Errorf("source root %s: %w", root, err)
	}
	if err := os.MkdirAll(h.target.BackupRoot, 0755); err != nil {
		return stats, fmt.Errorf("creating backup root: %w", err)
	}

	h.logger.Info("reconciling", "source", root, "backup", h.target.BackupRoot)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				h.logger.Warn("cannot read source entry", "path", path, "error", err)
				stats.Failed++
			}
			return nil
		}
		if path == root {
			return nil
		}
		if h.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && h.engine.upToDate(path) {
			stats.Unchanged++
			return nil
		}

		action, err := h.engine.Backup(path)
		if err != nil {
			h.logger.Error("backup failed", "path", path, "error", err)
			stats.Failed++
			return nil
		}
		switch action {
		case ActionCreatedDir:
			stats.Directories++
		case ActionCopied:
			stats.Copied++
		case ActionLinked:
			stats.Linked++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking source tree: %w", err)
	}

	backupRoot := h.target.BackupRoot
	err = filepath.WalkDir(backupRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				h.logger.Warn("cannot read backup entry", "path", path, "error", err)
				stats.Failed++
			}
			return nil
		}
		if path == backupRoot {
			return nil
		}

		source := h.target.SourcePath(path)
		if _, err := os.Lstat(source); !errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		h.logger.Info("removing backup entry without source", "backup", path)
		if err := os.RemoveAll(path); err != nil {
			h.logger.Error("removal failed", "backup", path, "error", err)
			stats.Failed++
			return nil
		}
		stats.Removed++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking backup tree: %w", err)
	}

	h.logger.Info("reconciled",
		"directories", stats.Directories,
		"copied", stats.Copied,
		"linked", stats.Linked,
		"unchanged", stats.Unchanged,
		"removed", stats.Removed,
		"failed", stats.Failed,
	)
	return stats, nil
}
