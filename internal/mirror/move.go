package mirror

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Move mirrors a reported rename of oldPath to newPath.
//
// Plex sometimes creates a symlink in a way the kernel reports as a rename
// from an unrelated path. Moving the backup of oldPath in that case would
// corrupt the mirror, so the event is classified first:
//
//  1. A symlink on the way from the root down to newPath that has no backup
//     yet is mirrored; if that makes newPath's backup appear, the rename was
//     really a symlink creation and nothing is moved. oldPath's backup is
//     only removed if oldPath itself is gone.
//  2. If newPath's backup is already a link whose target has the same
//     content as oldPath's backup, the mirror is current and nothing is done.
//  3. If oldPath's backup is a link, it is removed; the real destination is
//     populated by its own Created or Modified event.
//  4. Otherwise the backup entry is renamed and newPath's owner applied.
//
// The order of these checks follows observed Plex behaviour and should not be
// changed without confirming against real event traces.
func (e *Engine) Move(oldPath, newPath string) (Action, error) {
	oldBackup := e.target.BackupPath(oldPath)
	newBackup := e.target.BackupPath(newPath)
	e.logger.Debug("old file path", "backup", oldBackup)
	e.logger.Debug("new file path", "backup", newBackup)

	linked, err := e.scanSymlinkAncestors(newPath, newBackup)
	if err != nil {
		return ActionNone, err
	}
	if linked {
		e.logger.Info("move was a symlink creation, nothing to move", "old", oldPath, "new", newPath)
		if err := e.dropVanished(oldPath, oldBackup); err != nil {
			return ActionLinked, err
		}
		return ActionLinked, nil
	}

	if e.linkAlreadyCurrent(oldBackup, newBackup) {
		e.logger.Info("symlink already reflects the move, skipping", "backup", newBackup)
		return ActionSkipped, nil
	}

	oldInfo, err := os.Lstat(oldBackup)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Info("file was moved or removed before it could be moved", "backup", oldBackup)
			return ActionAbandoned, nil
		}
		return ActionNone, fmt.Errorf("stat backup %s: %w", oldBackup, err)
	}

	if oldInfo.Mode()&fs.ModeSymlink != 0 {
		e.logger.Info("moved entry is a symlink, removing stale link", "backup", oldBackup)
		if err := os.Remove(oldBackup); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ActionNone, fmt.Errorf("removing link %s: %w", oldBackup, err)
		}
		return ActionRemoved, nil
	}

	if err := e.rename(oldBackup, newBackup, oldInfo); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Info("file was moved or removed before it could be moved", "backup", oldBackup)
			return ActionAbandoned, nil
		}
		return ActionNone, err
	}

	if err := e.applyOwner(newPath, newBackup); err != nil {
		return ActionMoved, err
	}
	return ActionMoved, nil
}

// scanSymlinkAncestors walks newPath from the source root down, newPath
// itself included. Every symlink whose backup does not exist yet is mirrored.
// It reports true once newBackup exists after such a mirror.
func (e *Engine) scanSymlinkAncestors(newPath, newBackup string) (bool, error) {
	rel := Relativize(newPath, e.target.SourceRoot)
	if rel == "" || rel == newPath {
		return false, nil
	}

	current := e.target.SourceRoot
	for _, part := range strings.Split(rel, separator) {
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			// Nothing further down can exist either.
			return false, nil
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			continue
		}

		ancestorBackup := e.target.BackupPath(current)
		if _, err := os.Lstat(ancestorBackup); err == nil {
			continue
		}

		e.logger.Info("symlink has no backup yet, treating as symlink creation", "path", current)
		if _, err := e.Backup(current); err != nil {
			return false, fmt.Errorf("backing up symlink %s: %w", current, err)
		}
		if _, err := os.Lstat(newBackup); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// dropVanished removes oldBackup when oldPath is gone from the source. A
// symlink creation reported as a rename leaves oldPath in place; a real
// rename does not, and no Deleted event will follow for it.
func (e *Engine) dropVanished(oldPath, oldBackup string) error {
	if _, err := os.Lstat(oldPath); !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if _, err := os.Lstat(oldBackup); err != nil {
		return nil
	}
	e.logger.Info("old path is gone from the source, removing its backup", "backup", oldBackup)
	if err := os.RemoveAll(oldBackup); err != nil {
		return fmt.Errorf("removing %s: %w", oldBackup, err)
	}
	return nil
}

// linkAlreadyCurrent reports whether newBackup is a symlink whose resolved
// target matches the content of oldBackup.
func (e *Engine) linkAlreadyCurrent(oldBackup, newBackup string) bool {
	info, err := os.Lstat(newBackup)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return false
	}
	resolved, err := filepath.EvalSymlinks(newBackup)
	if err != nil {
		return false
	}
	return sameContent(resolved, oldBackup)
}

// rename moves oldBackup to newBackup, creating parents as needed. A
// directory on either side cannot be renamed over an existing entry, so the
// old destination is cleared first.
func (e *Engine) rename(oldBackup, newBackup string, oldInfo fs.FileInfo) error {
	if oldBackup == newBackup {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newBackup), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", newBackup, err)
	}
	if existing, err := os.Lstat(newBackup); err == nil && (existing.IsDir() || oldInfo.IsDir()) {
		e.logger.Debug("clearing move destination", "backup", newBackup)
		if err := os.RemoveAll(newBackup); err != nil {
			return fmt.Errorf("clearing %s: %w", newBackup, err)
		}
	}
	if err := os.Rename(oldBackup, newBackup); err != nil {
		return fmt.Errorf("moving %s to %s: %w", oldBackup, newBackup, err)
	}
	e.logger.Debug("moved", "old", oldBackup, "new", newBackup)
	return nil
}

// sameContent compares two paths, following symlinks. Directories match when
// they list the same entry names; regular files match byte for byte.
func sameContent(a, b string) bool {
	if a == b {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}

	switch {
	case ai.IsDir() && bi.IsDir():
		an, err := entryNames(a)
		if err != nil {
			return false
		}
		bn, err := entryNames(b)
		if err != nil {
			return false
		}
		return slices.Equal(an, bn)
	case ai.Mode().IsRegular() && bi.Mode().IsRegular():
		if ai.Size() != bi.Size() {
			return false
		}
		return sameBytes(a, b)
	default:
		return false
	}
}

func entryNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names, nil
}

func sameBytes(a, b string) bool {
	fa, err := os.Open(a)
	if err != nil {
		return false
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false
	}
	defer fb.Close()

	bufA := make([]byte, 32*1024)
	bufB := make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if doneA || doneB {
			return doneA && doneB
		}
		if errA != nil || errB != nil {
			return false
		}
	}
}
