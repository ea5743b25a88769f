package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/dustin/go-humanize"
)

// Engine performs the mutations of one backup tree: copying, recursive
// removal and moves, preserving the owner and group of every entry.
type Engine struct {
	target Target
	owners Ownership
	logger Logger
}

// NewEngine creates an Engine that mirrors target.
func NewEngine(target Target, owners Ownership, logger Logger) *Engine {
	return &Engine{
		target: target,
		owners: owners,
		logger: logger,
	}
}

// Target returns the tree pairing this engine mirrors.
func (e *Engine) Target() Target {
	return e.target
}

// Backup mirrors the object at the source path onto the backup tree.
// Directories are created (with any missing parents), symlinks are recreated
// as links into the backup tree, regular files are copied over any existing
// destination. Owner and group are then copied from the source.
//
// A source that disappears before it can be copied is not an error: the
// Deleted event that follows reconciles the backup.
func (e *Engine) Backup(path string) (Action, error) {
	dest := e.target.BackupPath(path)
	e.logger.Debug("backing up", "source", path, "backup", dest)

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Info("file was deleted before it could be copied", "path", path)
			return ActionAbandoned, nil
		}
		return ActionNone, fmt.Errorf("stat source %s: %w", path, err)
	}

	var action Action
	switch {
	case info.IsDir():
		if err := e.makeDir(dest, info); err != nil {
			return ActionNone, err
		}
		action = ActionCreatedDir

	case info.Mode()&fs.ModeSymlink != 0:
		linkTarget, err := e.resolveLink(path, dest)
		if err == nil {
			err = writeSymlink(linkTarget, dest)
		}
		if err != nil {
			if e.sourceGone(path) {
				e.logger.Info("symlink was deleted before it could be copied", "path", path)
				return ActionAbandoned, nil
			}
			return ActionNone, fmt.Errorf("mirroring symlink %s: %w", path, err)
		}
		e.logger.Debug("symlink mirrored", "backup", dest, "target", linkTarget)
		action = ActionLinked

	case info.Mode().IsRegular():
		written, err := copyFile(path, dest, info)
		if err != nil {
			if e.sourceGone(path) {
				e.logger.Info("file was deleted before it could be copied", "path", path)
				return ActionAbandoned, nil
			}
			return ActionNone, fmt.Errorf("copying %s: %w", path, err)
		}
		e.logger.Debug("file copied", "backup", dest, "size", humanize.Bytes(uint64(written)))
		action = ActionCopied

	default:
		e.logger.Debug("skipping special file", "path", path, "mode", info.Mode().String())
		return ActionSkipped, nil
	}

	if err := e.applyOwner(path, dest); err != nil {
		return action, err
	}
	return action, nil
}

// Delete removes the backup counterpart of path, recursively for directories.
// A target that is already gone, or that changed type underneath us, already
// satisfies the desired end state and is only logged.
func (e *Engine) Delete(path string) (Action, error) {
	dest := e.target.BackupPath(path)
	e.logger.Debug("removing", "backup", dest)

	info, err := os.Lstat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Info("file has already been deleted", "backup", dest)
			return ActionAbandoned, nil
		}
		return ActionNone, fmt.Errorf("stat backup %s: %w", dest, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(dest)
	} else {
		err = os.Remove(dest)
	}
	if err != nil {
		if isAbsentOrMismatch(err) {
			e.logger.Info("backup entry changed before it could be removed", "backup", dest, "error", err)
			return ActionAbandoned, nil
		}
		return ActionNone, fmt.Errorf("removing %s: %w", dest, err)
	}
	return ActionRemoved, nil
}

// makeDir creates dest as a directory. Anything else found at dest is an
// outdated entry and is replaced.
func (e *Engine) makeDir(dest string, info fs.FileInfo) error {
	if existing, err := os.Lstat(dest); err == nil && !existing.IsDir() {
		e.logger.Debug("replacing non-directory with directory", "backup", dest)
		if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", dest, err)
		}
	}
	if err := os.MkdirAll(dest, info.Mode().Perm()|0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dest, err)
	}
	return nil
}

// applyOwner copies uid and gid from src to dest, re-reading them from src
// so the most recent ownership wins. A source that vanished in the meantime
// is treated like any other transient absence.
func (e *Engine) applyOwner(src, dest string) error {
	uid, gid, err := e.owners.Owner(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Info("file was deleted before its owner could be read", "path", src)
			return nil
		}
		return fmt.Errorf("reading owner of %s: %w", src, err)
	}
	e.logger.Debug("setting owner", "uid", uid, "gid", gid, "backup", dest)
	if err := e.owners.Lchown(dest, uid, gid); err != nil {
		return fmt.Errorf("setting owner of %s: %w", dest, err)
	}
	return nil
}

// upToDate reports whether the backup of a regular file already has the
// source's size and modification time.
func (e *Engine) upToDate(path string) bool {
	src, err := os.Lstat(path)
	if err != nil || !src.Mode().IsRegular() {
		return false
	}
	dst, err := os.Lstat(e.target.BackupPath(path))
	if err != nil || !dst.Mode().IsRegular() {
		return false
	}
	return src.Size() == dst.Size() && src.ModTime().Equal(dst.ModTime())
}

func (e *Engine) sourceGone(path string) bool {
	_, err := os.Lstat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func isAbsentOrMismatch(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.EISDIR)
}
