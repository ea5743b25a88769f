package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// resolveLink prepares the backup for the symlink at path and returns the
// link text to write at dest.
//
// The link is resolved through its whole chain. A target inside the source
// tree is mirrored on its own, and the returned text points at that mirrored
// copy relative to dest, so backup links never lead back into the source tree.
// A backup entry at dest that is not already a link to the mirrored target is
// removed first, which keeps a real file from lingering where a link belongs.
// A link that cannot be resolved, dangling or part of a loop, keeps its text.
func (e *Engine) resolveLink(path, dest string) (string, error) {
	raw, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("reading link: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if _, lerr := os.Lstat(path); errors.Is(lerr, fs.ErrNotExist) {
			return "", fmt.Errorf("resolving link: %w", lerr)
		}
		// Dangling links and link loops are mirrored as they are.
		e.logger.Debug("symlink target cannot be resolved", "path", path, "target", raw, "error", err)
		return e.translateLinkText(raw, dest), nil
	}

	if !e.target.Contains(resolved) {
		e.logger.Debug("symlink target is outside the watched tree", "path", path, "target", resolved)
		return raw, nil
	}

	e.logger.Debug("backing up symlink target", "path", path, "target", resolved)
	if _, err := e.Backup(resolved); err != nil {
		return "", fmt.Errorf("backing up link target %s: %w", resolved, err)
	}

	resolvedBackup := e.target.BackupPath(resolved)
	if _, err := os.Lstat(resolvedBackup); err == nil {
		if err := e.removeStaleEntry(dest, resolvedBackup); err != nil {
			return "", err
		}
	}
	return relativeLink(dest, resolvedBackup), nil
}

// removeStaleEntry deletes whatever is at dest unless it already resolves to want.
func (e *Engine) removeStaleEntry(dest, want string) error {
	info, err := os.Lstat(dest)
	if err != nil {
		return nil
	}
	if info.Mode()&fs.ModeSymlink != 0 && resolvesTo(dest, want) {
		return nil
	}
	e.logger.Debug("removing stale backup entry", "backup", dest)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("removing stale entry %s: %w", dest, err)
	}
	return nil
}

// translateLinkText maps an unresolvable link's raw text into the backup tree.
// Relative text is already valid inside the mirror. Absolute text pointing
// into the source tree is rewritten relative to the backup root.
func (e *Engine) translateLinkText(raw, dest string) string {
	if filepath.IsAbs(raw) && e.target.Contains(raw) {
		return relativeLink(dest, e.target.BackupPath(raw))
	}
	return raw
}

func resolvesTo(link, want string) bool {
	got, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}
	if canonical, err := filepath.EvalSymlinks(want); err == nil {
		want = canonical
	}
	return got == want
}
