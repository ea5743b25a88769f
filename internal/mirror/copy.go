package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const tempPattern = ".plexmirror-*.tmp"

// prepareDestination makes sure dest's parent exists and that nothing at dest
// would stop a rename from replacing it. A directory cannot be replaced by
// rename, so one found at dest is removed.
func prepareDestination(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dest, err)
	}
	info, err := os.Lstat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat destination %s: %w", dest, err)
	}
	if info.IsDir() {
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("removing directory at %s: %w", dest, err)
		}
	}
	return nil
}

// copyFile copies a regular file's content, permission bits and modification
// time to dest. Content goes to a temporary file next to dest which is then
// renamed over it, so readers of the backup never see a partial file.
func copyFile(src, dest string, info fs.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	if err := prepareDestination(dest); err != nil {
		return 0, err
	}

	out, err := os.CreateTemp(filepath.Dir(dest), tempPattern)
	if err != nil {
		return 0, fmt.Errorf("creating temporary file: %w", err)
	}
	defer out.Close()

	tempPath := out.Name()
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(out, in)
	if err != nil {
		return 0, fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("setting permissions on %s: %w", tempPath, err)
	}
	// Close before Chtimes: flushing may touch the modification time.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", tempPath, err)
	}
	if err := os.Chtimes(tempPath, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("setting times on %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		return 0, fmt.Errorf("renaming into place: %w", err)
	}
	tempPath = ""
	return written, nil
}

// writeSymlink creates a symlink at dest pointing at linkTarget, replacing
// whatever was at dest. The link is created under a temporary name first and
// renamed into place.
func writeSymlink(linkTarget, dest string) error {
	if err := prepareDestination(dest); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(dest), tempPattern)
	if err != nil {
		return fmt.Errorf("generating temporary link name: %w", err)
	}
	tempName := f.Name()
	f.Close()
	// Only the unique name is needed; os.Symlink refuses an existing path.
	os.Remove(tempName)

	if err := os.Symlink(linkTarget, tempName); err != nil {
		return fmt.Errorf("creating symlink %s -> %s: %w", tempName, linkTarget, err)
	}
	if err := os.Rename(tempName, dest); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("renaming symlink into place: %w", err)
	}
	return nil
}

// relativeLink returns the link text that makes a symlink at linkPath point at target.
func relativeLink(linkPath, target string) string {
	rel, err := filepath.Rel(filepath.Dir(linkPath), target)
	if err != nil {
		return target
	}
	return rel
}
