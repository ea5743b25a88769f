package mirror

import (
	"path/filepath"
	"strings"
)

const separator = string(filepath.Separator)

// Target pairs one watched source tree with the backup tree that mirrors it.
// A Target is immutable for the lifetime of the process.
type Target struct {
	SourceRoot string
	BackupRoot string
	Label      string
}

// NewTarget creates a Target with cleaned root paths.
// Callers are expected to pass canonical (symlink free) absolute roots so that
// resolved symlink targets can be related back to the source tree.
func NewTarget(sourceRoot, backupRoot, label string) Target {
	return Target{
		SourceRoot: filepath.Clean(sourceRoot),
		BackupRoot: filepath.Clean(backupRoot),
		Label:      label,
	}
}

// Relativize strips sourceRoot and its trailing separator from absPath.
// The root itself yields "". A path outside the root is returned unchanged.
func Relativize(absPath, sourceRoot string) string {
	root := strings.TrimSuffix(sourceRoot, separator)
	if absPath == root || absPath == root+separator {
		return ""
	}
	if rel, ok := strings.CutPrefix(absPath, root+separator); ok {
		return rel
	}
	return absPath
}

// Contains reports whether path is the source root or lies below it.
func (t Target) Contains(path string) bool {
	return t.IsRoot(path) || strings.HasPrefix(path, strings.TrimSuffix(t.SourceRoot, separator)+separator)
}

// IsRoot reports whether path names the source root itself.
func (t Target) IsRoot(path string) bool {
	return filepath.Clean(path) == t.SourceRoot
}

// BackupPath maps a path in the source tree to its counterpart in the backup tree.
// filepath.Join keeps out-of-root inputs below the backup root.
func (t Target) BackupPath(sourcePath string) string {
	return filepath.Join(t.BackupRoot, Relativize(sourcePath, t.SourceRoot))
}

// SourcePath maps a path in the backup tree back to the source tree.
func (t Target) SourcePath(backupPath string) string {
	return filepath.Join(t.SourceRoot, Relativize(backupPath, t.BackupRoot))
}
