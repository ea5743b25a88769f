package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveRoot validates a configured tree root and returns its canonical
// absolute form. Symlinks in the root itself are resolved, so every path
// reported for the tree shares the returned prefix.
func ResolveRoot(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", resolved)
	}

	return resolved, nil
}

// EnsureRoot creates a backup root if it is missing and returns its
// canonical form.
func EnsureRoot(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	return ResolveRoot(absPath)
}
