package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the per-tree ignore file looked up in each source root.
const IgnoreFileName = ".plexmirrorignore"

// defaultIgnorePatterns are always applied regardless of config or ignore file.
// The second one matches the temporary files written while copying.
var defaultIgnorePatterns = []string{"/" + IgnoreFileName, ".plexmirror-*.tmp"}

// IgnoreMatcher excludes parts of a Plex tree from mirroring. Patterns use
// .gitignore syntax, relative to the tree root: "Cache" matches that name at
// any depth, "/Cache" only at the top, "Media/*/Thumbnails" a nested path.
//
// An entry is ignored when it or any directory above it matches, so the
// watcher skipping a directory and the handler skipping its contents agree.
type IgnoreMatcher struct {
	gi    *ignore.GitIgnore
	empty bool
}

// NewIgnoreMatcher compiles raw pattern lines. Blank lines and lines
// starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	empty := true
	for _, raw := range rawPatterns {
		if line := strings.TrimSpace(raw); line != "" && !strings.HasPrefix(line, "#") {
			empty = false
			break
		}
	}
	return &IgnoreMatcher{gi: ignore.CompileIgnoreLines(rawPatterns...), empty: empty}
}

// WithDefaults returns rawPatterns preceded by the built-in patterns.
func WithDefaults(rawPatterns []string) []string {
	return append(slices.Clone(defaultIgnorePatterns), rawPatterns...)
}

// Match reports whether relativePath, or a directory containing it, is ignored.
// The tree root itself ("") is never ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	rel := filepath.ToSlash(filepath.Clean(relativePath))
	if m.empty || rel == "." || rel == "" {
		return false
	}

	prefix := ""
	for _, part := range strings.Split(rel, "/") {
		if prefix == "" {
			prefix = part
		} else {
			prefix += "/" + part
		}
		if m.gi.MatchesPath(prefix) {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), nil
}
