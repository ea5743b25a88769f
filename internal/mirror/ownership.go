package mirror

// Ownership reads and applies owner/group ids without following symlinks,
// so a link's own ownership is used rather than its target's.
type Ownership interface {
	// Owner returns the uid and gid of path as reported by lstat.
	Owner(path string) (uid, gid int, err error)

	// Lchown sets the uid and gid of path, not following a final symlink.
	Lchown(path string, uid, gid int) error
}

// Matcher reports whether a path, relative to a source root, is excluded from mirroring.
type Matcher interface {
	Match(relativePath string) bool
}
