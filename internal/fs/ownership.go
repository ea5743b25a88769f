//go:build unix

package fs

import (
	"os"

	"golang.org/x/sys/unix"

	"plexmirror/internal/mirror"
)

// OSOwnership reads and sets numeric ownership on the real filesystem.
// Symlinks are never followed.
type OSOwnership struct{}

// NewOSOwnership returns the real filesystem Ownership implementation.
func NewOSOwnership() *OSOwnership {
	return &OSOwnership{}
}

func (o *OSOwnership) Owner(path string) (int, int, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, 0, err
	}
	return ownerFromInfo(info)
}

func (o *OSOwnership) Lchown(path string, uid, gid int) error {
	if err := unix.Lchown(path, uid, gid); err != nil {
		return &os.PathError{Op: "lchown", Path: path, Err: err}
	}
	return nil
}

// Compile-time check that OSOwnership implements mirror.Ownership
var _ mirror.Ownership = (*OSOwnership)(nil)
