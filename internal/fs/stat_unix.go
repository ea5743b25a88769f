//go:build unix

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
)

// ownerFromInfo extracts the numeric owner and group from a FileInfo.
func ownerFromInfo(info fs.FileInfo) (uid, gid int, err error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("cannot extract owner: expected *syscall.Stat_t, got %T", info.Sys())
	}
	return int(stat.Uid), int(stat.Gid), nil
}
