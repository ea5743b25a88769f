package testutil

import (
	"os"
	"sync"
)

// Owner is a numeric uid/gid pair.
type Owner struct {
	UID int
	GID int
}

// RecordingOwnership is an in-memory mirror.Ownership. Owners are assigned per
// source path with SetOwner; paths without one report DefaultOwner. Lchown
// calls are recorded instead of applied, so tests can run unprivileged.
// Both methods still Lstat the path so missing entries behave as on disk.
type RecordingOwnership struct {
	mu           sync.Mutex
	DefaultOwner Owner
	owners       map[string]Owner
	applied      map[string]Owner
}

// NewRecordingOwnership creates a RecordingOwnership with default owner 1000:1000.
func NewRecordingOwnership() *RecordingOwnership {
	return &RecordingOwnership{
		DefaultOwner: Owner{UID: 1000, GID: 1000},
		owners:       make(map[string]Owner),
		applied:      make(map[string]Owner),
	}
}

// SetOwner sets the owner reported for path.
func (o *RecordingOwnership) SetOwner(path string, uid, gid int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.owners[path] = Owner{UID: uid, GID: gid}
}

func (o *RecordingOwnership) Owner(path string) (int, int, error) {
	if _, err := os.Lstat(path); err != nil {
		return 0, 0, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.owners[path]
	if !ok {
		owner = o.DefaultOwner
	}
	return owner.UID, owner.GID, nil
}

func (o *RecordingOwnership) Lchown(path string, uid, gid int) error {
	if _, err := os.Lstat(path); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applied[path] = Owner{UID: uid, GID: gid}
	return nil
}

// Applied returns the owner last set on path and whether Lchown was called for it.
func (o *RecordingOwnership) Applied(path string) (Owner, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.applied[path]
	return owner, ok
}
